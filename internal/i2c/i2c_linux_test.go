//go:build linux

package i2c

import (
	"os"
	"strings"
	"testing"
)

func devNullBus(t *testing.T) *Bus {
	t.Helper()
	f, err := os.OpenFile("/dev/null", os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenFile /dev/null: %v", err)
	}
	b := &Bus{f: f, path: "/dev/null"}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestDevTx_InvalidAddr(t *testing.T) {
	b := devNullBus(t)
	for _, addr := range []uint16{0, 0x80} {
		err := b.Dev(addr).WriteReg(0x00, 0x01)
		if err == nil || !strings.Contains(err.Error(), "invalid addr") {
			t.Fatalf("addr=0x%X err=%v want invalid addr", addr, err)
		}
	}
}

func TestDevTx_EmptyIsNoop(t *testing.T) {
	d := devNullBus(t).Dev(0x68)
	n, err := d.tx(nil, nil)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if n != 0 {
		t.Fatalf("n=%d want 0", n)
	}
}

func TestDevTx_ClosedBus(t *testing.T) {
	b := devNullBus(t)
	d := b.Dev(0x68)
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := d.ReadRegU8(0x00); err == nil || !strings.Contains(err.Error(), "closed") {
		t.Fatalf("err=%v want closed", err)
	}
	// Close is idempotent.
	if err := b.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestOpen_InvalidBus(t *testing.T) {
	if _, err := Open(-1); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNilHandles(t *testing.T) {
	var b *Bus
	if b.Dev(0x68) != nil {
		t.Fatalf("expected nil dev")
	}
	if b.Path() != "" || b.Close() != nil {
		t.Fatalf("nil bus should be inert")
	}
	var d *Dev
	if err := d.WriteReg(0, 0); err == nil {
		t.Fatalf("expected error from nil dev")
	}
}
