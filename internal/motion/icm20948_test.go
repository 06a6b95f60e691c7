package motion

import (
	"errors"
	"math"
	"testing"
	"time"
)

type fakeI2C struct {
	regs   map[byte][]byte
	writes []writeOp

	readErrFor map[byte]error
}

type writeOp struct {
	reg byte
	val byte
}

func (f *fakeI2C) ReadRegU8(reg byte) (byte, error) {
	if err := f.readErrFor[reg]; err != nil {
		return 0, err
	}
	b := f.regs[reg]
	if len(b) < 1 {
		return 0, errors.New("no reg")
	}
	return b[0], nil
}

func (f *fakeI2C) ReadReg(reg byte, dst []byte) error {
	if err := f.readErrFor[reg]; err != nil {
		return err
	}
	b := f.regs[reg]
	if len(b) < len(dst) {
		return errors.New("short reg")
	}
	copy(dst, b[:len(dst)])
	return nil
}

func (f *fakeI2C) WriteReg(reg, value byte) error {
	f.writes = append(f.writes, writeOp{reg: reg, val: value})
	return nil
}

func (f *fakeI2C) wrote(reg, val byte) bool {
	for _, w := range f.writes {
		if w.reg == reg && w.val == val {
			return true
		}
	}
	return false
}

func noSleep(t *testing.T) {
	t.Helper()
	oldSleep := sleep
	sleep = func(time.Duration) {}
	t.Cleanup(func() { sleep = oldSleep })
}

func TestNewICM20948_WhoAmIMismatch(t *testing.T) {
	noSleep(t)
	f := &fakeI2C{regs: map[byte][]byte{regWhoAmI: {0x00}}}
	if _, err := NewICM20948(f, DefaultRate); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNewICM20948_WhoAmIReadError(t *testing.T) {
	noSleep(t)
	boom := errors.New("nack")
	f := &fakeI2C{readErrFor: map[byte]error{regWhoAmI: boom}}
	_, err := NewICM20948(f, DefaultRate)
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v want wrapped nack", err)
	}
}

func TestNewICM20948_WritesExpectedInitRegisters(t *testing.T) {
	noSleep(t)
	f := &fakeI2C{regs: map[byte][]byte{regWhoAmI: {whoAmIVal}}}
	if _, err := NewICM20948(f, 50*time.Millisecond); err != nil {
		t.Fatalf("NewICM20948: %v", err)
	}

	if !f.wrote(regPwrMgmt1, bitReset) {
		t.Fatalf("expected reset write to PWR_MGMT_1")
	}
	if !f.wrote(regPwrMgmt1, clkAuto) {
		t.Fatalf("expected wake write to PWR_MGMT_1")
	}
	if !f.wrote(regBankSel, bank2<<4) {
		t.Fatalf("expected bank2 select write")
	}
	// 1125/(1+55) ~= 20 Hz for a 50ms interval.
	if !f.wrote(regAccelSmplrt2, 55) {
		t.Fatalf("expected divider 55, writes=%v", f.writes)
	}
	if !f.wrote(regAccelConfig, fsAccel4g) {
		t.Fatalf("expected 4g full scale")
	}
	last := f.writes[len(f.writes)-1]
	if last.reg != regBankSel || last.val != 0 {
		t.Fatalf("expected to finish in bank 0, last=%+v", last)
	}
}

func TestSampleDivider(t *testing.T) {
	cases := []struct {
		rate time.Duration
		want uint16
	}{
		{0, 0},
		{time.Microsecond, 0},
		{10 * time.Millisecond, 10},
		{50 * time.Millisecond, 55},
		{time.Hour, 0x0FFF},
	}
	for _, tc := range cases {
		if got := sampleDivider(tc.rate); got != tc.want {
			t.Fatalf("rate=%s got %d want %d", tc.rate, got, tc.want)
		}
	}
}

func TestReadAcceleration_ScalesToMetersPerSecondSquared(t *testing.T) {
	noSleep(t)
	f := &fakeI2C{regs: map[byte][]byte{regWhoAmI: {whoAmIVal}}}
	// 8192 counts is 1 g at +-4 g full scale.
	f.regs[regAccelXoutH] = []byte{
		0x20, 0x00, // ax = 8192
		0x00, 0x00, // ay = 0
		0xE0, 0x00, // az = -8192
	}
	d, err := NewICM20948(f, DefaultRate)
	if err != nil {
		t.Fatalf("NewICM20948: %v", err)
	}
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return at }

	s, err := d.ReadAcceleration()
	if err != nil {
		t.Fatalf("ReadAcceleration: %v", err)
	}
	if math.Abs(s.X-StandardGravity) > 1e-9 {
		t.Fatalf("X=%v want %v", s.X, StandardGravity)
	}
	if s.Y != 0 {
		t.Fatalf("Y=%v want 0", s.Y)
	}
	if math.Abs(s.Z+StandardGravity) > 1e-9 {
		t.Fatalf("Z=%v want %v", s.Z, -StandardGravity)
	}
	if !s.At.Equal(at) {
		t.Fatalf("At=%v want %v", s.At, at)
	}
}

func TestReadAcceleration_ReadError(t *testing.T) {
	noSleep(t)
	f := &fakeI2C{regs: map[byte][]byte{regWhoAmI: {whoAmIVal}}}
	d, err := NewICM20948(f, DefaultRate)
	if err != nil {
		t.Fatalf("NewICM20948: %v", err)
	}
	if _, err := d.ReadAcceleration(); err == nil {
		t.Fatalf("expected error for missing accel block")
	}
}
