package motion

import (
	"fmt"
	"time"

	"accelgpx/internal/track"
)

var sleep = time.Sleep

// ICM-20948 accelerometer, configured for +-4 g.
// WHO_AM_I at 0x00 reads 0xEA.

const (
	DefaultAddr = 0x68

	regWhoAmI  = 0x00
	whoAmIVal  = 0xEA
	regBankSel = 0x7F

	// Bank 0.
	regPwrMgmt1   = 0x06
	regPwrMgmt2   = 0x07
	bitReset      = 0x80
	clkAuto       = 0x01
	regIntEnable  = 0x10
	regAccelXoutH = 0x2D

	// Bank 2.
	bank2           = 2
	regAccelSmplrt1 = 0x10
	regAccelSmplrt2 = 0x11
	regAccelConfig  = 0x14

	// ACCEL_FS_SEL=01 in bits [2:1].
	fsAccel4g = 0x02

	// Internal accelerometer output rate before the divider.
	baseRateHz = 1125.0

	// StandardGravity converts g to m/s^2.
	StandardGravity = 9.80665
)

// Registers is register-level access to the chip, satisfied by *i2c.Dev.
type Registers interface {
	ReadRegU8(reg byte) (byte, error)
	ReadReg(reg byte, dst []byte) error
	WriteReg(reg, value byte) error
}

// ICM20948 reads accelerations in m/s^2.
type ICM20948 struct {
	dev Registers

	curBank byte
	scale   float64
	now     func() time.Time
}

// NewICM20948 probes the chip and configures its sample divider for rate.
func NewICM20948(dev Registers, rate time.Duration) (*ICM20948, error) {
	if dev == nil {
		return nil, fmt.Errorf("icm20948: dev is nil")
	}
	d := &ICM20948{dev: dev, curBank: 0xFF, now: time.Now}

	who, err := d.dev.ReadRegU8(regWhoAmI)
	if err != nil {
		return nil, fmt.Errorf("icm20948: whoami read failed: %w", err)
	}
	if who != whoAmIVal {
		return nil, fmt.Errorf("icm20948: whoami=0x%02X want 0x%02X", who, whoAmIVal)
	}
	if err := d.init(rate); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *ICM20948) init(rate time.Duration) error {
	if err := d.setBank(0); err != nil {
		return err
	}
	_ = d.dev.WriteReg(regIntEnable, 0x00)

	if err := d.dev.WriteReg(regPwrMgmt1, bitReset); err != nil {
		return fmt.Errorf("icm20948: reset failed: %w", err)
	}
	sleep(100 * time.Millisecond)
	// Reset also restores bank 0.
	d.curBank = 0

	if err := d.dev.WriteReg(regPwrMgmt1, clkAuto); err != nil {
		return fmt.Errorf("icm20948: wake failed: %w", err)
	}
	// Accelerometer on, gyro off.
	if err := d.dev.WriteReg(regPwrMgmt2, 0x07); err != nil {
		return fmt.Errorf("icm20948: power config failed: %w", err)
	}
	sleep(10 * time.Millisecond)

	if err := d.setBank(bank2); err != nil {
		return err
	}
	div := sampleDivider(rate)
	_ = d.dev.WriteReg(regAccelSmplrt1, byte(div>>8))
	_ = d.dev.WriteReg(regAccelSmplrt2, byte(div))
	if err := d.dev.WriteReg(regAccelConfig, fsAccel4g); err != nil {
		return fmt.Errorf("icm20948: accel config failed: %w", err)
	}
	if err := d.setBank(0); err != nil {
		return err
	}

	d.scale = 4.0 / 32768.0 * StandardGravity
	return nil
}

// sampleDivider maps a poll interval to ACCEL_SMPLRT_DIV (12 bits).
// Output rate is 1125/(1+div) Hz.
func sampleDivider(rate time.Duration) uint16 {
	if rate <= 0 {
		return 0
	}
	hz := float64(time.Second) / float64(rate)
	div := baseRateHz/hz - 1
	switch {
	case div < 0:
		return 0
	case div > 0x0FFF:
		return 0x0FFF
	}
	return uint16(div)
}

func (d *ICM20948) setBank(bank byte) error {
	if d.curBank == bank {
		return nil
	}
	if err := d.dev.WriteReg(regBankSel, bank<<4); err != nil {
		return fmt.Errorf("icm20948: set bank %d failed: %w", bank, err)
	}
	d.curBank = bank
	return nil
}

// ReadAcceleration returns one timestamped sample.
func (d *ICM20948) ReadAcceleration() (track.AccelerationSample, error) {
	if d == nil {
		return track.AccelerationSample{}, fmt.Errorf("icm20948: device is nil")
	}
	if err := d.setBank(0); err != nil {
		return track.AccelerationSample{}, err
	}

	var buf [6]byte
	if err := d.dev.ReadReg(regAccelXoutH, buf[:]); err != nil {
		return track.AccelerationSample{}, fmt.Errorf("icm20948: read accel failed: %w", err)
	}
	ax := int16(buf[0])<<8 | int16(buf[1])
	ay := int16(buf[2])<<8 | int16(buf[3])
	az := int16(buf[4])<<8 | int16(buf[5])

	return track.AccelerationSample{
		X:  float64(ax) * d.scale,
		Y:  float64(ay) * d.scale,
		Z:  float64(az) * d.scale,
		At: d.now(),
	}, nil
}
