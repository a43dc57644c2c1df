//go:build !linux

package relay

import "errors"

// I2CBoard is only available on Linux.
type I2CBoard struct{}

func OpenI2CBoard(bus string, addr uint16) (*I2CBoard, error) {
	return nil, errors.New("relay: i2c-dev is only supported on linux")
}

func (b *I2CBoard) Write(command, mask byte) error {
	return errors.New("relay: i2c-dev is only supported on linux")
}

func (b *I2CBoard) Close() error { return nil }
