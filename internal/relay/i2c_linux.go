//go:build linux

package relay

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// i2cSlave is the i2c-dev ioctl selecting the target address.
const i2cSlave = 0x0703

// I2CBoard drives a relay board on a Linux i2c-dev bus.
type I2CBoard struct {
	mu   sync.Mutex
	f    *os.File
	bus  string
	addr uint16
}

// OpenI2CBoard opens bus (e.g. /dev/i2c-1) and binds it to the board address.
func OpenI2CBoard(bus string, addr uint16) (*I2CBoard, error) {
	f, err := os.OpenFile(bus, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("relay: open %s: %w", bus, err)
	}
	if err := unix.IoctlSetInt(int(f.Fd()), i2cSlave, int(addr)); err != nil {
		f.Close()
		return nil, fmt.Errorf("relay: set i2c address 0x%02X on %s: %w", addr, bus, err)
	}
	return &I2CBoard{f: f, bus: bus, addr: addr}, nil
}

// Write sends [command, mask] to the board.
func (b *I2CBoard) Write(command, mask byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.f == nil {
		return fmt.Errorf("relay: %s closed", b.bus)
	}
	n, err := b.f.Write([]byte{command, mask})
	if err != nil {
		return fmt.Errorf("relay: write 0x%02X: %w", b.addr, err)
	}
	if n != 2 {
		return fmt.Errorf("relay: short write to 0x%02X: %d of 2 bytes", b.addr, n)
	}
	return nil
}

func (b *I2CBoard) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.f == nil {
		return nil
	}
	err := b.f.Close()
	b.f = nil
	return err
}
