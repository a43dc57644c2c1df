// Package relay models the relay output bank: the channel bitmask and the
// driver that pushes it to hardware.
package relay

import (
	"fmt"
	"strings"
	"sync"
)

// MaxChannels is the width of the mask byte the board accepts.
const MaxChannels = 8

// State is a relay bitmask; bit i set means channel i is energized. It is a
// value type and its methods return modified copies.
type State uint8

// On reports whether channel i is energized. Out-of-range channels are off.
func (s State) On(i int) bool {
	if i < 0 || i >= MaxChannels {
		return false
	}
	return s&(1<<i) != 0
}

// Set returns s with channel i energized.
func (s State) Set(i int) State {
	if i < 0 || i >= MaxChannels {
		return s
	}
	return s | 1<<i
}

// Clear returns s with channel i released.
func (s State) Clear(i int) State {
	if i < 0 || i >= MaxChannels {
		return s
	}
	return s &^ (1 << i)
}

// With returns s with channel i set to on.
func (s State) With(i int, on bool) State {
	if on {
		return s.Set(i)
	}
	return s.Clear(i)
}

// Mask returns the byte written to the board.
func (s State) Mask() byte { return byte(s) }

func (s State) String() string {
	return fmt.Sprintf("0b%08b", uint8(s))
}

// Format lists the first count channels as ON/OFF, channel 0 first.
func (s State) Format(count int) string {
	parts := make([]string, 0, count)
	for i := 0; i < count; i++ {
		if s.On(i) {
			parts = append(parts, fmt.Sprintf("%d:ON", i))
		} else {
			parts = append(parts, fmt.Sprintf("%d:OFF", i))
		}
	}
	return strings.Join(parts, " ")
}

// Driver writes a command byte and the whole relay mask to the output board
// in one transfer.
type Driver interface {
	Write(command, mask byte) error
}

// Op is one recorded driver write.
type Op struct {
	Command byte
	Mask    byte
}

// Recorder is an in-memory Driver for tests and dry runs.
type Recorder struct {
	mu  sync.Mutex
	ops []Op
	err error
}

// Write records the transfer, or fails with the error set by FailWith.
func (r *Recorder) Write(command, mask byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.ops = append(r.ops, Op{Command: command, Mask: mask})
	return nil
}

// FailWith makes subsequent writes return err. A nil err clears the failure.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// Ops returns a copy of the recorded writes.
func (r *Recorder) Ops() []Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Op(nil), r.ops...)
}

// Last returns the most recent write.
func (r *Recorder) Last() (Op, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ops) == 0 {
		return Op{}, false
	}
	return r.ops[len(r.ops)-1], true
}
