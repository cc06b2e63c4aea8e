package action

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Port is a simulated GPIO output port of up to 64 pins. Pin 0 is the
// least significant bit. It is safe for concurrent use.
type Port struct {
	width int
	bits  atomic.Uint64
}

// NewPort returns a port with all pins low. width is clamped to [1, 64].
func NewPort(width int) *Port {
	if width < 1 {
		width = 1
	}
	if width > 64 {
		width = 64
	}
	return &Port{width: width}
}

// Width returns the number of pins.
func (p *Port) Width() int { return p.width }

// Bits returns the pin levels as a bit mask.
func (p *Port) Bits() uint64 { return p.bits.Load() }

func (p *Port) mask(pin int) (uint64, error) {
	if pin < 0 || pin >= p.width {
		return 0, fmt.Errorf("pin %d out of range [0, %d)", pin, p.width)
	}
	return 1 << uint(pin), nil
}

// Toggle inverts a pin and returns its new level.
func (p *Port) Toggle(pin int) (bool, error) {
	m, err := p.mask(pin)
	if err != nil {
		return false, err
	}
	for {
		old := p.bits.Load()
		if p.bits.CompareAndSwap(old, old^m) {
			return old&m == 0, nil
		}
	}
}

// Set drives a pin high or low.
func (p *Port) Set(pin int, high bool) error {
	m, err := p.mask(pin)
	if err != nil {
		return err
	}
	if high {
		p.bits.Or(m)
	} else {
		p.bits.And(^m)
	}
	return nil
}

// Get reads a pin.
func (p *Port) Get(pin int) (bool, error) {
	m, err := p.mask(pin)
	if err != nil {
		return false, err
	}
	return p.bits.Load()&m != 0, nil
}

// String renders the port most significant pin first, e.g. "00000101".
func (p *Port) String() string {
	bits := p.bits.Load()
	var sb strings.Builder
	sb.Grow(p.width)
	for pin := p.width - 1; pin >= 0; pin-- {
		if bits&(1<<uint(pin)) != 0 {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}
