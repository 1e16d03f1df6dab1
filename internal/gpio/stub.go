//go:build !linux

package gpio

import "github.com/pkg/errors"

// RealBank is not available on non-Linux platforms.
type RealBank struct{}

// OpenBank returns an error on non-Linux platforms.
func OpenBank(chipName string, inputs, outputs []PinID, onEdge func()) (*RealBank, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// ReadLevels returns an error on non-Linux platforms.
func ReadLevels(chipName string, pins []PinID) ([]PinLevel, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Inputs is not implemented on non-Linux platforms.
func (b *RealBank) Inputs() []InputLine { return nil }

// Outputs is not implemented on non-Linux platforms.
func (b *RealBank) Outputs() []OutputLine { return nil }

// Close is not implemented on non-Linux platforms.
func (b *RealBank) Close() error { return nil }
