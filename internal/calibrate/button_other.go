//go:build !linux

package calibrate

// Button is a no-op stub on non-Linux platforms, where go-gpiocdev's
// character-device ioctls are unavailable; the control surface's
// start_calibration command remains the only trigger there.
type Button struct{}

// NewButton always returns a no-op Button on non-Linux platforms.
func NewButton(chip string, offset int, onPress func()) (*Button, error) {
	return &Button{}, nil
}

func (b *Button) Close() error { return nil }
