//go:build linux

package calibrate

import (
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// Button watches a single GPIO line for a falling edge (active-low
// push button to ground) and calls onPress, grounded on the teacher's
// GPIO-for-PTT idea in src/ptt.go -- there GPIO drives an output signal;
// here it is read as a physical calibration trigger input.
type Button struct {
	line *gpiocdev.Line
}

// NewButton opens chip/offset as a debounced input line and calls
// onPress on a falling edge, ignoring further falling edges for 250 ms
// after each press.
func NewButton(chip string, offset int, onPress func()) (*Button, error) {
	const debounce = 250 * time.Millisecond
	var lastPress time.Time
	line, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			if evt.Type != gpiocdev.LineEventFallingEdge {
				return
			}
			now := time.Now()
			if !lastPress.IsZero() && now.Sub(lastPress) < debounce {
				return
			}
			lastPress = now
			onPress()
		}),
		gpiocdev.WithBothEdges,
	)
	if err != nil {
		return nil, err
	}
	return &Button{line: line}, nil
}

// Close releases the GPIO line.
func (b *Button) Close() error {
	return b.line.Close()
}
