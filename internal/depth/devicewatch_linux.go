//go:build linux

package depth

import (
	"context"

	"github.com/jochenvg/go-udev"
)

// DeviceWatch subscribes to udev "remove" events on the USB subsystem so
// an unplugged depth camera is detected faster than waiting for the next
// Poll timeout. It is additive to the Source contract (spec.md §4.1),
// never a replacement for polling: Poll is still authoritative.
type DeviceWatch struct {
	onRemove func()

	cancel context.CancelFunc
	done   chan struct{}
}

// NewDeviceWatch builds a watch that calls onRemove whenever a USB device
// is removed. Matching a specific depth camera by vendor/product id is
// left to the caller wiring onRemove; this watch only narrows by
// subsystem, matching the coarse-grained udev usage style.
func NewDeviceWatch(onRemove func()) *DeviceWatch {
	return &DeviceWatch{onRemove: onRemove}
}

// Start begins watching in the background. Call Stop to release udev
// resources.
func (w *DeviceWatch) Start(ctx context.Context) error {
	u := udev.Udev{}
	m := u.NewMonitorFromNetlink("udev")
	if err := m.FilterAddMatchSubsystem("usb"); err != nil {
		return err
	}

	deviceCh, errCh, err := m.DeviceChan(ctx)
	if err != nil {
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		for {
			select {
			case <-watchCtx.Done():
				return
			case dev, ok := <-deviceCh:
				if !ok {
					return
				}
				if dev.Action() == "remove" && w.onRemove != nil {
					w.onRemove()
				}
			case <-errCh:
				// A monitor error is not fatal to the engine; the next
				// Poll timeout remains the fallback detection path.
			}
		}
	}()

	return nil
}

func (w *DeviceWatch) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	if w.done != nil {
		<-w.done
	}
}
