//go:build !linux

package depth

import "context"

// DeviceWatch is a no-op outside Linux: depth.Source.Poll's timeout
// remains the only disconnect-detection path on those platforms.
type DeviceWatch struct{}

func NewDeviceWatch(onRemove func()) *DeviceWatch { return &DeviceWatch{} }

func (w *DeviceWatch) Start(ctx context.Context) error { return nil }

func (w *DeviceWatch) Stop() {}
