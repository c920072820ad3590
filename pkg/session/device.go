package session

import "context"

// CaptureDevice is the local audio capture boundary. Enabling the device
// is raced against the connect path, never sequenced with it: a capture
// failure surfaces its own notification and does not abort an otherwise
// successful connect.
type CaptureDevice interface {
	Enable(ctx context.Context) error
	Disable() error
}

// NopDevice is a CaptureDevice that does nothing, for text-only sessions
// and tests.
type NopDevice struct{}

// Enable implements CaptureDevice.
func (NopDevice) Enable(ctx context.Context) error { return nil }

// Disable implements CaptureDevice.
func (NopDevice) Disable() error { return nil }
