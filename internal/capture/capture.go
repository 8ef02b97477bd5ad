// Package capture provides microphone input. The real implementation sits
// on miniaudio via malgo; tests use a fake context that replays canned PCM.
package capture

// DataCallback receives interleaved s16le PCM as it arrives from the device.
type DataCallback func(data []byte, frameCount uint32)

type Config struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config Config, cb DataCallback) (Device, error)
	Close()
}

type Device interface {
	Start() error
	Stop()
	Close()
}
