package capture

import (
	"errors"
	"sync"
)

const fakeChunkFrames = 1024

// FakeContext replays canned PCM through the Context interface. When PCM is
// exhausted the fake keeps feeding silence until Stop, mirroring a live
// microphone.
type FakeContext struct {
	PCM      []byte
	InitErr  error
	StartErr error
}

func NewFakeContext(pcm []byte) *FakeContext {
	return &FakeContext{PCM: pcm}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "00", Name: "fake"}}, nil
}

func (f *FakeContext) NewCapture(_ *DeviceInfo, config Config, cb DataCallback) (Device, error) {
	if f.InitErr != nil {
		return nil, f.InitErr
	}
	if cb == nil {
		return nil, errors.New("data callback is required")
	}
	bytesPerFrame := int(config.Channels) * 2
	if bytesPerFrame <= 0 {
		bytesPerFrame = 2
	}
	return &fakeDevice{pcm: f.PCM, cb: cb, bytesPerFrame: bytesPerFrame, startErr: f.StartErr}, nil
}

func (f *FakeContext) Close() {}

type fakeDevice struct {
	pcm           []byte
	cb            DataCallback
	bytesPerFrame int
	startErr      error

	mu      sync.Mutex
	started bool
}

// Start delivers the canned PCM synchronously; by the time it returns the
// recorder has buffered everything, so tests can Stop immediately.
func (d *fakeDevice) Start() error {
	if d.startErr != nil {
		return d.startErr
	}

	d.mu.Lock()
	d.started = true
	d.mu.Unlock()

	chunkBytes := fakeChunkFrames * d.bytesPerFrame
	for pos := 0; pos < len(d.pcm); pos += chunkBytes {
		end := pos + chunkBytes
		if end > len(d.pcm) {
			end = len(d.pcm)
		}
		chunk := make([]byte, end-pos)
		copy(chunk, d.pcm[pos:end])
		d.cb(chunk, uint32(len(chunk)/d.bytesPerFrame))
	}

	return nil
}

func (d *fakeDevice) Stop() {
	d.mu.Lock()
	d.started = false
	d.mu.Unlock()
}

func (d *fakeDevice) Close() {}
