// Package audio owns the microphone. A Recorder holds the capture device
// exclusively while a recognition session is running and streams 16-bit
// little-endian PCM to the session while keeping a copy for the voice
// recording written when the session ends.
package audio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// BytesPerSample is the size of one S16 sample.
const BytesPerSample = 2

// Recorder captures audio from the default microphone.
type Recorder struct {
	ctx        *malgo.AllocatedContext
	device     *malgo.Device
	sampleRate uint32
	channels   uint32

	mu        sync.Mutex
	buf       []byte
	sink      func(pcm []byte)
	recording bool
}

// NewRecorder creates a new audio recorder. Call Close() when done.
func NewRecorder(sampleRate, channels uint32) (*Recorder, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing audio context: %w", err)
	}

	return &Recorder{
		ctx:        ctx,
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

// SampleRate returns the capture sample rate in Hz.
func (r *Recorder) SampleRate() uint32 { return r.sampleRate }

// Channels returns the number of captured channels.
func (r *Recorder) Channels() uint32 { return r.channels }

// CaptureDevices returns the names of the capture devices miniaudio can see.
func (r *Recorder) CaptureDevices() ([]string, error) {
	infos, err := r.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("enumerating capture devices: %w", err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names, nil
}

// Start opens the default capture device and begins delivering PCM chunks
// to sink. sink is called on the audio thread and must not block.
func (r *Recorder) Start(sink func(pcm []byte)) error {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return fmt.Errorf("already recording")
	}
	r.buf = r.buf[:0]
	r.sink = sink
	r.recording = true
	r.mu.Unlock()

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatS16
	deviceCfg.Capture.Channels = r.channels
	deviceCfg.SampleRate = r.sampleRate

	callbacks := malgo.DeviceCallbacks{
		Data: r.onData,
	}

	device, err := malgo.InitDevice(r.ctx.Context, deviceCfg, callbacks)
	if err != nil {
		r.reset()
		return fmt.Errorf("initializing capture device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		r.reset()
		return fmt.Errorf("starting capture device: %w", err)
	}

	r.mu.Lock()
	r.device = device
	r.mu.Unlock()

	return nil
}

// Stop releases the capture device and returns everything captured since
// Start. It returns nil when not recording. The device is fully released
// when Stop returns.
func (r *Recorder) Stop() []byte {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return nil
	}
	device := r.device
	r.device = nil
	r.recording = false
	r.sink = nil
	result := make([]byte, len(r.buf))
	copy(result, r.buf)
	r.mu.Unlock()

	// Uninit waits for the audio thread, which takes r.mu in onData.
	if device != nil {
		device.Uninit()
	}

	return result
}

// IsRecording returns whether the recorder is currently capturing audio.
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Close releases all audio resources.
func (r *Recorder) Close() error {
	r.Stop()

	if r.ctx != nil {
		if err := r.ctx.Uninit(); err != nil {
			return fmt.Errorf("uninitializing audio context: %w", err)
		}
		r.ctx.Free()
		r.ctx = nil
	}

	return nil
}

func (r *Recorder) reset() {
	r.mu.Lock()
	r.recording = false
	r.sink = nil
	r.mu.Unlock()
}

// onData is the malgo callback invoked when audio data is available.
func (r *Recorder) onData(_, pSample []byte, frameCount uint32) {
	n := int(frameCount * r.channels * BytesPerSample)
	if n > len(pSample) {
		n = len(pSample)
	}
	chunk := make([]byte, n)
	copy(chunk, pSample[:n])

	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return
	}
	r.buf = append(r.buf, chunk...)
	sink := r.sink
	r.mu.Unlock()

	if sink != nil {
		sink(chunk)
	}
}
