package audio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gordonklaus/portaudio"
)

// Source delivers captured PCM16 frames. Read blocks until the next buffer is
// full; the returned slice is only valid until the next call.
type Source interface {
	Read() ([]int16, error)
	Close() error
}

// Opener acquires a capture source at the given sample rate.
type Opener func(sampleRate int) (Source, error)

// Initialize starts PortAudio for the process. Call the returned func once
// every Mic has been closed.
func Initialize() (func() error, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	return portaudio.Terminate, nil
}

// Mic wraps a PortAudio capture stream with a configurable buffer size.
type Mic struct {
	stream *portaudio.Stream
	buf    []int16
}

// NewMic opens and starts a PortAudio capture stream with the given sample
// rate and buffer size in frames. PortAudio must already be initialized.
func NewMic(sampleRate, framesPerBuffer int) (*Mic, error) {
	buf := make([]int16, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), framesPerBuffer, buf)
	if err != nil {
		return nil, classifyMicError(fmt.Errorf("open input stream: %w", err))
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, classifyMicError(fmt.Errorf("start input stream: %w", err))
	}
	return &Mic{stream: stream, buf: buf}, nil
}

// MicOpener opens a Mic per recording, trying rate first and then the
// fallback candidates in order.
func MicOpener(framesPerBuffer int, candidates []int) Opener {
	return func(rate int) (Source, error) {
		rates := append([]int{rate}, candidates...)
		var lastErr error
		for _, r := range rates {
			if r <= 0 {
				continue
			}
			mic, err := NewMic(r, framesPerBuffer)
			if err == nil {
				return &rateSource{Mic: mic, rate: r}, nil
			}
			lastErr = err
			if errors.Is(err, ErrPermissionDenied) {
				break
			}
		}
		if lastErr == nil {
			lastErr = ErrDeviceUnavailable
		}
		return nil, lastErr
	}
}

func (m *Mic) Read() ([]int16, error) {
	if err := m.stream.Read(); err != nil {
		return nil, err
	}
	return m.buf, nil
}

func (m *Mic) Close() error {
	stopErr := m.stream.Stop()
	closeErr := m.stream.Close()
	return errors.Join(stopErr, closeErr)
}

// rateSource reports the rate the mic was actually opened at.
type rateSource struct {
	*Mic
	rate int
}

func (r *rateSource) SampleRate() int { return r.rate }

type InputDevice struct {
	Name              string
	HostAPI           string
	MaxInputChannels  int
	DefaultSampleRate float64
	Default           bool
}

// ListInputDevices enumerates devices with at least one input channel.
func ListInputDevices() ([]InputDevice, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list audio devices: %w", err)
	}

	var defaultName string
	if def, err := portaudio.DefaultInputDevice(); err == nil && def != nil {
		defaultName = def.Name
	}

	var out []InputDevice
	for _, d := range devices {
		if d.MaxInputChannels < 1 {
			continue
		}
		dev := InputDevice{
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			Default:           d.Name == defaultName,
		}
		if d.HostApi != nil {
			dev.HostAPI = d.HostApi.Name
		}
		out = append(out, dev)
	}
	return out, nil
}

func classifyMicError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, portaudio.DeviceUnavailable) || errors.Is(err, portaudio.InvalidDevice) {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "not permitted") || strings.Contains(msg, "denied") {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}

func isOverflow(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "overflow")
}
