package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

const (
	defaultSampleRate = 16000
	pcmChannels       = 1
	pcmBitDepth       = 16
)

// Segment is one captured utterance as mono PCM16-LE.
type Segment struct {
	PCM        []byte
	SampleRate int
}

func (s Segment) Frames() int {
	return len(s.PCM) / (pcmBitDepth / 8)
}

func (s Segment) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(s.Frames()) / float64(s.SampleRate) * float64(time.Second))
}

// Samples decodes the PCM payload into floats in [-1, 1).
func (s Segment) Samples() []float64 {
	n := s.Frames()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(s.PCM[i*2:]))
		out[i] = float64(v) / 32768
	}
	return out
}

// WAV wraps the segment in a RIFF container for upload.
func (s Segment) WAV() ([]byte, error) {
	rate := s.SampleRate
	if rate <= 0 {
		rate = defaultSampleRate
	}
	header, err := wavHeader(len(s.PCM), rate, pcmChannels, pcmBitDepth)
	if err != nil {
		return nil, fmt.Errorf("build wav header: %w", err)
	}
	out := make([]byte, 0, len(header)+len(s.PCM))
	out = append(out, header...)
	out = append(out, s.PCM...)
	return out, nil
}

// RMS is the root-mean-square amplitude of samples. Empty input is silent.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func appendPCM(dst []byte, samples []int16) []byte {
	for _, v := range samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(v))
	}
	return dst
}

func int16ToFloat(samples []int16) []float64 {
	out := make([]float64, len(samples))
	for i, v := range samples {
		out[i] = float64(v) / 32768
	}
	return out
}

func wavHeader(dataSize, sampleRate, channels, bitDepth int) ([]byte, error) {
	byteRate := sampleRate * channels * bitDepth / 8
	blockAlign := channels * bitDepth / 8

	buf := bytes.NewBuffer(make([]byte, 0, 44))
	fields := []any{
		[]byte("RIFF"),
		uint32(36 + dataSize),
		[]byte("WAVEfmt "),
		uint32(16),
		uint16(1),
		uint16(channels),
		uint32(sampleRate),
		uint32(byteRate),
		uint16(blockAlign),
		uint16(bitDepth),
		[]byte("data"),
		uint32(dataSize),
	}
	for _, f := range fields {
		if err := binary.Write(buf, binary.LittleEndian, f); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
