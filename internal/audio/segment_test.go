package audio

import (
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func TestRMS(t *testing.T) {
	tests := []struct {
		name    string
		samples []float64
		want    float64
	}{
		{name: "empty", samples: nil, want: 0},
		{name: "zeros", samples: []float64{0, 0, 0}, want: 0},
		{name: "constant", samples: []float64{0.5, -0.5, 0.5, -0.5}, want: 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RMS(tt.samples); math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestSegmentDurationAndSamples(t *testing.T) {
	seg := Segment{PCM: appendPCM(nil, []int16{16384, -16384, 0, 0}), SampleRate: 4}
	if seg.Duration() != time.Second {
		t.Fatalf("expected 1s, got %s", seg.Duration())
	}
	samples := seg.Samples()
	if samples[0] != 0.5 || samples[1] != -0.5 {
		t.Fatalf("unexpected samples %v", samples)
	}
}

func TestSegmentWAVHeader(t *testing.T) {
	pcm := appendPCM(nil, []int16{1, 2, 3})
	wav, err := Segment{PCM: pcm, SampleRate: 24000}.WAV()
	if err != nil {
		t.Fatalf("WAV failed: %v", err)
	}
	if len(wav) != 44+len(pcm) {
		t.Fatalf("expected %d bytes, got %d", 44+len(pcm), len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:16]) != "WAVEfmt " || string(wav[36:40]) != "data" {
		t.Fatal("unexpected chunk identifiers")
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 24000 {
		t.Fatalf("expected sample rate 24000, got %d", rate)
	}
	if size := binary.LittleEndian.Uint32(wav[40:44]); int(size) != len(pcm) {
		t.Fatalf("expected data size %d, got %d", len(pcm), size)
	}
}
