package audio

import (
	"math"
	"testing"

	waudio "github.com/go-audio/audio"
)

func TestDownmixToMonoAveragesChannels(t *testing.T) {
	buf := &waudio.IntBuffer{
		Format:          &waudio.Format{NumChannels: 2, SampleRate: 44100},
		Data:            []int{100, 200, 300, 400},
		SourceBitDepth:  16,
	}
	mono := downmixToMono(buf)
	if len(mono) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(mono))
	}
	want0 := float32(150) / float32(1<<15)
	if math.Abs(float64(mono[0]-want0)) > 1e-6 {
		t.Fatalf("frame 0 = %v, want %v", mono[0], want0)
	}
}

func TestResampleLinearPreservesLengthRatio(t *testing.T) {
	samples := make([]float32, 1600)
	for i := range samples {
		samples[i] = float32(i)
	}
	out := resampleLinear(samples, 16000, 8000)
	if len(out) != 800 {
		t.Fatalf("expected 800 samples at half rate, got %d", len(out))
	}
}

func TestResampleLinearNoOpWhenRatesMatch(t *testing.T) {
	samples := []float32{1, 2, 3}
	out := resampleLinear(samples, 16000, 16000)
	if len(out) != 3 {
		t.Fatalf("expected unchanged length, got %d", len(out))
	}
}

func TestBytesToFloat32LERoundTrips(t *testing.T) {
	val := float32(0.5)
	bits := math.Float32bits(val)
	b := []byte{byte(bits), byte(bits >> 8), byte(bits >> 16), byte(bits >> 24)}
	out := bytesToFloat32LE(b)
	if len(out) != 1 || out[0] != val {
		t.Fatalf("expected round-trip of %v, got %v", val, out)
	}
}
