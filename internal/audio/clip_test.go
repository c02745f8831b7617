package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

func ramp(n int) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = int16(i%2000 + 1)
	}
	return s
}

func TestReconcileExactness(t *testing.T) {
	const rate = 24000
	target := 3 * time.Second

	tests := []struct {
		name  string
		input int
	}{
		{"longer", 5 * rate},
		{"shorter", rate / 2},
		{"equal", 3 * rate},
		{"empty", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewClip(ramp(tt.input), rate)
			got := Reconcile(src, target)

			if !got.Reconciled() {
				t.Fatal("expected reconciled clip")
			}
			if len(got.Samples) != 3*rate {
				t.Fatalf("expected %d samples, got %d", 3*rate, len(got.Samples))
			}
			if got.Duration() != target {
				t.Errorf("expected duration %v, got %v", target, got.Duration())
			}

			kept := tt.input
			if kept > len(got.Samples) {
				kept = len(got.Samples)
			}
			for i := 0; i < kept; i++ {
				if got.Samples[i] != src.Samples[i] {
					t.Fatalf("sample %d changed: %d != %d", i, got.Samples[i], src.Samples[i])
				}
			}
			for i := kept; i < len(got.Samples); i++ {
				if got.Samples[i] != 0 {
					t.Fatalf("padding sample %d is %d, want silence", i, got.Samples[i])
				}
			}
		})
	}
}

func TestReconcileNilAndSilence(t *testing.T) {
	got := Reconcile(nil, 4*time.Second)
	if got.SampleRate != DefaultSampleRate || got.Duration() != 4*time.Second {
		t.Errorf("unexpected nil reconcile result: rate=%d dur=%v", got.SampleRate, got.Duration())
	}

	silent := Silence(4*time.Second, 16000)
	if silent.Reconciled() {
		t.Error("silence must start raw")
	}
	r := Reconcile(silent, 4*time.Second)
	if len(r.Samples) != len(silent.Samples) {
		t.Errorf("reconciling exact silence changed its length: %d -> %d", len(silent.Samples), len(r.Samples))
	}

	if neg := Reconcile(silent, -time.Second); len(neg.Samples) != 0 {
		t.Errorf("negative target should produce empty clip, got %d samples", len(neg.Samples))
	}
}

func TestTrackRejectsRawClips(t *testing.T) {
	track := NewTrack(24000)
	if err := track.Append(NewClip(ramp(10), 24000)); !errors.Is(err, ErrNotReconciled) {
		t.Fatalf("expected ErrNotReconciled, got %v", err)
	}
	if err := track.Append(Reconcile(NewClip(ramp(10), 16000), time.Second)); err == nil {
		t.Fatal("expected sample rate mismatch error")
	}
	if err := track.Append(Reconcile(NewClip(ramp(10), 24000), time.Second)); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := track.Append(Reconcile(nil, 500*time.Millisecond)); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if track.Duration() != 1500*time.Millisecond {
		t.Errorf("expected 1.5s track, got %v", track.Duration())
	}
}

func TestResample(t *testing.T) {
	src := NewClip(ramp(16000), 16000)
	got := Resample(src, 24000)
	if got.SampleRate != 24000 {
		t.Fatalf("expected rate 24000, got %d", got.SampleRate)
	}
	if len(got.Samples) != 24000 {
		t.Errorf("expected 24000 samples, got %d", len(got.Samples))
	}
	if got.Samples[0] != src.Samples[0] {
		t.Errorf("first sample changed: %d", got.Samples[0])
	}
}

func TestPCMRoundTripAndWAV(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768}
	if got := DecodePCM(EncodePCM(samples)); !equal(got, samples) {
		t.Fatalf("round trip mismatch: %v", got)
	}

	track := NewTrack(24000)
	if err := track.Append(Reconcile(NewClip(samples, 24000), time.Second)); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := WriteWAV(&buf, track); err != nil {
		t.Fatalf("WriteWAV failed: %v", err)
	}
	data := buf.Bytes()
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatal("missing RIFF/WAVE header")
	}
	if rate := binary.LittleEndian.Uint32(data[24:]); rate != 24000 {
		t.Errorf("expected header rate 24000, got %d", rate)
	}
	if n := binary.LittleEndian.Uint32(data[40:]); n != 48000 {
		t.Errorf("expected 48000 data bytes, got %d", n)
	}
	if len(data) != 44+48000 {
		t.Errorf("unexpected file length %d", len(data))
	}
}

func equal(a, b []int16) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
