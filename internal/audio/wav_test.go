package audio

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEncodeDecodeWAV(t *testing.T) {
	pcm := make([]byte, 32000) // one second at 16 kHz mono
	for i := range pcm {
		pcm[i] = byte(i % 251)
	}

	wav, err := EncodeWAV(pcm, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV() error = %v", err)
	}
	if !bytes.HasPrefix(wav, []byte("RIFF")) {
		t.Fatalf("encoded output missing RIFF header")
	}

	got, rate, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV() error = %v", err)
	}
	if rate != 16000 {
		t.Fatalf("sample rate = %d, want 16000", rate)
	}
	if !bytes.Equal(got, pcm) {
		t.Fatalf("decoded PCM differs from input (%d vs %d bytes)", len(got), len(pcm))
	}
}

func TestEncodeWAVDefaultsSampleRate(t *testing.T) {
	wav, err := EncodeWAV([]byte{1, 2, 3, 4}, 0)
	if err != nil {
		t.Fatalf("EncodeWAV() error = %v", err)
	}
	_, rate, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV() error = %v", err)
	}
	if rate != 16000 {
		t.Fatalf("defaulted sample rate = %d, want 16000", rate)
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, _, err := DecodeWAV([]byte("not a wav file at all")); err == nil {
		t.Fatalf("DecodeWAV on garbage should fail")
	}
	if _, _, err := DecodeWAV(nil); err == nil {
		t.Fatalf("DecodeWAV(nil) should fail")
	}
}

func TestDuration(t *testing.T) {
	// 16000 samples/s * 2 bytes per sample.
	if got := Duration(make([]byte, 32000), 16000); got != time.Second {
		t.Fatalf("Duration = %v, want 1s", got)
	}
	if got := Duration(nil, 16000); got != 0 {
		t.Fatalf("Duration(nil) = %v, want 0", got)
	}
	if got := Duration(make([]byte, 32000), 0); got != 0 {
		t.Fatalf("Duration with zero rate = %v, want 0", got)
	}
}

func TestWriteWAVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	pcm := make([]byte, 640)
	if err := WriteWAVFile(path, pcm, 16000); err != nil {
		t.Fatalf("WriteWAVFile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read written file: %v", err)
	}
	got, rate, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV() error = %v", err)
	}
	if rate != 16000 || len(got) != len(pcm) {
		t.Fatalf("round trip = %d bytes at %d Hz, want %d at 16000", len(got), rate, len(pcm))
	}
}
