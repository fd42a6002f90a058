package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"time"
)

const (
	numChannels   = 1
	bitsPerSample = 16
)

// Duration reports the playback duration of raw PCM16LE mono audio.
func Duration(pcm []byte, sampleRate int) time.Duration {
	if sampleRate <= 0 || len(pcm) == 0 {
		return 0
	}
	samples := len(pcm) / (bitsPerSample / 8)
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// EncodeWAV wraps raw PCM16LE mono audio bytes in a WAV container.
func EncodeWAV(pcm []byte, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	dataSize := uint32(len(pcm))
	byteRate := uint32(sampleRate * numChannels * bitsPerSample / 8)
	blockAlign := uint16(numChannels * bitsPerSample / 8)

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))

	buf.WriteString("RIFF")
	writeLE(&buf, uint32(36)+dataSize)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	writeLE(&buf, uint32(16))
	writeLE(&buf, uint16(1)) // PCM
	writeLE(&buf, uint16(numChannels))
	writeLE(&buf, uint32(sampleRate))
	writeLE(&buf, byteRate)
	writeLE(&buf, blockAlign)
	writeLE(&buf, uint16(bitsPerSample))

	buf.WriteString("data")
	writeLE(&buf, dataSize)
	buf.Write(pcm)

	return buf.Bytes(), nil
}

// WriteWAVFile writes raw PCM16LE mono audio bytes to path as a WAV file.
func WriteWAVFile(path string, pcm []byte, sampleRate int) error {
	data, err := EncodeWAV(pcm, sampleRate)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// DecodeWAV extracts raw PCM16LE mono samples and the sample rate from a WAV
// container. Only uncompressed PCM16 mono files are accepted.
func DecodeWAV(data []byte) ([]byte, int, error) {
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("not a RIFF/WAVE stream")
	}

	var (
		sampleRate int
		pcm        []byte
		sawFmt     bool
	)
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			return nil, 0, fmt.Errorf("truncated %q chunk", id)
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, fmt.Errorf("short fmt chunk")
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			channels := binary.LittleEndian.Uint16(data[body+2 : body+4])
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if format != 1 || channels != numChannels || bits != bitsPerSample {
				return nil, 0, fmt.Errorf("unsupported WAV format (want PCM16 mono)")
			}
			sawFmt = true
		case "data":
			pcm = data[body : body+size]
		}
		// Chunks are word-aligned.
		off = body + size + (size & 1)
	}
	if !sawFmt || pcm == nil {
		return nil, 0, fmt.Errorf("missing fmt or data chunk")
	}
	return pcm, sampleRate, nil
}

func writeLE(buf *bytes.Buffer, v any) {
	_ = binary.Write(buf, binary.LittleEndian, v)
}
