package audio

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// PCMToInts converts little-endian S16 PCM to integer samples. A trailing
// odd byte is ignored.
func PCMToInts(pcm []byte) []int {
	samples := make([]int, 0, len(pcm)/BytesPerSample)
	for i := 0; i+1 < len(pcm); i += BytesPerSample {
		samples = append(samples, int(int16(binary.LittleEndian.Uint16(pcm[i:i+2]))))
	}
	return samples
}

// Duration returns how much audio pcm holds at the given format.
func Duration(pcm []byte, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	frames := len(pcm) / (BytesPerSample * channels)
	return time.Duration(frames) * time.Second / time.Duration(sampleRate)
}

// WriteWAV encodes S16 PCM into a 16-bit WAV file at path, creating parent
// directories as needed.
func WriteWAV(path string, pcm []byte, sampleRate, channels int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("audio: create recording dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audio: create %s: %w", path, err)
	}

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           PCMToInts(pcm),
		SourceBitDepth: 16,
	}

	if err := enc.Write(buf); err != nil {
		_ = f.Close()
		return fmt.Errorf("audio: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("audio: finalize wav: %w", err)
	}
	return f.Close()
}
