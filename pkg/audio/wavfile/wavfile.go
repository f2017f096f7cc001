// Package wavfile reads and writes 16-bit PCM WAV files on an [afero.Fs], so
// recordings can live on disk in production and in memory in tests.
package wavfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"
	"github.com/spf13/afero/mem"

	"github.com/MrWong99/hearken/pkg/audio"
)

// ErrInvalidFile is returned when the input is not a RIFF/WAVE file.
var ErrInvalidFile = errors.New("wavfile: not a valid wav file")

// Clip is a decoded WAV file: interleaved samples plus their format.
type Clip struct {
	Samples []int16
	Format  audio.Format
}

// Read decodes the WAV file at path. Samples of any bit depth are scaled to
// 16 bits; channels stay interleaved.
func Read(fs afero.Fs, path string) (Clip, error) {
	f, err := fs.Open(path)
	if err != nil {
		return Clip{}, fmt.Errorf("wavfile: open %q: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Clip{}, fmt.Errorf("%w: %s", ErrInvalidFile, path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("wavfile: decode %q: %w", path, err)
	}

	shift := int(dec.BitDepth) - 16
	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		switch {
		case dec.BitDepth == 8:
			// 8-bit WAV is unsigned.
			samples[i] = int16((v - 128) << 8)
		case shift > 0:
			samples[i] = int16(v >> shift)
		default:
			samples[i] = int16(v)
		}
	}
	return Clip{
		Samples: samples,
		Format: audio.Format{
			SampleRate: int(dec.SampleRate),
			Channels:   int(dec.NumChans),
		},
	}, nil
}

// Write encodes interleaved 16-bit samples to path, creating parent
// directories as needed.
func Write(fs afero.Fs, path string, samples []int16, f audio.Format) error {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return fmt.Errorf("wavfile: invalid format %s", f)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("wavfile: create dir %q: %w", dir, err)
		}
	}
	out, err := fs.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("wavfile: create %q: %w", path, err)
	}
	defer out.Close()

	if err := Encode(out, samples, f); err != nil {
		return fmt.Errorf("wavfile: write %q: %w", path, err)
	}
	return nil
}

// Encode writes a complete 16-bit PCM WAV stream to w. The header sizes are
// patched on completion, which is why w must be seekable.
func Encode(w io.WriteSeeker, samples []int16, f audio.Format) error {
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	enc := wav.NewEncoder(w, f.SampleRate, 16, f.Channels, 1)
	err := enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	})
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	return nil
}

// EncodeBytes returns samples as an in-memory WAV file.
func EncodeBytes(samples []int16, f audio.Format) ([]byte, error) {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return nil, fmt.Errorf("wavfile: invalid format %s", f)
	}
	buf := mem.NewFileHandle(mem.CreateFile("clip.wav"))
	if err := Encode(buf, samples, f); err != nil {
		return nil, fmt.Errorf("wavfile: %w", err)
	}
	if _, err := buf.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("wavfile: rewind: %w", err)
	}
	return io.ReadAll(buf)
}
