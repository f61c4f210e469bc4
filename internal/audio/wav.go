// Package audio truncates stimulus clips and plays them to completion.
package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Info describes a WAV clip.
type Info struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Frames     int64
}

// Duration returns the playable length of the clip.
func (i Info) Duration() time.Duration {
	if i.SampleRate == 0 {
		return 0
	}
	return time.Duration(i.Frames) * time.Second / time.Duration(i.SampleRate)
}

// Clip is the result of a truncation.
type Clip struct {
	Info

	// Truncated is true when frames were dropped from the end of the source.
	Truncated bool
}

var errInvalidWAV = errors.New("not a valid WAV file")

// Probe reads the header of the WAV file at path.
func Probe(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close() //nolint:errcheck

	d := wav.NewDecoder(f)
	return readInfo(d)
}

func readInfo(d *wav.Decoder) (Info, error) {
	if !d.IsValidFile() {
		return Info{}, errInvalidWAV
	}
	if err := d.FwdToPCM(); err != nil {
		return Info{}, fmt.Errorf("seeking to PCM data: %w", err)
	}
	bytesPerFrame := int64(d.BitDepth) / 8 * int64(d.NumChans)
	if bytesPerFrame == 0 {
		return Info{}, fmt.Errorf("unsupported format: %d bit, %d channels", d.BitDepth, d.NumChans)
	}
	return Info{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		BitDepth:   int(d.BitDepth),
		Frames:     d.PCMLen() / bytesPerFrame,
	}, nil
}

// Truncate copies at most maxDuration of the WAV file at src into dst,
// keeping the sample rate, bit depth and channel count. A source shorter than
// maxDuration is copied whole; it is never padded or looped. Nothing is
// written to dst when the resulting clip is empty.
func Truncate(src string, maxDuration time.Duration, dst io.WriteSeeker) (Clip, error) {
	f, err := os.Open(src)
	if err != nil {
		return Clip{}, err
	}
	defer f.Close() //nolint:errcheck

	d := wav.NewDecoder(f)
	info, err := readInfo(d)
	if err != nil {
		return Clip{}, err
	}

	frames := framesFor(info.SampleRate, maxDuration)
	truncated := frames < info.Frames
	if !truncated {
		frames = info.Frames
	}

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: info.Channels, SampleRate: info.SampleRate},
		Data:           make([]int, frames*int64(info.Channels)),
		SourceBitDepth: info.BitDepth,
	}
	if len(buf.Data) > 0 {
		n, err := d.PCMBuffer(buf)
		if err != nil && !errors.Is(err, io.EOF) {
			return Clip{}, fmt.Errorf("reading samples: %w", err)
		}
		// Keep whole frames only.
		n -= n % info.Channels
		buf.Data = buf.Data[:n]
		frames = int64(n / info.Channels)
	}

	info.Frames = frames
	if frames == 0 {
		return Clip{Info: info, Truncated: truncated}, nil
	}

	enc := wav.NewEncoder(dst, info.SampleRate, info.BitDepth, info.Channels, int(d.WavAudioFormat))
	if err := enc.Write(buf); err != nil {
		return Clip{}, fmt.Errorf("writing samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return Clip{}, fmt.Errorf("finalizing WAV: %w", err)
	}

	return Clip{Info: info, Truncated: truncated}, nil
}

func framesFor(sampleRate int, d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	whole := int64(d / time.Second)
	rest := int64(d % time.Second)
	return whole*int64(sampleRate) + rest*int64(sampleRate)/int64(time.Second)
}
