// Package audiotest writes small WAV fixtures for tests.
package audiotest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"
)

// SampleRate is the rate used by WriteClip.
const SampleRate = 8000

// WriteClip writes a 16-bit mono WAV of the given length into dir and
// returns its path. Sample values ramp so truncation can be checked
// sample by sample.
func WriteClip(t testing.TB, dir, name string, length time.Duration) string {
	t.Helper()

	frames := int(length * SampleRate / time.Second)
	return WriteFrames(t, dir, name, SampleRate, 1, Ramp(frames))
}

// WriteFrames writes interleaved 16-bit samples as a WAV file.
func WriteFrames(t testing.TB, dir, name string, rate, channels int, samples []int) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           samples,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	return path
}

// Ramp returns n samples counting up from 1 and wrapping inside int16.
func Ramp(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i%30000 + 1
	}
	return out
}

// ReadSamples decodes every sample of the WAV file at path.
func ReadSamples(t testing.TB, path string) []int {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	buf, err := wav.NewDecoder(f).FullPCMBuffer()
	require.NoError(t, err)
	return buf.Data
}
