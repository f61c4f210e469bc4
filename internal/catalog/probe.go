package catalog

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"time"

	"github.com/spboyer/stimseq/internal/audio"
	"github.com/spboyer/stimseq/internal/models"
	_ "golang.org/x/image/bmp"
)

// Probe decodes the header of every image and audio file the catalog
// references, so corrupt or unsupported stimuli are caught before a session
// starts. All failures are reported in one ConfigError.
func Probe(ctx context.Context, c *Catalog) error {
	var problems []string
	seen := make(map[string]bool)

	for _, t := range c.trials {
		for _, s := range []models.StimulusSpec{t.A, t.B} {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !seen[s.ImageRef] {
				seen[s.ImageRef] = true
				if err := probeImage(s.ImageRef); err != nil {
					problems = append(problems, fmt.Sprintf("row %d: image %s: %v", t.Index+1, s.ImageRef, err))
				}
			}
			if !seen[s.AudioRef] {
				seen[s.AudioRef] = true
				if err := probeAudio(s.AudioRef, s.Duration()); err != nil {
					problems = append(problems, fmt.Sprintf("row %d: audio %s: %v", t.Index+1, s.AudioRef, err))
				}
			}
		}
	}

	if len(problems) > 0 {
		return models.NewConfigError(c.source, problems...)
	}
	return nil
}

func probeImage(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return err
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return fmt.Errorf("%s image has no pixels", format)
	}
	return nil
}

func probeAudio(path string, want time.Duration) error {
	info, err := audio.Probe(path)
	if err != nil {
		return err
	}
	if info.Frames == 0 {
		return fmt.Errorf("clip is empty")
	}
	if info.Duration() < want {
		slog.Debug("clip shorter than stimulus duration, plays in full", "path", path, "clip", info.Duration(), "stimulus", want)
	}
	return nil
}
