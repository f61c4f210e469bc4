package surface

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// ramp maps luminance, dark to light, onto characters.
const ramp = " .:-=+*#%@"

var (
	captionStyle = lipgloss.NewStyle().Faint(true)
	pausedStyle  = lipgloss.NewStyle().Bold(true).Padding(1, 4).Border(lipgloss.RoundedBorder())
)

// renderImage draws the image at path as character art filling a
// width x height cell grid. Terminal cells are about twice as tall as they
// are wide, so every cell covers two source rows.
func renderImage(path string, width, height int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close() //nolint:errcheck

	src, _, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("decoding %s: %w", path, err)
	}

	cols, rows := fit(src.Bounds().Dx(), src.Bounds().Dy()/2, width, height)
	if cols == 0 || rows == 0 {
		return "", nil
	}
	dst := image.NewGray(image.Rect(0, 0, cols, rows))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	var b strings.Builder
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			v := dst.GrayAt(x, y).Y
			b.WriteByte(ramp[int(v)*(len(ramp)-1)/255])
		}
		if y < rows-1 {
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}

// fit scales w x h to the largest size inside maxW x maxH keeping its aspect.
func fit(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 || maxW <= 0 || maxH <= 0 {
		return 0, 0
	}
	if w*maxH > h*maxW {
		return maxW, max(1, h*maxW/w)
	}
	return max(1, w*maxH/h), maxH
}

// frame centers body on a width x height screen with an optional caption
// on the bottom line.
func frame(body, caption string, width, height int) string {
	if caption == "" {
		return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, body)
	}
	caption = runewidth.Truncate(caption, width, "…")
	top := lipgloss.Place(width, max(1, height-1), lipgloss.Center, lipgloss.Center, body)
	return lipgloss.JoinVertical(lipgloss.Left, top, lipgloss.PlaceHorizontal(width, lipgloss.Center, captionStyle.Render(caption)))
}

func pausedScreen(pauseKey string, width, height int) string {
	msg := pausedStyle.Render(fmt.Sprintf("Paused\n\npress %s to continue", pauseKey))
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, msg)
}
