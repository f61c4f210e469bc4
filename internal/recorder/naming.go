package recorder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spboyer/stimseq/internal/models"
)

// IncompleteSuffix marks results of sessions that did not complete.
const IncompleteSuffix = "incomplete"

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

// Sanitize replaces every character outside [A-Za-z0-9_] with '_'.
func Sanitize(s string) string {
	return unsafeChars.ReplaceAllString(strings.TrimSpace(s), "_")
}

// BaseName derives participant[_param1][_param2][_suffix][_incomplete] from
// the participant identifiers. Empty optional parts are left out.
func BaseName(p models.Participant, suffix string, completed bool) (string, error) {
	id := Sanitize(p.ID)
	if id == "" {
		return "", models.NewConfigError("participant", "participant identifier is required")
	}
	parts := []string{id}
	for _, extra := range []string{p.Param1, p.Param2, suffix} {
		if s := Sanitize(extra); s != "" {
			parts = append(parts, s)
		}
	}
	if !completed {
		parts = append(parts, IncompleteSuffix)
	}
	return strings.Join(parts, "_"), nil
}

// uniquePath returns dir/base+ext, or dir/base_N+ext for the first N that
// does not exist yet.
func uniquePath(dir, base, ext string) (string, error) {
	candidate := filepath.Join(dir, base+ext)
	for n := 2; ; n++ {
		_, err := os.Stat(candidate)
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		if n > 1000 {
			return "", fmt.Errorf("no free file name for %s in %s", base, dir)
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, n, ext))
	}
}
