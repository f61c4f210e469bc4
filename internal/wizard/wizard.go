// Package wizard asks the operator for participant details before a session.
package wizard

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spboyer/stimseq/internal/models"
	"golang.org/x/term"
)

var (
	errParticipantRequired = errors.New("participant is required")
	errUnexpectedEOF       = errors.New("unexpected end of input")
)

// RunParticipantWizard collects the participant identifier and the two
// optional parameters. Fields already set in initial are offered as
// defaults. On a terminal an interactive huh form is shown; otherwise the
// answers are read one per line from in.
func RunParticipantWizard(in io.Reader, out io.Writer, initial models.Participant) (*models.Participant, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return runForm(in, out, initial)
	}
	return runPrompts(in, out, initial)
}

func runForm(in io.Reader, out io.Writer, initial models.Participant) (*models.Participant, error) {
	p := initial

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Participant").
				Description("Identifier used to name the result file").
				Placeholder("P01").
				Value(&p.ID).
				Validate(validateParticipant),
			huh.NewInput().
				Title("Parameter 1").
				Description("Optional, appended to the file name").
				Value(&p.Param1),
			huh.NewInput().
				Title("Parameter 2").
				Description("Optional, appended to the file name").
				Value(&p.Param2),
		),
	).
		WithInput(in).
		WithOutput(out)

	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("participant form: %w", err)
	}
	return trimmed(p), nil
}

//nolint:errcheck // prompt writes are display-only
func runPrompts(in io.Reader, out io.Writer, initial models.Participant) (*models.Participant, error) {
	sc := bufio.NewScanner(in)
	ask := func(label, def string, required bool) (string, error) {
		if def != "" {
			fmt.Fprintf(out, "%s [%s]: ", label, def)
		} else {
			fmt.Fprintf(out, "%s: ", label)
		}
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return "", err
			}
			if required && def == "" {
				return "", errUnexpectedEOF
			}
			return def, nil
		}
		v := strings.TrimSpace(sc.Text())
		if v == "" {
			v = def
		}
		return v, nil
	}

	id, err := ask("Participant", initial.ID, true)
	if err != nil {
		return nil, err
	}
	if err := validateParticipant(id); err != nil {
		return nil, err
	}
	p1, err := ask("Parameter 1", initial.Param1, false)
	if err != nil {
		return nil, err
	}
	p2, err := ask("Parameter 2", initial.Param2, false)
	if err != nil {
		return nil, err
	}
	return trimmed(models.Participant{ID: id, Param1: p1, Param2: p2}), nil
}

func validateParticipant(s string) error {
	if strings.TrimSpace(s) == "" {
		return errParticipantRequired
	}
	return nil
}

func trimmed(p models.Participant) *models.Participant {
	return &models.Participant{
		ID:     strings.TrimSpace(p.ID),
		Param1: strings.TrimSpace(p.Param1),
		Param2: strings.TrimSpace(p.Param2),
	}
}
