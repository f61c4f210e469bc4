// Package template expands session fields in operator-supplied strings such
// as hook commands.
package template

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// Context holds all variables available for template resolution.
type Context struct {
	SessionID   string
	Participant string
	Param1      string
	Param2      string
	Catalog     string
	Timestamp   string

	// Completed and Results are only meaningful after a session.
	Completed bool
	Results   []string
}

// Render resolves template expressions in the given string.
// Uses Go's text/template syntax: {{.Participant}}, {{join .Results ","}}.
// Returns the input unchanged if it contains no template delimiters.
func Render(tmpl string, ctx *Context) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	t, err := template.New("").
		Option("missingkey=error").
		Funcs(template.FuncMap{"join": strings.Join}).
		Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("template: parse: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("template: render: %w", err)
	}

	return buf.String(), nil
}
