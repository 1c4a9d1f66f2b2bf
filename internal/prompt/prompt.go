// Package prompt loads the prompt template and substitutes the history
// and user-text placeholders.
//
// The template file is read fresh on every request (no caching), so live
// edits take effect immediately without a restart. Readability is checked
// once at startup; a missing template is a configuration error, not a
// per-request one.
package prompt

import (
	"fmt"
	"os"
	"strings"
)

// Placeholder tokens replaced during composition.
const (
	HistoryPlaceholder  = "{history}"
	UserTextPlaceholder = "{user.text}"
)

// Composer renders the final prompt from a template file.
type Composer struct {
	// Path is the template file location.
	Path string
}

// NewComposer constructs a Composer for the given template path.
func NewComposer(path string) *Composer {
	return &Composer{Path: path}
}

// CheckReadable verifies the template can be read. Called at startup so a
// broken template path fails the process before it takes traffic.
func (c *Composer) CheckReadable() error {
	if _, err := os.ReadFile(c.Path); err != nil {
		return fmt.Errorf("prompt: template not readable: %w", err)
	}
	return nil
}

// Compose reads the template and substitutes both placeholders. The read
// happens on every call by design.
func (c *Composer) Compose(history, userText string) (string, error) {
	raw, err := os.ReadFile(c.Path)
	if err != nil {
		return "", fmt.Errorf("prompt: read template: %w", err)
	}
	return Render(string(raw), history, userText), nil
}

// Render performs the two literal substitutions in a single pass over the
// template, so the result does not depend on substitution order and
// substituted values are never rescanned for placeholder tokens.
// Neither value is escaped: user text is injected verbatim.
func Render(template, history, userText string) string {
	return strings.NewReplacer(
		HistoryPlaceholder, history,
		UserTextPlaceholder, userText,
	).Replace(template)
}
