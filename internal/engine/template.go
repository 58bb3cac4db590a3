package engine

import (
	"fmt"
	"strings"
)

// Param is a uniform range one template verb is drawn from. The drawn
// numbers are decorative; nothing measures them.
type Param struct {
	Min float64
	Max float64
}

// Template is a response format string. Each verb consumes one Param in
// order; the literal {query} is replaced with the caller's query after
// formatting.
type Template struct {
	Format string
	Params []Param
}

// Render fills the template with values drawn from rnd.
func (t Template) Render(query string, rnd Rand) string {
	out := t.Format
	if len(t.Params) > 0 {
		args := make([]any, len(t.Params))
		for i, p := range t.Params {
			args[i] = p.Min + rnd.Float64()*(p.Max-p.Min)
		}
		out = fmt.Sprintf(t.Format, args...)
	} else {
		out = strings.ReplaceAll(out, "%%", "%")
	}
	return strings.ReplaceAll(out, "{query}", query)
}

// Validate formats the template once with each Param's lower bound and
// rejects formats whose verbs do not line up with Params.
func (t Template) Validate() error {
	args := make([]any, len(t.Params))
	for i, p := range t.Params {
		args[i] = p.Min
	}
	if out := fmt.Sprintf(t.Format, args...); strings.Contains(out, "%!") {
		return fmt.Errorf("format %q does not match its %d params: %s", t.Format, len(t.Params), out)
	}
	return nil
}
