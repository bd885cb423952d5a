// Package tmpl renders a safe subset of Go's text/template against a
// fixed seven-way variable namespace: field lookups, conditionals,
// iteration, and a small whitelisted set of filters. No arbitrary code,
// file reads, or network access is reachable from a template.
package tmpl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"text/template"
	"time"

	"github.com/sxn-dev/sxn/internal/sxnerr"
)

// Namespace holds the seven top-level groups a template may reference.
// Unknown top-level names evaluate to empty — achieved here by looking
// keys up in a map rather than a struct, so a miss is a zero value
// instead of a template execution error.
type Namespace struct {
	Session     map[string]any
	Project     map[string]any
	Git         map[string]any
	User        map[string]any
	Environment map[string]any
	Timestamp   map[string]any
	Custom      map[string]any
}

// asMap flattens a Namespace into the map text/template actually
// executes against, defaulting any nil group to an empty map so a
// reference to an unknown top-level name resolves to "" rather than
// erroring.
func (n Namespace) asMap() map[string]any {
	get := func(m map[string]any) map[string]any {
		if m == nil {
			return map[string]any{}
		}
		return m
	}
	return map[string]any{
		"session":     get(n.Session),
		"project":     get(n.Project),
		"git":         get(n.Git),
		"user":        get(n.User),
		"environment": get(n.Environment),
		"timestamp":   get(n.Timestamp),
		"custom":      get(n.Custom),
	}
}

// funcMap is the whitelisted filter set. No filter here can read a
// file, make a network call, or reach outside its arguments.
var funcMap = template.FuncMap{
	"upcase":   strings.ToUpper,
	"downcase": strings.ToLower,
	"default": func(fallback, value any) any {
		if isEmpty(value) {
			return fallback
		}
		return value
	},
	"date": func(layout string, value any) (string, error) {
		switch v := value.(type) {
		case time.Time:
			return v.Format(goLayout(layout)), nil
		case string:
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return "", fmt.Errorf("date: parse %q: %w", v, err)
			}
			return t.Format(goLayout(layout)), nil
		default:
			return "", fmt.Errorf("date: unsupported value type %T", value)
		}
	},
	"json": func(value any) (string, error) {
		b, err := json.Marshal(value)
		if err != nil {
			return "", err
		}
		return string(b), nil
	},
	"escape": html.EscapeString,
}

// goLayout maps a small set of strftime-ish tokens to Go's reference
// layout, so callers can write "date" filter arguments the way they
// would in most templating languages rather than Go's idiosyncratic one.
func goLayout(layout string) string {
	switch layout {
	case "", "iso8601":
		return time.RFC3339
	case "date":
		return "2006-01-02"
	case "datetime":
		return "2006-01-02 15:04:05"
	default:
		return layout
	}
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	default:
		return false
	}
}

// Render parses and executes templateText against ns. A malformed
// template fails fast with KindExecution before any data is touched; a
// failure during execution (e.g. a filter returning an error) is also
// KindExecution; both failure modes collapse to one error kind at this
// layer (see DESIGN.md).
func Render(templateText string, ns Namespace) (string, error) {
	t, err := template.New("rule").Option("missingkey=zero").Funcs(funcMap).Parse(templateText)
	if err != nil {
		return "", sxnerr.Wrap(sxnerr.KindExecution, err, "template syntax error")
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, ns.asMap()); err != nil {
		return "", sxnerr.Wrap(sxnerr.KindExecution, err, "template render error")
	}
	return buf.String(), nil
}
