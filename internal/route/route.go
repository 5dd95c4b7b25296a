package route

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"sync"

	wzerrors "github.com/stevehiehn/formwizard/internal/errors"
)

var paramRe = regexp.MustCompile(`\{([a-z_]+)\}`)

// Table maps route names to path patterns such as
// /wizards/{wizard}/{js}/{machine_name}/{step}.
type Table struct {
	mu     sync.RWMutex
	routes map[string]string
}

// NewTable creates an empty route table.
func NewTable() *Table {
	return &Table{routes: map[string]string{}}
}

// Add registers pattern under name, replacing any earlier registration.
func (t *Table) Add(name, pattern string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes[name] = pattern
}

// Pattern returns the pattern registered under name.
func (t *Table) Pattern(name string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.routes[name]
	return p, ok
}

// Names returns the registered route names, sorted.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.routes))
	for name := range t.routes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// URL builds the path for name. Every placeholder must have a non-empty
// parameter; parameters without a placeholder become the query string.
func (t *Table) URL(name string, params map[string]string) (string, error) {
	pattern, ok := t.Pattern(name)
	if !ok {
		return "", &wzerrors.WizardError{
			Type:    wzerrors.RouteNotFound,
			Message: fmt.Sprintf("unknown route %q", name),
		}
	}

	used := map[string]bool{}
	var missing string
	path := paramRe.ReplaceAllStringFunc(pattern, func(m string) string {
		key := paramRe.FindStringSubmatch(m)[1]
		used[key] = true
		v := params[key]
		if v == "" && missing == "" {
			missing = key
		}
		return url.PathEscape(v)
	})
	if missing != "" {
		return "", &wzerrors.WizardError{
			Type:    wzerrors.RouteNotFound,
			Message: fmt.Sprintf("route %q: missing parameter %q", name, missing),
		}
	}

	query := url.Values{}
	for k, v := range params {
		if !used[k] && v != "" {
			query.Set(k, v)
		}
	}
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return path, nil
}
