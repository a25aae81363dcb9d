package plugin

import (
	"errors"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrUnknownExam is returned for exam codes with no registered plugin.
var ErrUnknownExam = errors.New("plugin: unknown exam")

// Registry maps exam codes to their plugins.
type Registry struct {
	plugins map[string]*Plugin
	order   []string // insertion order for deterministic iteration
}

// NewRegistry validates and registers ps.
func NewRegistry(ps ...*Plugin) (*Registry, error) {
	r := &Registry{plugins: make(map[string]*Plugin)}
	for _, p := range ps {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a plugin. Exam codes are unique.
func (r *Registry) Register(p *Plugin) error {
	if err := p.Validate(); err != nil {
		return err
	}
	code := strings.ToUpper(p.ExamCode)
	if _, dup := r.plugins[code]; dup {
		return eris.Errorf("plugin: duplicate registration for %s", code)
	}
	r.plugins[code] = p
	r.order = append(r.order, code)
	return nil
}

// Get returns the plugin for an exam code. Lookup is case-insensitive.
func (r *Registry) Get(exam string) (*Plugin, error) {
	p, ok := r.plugins[strings.ToUpper(strings.TrimSpace(exam))]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownExam, "exam %q", exam)
	}
	return p, nil
}

// All returns all plugins in registration order.
func (r *Registry) All() []*Plugin {
	out := make([]*Plugin, 0, len(r.order))
	for _, code := range r.order {
		out = append(out, r.plugins[code])
	}
	return out
}

// Exams returns the registered exam codes in registration order.
func (r *Registry) Exams() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
