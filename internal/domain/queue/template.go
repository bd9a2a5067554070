package queue

import (
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/edumarques81/stellar-guildqueue/internal/domain/track"
)

var (
	// ErrTemplateNotFound is returned by a TemplateSource for an unknown name.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrTemplateName is returned when saving a template with a blank name.
	ErrTemplateName = errors.New("template name is required")

	// ErrTemplatesReadOnly is returned by SaveTemplate when the configured
	// source cannot store templates.
	ErrTemplatesReadOnly = errors.New("template source is read-only")

	// ErrEmptyQueue is returned when saving a template from an empty queue.
	ErrEmptyQueue = errors.New("queue is empty")
)

// Template is a named queue preset.
type Template struct {
	Name         string        `json:"name"`
	Tracks       []track.Track `json:"tracks"`
	Shuffle      bool          `json:"shuffle"`
	Repeat       RepeatMode    `json:"repeat"`
	Autoplay     bool          `json:"autoplay"`
	AutoplayMode AutoplayMode  `json:"autoplayMode"`
}

// TemplateSource looks up templates by name.
type TemplateSource interface {
	Template(name string) (Template, error)
}

// TemplateStore is a TemplateSource that can also save templates.
type TemplateStore interface {
	TemplateSource
	SaveTemplate(t Template) error
}

// Templates is an in-memory TemplateStore. Names are case-insensitive.
type Templates struct {
	mu     sync.RWMutex
	byName map[string]Template
}

// NewTemplates creates a template set holding ts.
func NewTemplates(ts ...Template) *Templates {
	set := &Templates{byName: make(map[string]Template)}
	for _, t := range ts {
		set.Put(t)
	}
	return set
}

// Put adds or replaces a template.
func (s *Templates) Put(t Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.Tracks = append([]track.Track(nil), t.Tracks...)
	s.byName[templateKey(t.Name)] = t
}

// SaveTemplate implements TemplateStore.
func (s *Templates) SaveTemplate(t Template) error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return ErrTemplateName
	}
	s.Put(t)
	return nil
}

// Template returns the named template.
func (s *Templates) Template(name string) (Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byName[templateKey(name)]
	if !ok {
		return Template{}, ErrTemplateNotFound
	}
	t.Tracks = append([]track.Track(nil), t.Tracks...)
	return t, nil
}

// Names returns the template names in sorted order.
func (s *Templates) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.byName))
	for _, t := range s.byName {
		names = append(names, t.Name)
	}
	slices.Sort(names)
	return names
}

func templateKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
