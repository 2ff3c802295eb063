package icons

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mikemorandi/flightradar/pkg/logger"
)

// ColorState is the mutually exclusive paint applied to an icon's
// color-bearing elements. The last state applied wins.
type ColorState string

const (
	StateDefault  ColorState = "default"
	StateSelected ColorState = "selected"
	StateMilitary ColorState = "military"
)

var stateFills = map[ColorState]string{
	StateDefault:  "#ffb325",
	StateSelected: "#4fc3f7",
	StateMilitary: "#66bb6a",
}

// outlineStroke is never changed by a color state.
const outlineStroke = "#1a1a1a"

// Element is one drawable piece of an icon template.
type Element struct {
	ID      string `json:"id"`
	Path    string `json:"path"`
	Fill    string `json:"fill"`
	Stroke  string `json:"stroke"`
	Outline bool   `json:"outline"`
}

// Template is a compiled icon shape with its elements split into
// color-bearing and outline-only index lists. Templates are immutable and
// shared between resources.
type Template struct {
	Class    Class
	Elements []Element

	paintable []int
	outline   []int
}

// baseShapes defines each class's geometry. Paths are SVG path data in
// the icon's local coordinate space; the UI rotates them per aircraft.
var baseShapes = map[Class][]spec{
	ClassA1:      {{id: "body", path: "M16 2 L20 18 L16 15 L12 18 Z"}, {id: "edge", path: "M16 2 L20 18 L16 15 L12 18 Z", outline: true}},
	ClassA2:      {{id: "body", path: "M16 2 L21 19 L16 16 L11 19 Z"}, {id: "edge", path: "M16 2 L21 19 L16 16 L11 19 Z", outline: true}},
	ClassA3:      {{id: "body", path: "M16 1 L22 20 L16 17 L10 20 Z"}, {id: "edge", path: "M16 1 L22 20 L16 17 L10 20 Z", outline: true}},
	ClassA4:      {{id: "body", path: "M16 1 L23 21 L16 17 L9 21 Z"}, {id: "edge", path: "M16 1 L23 21 L16 17 L9 21 Z", outline: true}},
	ClassA5:      {{id: "body", path: "M16 0 L24 22 L16 18 L8 22 Z"}, {id: "edge", path: "M16 0 L24 22 L16 18 L8 22 Z", outline: true}},
	ClassA6:      {{id: "body", path: "M16 1 L19 20 L16 14 L13 20 Z"}, {id: "edge", path: "M16 1 L19 20 L16 14 L13 20 Z", outline: true}},
	ClassA7:      {{id: "body", path: "M16 8 A6 6 0 1 0 16 20 A6 6 0 1 0 16 8"}, {id: "rotor", path: "M6 6 L26 22 M26 6 L6 22", outline: true}},
	ClassB1:      {{id: "body", path: "M16 4 L30 16 L16 14 L2 16 Z"}, {id: "edge", path: "M16 4 L30 16 L16 14 L2 16 Z", outline: true}},
	ClassB2:      {{id: "body", path: "M16 4 A8 10 0 1 0 16 24 A8 10 0 1 0 16 4"}, {id: "edge", path: "M16 4 A8 10 0 1 0 16 24 A8 10 0 1 0 16 4", outline: true}},
	ClassB3:      {{id: "body", path: "M8 8 A8 8 0 0 1 24 8 L16 22 Z"}, {id: "edge", path: "M8 8 A8 8 0 0 1 24 8 L16 22 Z", outline: true}},
	ClassB4:      {{id: "body", path: "M16 4 L19 18 L16 16 L13 18 Z"}, {id: "edge", path: "M16 4 L19 18 L16 16 L13 18 Z", outline: true}},
	ClassB6:      {{id: "body", path: "M16 6 L26 16 L16 13 L6 16 Z"}, {id: "edge", path: "M16 6 L26 16 L16 13 L6 16 Z", outline: true}},
	ClassB7:      {{id: "body", path: "M14 2 L18 2 L18 24 L14 24 Z"}, {id: "edge", path: "M14 2 L18 2 L18 24 L14 24 Z", outline: true}},
	ClassC1:      {{id: "body", path: "M6 10 L26 10 L26 22 L6 22 Z"}, {id: "edge", path: "M6 10 L26 10 L26 22 L6 22 Z", outline: true}},
	ClassC2:      {{id: "body", path: "M6 12 L26 12 L26 22 L6 22 Z"}, {id: "edge", path: "M6 12 L26 12 L26 22 L6 22 Z", outline: true}},
	ClassC3:      {{id: "body", path: "M14 4 L18 4 L18 28 L14 28 Z"}, {id: "edge", path: "M14 4 L18 4 L18 28 L14 28 Z", outline: true}},
	ClassC4:      {{id: "body", path: "M8 4 L12 4 L12 28 L8 28 Z M20 4 L24 4 L24 28 L20 28 Z"}, {id: "edge", path: "M8 4 L12 4 L12 28 L8 28 Z M20 4 L24 4 L24 28 L20 28 Z", outline: true}},
	ClassC5:      {{id: "body", path: "M2 14 L30 14 L30 18 L2 18 Z"}, {id: "edge", path: "M2 14 L30 14 L30 18 L2 18 Z", outline: true}},
	ClassDefault: {{id: "body", path: "M16 3 L20 19 L16 16 L12 19 Z"}, {id: "edge", path: "M16 3 L20 19 L16 16 L12 19 Z", outline: true}},
}

type spec struct {
	id      string
	path    string
	outline bool
}

func compile(class Class) *Template {
	shapes, ok := baseShapes[class]
	if !ok {
		shapes = baseShapes[ClassDefault]
		class = ClassDefault
	}

	tpl := &Template{Class: class, Elements: make([]Element, len(shapes))}
	for i, sp := range shapes {
		el := Element{ID: sp.id, Path: sp.path, Outline: sp.outline}
		if sp.outline {
			el.Fill = "none"
			el.Stroke = outlineStroke
			tpl.outline = append(tpl.outline, i)
		} else {
			el.Fill = stateFills[StateDefault]
			tpl.paintable = append(tpl.paintable, i)
		}
		tpl.Elements[i] = el
	}
	return tpl
}

// Resource is one aircraft's live visual: a shared compiled template plus
// this aircraft's own fills, color state, and rotation.
type Resource struct {
	ID       string
	Class    Class
	State    ColorState
	Rotation float64
	Attached bool

	template *Template
	fills    []string
}

// Template returns the shared compiled template backing this resource.
func (r *Resource) Template() *Template { return r.template }

// Elements returns the resource's elements with its current fills
// applied. Outline elements keep the fixed outline paint.
func (r *Resource) Elements() []Element {
	out := make([]Element, len(r.template.Elements))
	copy(out, r.template.Elements)
	for n, idx := range r.template.paintable {
		out[idx].Fill = r.fills[n]
	}
	return out
}

// SetColorState repaints the color-bearing elements. Outline elements are
// never touched. States are mutually exclusive; the last applied wins.
func (r *Resource) SetColorState(state ColorState) {
	fill, ok := stateFills[state]
	if !ok {
		return
	}
	r.State = state
	for n := range r.fills {
		r.fills[n] = fill
	}
}

// SetRotation orients the icon in degrees true.
func (r *Resource) SetRotation(deg float64) { r.Rotation = deg }

// Pool owns per-aircraft resources and the shared template cache.
// Attaching and detaching a resource are pool lookups, never rebuilds.
type Pool struct {
	mu        sync.Mutex
	resources map[string]*Resource
	templates *lru.Cache[Class, *Template]
	log       *logger.Logger
}

// NewPool creates a pool whose compiled templates are capped by an LRU of
// the given size.
func NewPool(log *logger.Logger, templateCacheSize int) (*Pool, error) {
	if templateCacheSize <= 0 {
		templateCacheSize = len(baseShapes)
	}
	cache, err := lru.New[Class, *Template](templateCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create template cache: %w", err)
	}
	return &Pool{
		resources: make(map[string]*Resource),
		templates: cache,
		log:       log.Named("icons"),
	}, nil
}

// Acquire returns the aircraft's resource, creating it on first use. An
// existing resource is returned as is, whatever its attach state, so a
// detach and reattach never recompute anything.
func (p *Pool) Acquire(id string, class Class) *Resource {
	p.mu.Lock()
	defer p.mu.Unlock()

	if r, ok := p.resources[id]; ok {
		r.Attached = true
		return r
	}

	tpl := p.templateLocked(class)
	r := &Resource{
		ID:       id,
		Class:    tpl.Class,
		State:    StateDefault,
		Attached: true,
		template: tpl,
		fills:    make([]string, len(tpl.paintable)),
	}
	for n := range r.fills {
		r.fills[n] = stateFills[StateDefault]
	}
	p.resources[id] = r
	return r
}

// Get returns the aircraft's resource without creating one.
func (p *Pool) Get(id string) (*Resource, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.resources[id]
	return r, ok
}

// Detach marks the resource off screen. The resource and its template
// stay cached for reattachment.
func (p *Pool) Detach(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.resources[id]; ok {
		r.Attached = false
	}
}

// Release drops the aircraft's resource entirely. The shared template
// stays in the LRU for other aircraft of the same class.
func (p *Pool) Release(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.resources, id)
}

// Len returns the number of live resources.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.resources)
}

// caller holds the lock
func (p *Pool) templateLocked(class Class) *Template {
	if tpl, ok := p.templates.Get(class); ok {
		return tpl
	}
	tpl := compile(class)
	p.templates.Add(tpl.Class, tpl)
	return tpl
}
