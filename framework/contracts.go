package framework

import (
	"context"
	"errors"

	"github.com/a-h/templ"
)

var (
	ErrStaleRender   = errors.New("render generation superseded")
	ErrUnknownAction = errors.New("unknown action")
)

// ViewFunc produces the markup for a route. It is called on every render of
// the route and must not touch the network or the outlet.
type ViewFunc func() templ.Component

// MountFunc runs after the view markup has been committed to the outlet.
// ctx is cancelled as soon as a newer render starts.
type MountFunc func(ctx context.Context, scope MountScope) error

// Signals carries client-side state submitted with an action.
type Signals map[string]any

func (s Signals) String(key string) string {
	value, ok := s[key]
	if !ok || value == nil {
		return ""
	}
	text, ok := value.(string)
	if !ok {
		return ""
	}
	return text
}

type ActionHandler func(ctx context.Context, signals Signals) error

// MountScope is the handle a mount callback uses to reach the outlet. Writes
// made through a scope whose generation has been superseded are dropped and
// report ErrStaleRender.
type MountScope interface {
	Key() string
	Generation() uint64
	Active() bool

	Patch(selectorID string, component templ.Component) error
	Append(selectorID string, component templ.Component) error
	InsertAfter(selectorID string, component templ.Component) error

	On(action string, handler ActionHandler)
	Navigate(key string) error
}

type PatchMode string

const (
	PatchModeInner  PatchMode = "inner"
	PatchModeAppend PatchMode = "append"
	PatchModeAfter  PatchMode = "after"
)

// Outlet is the single display container owned by the router engine.
type Outlet interface {
	Replace(markup string) error
	Patch(selectorID string, mode PatchMode, markup string) error
}
