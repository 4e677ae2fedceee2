package engine

import (
	"context"
	"io"

	"github.com/a-h/templ"
	"go.uber.org/zap"

	"learnshell/framework"
)

// scope ties a mount callback to the render generation that started it.
type scope struct {
	engine     *Engine
	key        string
	generation uint64
}

func (s *scope) Key() string {
	return s.key
}

func (s *scope) Generation() uint64 {
	return s.generation
}

func (s *scope) Active() bool {
	return s.engine.State() != StateClosed && s.engine.generation.Load() == s.generation
}

func (s *scope) Patch(selectorID string, component templ.Component) error {
	return s.write(selectorID, framework.PatchModeInner, component)
}

func (s *scope) Append(selectorID string, component templ.Component) error {
	return s.write(selectorID, framework.PatchModeAppend, component)
}

func (s *scope) InsertAfter(selectorID string, component templ.Component) error {
	return s.write(selectorID, framework.PatchModeAfter, component)
}

func (s *scope) On(action string, handler framework.ActionHandler) {
	e := s.engine
	e.renderMu.Lock()
	defer e.renderMu.Unlock()

	if !s.Active() {
		e.logger.Debug("dropped action from superseded render",
			zap.String("route", s.key),
			zap.String("action", action),
			zap.Uint64("generation", s.generation),
		)
		return
	}
	e.actions[action] = handler
}

func (s *scope) Navigate(key string) error {
	if !s.Active() {
		return framework.ErrStaleRender
	}
	return s.engine.Navigate(key)
}

func (s *scope) write(selectorID string, mode framework.PatchMode, component templ.Component) error {
	e := s.engine
	markup, err := renderMarkup(e.baseCtx, component)
	if err != nil {
		return err
	}

	e.renderMu.Lock()
	defer e.renderMu.Unlock()

	if !s.Active() {
		e.logger.Debug("dropped write from superseded render",
			zap.String("route", s.key),
			zap.String("selector", selectorID),
			zap.Uint64("generation", s.generation),
		)
		return framework.ErrStaleRender
	}
	return e.outlet.Patch(selectorID, mode, markup)
}

var fallbackNotFoundView framework.ViewFunc = func() templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, fallbackNotFoundMarkup)
		return err
	})
}
