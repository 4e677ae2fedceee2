package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/a-h/templ"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"learnshell/framework"
	"learnshell/framework/location"
	"learnshell/framework/router"
)

const (
	DefaultKey  = "/"
	NotFoundKey = "/404"

	fallbackNotFoundMarkup = `<fast-card class="p-6">Not Found</fast-card>`
)

var (
	ErrAlreadyInitialized = errors.New("router engine already initialized")
	ErrNotInitialized     = errors.New("router engine not initialized")
	ErrClosed             = errors.New("router engine closed")
)

type State int32

const (
	StateUninitialized State = iota
	StateIdle
	StateRendering
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateIdle:
		return "idle"
	case StateRendering:
		return "rendering"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type Config struct {
	Registry *router.Registry
	Location location.Location

	DefaultKey  string
	NotFoundKey string

	// Context is used to render views and is the parent of every mount context.
	Context context.Context
	Logger  *zap.Logger

	HandleRenderError func(key string, err error)
	HandleMountError  func(key string, err error)
}

type Engine struct {
	registry    *router.Registry
	location    location.Location
	defaultKey  string
	notFoundKey string
	baseCtx     context.Context
	logger      *zap.Logger

	renderErr func(key string, err error)
	mountErr  func(key string, err error)

	state      *atomic.Int32
	generation *atomic.Uint64

	initMu      sync.Mutex
	unsubscribe func()

	// renderMu serializes render passes and mount writes to the outlet.
	renderMu    sync.Mutex
	outlet      framework.Outlet
	lastKey     string
	// handledKey is the key of the last render attempt, committed or not.
	// Notifications for it are skipped; handledErr is that attempt's result.
	handledKey  string
	handled     bool
	handledErr  error
	cancelMount context.CancelFunc
	actions     map[string]framework.ActionHandler

	mounts sync.WaitGroup
}

func New(cfg Config) (*Engine, error) {
	if cfg.Registry == nil {
		return nil, errors.New("route registry is required")
	}
	if cfg.Location == nil {
		return nil, errors.New("location is required")
	}

	defaultKey := cfg.DefaultKey
	if defaultKey == "" {
		defaultKey = DefaultKey
	}
	notFoundKey := cfg.NotFoundKey
	if notFoundKey == "" {
		notFoundKey = NotFoundKey
	}

	baseCtx := cfg.Context
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	renderErr := cfg.HandleRenderError
	if renderErr == nil {
		renderErr = func(key string, err error) {
			logger.Error("render failed", zap.String("route", key), zap.Error(err))
		}
	}

	mountErr := cfg.HandleMountError
	if mountErr == nil {
		mountErr = func(key string, err error) {
			logger.Warn("mount failed", zap.String("route", key), zap.Error(err))
		}
	}

	return &Engine{
		registry:    cfg.Registry,
		location:    cfg.Location,
		defaultKey:  defaultKey,
		notFoundKey: notFoundKey,
		baseCtx:     baseCtx,
		logger:      logger,
		renderErr:   renderErr,
		mountErr:    mountErr,
		state:       atomic.NewInt32(int32(StateUninitialized)),
		generation:  atomic.NewUint64(0),
		actions:     make(map[string]framework.ActionHandler),
	}, nil
}

// Initialize binds the outlet, subscribes to location changes and renders the
// current location. An empty location is first set to the default key; that
// assignment and the initial render together produce a single render pass.
func (e *Engine) Initialize(outlet framework.Outlet) error {
	if outlet == nil {
		return errors.New("outlet is required")
	}

	e.initMu.Lock()
	defer e.initMu.Unlock()

	if !e.state.CompareAndSwap(int32(StateUninitialized), int32(StateIdle)) {
		if e.State() == StateClosed {
			return ErrClosed
		}
		return ErrAlreadyInitialized
	}

	e.renderMu.Lock()
	e.outlet = outlet
	e.renderMu.Unlock()

	e.unsubscribe = e.location.Subscribe(e.handleLocationChange)
	if e.location.Current() == "" {
		e.location.Assign(e.defaultKey)
	}

	return e.renderInitial(e.location.Current())
}

// renderInitial renders key unless the default assignment's notification
// already attempted it, in which case that attempt's result is returned.
func (e *Engine) renderInitial(key string) error {
	e.renderMu.Lock()
	if e.handled && e.handledKey == key {
		err := e.handledErr
		e.renderMu.Unlock()
		return err
	}
	e.renderMu.Unlock()

	return e.render(key, false)
}

// Navigate moves to key. When key is already the current location nothing
// would be notified, so the current route is rendered again instead.
func (e *Engine) Navigate(key string) error {
	switch e.State() {
	case StateUninitialized:
		return ErrNotInitialized
	case StateClosed:
		return ErrClosed
	}

	if key != e.location.Current() {
		e.location.Assign(key)
		return nil
	}

	return e.render(key, true)
}

// Resolve returns the definition rendered for key and the key it was found
// under. The resolved key is empty when the built-in not-found markup is used.
func (e *Engine) Resolve(key string) (router.Definition, string) {
	if def, ok := e.registry.Lookup(key); ok {
		return def, key
	}
	if def, ok := e.registry.Lookup(e.notFoundKey); ok {
		return def, e.notFoundKey
	}
	return router.Definition{View: fallbackNotFoundView}, ""
}

// Dispatch runs the action handler wired by the current route's mount.
func (e *Engine) Dispatch(ctx context.Context, action string, signals framework.Signals) error {
	e.renderMu.Lock()
	handler, ok := e.actions[action]
	e.renderMu.Unlock()

	if !ok {
		return fmt.Errorf("dispatch %q: %w", action, framework.ErrUnknownAction)
	}
	return handler(ctx, signals)
}

func (e *Engine) Current() string {
	return e.location.Current()
}

// Rendered returns the route key of the last committed render.
func (e *Engine) Rendered() string {
	e.renderMu.Lock()
	defer e.renderMu.Unlock()
	return e.lastKey
}

// Generation counts committed renders.
func (e *Engine) Generation() uint64 {
	return e.generation.Load()
}

func (e *Engine) State() State {
	return State(e.state.Load())
}

// Wait blocks until every started mount callback has returned.
func (e *Engine) Wait() {
	e.mounts.Wait()
}

// Close stops listening for location changes and cancels the in-flight mount.
func (e *Engine) Close() {
	e.initMu.Lock()
	defer e.initMu.Unlock()

	if e.State() == StateClosed {
		return
	}
	e.state.Store(int32(StateClosed))

	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}

	e.renderMu.Lock()
	if e.cancelMount != nil {
		e.cancelMount()
		e.cancelMount = nil
	}
	e.actions = make(map[string]framework.ActionHandler)
	e.renderMu.Unlock()
}

func (e *Engine) handleLocationChange(key string) {
	if err := e.render(key, false); err != nil && !errors.Is(err, ErrClosed) {
		e.renderErr(key, err)
	}
}

func (e *Engine) render(key string, force bool) error {
	e.renderMu.Lock()
	defer e.renderMu.Unlock()

	if e.State() == StateClosed {
		return ErrClosed
	}
	if !force && e.handled && key == e.handledKey {
		e.logger.Debug("location unchanged since last render", zap.String("route", key))
		return nil
	}
	if force && key != e.location.Current() {
		// A newer location was written; its own notification renders it.
		e.logger.Debug("forced render superseded", zap.String("route", key))
		return nil
	}

	e.handledKey = key
	e.handled = true
	e.handledErr = e.commit(key, force)
	return e.handledErr
}

// commit produces the view for key and swaps it into the outlet. Called with
// renderMu held.
func (e *Engine) commit(key string, force bool) error {
	e.state.CompareAndSwap(int32(StateIdle), int32(StateRendering))
	defer e.state.CompareAndSwap(int32(StateRendering), int32(StateIdle))

	def, resolved := e.Resolve(key)
	markup, err := e.produce(def.View)
	if err != nil {
		return fmt.Errorf("render route %q: %w", key, err)
	}

	generation := e.generation.Inc()
	if e.cancelMount != nil {
		e.cancelMount()
		e.cancelMount = nil
	}
	e.actions = make(map[string]framework.ActionHandler)

	if err := e.outlet.Replace(markup); err != nil {
		return fmt.Errorf("commit route %q: %w", key, err)
	}
	e.lastKey = key

	e.logger.Debug("route rendered",
		zap.String("route", key),
		zap.String("resolved", resolved),
		zap.Uint64("generation", generation),
		zap.Bool("forced", force),
	)

	if def.Mount != nil {
		e.startMount(def.Mount, key, generation)
	}
	return nil
}

func (e *Engine) startMount(mount framework.MountFunc, key string, generation uint64) {
	ctx, cancel := context.WithCancel(e.baseCtx)
	e.cancelMount = cancel

	sc := &scope{engine: e, key: key, generation: generation}
	e.mounts.Add(1)
	go func() {
		defer e.mounts.Done()
		defer cancel()

		err := mount(ctx, sc)
		if err == nil || errors.Is(err, framework.ErrStaleRender) || errors.Is(err, context.Canceled) {
			return
		}
		e.mountErr(key, err)
	}()
}

func (e *Engine) produce(view framework.ViewFunc) (string, error) {
	if view == nil {
		return "", nil
	}
	return renderMarkup(e.baseCtx, view())
}

func renderMarkup(ctx context.Context, component templ.Component) (string, error) {
	if component == nil {
		return "", nil
	}

	var b bytes.Buffer
	if err := component.Render(ctx, &b); err != nil {
		return "", err
	}
	return b.String(), nil
}
