package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/starfederation/datastar-go/datastar"
	"go.uber.org/zap"

	"learnshell/framework"
	"learnshell/framework/engine"
	"learnshell/framework/location"
	"learnshell/framework/router"
)

const defaultCacheControlPolicy = "public, max-age=3600, s-maxage=3600"
const noStorePolicy = "no-store"
const defaultHealthPath = "/healthz"
const defaultHealthBody = "ok"
const defaultStaticPrefix = "/static/"
const defaultClientCookie = "la_client"
const defaultOutletID = "route"
const clientCookieMaxAge = 365 * 24 * time.Hour

type StaticMount struct {
	URLPrefix string
	Dir       string
}

type CachePolicies struct {
	HTML   string
	Live   string
	Static string
	Health string
	Error  string
}

func DefaultCachePolicies() CachePolicies {
	return CachePolicies{
		HTML:   noStorePolicy,
		Live:   noStorePolicy,
		Static: defaultCacheControlPolicy,
		Health: defaultCacheControlPolicy,
		Error:  noStorePolicy,
	}
}

type Config struct {
	Registry    *router.Registry
	DefaultKey  string
	NotFoundKey string

	// Shell renders the page hosting the outlet element for a new session.
	Shell func(sessionID string) templ.Component
	// SessionContext derives the context a session's views and mounts run
	// under. It must keep r.Context() as its parent.
	SessionContext func(r *http.Request, clientID string) context.Context

	Static      StaticMount
	Stylesheets map[string]func() string

	CachePolicies CachePolicies
	Logger        *zap.Logger

	HealthPath   string
	HealthBody   string
	ClientCookie string
	OutletID     string
}

type server struct {
	registry    *router.Registry
	defaultKey  string
	notFoundKey string

	shell          func(sessionID string) templ.Component
	sessionContext func(r *http.Request, clientID string) context.Context

	cachePolicies CachePolicies
	logger        *zap.Logger
	healthBody    string
	clientCookie  string
	outletID      string

	sessions *sessions
}

// New builds the HTTP host for the router shell: the shell page, the live
// endpoints that drive one router engine per browser tab, and static assets.
func New(cfg Config) (http.Handler, error) {
	if cfg.Registry == nil {
		return nil, errors.New("route registry is required")
	}
	if cfg.Shell == nil {
		return nil, errors.New("shell renderer is required")
	}

	healthBody := strings.TrimSpace(cfg.HealthBody)
	if healthBody == "" {
		healthBody = defaultHealthBody
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sessionContext := cfg.SessionContext
	if sessionContext == nil {
		sessionContext = func(r *http.Request, _ string) context.Context { return r.Context() }
	}

	srv := &server{
		registry:       cfg.Registry,
		defaultKey:     withDefault(cfg.DefaultKey, engine.DefaultKey),
		notFoundKey:    withDefault(cfg.NotFoundKey, engine.NotFoundKey),
		shell:          cfg.Shell,
		sessionContext: sessionContext,
		cachePolicies:  withDefaultPolicies(cfg.CachePolicies),
		logger:         logger,
		healthBody:     healthBody,
		clientCookie:   withDefault(cfg.ClientCookie, defaultClientCookie),
		outletID:       withDefault(cfg.OutletID, defaultOutletID),
		sessions:       newSessions(),
	}

	logger.Info("routes registered",
		zap.Strings("routes", cfg.Registry.Keys()),
		zap.String("default", srv.defaultKey),
		zap.String("not_found", srv.notFoundKey),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get(normalizeHealthPath(cfg.HealthPath), srv.handleHealth)

	prefix := normalizeStaticPrefix(cfg.Static.URLPrefix)
	for name, css := range cfg.Stylesheets {
		r.Get(prefix+strings.TrimPrefix(name, "/"), srv.stylesheetHandler(css))
	}
	if strings.TrimSpace(cfg.Static.Dir) != "" {
		fs := http.FileServer(http.Dir(cfg.Static.Dir))
		r.Handle(prefix+"*", withCachePolicy(srv.cachePolicies.Static, http.StripPrefix(prefix, fs)))
	}

	r.Get("/", srv.handleShell)
	r.Route("/live", func(r chi.Router) {
		r.Get("/connect", srv.handleConnect)
		r.Get("/location", srv.handleLocation)
		r.Get("/navigate", srv.handleNavigate)
		r.Post("/action/{action}", srv.handleAction)
	})
	r.NotFound(srv.handleNotFound)

	return r, nil
}

// liveSignals are the shell signals every live request carries.
type liveSignals struct {
	Session string `json:"session"`
	Hash    string `json:"hash"`
}

func (s *server) handleShell(w http.ResponseWriter, r *http.Request) {
	clientID := s.ensureClientID(w, r)
	sessionID := uuid.NewString()

	setCachePolicy(w, s.cachePolicies.HTML)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.shell(sessionID).Render(s.sessionContext(r, clientID), w); err != nil {
		s.handleServerError(w, fmt.Errorf("render shell: %w", err))
	}
}

// handleConnect opens the session stream. The router engine lives exactly as
// long as this request.
func (s *server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var signals liveSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		s.handleBadRequest(w, "invalid signals")
		return
	}
	if strings.TrimSpace(signals.Session) == "" {
		s.handleBadRequest(w, "missing session")
		return
	}

	clientID := s.clientID(r)
	if clientID == "" {
		clientID = signals.Session
	}

	logger := s.logger.With(zap.String("session", signals.Session))
	sess := &session{id: signals.Session}
	if !s.sessions.add(sess) {
		setCachePolicy(w, s.cachePolicies.Error)
		http.Error(w, "session already connected", http.StatusConflict)
		return
	}
	defer s.sessions.remove(sess)

	setCachePolicy(w, s.cachePolicies.Live)
	sse := datastar.NewSSE(w, r)
	out := &sseOutlet{sse: sse, selectorID: s.outletID, logger: logger}
	defer out.close()

	loc := location.NewMemory(location.FromFragment(signals.Hash), location.WithOnAssign(out.pushLocation))
	defer loc.Close()

	routeEngine, err := engine.New(engine.Config{
		Registry:    s.registry,
		Location:    loc,
		DefaultKey:  s.defaultKey,
		NotFoundKey: s.notFoundKey,
		Context:     s.sessionContext(r, clientID),
		Logger:      logger,
	})
	if err != nil {
		logger.Error("create router engine", zap.Error(err))
		return
	}
	defer func() {
		routeEngine.Close()
		routeEngine.Wait()
	}()

	s.sessions.bind(sess, routeEngine, loc)
	if err := routeEngine.Initialize(out); err != nil {
		logger.Error("initialize router engine", zap.Error(err))
		return
	}
	logger.Info("session connected",
		zap.String("route", routeEngine.Rendered()),
		zap.Uint64("generation", routeEngine.Generation()),
	)

	<-r.Context().Done()
	logger.Info("session disconnected",
		zap.String("route", routeEngine.Rendered()),
		zap.Uint64("renders", routeEngine.Generation()),
	)
}

func (s *server) handleLocation(w http.ResponseWriter, r *http.Request) {
	sess, signals, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	key := location.FromFragment(signals.Hash)
	if key == "" {
		key = s.defaultKey
	}
	sess.location.Observe(key)
	s.noContent(w)
}

func (s *server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	to := strings.TrimSpace(r.URL.Query().Get("to"))
	if to == "" {
		s.handleBadRequest(w, "missing navigation target")
		return
	}
	if err := sess.engine.Navigate(to); err != nil {
		s.logger.Warn("navigate failed", zap.String("session", sess.id), zap.String("route", to), zap.Error(err))
	}
	s.noContent(w)
}

func (s *server) handleAction(w http.ResponseWriter, r *http.Request) {
	signals := framework.Signals{}
	if err := datastar.ReadSignals(r, &signals); err != nil {
		s.handleBadRequest(w, "invalid signals")
		return
	}

	sess, ok := s.sessions.get(signals.String("session"))
	if !ok {
		s.handleUnknownSession(w)
		return
	}

	action := chi.URLParam(r, "action")
	err := sess.engine.Dispatch(r.Context(), action, signals)
	switch {
	case errors.Is(err, framework.ErrUnknownAction):
		setCachePolicy(w, s.cachePolicies.Error)
		http.Error(w, "unknown action", http.StatusNotFound)
		return
	case err != nil && !errors.Is(err, framework.ErrStaleRender):
		s.logger.Warn("action failed",
			zap.String("session", sess.id),
			zap.String("action", action),
			zap.Error(err),
		)
	}
	s.noContent(w)
}

func (s *server) lookupSession(w http.ResponseWriter, r *http.Request) (*session, liveSignals, bool) {
	var signals liveSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		s.handleBadRequest(w, "invalid signals")
		return nil, signals, false
	}

	sess, ok := s.sessions.get(signals.Session)
	if !ok {
		s.handleUnknownSession(w)
		return nil, signals, false
	}
	return sess, signals, true
}

func (s *server) ensureClientID(w http.ResponseWriter, r *http.Request) string {
	if id := s.clientID(r); id != "" {
		return id
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     s.clientCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(clientCookieMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func (s *server) clientID(r *http.Request) string {
	cookie, err := r.Cookie(s.clientCookie)
	if err != nil {
		return ""
	}
	if _, err := uuid.Parse(cookie.Value); err != nil {
		return ""
	}
	return cookie.Value
}

func (s *server) stylesheetHandler(css func() string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		setCachePolicy(w, s.cachePolicies.Static)
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		_, _ = w.Write([]byte(css()))
	}
}

func (s *server) noContent(w http.ResponseWriter) {
	setCachePolicy(w, s.cachePolicies.Live)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleUnknownSession(w http.ResponseWriter) {
	setCachePolicy(w, s.cachePolicies.Error)
	http.Error(w, "unknown session", http.StatusNotFound)
}

func (s *server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	setCachePolicy(w, s.cachePolicies.Error)
	http.NotFound(w, r)
}

func (s *server) handleBadRequest(w http.ResponseWriter, message string) {
	setCachePolicy(w, s.cachePolicies.Error)
	http.Error(w, message, http.StatusBadRequest)
}

func (s *server) handleServerError(w http.ResponseWriter, err error) {
	setCachePolicy(w, s.cachePolicies.Error)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	s.logger.Error("server error", zap.Error(err))
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	setCachePolicy(w, s.cachePolicies.Health)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(s.healthBody))
}

func normalizeStaticPrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return defaultStaticPrefix
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}

func normalizeHealthPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return defaultHealthPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

func withDefaultPolicies(policies CachePolicies) CachePolicies {
	defaults := DefaultCachePolicies()
	policies.HTML = withDefault(policies.HTML, defaults.HTML)
	policies.Live = withDefault(policies.Live, defaults.Live)
	policies.Static = withDefault(policies.Static, defaults.Static)
	policies.Health = withDefault(policies.Health, defaults.Health)
	policies.Error = withDefault(policies.Error, defaults.Error)
	return policies
}

func withDefault(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

func setCachePolicy(w http.ResponseWriter, policy string) {
	policy = strings.TrimSpace(policy)
	if policy == "" {
		return
	}
	w.Header().Set("Cache-Control", policy)
}

func withCachePolicy(policy string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCachePolicy(w, policy)
		next.ServeHTTP(w, r)
	})
}
