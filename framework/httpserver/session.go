package httpserver

import (
	"errors"
	"strconv"
	"sync"

	"github.com/starfederation/datastar-go/datastar"
	"go.uber.org/zap"

	"learnshell/framework"
	"learnshell/framework/engine"
	"learnshell/framework/location"
)

var errOutletClosed = errors.New("session stream closed")

// session is one connected browser tab with its own router engine.
type session struct {
	id       string
	engine   *engine.Engine
	location *location.Memory
}

type sessions struct {
	mu   sync.RWMutex
	byID map[string]*session
}

func newSessions() *sessions {
	return &sessions{byID: make(map[string]*session)}
}

func (s *sessions) add(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[sess.id]; exists {
		return false
	}
	s.byID[sess.id] = sess
	return true
}

func (s *sessions) bind(sess *session, routeEngine *engine.Engine, loc *location.Memory) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess.engine = routeEngine
	sess.location = loc
}

// get only returns sessions whose engine is ready.
func (s *sessions) get(id string) (*session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.byID[id]
	if !ok || sess.engine == nil {
		return nil, false
	}
	return sess, true
}

func (s *sessions) remove(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.byID[sess.id]; ok && current == sess {
		delete(s.byID, sess.id)
	}
}

// sseOutlet sends committed route markup and mount patches down the session
// stream as datastar element patches.
type sseOutlet struct {
	mu         sync.Mutex
	sse        *datastar.ServerSentEventGenerator
	selectorID string
	logger     *zap.Logger
	closed     bool
}

func (o *sseOutlet) Replace(markup string) error {
	return o.send(func() error {
		return o.sse.PatchElements(markup, datastar.WithSelectorID(o.selectorID), datastar.WithModeInner())
	})
}

func (o *sseOutlet) Patch(selectorID string, mode framework.PatchMode, markup string) error {
	return o.send(func() error {
		return o.sse.PatchElements(markup, datastar.WithSelectorID(selectorID), patchModeOption(mode))
	})
}

// pushLocation mirrors an engine-side assignment into the browser hash.
func (o *sseOutlet) pushLocation(key string) {
	script := "window.location.hash = " + strconv.Quote(location.ToFragment(key))
	err := o.send(func() error {
		return o.sse.ExecuteScript(script)
	})
	if err != nil {
		o.logger.Debug("push location", zap.String("route", key), zap.Error(err))
	}
}

func (o *sseOutlet) send(write func() error) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return errOutletClosed
	}
	return write()
}

func (o *sseOutlet) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
}

func patchModeOption(mode framework.PatchMode) datastar.PatchElementOption {
	switch mode {
	case framework.PatchModeAppend:
		return datastar.WithModeAppend()
	case framework.PatchModeAfter:
		return datastar.WithModeAfter()
	default:
		return datastar.WithModeInner()
	}
}
