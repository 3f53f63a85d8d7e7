package transport

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/vk/webbundler/internal/orchestrator"
	"github.com/vk/webbundler/internal/vfs"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server upgrades incoming HTTP connections to websocket and drives one
// orchestrator.Bundler per connection, per spec.md §4.K.
type Server struct {
	logger    *slog.Logger
	newBundler func() *orchestrator.Bundler
}

// NewServer constructs a Server. newBundler is called once per accepted
// connection to build that connection's isolated Bundler.
func NewServer(logger *slog.Logger, newBundler func() *orchestrator.Bundler) *Server {
	return &Server{logger: logger, newBundler: newBundler}
}

// ServeHTTP implements http.Handler, upgrading the connection and running
// its session loop until the client disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sess := newSession(conn, s.logger, s.newBundler())
	sess.run()
}

// session is one connection's worth of state: its Bundler, the pending
// fs-request correlation table, and a write mutex (gorilla/websocket
// connections are not safe for concurrent writers).
type session struct {
	conn    *websocket.Conn
	logger  *slog.Logger
	bundler *orchestrator.Bundler

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan fsResult
	nextReqID int
}

type fsResult struct {
	content []byte
	found   bool
	err     error
}

func newSession(conn *websocket.Conn, logger *slog.Logger, bundler *orchestrator.Bundler) *session {
	sess := &session{
		conn:    conn,
		logger:  logger,
		bundler: bundler,
		pending: make(map[string]chan fsResult),
	}
	bundler.OnStatusChange(func(status orchestrator.Status) {
		sess.send(KindStatus, StatusPayload{Status: string(status)})
	})
	return sess
}

func (s *session) run() {
	s.bundler.FS().AddLayer(vfs.NewAsyncBridgeLayer(s))
	s.send(KindInitialized, nil)

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.logger.Debug("session closed", "error", err)
			return
		}
		var env InboundEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			s.logger.Warn("malformed envelope", "error", err)
			continue
		}
		s.dispatch(env)
	}
}

func (s *session) dispatch(env InboundEnvelope) {
	switch env.Kind {
	case KindCompile:
		var payload CompilePayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			s.sendError(err)
			return
		}
		s.handleCompile(payload)
	case KindRefresh:
		s.handleRefresh()
	case KindEvaluate:
		var payload EvaluatePayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			s.sendError(err)
			return
		}
		s.handleEvaluateCommand(payload)
	case KindFSResponse:
		var payload FSResponsePayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			s.sendError(err)
			return
		}
		s.handleFSResponse(payload)
	default:
		s.logger.Warn("unknown inbound kind", "kind", env.Kind)
	}
}

func (s *session) send(kind string, data any) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(OutboundEnvelope{Kind: kind, Data: data}); err != nil {
		s.logger.Warn("write failed", "error", err)
	}
}

func (s *session) sendError(err error) {
	s.send(KindAction, ActionPayload{Action: "show-error", Message: err.Error()})
}

// RequestFile implements vfs.ExternalResolver by round-tripping an
// fs-request/fs-response pair over the websocket connection, correlated
// by requestId (spec.md §4.A "Async bridge layer").
func (s *session) RequestFile(path string) ([]byte, bool, error) {
	s.pendingMu.Lock()
	s.nextReqID++
	reqID := fmt.Sprintf("req-%d", s.nextReqID)
	ch := make(chan fsResult, 1)
	s.pending[reqID] = ch
	s.pendingMu.Unlock()

	s.send(KindFSRequest, FSRequestPayload{RequestID: reqID, Path: path})

	result := <-ch
	return result.content, result.found, result.err
}

func (s *session) handleFSResponse(payload FSResponsePayload) {
	s.pendingMu.Lock()
	ch, ok := s.pending[payload.RequestID]
	if ok {
		delete(s.pending, payload.RequestID)
	}
	s.pendingMu.Unlock()
	if !ok {
		return
	}
	var err error
	if payload.Error != "" {
		err = fmt.Errorf("%s", payload.Error)
	}
	ch <- fsResult{content: []byte(payload.Result), found: payload.Found, err: err}
}
