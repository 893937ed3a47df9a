// Package cdptest provides a fake CDP browser endpoint for tests.
package cdptest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

// Request is a CDP command received by the server.
type Request struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"sessionId,omitempty"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params,omitempty"`
}

// Error is returned by a Responder to answer a command with a CDP error.
type Error struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return e.Message }

// Emitter queues an event that is sent right after the command's response.
type Emitter func(sessionID, method string, params any)

// Responder answers a command. A nil result is sent as an empty object.
type Responder func(req Request, emit Emitter) (result any, err *Error)

// Server is a websocket server speaking just enough CDP for tests.
type Server struct {
	t   testing.TB
	srv *httptest.Server

	mu         sync.Mutex
	responders map[string]Responder
	requests   []Request

	writeMu sync.Mutex
}

// NewServer starts a fake browser endpoint that is closed with the test.
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		t:          t,
		responders: make(map[string]Responder),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.srv.Close)

	return s
}

// URL returns the websocket URL of the server.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/devtools/browser/test"
}

// Handle sets the responder of a CDP method.
func (s *Server) Handle(method string, r Responder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responders[method] = r
}

// Requests returns the commands received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	reqs := make([]Request, len(s.requests))
	copy(reqs, s.requests)
	return reqs
}

// Methods returns the method names of the commands received so far.
func (s *Server) Methods() []string {
	var methods []string
	for _, r := range s.Requests() {
		methods = append(methods, r.Method)
	}
	return methods
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	var upgrader websocket.Upgrader
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.t.Logf("upgrading to websocket: %v", err)
		return
	}
	defer conn.Close() //nolint:errcheck

	for {
		_, buf, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req Request
		if err := json.Unmarshal(buf, &req); err != nil {
			s.t.Errorf("decoding CDP request %s: %v", buf, err)
			return
		}

		s.mu.Lock()
		s.requests = append(s.requests, req)
		responder := s.responders[req.Method]
		s.mu.Unlock()

		var events []map[string]any
		emit := func(sessionID, method string, params any) {
			evt := map[string]any{"method": method, "params": params}
			if sessionID != "" {
				evt["sessionId"] = sessionID
			}
			events = append(events, evt)
		}

		resp := map[string]any{"id": req.ID}
		if req.SessionID != "" {
			resp["sessionId"] = req.SessionID
		}
		var (
			result any = struct{}{}
			rerr   *Error
		)
		if responder != nil {
			if res, err := responder(req, emit); err != nil {
				rerr = err
			} else if res != nil {
				result = res
			}
		}
		if rerr != nil {
			resp["error"] = rerr
		} else {
			resp["result"] = result
		}

		if err := s.write(conn, resp); err != nil {
			return
		}
		for _, evt := range events {
			if err := s.write(conn, evt); err != nil {
				return
			}
		}
	}
}

func (s *Server) write(conn *websocket.Conn, v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		s.t.Errorf("encoding CDP message: %v", err)
		return err //nolint:wrapcheck
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, buf) //nolint:wrapcheck
}
