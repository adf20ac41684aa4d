// Package simtest provides an in-process JSON-RPC endpoint that answers
// simulateTransaction calls for tests.
package simtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

// SanitizeMessage is the validator's rejection for an unsigned request.
const SanitizeMessage = "invalid transaction: Transaction failed to sanitize accounts offsets correctly"

// Request is a decoded JSON-RPC request.
type Request struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Reply is what the server returns for one call. Exactly one of Error and
// Result is set.
type Reply struct {
	Error  *Error
	Result interface{}
}

// SanitizeFailure is the reply every benchmark request expects.
func SanitizeFailure() Reply {
	return Reply{Error: &Error{Code: -32602, Message: SanitizeMessage}}
}

// Simulated is a successful simulation reply.
func Simulated() Reply {
	return Reply{Result: map[string]interface{}{
		"context": map[string]interface{}{"slot": 1},
		"value": map[string]interface{}{
			"err":  nil,
			"logs": []string{},
		},
	}}
}

// Responder picks the reply for the n-th call, counting from 1.
type Responder func(n int64, req Request) Reply

// Server is a fake Solana RPC endpoint.
type Server struct {
	*httptest.Server

	calls    atomic.Int64
	mu       sync.Mutex
	requests []Request
}

// NewServer starts a Server answering with respond. It is closed when the
// test ends.
func NewServer(t testing.TB, respond Responder) *Server {
	t.Helper()

	s := &Server{}
	s.Server = httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			var req Request
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)

				return
			}

			n := s.calls.Add(1)

			s.mu.Lock()
			s.requests = append(s.requests, req)
			s.mu.Unlock()

			reply := respond(n, req)

			body := map[string]interface{}{
				"jsonrpc": "2.0",
				"id":      req.ID,
			}
			if reply.Error != nil {
				body["error"] = reply.Error
			} else {
				body["result"] = reply.Result
			}

			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(body)
		},
	))

	t.Cleanup(s.Close)

	return s
}

// Calls returns the number of requests served.
func (s *Server) Calls() int64 {
	return s.calls.Load()
}

// Requests returns a copy of the requests served so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Request(nil), s.requests...)
}
