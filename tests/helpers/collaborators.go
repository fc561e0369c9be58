package helpers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// CollaboratorServer stands in for the five collaborator endpoints, served at /<name>.
type CollaboratorServer struct {
	*httptest.Server

	mu        sync.Mutex
	responses map[string]cannedResponse
	calls     []string
	requests  map[string][]map[string]interface{}
	headers   map[string][]http.Header
}

type cannedResponse struct {
	status int
	body   string
}

// NewCollaboratorServer starts a server that answers every collaborator with {"content":{}}
// until told otherwise.
func NewCollaboratorServer(t *testing.T) *CollaboratorServer {
	t.Helper()

	s := &CollaboratorServer{
		responses: make(map[string]cannedResponse),
		requests:  make(map[string][]map[string]interface{}),
		headers:   make(map[string][]http.Header),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Respond sets the status and body returned by a collaborator.
func (s *CollaboratorServer) Respond(name string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[name] = cannedResponse{status: status, body: body}
}

// Calls returns the collaborator names in call order.
func (s *CollaboratorServer) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Requests returns the decoded request bodies received by a collaborator.
func (s *CollaboratorServer) Requests(name string) []map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]interface{}(nil), s.requests[name]...)
}

// Headers returns the request headers received by a collaborator.
func (s *CollaboratorServer) Headers(name string) []http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]http.Header(nil), s.headers[name]...)
}

func (s *CollaboratorServer) handle(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/")

	var payload map[string]interface{}
	body, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(body, &payload)

	s.mu.Lock()
	s.calls = append(s.calls, name)
	s.requests[name] = append(s.requests[name], payload)
	s.headers[name] = append(s.headers[name], r.Header.Clone())
	resp, ok := s.responses[name]
	s.mu.Unlock()

	if !ok {
		resp = cannedResponse{status: http.StatusOK, body: `{"content":{}}`}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	_, _ = w.Write([]byte(resp.body))
}
