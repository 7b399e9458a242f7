// Package langfusetest runs a fake Langfuse API for tests.
package langfusetest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// Event is an ingestion event as received by the server.
type Event struct {
	ID        string         `json:"id"`
	Timestamp string         `json:"timestamp"`
	Type      string         `json:"type"`
	Body      map[string]any `json:"body"`
}

// Server records ingestion batches and serves prompts.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	events   []Event
	auth     []string
	prompts  map[string]map[string]any
	queries  []string
	reject   map[string]bool
	Requests int

	// WantAuth, when set, makes the prompt list endpoint reject any other Authorization.
	WantAuth string
}

// NewServer starts a fake API that is closed with the test.
func NewServer(t testing.TB) *Server {
	s := &Server{prompts: map[string]map[string]any{}, reject: map[string]bool{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/public/ingestion", s.ingest)
	mux.HandleFunc("/api/public/v2/prompts", s.listPrompts)
	mux.HandleFunc("/api/public/v2/prompts/", s.getPrompt)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// AddPrompt serves p under name.
func (s *Server) AddPrompt(name string, p map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts[name] = p
}

// RejectType makes the server report events of type t as failed.
func (s *Server) RejectType(t string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reject[t] = true
}

// Events returns everything ingested so far.
func (s *Server) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// EventsOfType filters Events by type.
func (s *Server) EventsOfType(t string) []Event {
	var out []Event
	for _, e := range s.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Authorizations returns every Authorization header seen.
func (s *Server) Authorizations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.auth...)
}

// PromptQueries returns the raw query strings of prompt fetches.
func (s *Server) PromptQueries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

func (s *Server) ingest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Batch []Event `json:"batch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.Requests++
	s.auth = append(s.auth, r.Header.Get("Authorization"))
	type status struct {
		ID      string `json:"id"`
		Status  int    `json:"status"`
		Message string `json:"message,omitempty"`
	}
	resp := struct {
		Successes []status `json:"successes"`
		Errors    []status `json:"errors"`
	}{Successes: []status{}, Errors: []status{}}
	for _, e := range req.Batch {
		if s.reject[e.Type] {
			resp.Errors = append(resp.Errors, status{ID: e.ID, Status: 400, Message: "rejected"})
			continue
		}
		s.events = append(s.events, e)
		resp.Successes = append(resp.Successes, status{ID: e.ID, Status: 201})
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMultiStatus)
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) listPrompts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.auth = append(s.auth, r.Header.Get("Authorization"))
	want := s.WantAuth
	s.mu.Unlock()
	if want != "" && r.Header.Get("Authorization") != want {
		http.Error(w, `{"message":"invalid credentials"}`, http.StatusUnauthorized)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
}

func (s *Server) getPrompt(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/public/v2/prompts/")

	s.mu.Lock()
	s.queries = append(s.queries, r.URL.RawQuery)
	p, ok := s.prompts[name]
	s.mu.Unlock()

	if !ok {
		http.Error(w, `{"message":"prompt not found"}`, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(p)
}
