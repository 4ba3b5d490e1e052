// Package attiotest runs an in-memory fake of the Attio records API for
// tests: paginated query, upsert by matching attribute, and delete.
package attiotest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Record is one stored record in API response shape.
type Record map[string]any

// Server is a fake Attio API backed by per-collection record slices.
type Server struct {
	mu      sync.Mutex
	records map[string][]Record

	AssertCalls int
	DeleteCalls int

	httpServer *httptest.Server
}

func New() *Server {
	s := &Server{records: map[string][]Record{}}
	s.httpServer = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

func (s *Server) URL() string { return s.httpServer.URL }

func (s *Server) Close() { s.httpServer.Close() }

// Client returns an HTTP client wired to the fake server.
func (s *Server) Client() *http.Client { return s.httpServer.Client() }

// MutationCalls is the total number of writes the server has seen.
func (s *Server) MutationCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.AssertCalls + s.DeleteCalls
}

// Add seeds one record. Values are given in upsert shape (plain strings,
// bools, reference maps) and stored canonicalized; the generated record
// is returned so callers can read its record_id.
func (s *Server) Add(object string, values map[string]any) Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	record := newRecord(values)
	s.records[object] = append(s.records[object], record)
	return record
}

// Count returns how many records a collection holds.
func (s *Server) Count(object string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records[object])
}

// RecordID extracts the record id of a stored record.
func RecordID(record Record) uuid.UUID {
	id, _ := record["id"].(map[string]any)
	recordID, _ := id["record_id"].(string)
	parsed, _ := uuid.Parse(recordID)
	return parsed
}

func newRecord(values map[string]any) Record {
	canonical := map[string]any{}
	for field, value := range values {
		canonical[field] = canonicalize(field, value)
	}
	return Record{
		"id": map[string]any{
			"object_id":    uuid.NewString(),
			"record_id":    uuid.NewString(),
			"workspace_id": uuid.NewString(),
		},
		"created_at": time.Now().UTC().Format(time.RFC3339),
		"values":     canonical,
	}
}

// canonicalize converts an upsert value into the query-response history
// shape the real API echoes back.
func canonicalize(field string, value any) []any {
	switch typed := value.(type) {
	case []any:
		return typed
	case []map[string]any:
		out := make([]any, 0, len(typed))
		for _, entry := range typed {
			out = append(out, entry)
		}
		return out
	case map[string]any:
		return []any{typed}
	case bool:
		return []any{map[string]any{"value": typed}}
	case string:
		switch field {
		case "product_tier":
			return []any{map[string]any{"option": map[string]any{"title": typed}}}
		case "status":
			return []any{map[string]any{"status": map[string]any{"title": typed}}}
		default:
			return []any{map[string]any{"value": typed}}
		}
	default:
		return []any{map[string]any{"value": typed}}
	}
}

// matchKey extracts the comparable value of a matching attribute from a
// canonicalized value history.
func matchKey(field string, canonical any) string {
	entries, _ := canonical.([]any)
	if len(entries) == 0 {
		return ""
	}
	entry, _ := entries[0].(map[string]any)
	if field == "email_addresses" {
		key, _ := entry["email_address"].(string)
		return key
	}
	key, _ := entry["value"].(string)
	return key
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 3 || parts[0] != "objects" || parts[2] != "records" {
		http.NotFound(w, r)
		return
	}
	object := parts[1]

	switch {
	case r.Method == http.MethodPost && len(parts) == 4 && parts[3] == "query":
		s.handleQuery(w, r, object)
	case r.Method == http.MethodPut && len(parts) == 3:
		s.handleAssert(w, r, object)
	case r.Method == http.MethodDelete && len(parts) == 4:
		s.handleDelete(w, object, parts[3])
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request, object string) {
	var body struct {
		Limit  int `json:"limit"`
		Offset int `json:"offset"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Limit <= 0 {
		body.Limit = 500
	}

	s.mu.Lock()
	records := s.records[object]
	start := body.Offset
	if start > len(records) {
		start = len(records)
	}
	end := start + body.Limit
	if end > len(records) {
		end = len(records)
	}
	page := make([]Record, end-start)
	copy(page, records[start:end])
	s.mu.Unlock()

	_ = json.NewEncoder(w).Encode(map[string]any{"data": page})
}

func (s *Server) handleAssert(w http.ResponseWriter, r *http.Request, object string) {
	attribute := r.URL.Query().Get("matching_attribute")
	if attribute == "" {
		http.Error(w, `{"message":"matching_attribute is required"}`, http.StatusBadRequest)
		return
	}
	var body struct {
		Data struct {
			Values map[string]any `json:"values"`
		} `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"message":"invalid body"}`, http.StatusBadRequest)
		return
	}

	canonical := map[string]any{}
	for field, value := range body.Data.Values {
		canonical[field] = canonicalize(field, value)
	}
	key := matchKey(attribute, canonical[attribute])

	s.mu.Lock()
	s.AssertCalls++
	var matched Record
	for _, record := range s.records[object] {
		values, _ := record["values"].(map[string]any)
		if key != "" && matchKey(attribute, values[attribute]) == key {
			matched = record
			break
		}
	}
	if matched != nil {
		matched["values"] = canonical
	} else {
		matched = newRecord(nil)
		matched["values"] = canonical
		s.records[object] = append(s.records[object], matched)
	}
	s.mu.Unlock()

	_ = json.NewEncoder(w).Encode(map[string]any{"data": matched})
}

func (s *Server) handleDelete(w http.ResponseWriter, object, recordID string) {
	s.mu.Lock()
	s.DeleteCalls++
	records := s.records[object]
	for i, record := range records {
		if RecordID(record).String() == recordID {
			s.records[object] = append(records[:i:i], records[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}
