// Package registry holds the authoritative view of fleet membership and
// liveness. Membership comes from a JSON registry file loaded at startup;
// liveness is re-derived by probing each agent's /health endpoint.
package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/taskfleet/supervisor/domain"
)

// Agent is one registered worker service. Raw carries the original registry
// entry verbatim so fields the supervisor does not interpret (capabilities,
// metadata) survive persistence untouched.
type Agent struct {
	ID     string
	URL    string
	Status domain.AgentStatus
	Raw    json.RawMessage
}

// MarshalJSON renders the original registry entry with the live status
// overlaid, so opaque fields pass through to API consumers.
func (a Agent) MarshalJSON() ([]byte, error) {
	if len(a.Raw) == 0 {
		return json.Marshal(struct {
			ID     string             `json:"id"`
			URL    string             `json:"url"`
			Status domain.AgentStatus `json:"status"`
		}{a.ID, a.URL, a.Status})
	}
	return sjson.SetBytes(a.Raw, "status", string(a.Status))
}

// Store is the in-memory registry backed by a JSON file. The file is read
// once at Load; after that only PersistStatuses touches it, and only to
// overlay status values.
type Store struct {
	path string

	mu     sync.RWMutex
	agents []*Agent
	byID   map[string]*Agent
}

// NewStore creates a store backed by the registry file at path. Call Load
// before use.
func NewStore(path string) *Store {
	return &Store{path: path, byID: make(map[string]*Agent)}
}

// Load reads the registry file and replaces the in-memory view. Entries
// missing id or url are skipped with a diagnostic. A missing file yields an
// empty registry, not an error. Every loaded record starts with status
// "unknown": an on-disk status is a leftover from a previous process and is
// never treated as authoritative.
//
// Duplicate ids are all retained in list order; lookups resolve to the first
// match.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("Registry file not found at %s, starting empty", s.path)
			s.replace(nil)
			return nil
		}
		return fmt.Errorf("failed to read registry file: %w", err)
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse registry file: %w", err)
	}

	agents := make([]*Agent, 0, len(entries))
	for _, raw := range entries {
		id := gjson.GetBytes(raw, "id")
		url := gjson.GetBytes(raw, "url")
		if id.Str == "" || url.Str == "" {
			log.Printf("Skipping invalid registry entry: %s", raw)
			continue
		}
		agents = append(agents, &Agent{
			ID:     id.Str,
			URL:    url.Str,
			Status: domain.StatusUnknown,
			Raw:    raw,
		})
	}

	s.replace(agents)
	log.Printf("Loaded %d agents from %s", len(agents), s.path)
	return nil
}

func (s *Store) replace(agents []*Agent) {
	byID := make(map[string]*Agent, len(agents))
	for _, a := range agents {
		if _, ok := byID[a.ID]; !ok {
			byID[a.ID] = a
		}
	}

	s.mu.Lock()
	s.agents = agents
	s.byID = byID
	s.mu.Unlock()
}

// List returns a snapshot of all records in registry-file order.
func (s *Store) List() []Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Agent, len(s.agents))
	for i, a := range s.agents {
		out[i] = *a
	}
	return out
}

// Get returns the record for id, first match winning under duplicates.
func (s *Store) Get(id string) (Agent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[id]
	if !ok {
		return Agent{}, false
	}
	return *a, true
}

// SetStatus updates the status of every record with the given id and returns
// the previous status of the first match. The second return is false when the
// id is not registered.
func (s *Store) SetStatus(id string, status domain.AgentStatus) (domain.AgentStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	first, ok := s.byID[id]
	if !ok {
		return "", false
	}
	prev := first.Status
	for _, a := range s.agents {
		if a.ID == id {
			a.Status = status
		}
	}
	return prev, true
}

// PersistStatuses mirrors the in-memory statuses to the registry file. The
// file is re-read fresh so external edits to non-status fields made since
// load are not clobbered; only the status field of entries whose id matches a
// loaded record is rewritten, byte-for-byte preserving everything else and
// the entry order. The write replaces the file atomically via rename.
//
// Callers treat a returned error as a logged divergence of the disk mirror,
// never as a failure of the in-memory update that triggered it.
func (s *Store) PersistStatuses() error {
	statuses := s.statusSnapshot()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read registry file: %w", err)
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse registry file: %w", err)
	}

	for i, raw := range entries {
		id := gjson.GetBytes(raw, "id").Str
		st, ok := statuses[id]
		if !ok {
			continue
		}
		updated, err := sjson.SetBytes(raw, "status", string(st))
		if err != nil {
			return fmt.Errorf("failed to set status for %s: %w", id, err)
		}
		entries[i] = updated
	}

	// A plain MarshalIndent would HTML-escape &, < and > inside the raw
	// entries, rewriting urls with query parameters.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace registry file: %w", err)
	}
	return nil
}

// statusSnapshot maps id -> in-memory status, first match winning.
func (s *Store) statusSnapshot() map[string]domain.AgentStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := make(map[string]domain.AgentStatus, len(s.byID))
	for _, a := range s.agents {
		if _, ok := m[a.ID]; !ok {
			m[a.ID] = a.Status
		}
	}
	return m
}
