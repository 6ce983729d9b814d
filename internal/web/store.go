package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/fhirload/internal/fhir"
)

var (
	// ErrInvalidResource is returned for a body that is not a JSON object.
	ErrInvalidResource = errors.New("invalid resource")
	// ErrTypeMismatch is returned when resourceType disagrees with the endpoint.
	ErrTypeMismatch = errors.New("resourceType does not match endpoint")
	// ErrUnknownSubject is returned when an Observation references a Patient
	// the store does not hold.
	ErrUnknownSubject = errors.New("subject references an unknown Patient")
)

// Store keeps created resources in memory, per type, in creation order.
// It is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	resources map[string]map[string]json.RawMessage
	order     map[string][]string
	now       func() time.Time
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		resources: make(map[string]map[string]json.RawMessage),
		order:     make(map[string][]string),
		now:       time.Now,
	}
}

// Create stores body as a new resourceType and returns it with the assigned
// id and meta.
func (s *Store) Create(resourceType string, body []byte) (json.RawMessage, string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil || doc == nil {
		return nil, "", fmt.Errorf("%w: body must be a JSON object", ErrInvalidResource)
	}
	if got, _ := doc["resourceType"].(string); got != resourceType {
		return nil, "", fmt.Errorf("%w: got %q, want %q", ErrTypeMismatch, got, resourceType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if resourceType == fhir.TypeObservation {
		if err := s.checkSubject(doc); err != nil {
			return nil, "", err
		}
	}

	id := uuid.New().String()
	doc["id"] = id
	doc["meta"] = fhir.Meta{
		VersionID:   "1",
		LastUpdated: s.now().UTC().Format(time.RFC3339),
	}

	stored, err := json.Marshal(doc)
	if err != nil {
		return nil, "", fmt.Errorf("encode %s: %w", resourceType, err)
	}

	if s.resources[resourceType] == nil {
		s.resources[resourceType] = make(map[string]json.RawMessage)
	}
	s.resources[resourceType][id] = stored
	s.order[resourceType] = append(s.order[resourceType], id)

	return stored, id, nil
}

// checkSubject requires subject.reference, when present, to name a stored
// Patient. Callers hold s.mu.
func (s *Store) checkSubject(doc map[string]any) error {
	subject, ok := doc["subject"].(map[string]any)
	if !ok {
		return nil
	}
	ref, _ := subject["reference"].(string)
	id, found := strings.CutPrefix(ref, fhir.TypePatient+"/")
	if !found {
		return fmt.Errorf("%w: %q", ErrUnknownSubject, ref)
	}
	if _, exists := s.resources[fhir.TypePatient][id]; !exists {
		return fmt.Errorf("%w: %q", ErrUnknownSubject, ref)
	}
	return nil
}

// Get returns a stored resource.
func (s *Store) Get(resourceType, id string) (json.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resources[resourceType][id]
	return r, ok
}

// List returns every stored resource of a type in creation order.
func (s *Store) List(resourceType string) []json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.order[resourceType]
	out := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.resources[resourceType][id])
	}
	return out
}

// Count returns how many resources of a type are stored.
func (s *Store) Count(resourceType string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order[resourceType])
}
