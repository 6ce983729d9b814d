package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/fhirload/internal/fhir"
	"github.com/JonMunkholm/fhirload/internal/logging"
)

// MaxResourceSize is the largest request body the sandbox accepts (1MB).
const MaxResourceSize = 1 << 20

// supportedTypes are the resource types the sandbox can store.
var supportedTypes = map[string]bool{
	fhir.TypePatient:     true,
	fhir.TypeObservation: true,
}

// handleCreate stores a new resource: POST /fhir/{type}.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	resourceType := chi.URLParam(r, "type")
	if !supportedTypes[resourceType] {
		respondOutcome(w, r, http.StatusNotFound, issueNotSupported,
			fmt.Errorf("resource type %q is not supported", resourceType))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxResourceSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondOutcome(w, r, http.StatusRequestEntityTooLarge, issueTooLong, err)
			return
		}
		respondOutcome(w, r, http.StatusBadRequest, issueInvalid, fmt.Errorf("read body: %w", err))
		return
	}

	stored, id, err := s.store.Create(resourceType, body)
	switch {
	case errors.Is(err, ErrUnknownSubject):
		respondOutcome(w, r, http.StatusUnprocessableEntity, issueProcessing, err)
		return
	case err != nil:
		respondOutcome(w, r, http.StatusBadRequest, issueInvalid, err)
		return
	}

	logging.FromContext(r.Context()).Info("resource created",
		"type", resourceType,
		"id", id,
	)

	w.Header().Set("Location", fmt.Sprintf("%s/%s/%s/_history/1", FHIRRoot, resourceType, id))
	w.Header().Set("ETag", `W/"1"`)
	writeRaw(w, http.StatusCreated, stored)
}

// handleRead returns one resource: GET /fhir/{type}/{id}.
func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	resourceType := chi.URLParam(r, "type")
	id := chi.URLParam(r, "id")
	if !supportedTypes[resourceType] {
		respondOutcome(w, r, http.StatusNotFound, issueNotSupported,
			fmt.Errorf("resource type %q is not supported", resourceType))
		return
	}

	res, ok := s.store.Get(resourceType, id)
	if !ok {
		respondOutcome(w, r, http.StatusNotFound, issueNotFound,
			fmt.Errorf("%s/%s not found", resourceType, id))
		return
	}
	writeRaw(w, http.StatusOK, res)
}

// handleSearch lists every resource of a type: GET /fhir/{type}.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	resourceType := chi.URLParam(r, "type")
	if !supportedTypes[resourceType] {
		respondOutcome(w, r, http.StatusNotFound, issueNotSupported,
			fmt.Errorf("resource type %q is not supported", resourceType))
		return
	}

	resources := s.store.List(resourceType)
	bundle := fhir.Bundle{
		ResourceType: fhir.TypeBundle,
		Type:         "searchset",
		Total:        len(resources),
		Entry:        make([]fhir.BundleEntry, 0, len(resources)),
	}
	for _, res := range resources {
		bundle.Entry = append(bundle.Entry, fhir.BundleEntry{Resource: res})
	}
	writeResource(w, http.StatusOK, bundle)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", fhir.ContentType)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
