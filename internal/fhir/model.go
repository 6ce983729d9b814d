// Package fhir holds the FHIR R4 resources the importer produces, the
// transformation from roster records, and the HTTP client that creates them.
package fhir

import "encoding/json"

// Resource type names.
const (
	TypePatient          = "Patient"
	TypeObservation      = "Observation"
	TypeOperationOutcome = "OperationOutcome"
	TypeBundle           = "Bundle"
)

// AdministrativeGender codes.
const (
	GenderMale    = "male"
	GenderFemale  = "female"
	GenderOther   = "other"
	GenderUnknown = "unknown"
)

// ObservationStatusFinal is the only status the importer emits.
const ObservationStatusFinal = "final"

// ContentType is the media type sent and accepted by the client.
const ContentType = "application/fhir+json"

type Identifier struct {
	System string `json:"system,omitempty"`
	Value  string `json:"value,omitempty"`
}

type HumanName struct {
	Use    string   `json:"use,omitempty"`
	Text   string   `json:"text,omitempty"`
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
}

type ContactPoint struct {
	System string `json:"system,omitempty"`
	Value  string `json:"value,omitempty"`
	Use    string `json:"use,omitempty"`
}

type Address struct {
	Text    string `json:"text,omitempty"`
	City    string `json:"city,omitempty"`
	Country string `json:"country,omitempty"`
}

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

type Reference struct {
	Reference string `json:"reference,omitempty"`
	Display   string `json:"display,omitempty"`
}

type Meta struct {
	VersionID   string `json:"versionId,omitempty"`
	LastUpdated string `json:"lastUpdated,omitempty"`
}

type Patient struct {
	ResourceType string         `json:"resourceType"`
	ID           string         `json:"id,omitempty"`
	Meta         *Meta          `json:"meta,omitempty"`
	Identifier   []Identifier   `json:"identifier,omitempty"`
	Name         []HumanName    `json:"name,omitempty"`
	Gender       string         `json:"gender,omitempty"`
	BirthDate    string         `json:"birthDate,omitempty"`
	Telecom      []ContactPoint `json:"telecom,omitempty"`
	Address      []Address      `json:"address,omitempty"`
}

type Observation struct {
	ResourceType string          `json:"resourceType"`
	ID           string          `json:"id,omitempty"`
	Meta         *Meta           `json:"meta,omitempty"`
	Status       string          `json:"status"`
	Code         CodeableConcept `json:"code"`
	Subject      *Reference      `json:"subject,omitempty"`
	ValueString  string          `json:"valueString,omitempty"`
}

// OperationOutcome is what FHIR servers return to describe a failure.
type OperationOutcome struct {
	ResourceType string                  `json:"resourceType"`
	Issue        []OperationOutcomeIssue `json:"issue"`
}

type OperationOutcomeIssue struct {
	Severity    string `json:"severity"`
	Code        string `json:"code"`
	Diagnostics string `json:"diagnostics,omitempty"`
}

// NewOperationOutcome returns a single-issue error outcome.
func NewOperationOutcome(code, diagnostics string) OperationOutcome {
	return OperationOutcome{
		ResourceType: TypeOperationOutcome,
		Issue: []OperationOutcomeIssue{{
			Severity:    "error",
			Code:        code,
			Diagnostics: diagnostics,
		}},
	}
}

// Bundle is a searchset of raw resources.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type"`
	Total        int           `json:"total"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource"`
}

// ResourceHeader is the part of any resource needed to route and identify it.
type ResourceHeader struct {
	ResourceType string     `json:"resourceType"`
	ID           string     `json:"id,omitempty"`
	Subject      *Reference `json:"subject,omitempty"`
}
