package fhir

import (
	"fmt"
	"strings"
	"time"
)

// Default identifier system for the Brazilian CPF.
const DefaultCPFSystem = "http://www.saude.gov.br/fhir/r4/NamingSystem/cpf"

// Observation code used for the roster's free-text notes.
const (
	LOINCSystem         = "http://loinc.org"
	PatientSummaryCode  = "60591-5"
	PatientSummaryLabel = "Patient summary"
)

// Roster birth dates are day/month/four-digit year.
const (
	sourceDateLayout = "2/1/2006"
	fhirDateLayout   = "2006-01-02"
)

var genderVocabulary = map[string]string{
	"Masculino": GenderMale,
	"Feminino":  GenderFemale,
}

// NormalizeGender maps the roster's gender term to an AdministrativeGender
// code. The match is exact: anything else, including "masculino" or "", is
// GenderUnknown.
func NormalizeGender(raw string) string {
	if g, ok := genderVocabulary[raw]; ok {
		return g
	}
	return GenderUnknown
}

// DateFormatError reports a birth date that is not DD/MM/YYYY.
type DateFormatError struct {
	Value string
	Err   error
}

func (e *DateFormatError) Error() string {
	return fmt.Sprintf("invalid birth date %q: expected DD/MM/YYYY", e.Value)
}

func (e *DateFormatError) Unwrap() error {
	return e.Err
}

// NormalizeBirthDate converts DD/MM/YYYY to YYYY-MM-DD. Two-digit years,
// other separators and impossible dates fail with *DateFormatError.
func NormalizeBirthDate(raw string) (string, error) {
	t, err := time.Parse(sourceDateLayout, strings.TrimSpace(raw))
	if err != nil {
		return "", &DateFormatError{Value: raw, Err: err}
	}
	return t.Format(fhirDateLayout), nil
}

// PatientFields are the raw roster values a Patient is built from.
type PatientFields struct {
	Name      string
	CPF       string
	Gender    string
	BirthDate string
	Phone     string
	Country   string
}

// Transformer builds resources from roster values. The zero value uses
// DefaultCPFSystem.
type Transformer struct {
	CPFSystem string
}

// BuildPatient returns the Patient for f. The only failure is an
// unparsable birth date.
func (t Transformer) BuildPatient(f PatientFields) (Patient, error) {
	birthDate, err := NormalizeBirthDate(f.BirthDate)
	if err != nil {
		return Patient{}, err
	}

	system := t.CPFSystem
	if system == "" {
		system = DefaultCPFSystem
	}

	return Patient{
		ResourceType: TypePatient,
		Identifier:   []Identifier{{System: system, Value: f.CPF}},
		Name:         []HumanName{{Use: "official", Text: f.Name}},
		Gender:       NormalizeGender(f.Gender),
		BirthDate:    birthDate,
		Telecom:      []ContactPoint{{System: "phone", Value: f.Phone}},
		Address:      []Address{{Country: f.Country}},
	}, nil
}

// BuildObservation returns a final patient-summary Observation about
// patientID. Callers skip it when HasObservation(text) is false.
func (t Transformer) BuildObservation(patientID, text string) Observation {
	return Observation{
		ResourceType: TypeObservation,
		Status:       ObservationStatusFinal,
		Code: CodeableConcept{
			Coding: []Coding{{
				System:  LOINCSystem,
				Code:    PatientSummaryCode,
				Display: PatientSummaryLabel,
			}},
			Text: PatientSummaryLabel,
		},
		Subject:     &Reference{Reference: PatientReference(patientID)},
		ValueString: text,
	}
}

// HasObservation reports whether a notes cell carries anything to submit.
func HasObservation(text string) bool {
	return strings.TrimSpace(text) != ""
}

// PatientReference returns the relative reference "Patient/{id}".
func PatientReference(id string) string {
	return TypePatient + "/" + id
}
