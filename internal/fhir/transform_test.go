package fhir

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNormalizeGender(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Masculino", GenderMale},
		{"Feminino", GenderFemale},
		{"", GenderUnknown},
		{"Outro", GenderUnknown},
		{"masculino", GenderUnknown},
		{"FEMININO", GenderUnknown},
		{" Feminino", GenderUnknown},
		{"Male", GenderUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeGender(tt.input); got != tt.expected {
				t.Errorf("NormalizeGender(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeBirthDate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{name: "DD/MM/YYYY", input: "15/03/1990", expected: "1990-03-15"},
		{name: "first of year", input: "01/01/1985", expected: "1985-01-01"},
		{name: "single digit day and month", input: "5/3/1990", expected: "1990-03-05"},
		{name: "surrounding whitespace", input: " 15/03/1990 ", expected: "1990-03-15"},
		{name: "leap day", input: "29/02/2000", expected: "2000-02-29"},
		{name: "ISO input", input: "1990-03-15", wantErr: true},
		{name: "two digit year", input: "15/03/90", wantErr: true},
		{name: "dash separators", input: "15-03-1990", wantErr: true},
		{name: "no separators", input: "15031990", wantErr: true},
		{name: "non numeric", input: "aa/bb/cccc", wantErr: true},
		{name: "month out of range", input: "15/13/1990", wantErr: true},
		{name: "not a leap year", input: "29/02/2001", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeBirthDate(tt.input)
			if tt.wantErr {
				var dfe *DateFormatError
				if !errors.As(err, &dfe) {
					t.Fatalf("NormalizeBirthDate(%q) error = %v, want *DateFormatError", tt.input, err)
				}
				if dfe.Value != tt.input {
					t.Errorf("DateFormatError.Value = %q, want %q", dfe.Value, tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeBirthDate(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("NormalizeBirthDate(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestBuildPatient(t *testing.T) {
	tr := Transformer{}
	p, err := tr.BuildPatient(PatientFields{
		Name:      "Maria Silva",
		CPF:       "12345678900",
		Gender:    "Feminino",
		BirthDate: "01/01/1985",
		Phone:     "11999999999",
		Country:   "Brasil",
	})
	if err != nil {
		t.Fatalf("BuildPatient: %v", err)
	}

	if p.ResourceType != "Patient" {
		t.Errorf("ResourceType = %q", p.ResourceType)
	}
	if p.Gender != "female" || p.BirthDate != "1985-01-01" {
		t.Errorf("gender/birthDate = %q/%q", p.Gender, p.BirthDate)
	}
	if len(p.Identifier) != 1 || p.Identifier[0].System != DefaultCPFSystem || p.Identifier[0].Value != "12345678900" {
		t.Errorf("Identifier = %+v", p.Identifier)
	}
	if len(p.Name) != 1 || p.Name[0].Use != "official" || p.Name[0].Text != "Maria Silva" {
		t.Errorf("Name = %+v", p.Name)
	}
	if len(p.Telecom) != 1 || p.Telecom[0].System != "phone" || p.Telecom[0].Value != "11999999999" {
		t.Errorf("Telecom = %+v", p.Telecom)
	}
	if len(p.Address) != 1 || p.Address[0].Country != "Brasil" {
		t.Errorf("Address = %+v", p.Address)
	}
}

func TestBuildPatient_CustomSystem(t *testing.T) {
	tr := Transformer{CPFSystem: "urn:example:cpf"}
	p, err := tr.BuildPatient(PatientFields{CPF: "1", BirthDate: "01/01/2000"})
	if err != nil {
		t.Fatalf("BuildPatient: %v", err)
	}
	if p.Identifier[0].System != "urn:example:cpf" {
		t.Errorf("System = %q", p.Identifier[0].System)
	}
}

func TestBuildPatient_BadDate(t *testing.T) {
	_, err := Transformer{}.BuildPatient(PatientFields{BirthDate: "1985-01-01"})
	var dfe *DateFormatError
	if !errors.As(err, &dfe) {
		t.Fatalf("expected *DateFormatError, got %v", err)
	}
}

func TestBuildPatient_JSON(t *testing.T) {
	p, err := Transformer{}.BuildPatient(PatientFields{
		Name: "Maria Silva", CPF: "12345678900", Gender: "Feminino",
		BirthDate: "01/01/1985", Phone: "11999999999", Country: "Brasil",
	})
	if err != nil {
		t.Fatalf("BuildPatient: %v", err)
	}

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out := string(data)
	for _, want := range []string{
		`"resourceType":"Patient"`,
		`"gender":"female"`,
		`"birthDate":"1985-01-01"`,
		`"telecom":[{"system":"phone","value":"11999999999"}]`,
		`"address":[{"country":"Brasil"}]`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("patient JSON missing %s: %s", want, out)
		}
	}
	if strings.Contains(out, `"id"`) {
		t.Errorf("new patient should not carry an id: %s", out)
	}
}

func TestBuildObservation(t *testing.T) {
	o := Transformer{}.BuildObservation("abc123", "Paciente estável")

	if o.ResourceType != "Observation" || o.Status != "final" {
		t.Errorf("ResourceType/Status = %q/%q", o.ResourceType, o.Status)
	}
	if o.Subject == nil || o.Subject.Reference != "Patient/abc123" {
		t.Errorf("Subject = %+v", o.Subject)
	}
	if o.ValueString != "Paciente estável" {
		t.Errorf("ValueString = %q", o.ValueString)
	}
	if len(o.Code.Coding) != 1 {
		t.Fatalf("Coding = %+v", o.Code.Coding)
	}
	c := o.Code.Coding[0]
	if c.System != "http://loinc.org" || c.Code != "60591-5" || c.Display != "Patient summary" {
		t.Errorf("Coding = %+v", c)
	}
	if o.Code.Text != "Patient summary" {
		t.Errorf("Code.Text = %q", o.Code.Text)
	}
}

func TestHasObservation(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"Paciente estável", true},
		{"  x  ", true},
		{"", false},
		{"   ", false},
		{"\t\n", false},
	}

	for _, tt := range tests {
		if got := HasObservation(tt.input); got != tt.expected {
			t.Errorf("HasObservation(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}
