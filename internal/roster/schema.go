package roster

import (
	"fmt"
	"strings"
)

// Field identifies one of the roster columns the importer consumes.
type Field int

const (
	FieldName Field = iota
	FieldCPF
	FieldGender
	FieldBirthDate
	FieldPhone
	FieldCountry
	FieldObservation

	numFields
)

var fieldNames = [numFields]string{
	FieldName:        "name",
	FieldCPF:         "cpf",
	FieldGender:      "gender",
	FieldBirthDate:   "birth_date",
	FieldPhone:       "phone",
	FieldCountry:     "country",
	FieldObservation: "observation",
}

func (f Field) String() string {
	if f < 0 || f >= numFields {
		return fmt.Sprintf("Field(%d)", int(f))
	}
	return fieldNames[f]
}

// Columns holds the header label of every roster field.
type Columns struct {
	Name        string
	CPF         string
	Gender      string
	BirthDate   string
	Phone       string
	Country     string
	Observation string
}

// DefaultColumns returns the labels of the clinic's Portuguese export.
func DefaultColumns() Columns {
	return Columns{
		Name:        "Nome",
		CPF:         "CPF",
		Gender:      "Gênero",
		BirthDate:   "Data de Nascimento",
		Phone:       "Telefone",
		Country:     "País de Nascimento",
		Observation: "Observação",
	}
}

// Label returns the configured header label for f.
func (c Columns) Label(f Field) string {
	switch f {
	case FieldName:
		return c.Name
	case FieldCPF:
		return c.CPF
	case FieldGender:
		return c.Gender
	case FieldBirthDate:
		return c.BirthDate
	case FieldPhone:
		return c.Phone
	case FieldCountry:
		return c.Country
	case FieldObservation:
		return c.Observation
	}
	return ""
}

// HeaderIndex maps header labels to their position in a row.
type HeaderIndex map[string]int

// MakeHeaderIndex builds a HeaderIndex from a header row.
// Labels are cleaned but not case-folded: "Gênero" and "genero" differ.
// When a label repeats, the first occurrence wins.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := CleanHeader(h)
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}

// Layout is the resolved position of every Field in a row.
type Layout [numFields]int

// MissingColumnError reports header labels that the roster must contain.
type MissingColumnError struct {
	Labels []string
	Header []string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("missing required column(s): %s (header: %s)",
		strings.Join(quoteAll(e.Labels), ", "), strings.Join(quoteAll(e.Header), ", "))
}

// ResolveHeader looks up every configured label in header, once, so that
// rows are read by position afterwards. All missing labels are reported
// together in a *MissingColumnError.
func ResolveHeader(header []string, cols Columns) (Layout, error) {
	idx := MakeHeaderIndex(header)

	var layout Layout
	var missing []string
	for f := Field(0); f < numFields; f++ {
		label := strings.TrimSpace(cols.Label(f))
		pos, ok := idx[label]
		if !ok {
			missing = append(missing, label)
			continue
		}
		layout[f] = pos
	}

	if len(missing) > 0 {
		cleaned := make([]string, len(header))
		for i, h := range header {
			cleaned[i] = CleanHeader(h)
		}
		return Layout{}, &MissingColumnError{Labels: missing, Header: cleaned}
	}
	return layout, nil
}

// CleanHeader strips whitespace, a stray BOM and surrounding quotes from a
// header label.
func CleanHeader(s string) string {
	s = strings.TrimPrefix(s, "\uFEFF")
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}
