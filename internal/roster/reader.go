package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"
)

// Options controls how a roster file is opened.
type Options struct {
	Charset   string  // decoded with this charset; empty means UTF-8
	Delimiter rune    // field separator; zero means ','
	Columns   Columns // header labels; zero value means DefaultColumns
}

// Record is one data row of the roster, with the seven consumed fields
// already picked out by label. Values holds the whole row keyed by label.
// Gender and Observation are kept as written; the other fields are trimmed.
type Record struct {
	Line int

	Name        string
	CPF         string
	Gender      string
	BirthDate   string
	Phone       string
	Country     string
	Observation string

	Values map[string]string
}

// RowError reports a data row that could not be parsed. The reader stays
// usable after a RowError; the next call to Next moves to the following row.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: malformed row: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Reader yields roster records lazily, one per Next call. It is single-pass.
type Reader struct {
	file   io.Closer
	csv    *csv.Reader
	header []string
	layout Layout
}

// Open opens path, decodes it with opts.Charset and reads the header.
// It fails with *MissingColumnError when a configured label is absent,
// before any data row is read.
func Open(path string, opts Options) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open roster: %w", err)
	}

	r, err := NewReader(f, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.file = f
	return r, nil
}

// NewReader reads a roster from src. Closing the returned Reader does not
// close src.
func NewReader(src io.Reader, opts Options) (*Reader, error) {
	if opts.Columns == (Columns{}) {
		opts.Columns = DefaultColumns()
	}

	decoded, err := NewDecodingReader(src, opts.Charset)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(decoded)
	if opts.Delimiter != 0 {
		cr.Comma = opts.Delimiter
	}

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty file: no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("invalid csv header: %w", err)
	}
	for i := range header {
		header[i] = CleanHeader(header[i])
	}

	layout, err := ResolveHeader(header, opts.Columns)
	if err != nil {
		return nil, err
	}

	// csv.Reader has set FieldsPerRecord from the header: shorter or
	// longer rows come back as ErrFieldCount.
	return &Reader{csv: cr, header: header, layout: layout}, nil
}

// Header returns the decoded header labels.
func (r *Reader) Header() []string {
	return append([]string(nil), r.header...)
}

// Next returns the next non-blank record, io.EOF after the last one, or a
// *RowError for a row that could not be parsed. Any other error means the
// underlying file could not be read and the reader is no longer usable.
func (r *Reader) Next() (Record, error) {
	for {
		row, err := r.csv.Read()
		if err == io.EOF {
			return Record{}, io.EOF
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return Record{}, &RowError{Line: pe.StartLine, Err: pe.Err}
			}
			return Record{}, fmt.Errorf("read roster: %w", err)
		}

		if isBlank(row) {
			continue
		}

		line, _ := r.csv.FieldPos(0)
		return r.record(line, row), nil
	}
}

// Rows exposes Next as a range-over-func sequence. Iteration stops after
// the first error that is not a *RowError.
func (r *Reader) Rows() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for {
			rec, err := r.Next()
			if err == io.EOF {
				return
			}
			if !yield(rec, err) {
				return
			}
			var rowErr *RowError
			if err != nil && !errors.As(err, &rowErr) {
				return
			}
		}
	}
}

// Close releases the file opened by Open.
func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

func (r *Reader) record(line int, row []string) Record {
	values := make(map[string]string, len(row))
	for i, label := range r.header {
		if _, dup := values[label]; !dup && i < len(row) {
			values[label] = row[i]
		}
	}

	get := func(f Field) string { return row[r.layout[f]] }

	return Record{
		Line:        line,
		Name:        strings.TrimSpace(get(FieldName)),
		CPF:         strings.TrimSpace(get(FieldCPF)),
		Gender:      get(FieldGender),
		BirthDate:   strings.TrimSpace(get(FieldBirthDate)),
		Phone:       strings.TrimSpace(get(FieldPhone)),
		Country:     strings.TrimSpace(get(FieldCountry)),
		Observation: get(FieldObservation),
		Values:      values,
	}
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
