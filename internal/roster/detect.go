// Package roster reads the patient roster export: it guesses the file's
// character encoding, decodes it, resolves the expected columns against the
// header once, and yields one Record per data row.
package roster

import (
	"fmt"
	"os"

	"github.com/saintfish/chardet"
)

// DefaultCharset is returned when detection has nothing to go on.
const DefaultCharset = "UTF-8"

// Detection is the outcome of sniffing a file's bytes.
// Confidence is the detector's score from 0 to 100; a guess with a low score
// may decode to garbled text and nothing downstream will notice.
type Detection struct {
	Charset    string
	Language   string
	Confidence int

	// Forced is set when the charset came from configuration, not detection.
	Forced bool

	// Unsupported holds the detector's guess when no decoder exists for it.
	// Charset is then DefaultCharset and Confidence is zero.
	Unsupported string
}

// ForcedDetection returns a Detection for a charset chosen by the operator.
func ForcedDetection(charset string) Detection {
	return Detection{Charset: charset, Confidence: 100, Forced: true}
}

// DetectEncoding returns a best-guess charset for data. It never fails:
// empty input, a detector error or a guess with no decoder yields
// DefaultCharset with zero confidence, so the file still opens.
func DetectEncoding(data []byte) Detection {
	if len(data) == 0 {
		return Detection{Charset: DefaultCharset}
	}

	res, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil || res == nil || res.Charset == "" {
		return Detection{Charset: DefaultCharset}
	}

	return detection(res.Charset, res.Language, res.Confidence)
}

func detection(charset, language string, confidence int) Detection {
	if !SupportedEncoding(charset) {
		return Detection{Charset: DefaultCharset, Language: language, Unsupported: charset}
	}
	return Detection{
		Charset:    charset,
		Language:   language,
		Confidence: confidence,
	}
}

// DetectFile reads the whole file at path and sniffs its encoding.
// This is the first of the two visits the importer makes to the file.
func DetectFile(path string) (Detection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Detection{}, fmt.Errorf("read file for encoding detection: %w", err)
	}
	return DetectEncoding(data), nil
}
