// Package export writes block documents as JSON files and checks them
// against the document schema.
package export

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"rpy-converter/internal/parser"
)

//go:embed schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func loadSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	})
	return schema, schemaErr
}

// OutputPath maps a script under inputRoot to its JSON file under
// outputRoot, keeping the relative layout: in/a/b.rpy -> out/a/b.json.
func OutputPath(inputRoot, outputRoot, file string) (string, error) {
	rel, err := filepath.Rel(inputRoot, file)
	if err != nil {
		return "", fmt.Errorf("compute relative path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("file %s is outside %s", file, inputRoot)
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel)) + ".json"
	return filepath.Join(outputRoot, rel), nil
}

// Encode renders doc as a 4-space indented JSON array without HTML or
// non-ASCII escaping.
func Encode(doc parser.Document) ([]byte, error) {
	var sb strings.Builder
	encoder := json.NewEncoder(&sb)
	encoder.SetIndent("", "    ")
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode JSON: %w", err)
	}
	return []byte(sb.String()), nil
}

// WriteJSON writes doc to outputPath, creating parent directories.
func WriteJSON(outputPath string, doc parser.Document) error {
	data, err := Encode(doc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("write JSON file: %w", err)
	}

	log.Debug().Str("path", outputPath).Int("blocks", len(doc)).Msg("Wrote document")
	return nil
}

// ValidationError lists every schema violation of a document.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("document does not match schema: %s", strings.Join(e.Problems, "; "))
}

// Validate checks doc against the embedded block schema. A mismatch is
// reported as *ValidationError.
func Validate(doc parser.Document) error {
	data, err := doc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	return ValidateJSON(data)
}

// ValidateJSON checks an encoded document against the block schema.
func ValidateJSON(data []byte) error {
	s, err := loadSchema()
	if err != nil {
		return fmt.Errorf("load schema: %w", err)
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("validate document: %w", err)
	}
	if result.Valid() {
		return nil
	}

	verr := &ValidationError{}
	for _, desc := range result.Errors() {
		verr.Problems = append(verr.Problems, desc.String())
	}
	return verr
}
