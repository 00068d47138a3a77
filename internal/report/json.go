// internal/report/json.go
package report

import (
	"context"
	"encoding/json"
	"io"
	"os"
)

// JSONWriter writes results as an indented JSON document
type JSONWriter struct {
	out  io.Writer
	file *os.File
}

// NewJSONWriter creates filename, or writes to stdout when it is empty.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if filename == "" {
		return &JSONWriter{out: os.Stdout}, nil
	}
	file, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	return &JSONWriter{out: file, file: file}, nil
}

// NewJSONStreamWriter writes to w.
func NewJSONStreamWriter(w io.Writer) *JSONWriter {
	return &JSONWriter{out: w}
}

type jsonReport struct {
	Summary Summary  `json:"summary"`
	Results []Result `json:"results"`
}

// Write writes data to JSON file
func (w *JSONWriter) Write(_ context.Context, results []Result) error {
	if results == nil {
		results = []Result{}
	}
	encoder := json.NewEncoder(w.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(jsonReport{Summary: Summarize(results), Results: results})
}

// Close closes the JSON writer
func (w *JSONWriter) Close() error {
	if w.file != nil {
		err := w.file.Close()
		w.file = nil
		return err
	}
	return nil
}
