package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/Sternrassler/duoload/pkg/vocab"
)

// JSONSink renders records as a pretty-printed JSON array. Add only encodes
// into memory; Finalize streams the array, so any writer works.
type JSONSink struct {
	elements  [][]byte
	finalized bool
}

// NewJSONSink creates an empty JSON sink.
func NewJSONSink() *JSONSink {
	return &JSONSink{}
}

// Add implements Sink.
func (s *JSONSink) Add(rec vocab.Record) error {
	if s.finalized {
		panic("output: Add called on finalized JSON sink")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %q: %w", rec.Word, err)
	}
	s.elements = append(s.elements, data)
	return nil
}

// Finalize implements Sink. The output matches json.MarshalIndent with a
// two-space indent, followed by a newline.
func (s *JSONSink) Finalize(dst io.Writer) (err error) {
	if s.finalized {
		return ErrAlreadyFinalized
	}
	s.finalized = true
	defer func() { recordFinalize(FormatJSON, err) }()

	w := bufio.NewWriter(dst)
	if len(s.elements) == 0 {
		if _, err := w.WriteString("[]\n"); err != nil {
			return &IOError{Op: "write json", Err: err}
		}
		return s.flush(w)
	}

	if _, err := w.WriteString("[\n"); err != nil {
		return &IOError{Op: "write json", Err: err}
	}

	var indented bytes.Buffer
	for i, element := range s.elements {
		indented.Reset()
		if err := json.Indent(&indented, element, "  ", "  "); err != nil {
			return fmt.Errorf("indent record %d: %w", i, err)
		}

		sep := "\n"
		if i < len(s.elements)-1 {
			sep = ",\n"
		}
		if _, err := w.WriteString("  "); err != nil {
			return &IOError{Op: "write json", Err: err}
		}
		if _, err := w.Write(indented.Bytes()); err != nil {
			return &IOError{Op: "write json", Err: err}
		}
		if _, err := w.WriteString(sep); err != nil {
			return &IOError{Op: "write json", Err: err}
		}
	}

	if _, err := w.WriteString("]\n"); err != nil {
		return &IOError{Op: "write json", Err: err}
	}
	return s.flush(w)
}

func (s *JSONSink) flush(w *bufio.Writer) error {
	if err := w.Flush(); err != nil {
		return &IOError{Op: "write json", Err: err}
	}
	return nil
}

// Close implements Sink.
func (s *JSONSink) Close() error {
	s.elements = nil
	return nil
}

// Count implements Sink.
func (s *JSONSink) Count() int {
	return len(s.elements)
}

// Format implements Sink.
func (s *JSONSink) Format() Format {
	return FormatJSON
}
