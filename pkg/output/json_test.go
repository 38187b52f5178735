package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/Sternrassler/duoload/pkg/vocab"
)

func TestJSONSink_MatchesMarshalIndent(t *testing.T) {
	records := testRecords()
	records = append(records, vocab.NewRecord("<b>bold</b> & co", "negrita", "", vocab.StatusNew))

	sink := NewJSONSink()
	for _, rec := range records {
		if err := sink.Add(rec); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}

	var buf bytes.Buffer
	if err := sink.Finalize(&buf); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	want, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		t.Fatalf("MarshalIndent() error = %v", err)
	}
	want = append(want, '\n')

	if buf.String() != string(want) {
		t.Errorf("output mismatch\ngot:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestJSONSink_Shape(t *testing.T) {
	sink := NewJSONSink()
	sink.Add(vocab.NewRecord("hello", "hola", "Hello, world!", vocab.StatusKnown))
	sink.Add(vocab.NewRecord("world", "mundo", "", vocab.StatusNew))

	var buf bytes.Buffer
	if err := sink.Finalize(&buf); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	var decoded []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not a JSON array: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("len = %d, want 2", len(decoded))
	}

	first := decoded[0]
	if first["word"] != "hello" || first["translation"] != "hola" || first["example"] != "Hello, world!" || first["status"] != "known" {
		t.Errorf("first = %v", first)
	}

	second := decoded[1]
	example, present := second["example"]
	if !present || example != nil {
		t.Errorf("second example = %v (present %v), want explicit null", example, present)
	}
	if second["status"] != "new" {
		t.Errorf("second status = %v, want new", second["status"])
	}
}

func TestJSONSink_Empty(t *testing.T) {
	sink := NewJSONSink()

	var buf bytes.Buffer
	if err := sink.Finalize(&buf); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if buf.String() != "[]\n" {
		t.Errorf("empty output = %q, want []\\n", buf.String())
	}
}

func TestJSONSink_Pipe(t *testing.T) {
	sink := NewJSONSink()
	for _, rec := range testRecords() {
		sink.Add(rec)
	}

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe() error = %v", err)
	}
	defer r.Close()

	done := make(chan []byte)
	go func() {
		data, _ := io.ReadAll(r)
		done <- data
	}()

	if err := sink.Finalize(w); err != nil {
		t.Fatalf("Finalize(pipe) error = %v", err)
	}
	w.Close()

	var decoded []vocab.Record
	if err := json.Unmarshal(<-done, &decoded); err != nil {
		t.Fatalf("decode piped output: %v", err)
	}
	if len(decoded) != 3 || decoded[1].Word != "goodbye" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestJSONSink_Lifecycle(t *testing.T) {
	sink := NewJSONSink()
	sink.Add(testRecords()[0])

	if sink.Count() != 1 {
		t.Errorf("Count() = %d, want 1", sink.Count())
	}
	if sink.Format() != FormatJSON {
		t.Errorf("Format() = %q, want json", sink.Format())
	}

	var buf bytes.Buffer
	if err := sink.Finalize(&buf); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if err := sink.Finalize(&buf); !errors.Is(err, ErrAlreadyFinalized) {
		t.Errorf("second Finalize() = %v, want ErrAlreadyFinalized", err)
	}

	defer func() {
		if r := recover(); r == nil {
			t.Error("Add after Finalize should panic")
		}
	}()
	sink.Add(testRecords()[1])
}

// failingWriter fails every write.
type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestJSONSink_WriteError(t *testing.T) {
	sink := NewJSONSink()
	sink.Add(testRecords()[0])

	err := sink.Finalize(failingWriter{})

	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("Finalize() = %v, want *IOError", err)
	}
}

// countingWriter fails every write and counts the attempts.
type countingWriter struct {
	calls int
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.calls++
	return 0, errors.New("disk full")
}

func TestJSONSink_WriteErrorStopsOnLargeRecord(t *testing.T) {
	sink := NewJSONSink()
	long := bytes.Repeat([]byte("x"), 8192)
	sink.Add(vocab.NewRecord("first", string(long), "", vocab.StatusNew))
	sink.Add(vocab.NewRecord("second", string(long), "", vocab.StatusNew))

	w := &countingWriter{}
	err := sink.Finalize(w)

	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("Finalize() = %v, want *IOError", err)
	}
	if w.calls != 1 {
		t.Errorf("underlying writes = %d, want Finalize to stop after the first failure", w.calls)
	}
}
