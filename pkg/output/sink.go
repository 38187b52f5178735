// Package output turns a stream of already deduplicated vocabulary records
// into one finished artifact: an Anki package or a JSON array.
//
// Sinks accumulate records with Add and write everything at once with
// Finalize. Nothing reaches the destination before Finalize, so an aborted run
// leaves no partial output behind.
package output

import (
	"errors"
	"fmt"
	"io"

	"github.com/Sternrassler/duoload/pkg/vocab"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for sinks.
var (
	sinkFinalizeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duoload_sink_finalize_total",
		Help: "Total sink finalizations by format and result",
	}, []string{"format", "result"})
)

// Common errors returned by sinks.
var (
	// ErrUnsupportedDestination is returned when a sink cannot write to the
	// given destination, for example a package to a pipe.
	ErrUnsupportedDestination = errors.New("unsupported destination")

	// ErrAlreadyFinalized is returned by a second Finalize call.
	ErrAlreadyFinalized = errors.New("sink already finalized")
)

// Format names an output format.
type Format string

const (
	// FormatPackage is an Anki .apkg package.
	FormatPackage Format = "apkg"

	// FormatJSON is a pretty-printed JSON array.
	FormatJSON Format = "json"
)

// Sink accumulates records and writes them out once.
type Sink interface {
	// Add incorporates one record. Calling Add after Finalize panics.
	Add(rec vocab.Record) error

	// Finalize writes the complete output to dst.
	Finalize(dst io.Writer) error

	// Close releases temporary resources. Safe to call more than once.
	Close() error

	// Count returns the number of records added so far.
	Count() int

	// Format returns the sink's output format.
	Format() Format
}

// IOError is a filesystem or stream failure while producing output.
type IOError struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *IOError) Unwrap() error {
	return e.Err
}

// IsSeekable reports whether w supports random access. Pipes and terminals
// implement io.Seeker through *os.File but fail the probe.
func IsSeekable(w io.Writer) bool {
	seeker, ok := w.(io.Seeker)
	if !ok {
		return false
	}
	_, err := seeker.Seek(0, io.SeekCurrent)
	return err == nil
}

// UserMessage renders output errors for end users, without internal detail.
func UserMessage(err error) string {
	var ioErr *IOError
	switch {
	case errors.Is(err, ErrUnsupportedDestination):
		return "Anki packages can only be written to a file, not to a stream."
	case errors.As(err, &ioErr):
		if ioErr.Path != "" {
			return fmt.Sprintf("Could not write output file %s. Check the path and permissions.", ioErr.Path)
		}
		return "Could not write output. Check the destination and permissions."
	default:
		return ""
	}
}

func recordFinalize(format Format, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	sinkFinalizeTotal.WithLabelValues(string(format), result).Inc()
}
