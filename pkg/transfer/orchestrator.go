// Package transfer drives a vocabulary transfer: pages are fetched in order,
// each record passes the duplicate filter, admitted records go to the sink,
// and the sink is finalized into its target once the source is exhausted or
// the page limit is reached.
//
// A run is all or nothing. Any fetch or sink failure leaves the target
// untouched.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/duoload/pkg/logging"
	"github.com/Sternrassler/duoload/pkg/output"
	"github.com/Sternrassler/duoload/pkg/pagination"
	"github.com/Sternrassler/duoload/pkg/vocab"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for transfers.
var (
	pagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duoload_pages_total",
		Help: "Total pages processed",
	})

	recordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duoload_records_total",
		Help: "Total records by outcome",
	}, []string{"outcome"})
)

// ErrAlreadyRun is returned when Run is called a second time.
var ErrAlreadyRun = errors.New("transfer already run")

// State is a step of the transfer state machine.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateFiltering
	StateSinking
	StateFinalizing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateFiltering:
		return "filtering"
	case StateSinking:
		return "sinking"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Progress is reported once per processed page.
type Progress struct {
	Page       int
	TotalPages int
	HasNext    bool
	Fetched    int
	Admitted   int
	Duplicates int
}

// ProgressFunc observes per-page progress.
type ProgressFunc func(Progress)

// Config holds orchestrator configuration.
type Config struct {
	// PageLimit caps the number of pages fetched. Zero means no limit.
	PageLimit int

	// Progress is called after every page. Optional.
	Progress ProgressFunc

	// Now overrides the clock used for elapsed time.
	Now func() time.Time
}

// Orchestrator runs one transfer from a fetcher into a sink. The sink is
// owned by the orchestrator for the duration of Run; the caller closes it
// afterwards.
type Orchestrator struct {
	fetcher pagination.PageFetcher
	sink    output.Sink
	config  Config
	logger  zerolog.Logger

	mu      sync.Mutex
	state   State
	session *Session
}

// New creates an orchestrator in the idle state.
func New(fetcher pagination.PageFetcher, sink output.Sink, cfg Config) *Orchestrator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.PageLimit < 0 {
		cfg.PageLimit = 0
	}

	return &Orchestrator{
		fetcher: fetcher,
		sink:    sink,
		config:  cfg,
		logger:  logging.NewLogger("transfer"),
		state:   StateIdle,
	}
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	prev := o.state
	o.state = s
	o.mu.Unlock()

	if prev != s {
		o.logger.Trace().Stringer("from", prev).Stringer("to", s).Msg("State transition")
	}
}

// Run transfers every page into the sink and writes the result to target.
// The target is only opened after the last page was processed successfully.
func (o *Orchestrator) Run(ctx context.Context, target output.Target) (Summary, error) {
	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return Summary{}, ErrAlreadyRun
	}
	o.session = NewSession(o.config.PageLimit, o.config.Now())
	o.mu.Unlock()

	session := o.session

	o.logger.Info().
		Str("format", string(o.sink.Format())).
		Str("target", target.String()).
		Int("page_limit", session.PageLimit).
		Msg("Transfer started")

	walker := pagination.NewWalker(o.fetcher, pagination.Config{PageLimit: session.PageLimit})
	walk, err := walker.Walk(ctx, pagination.Visitor{
		BeforeFetch: func(int) { o.setState(StateFetching) },
		Page:        o.processPage,
	})
	if err != nil {
		return o.fail(session, err)
	}

	o.setState(StateFinalizing)
	if err := o.finalize(target); err != nil {
		return o.fail(session, err)
	}

	summary := session.Summary(o.config.Now())
	summary.LimitReached = walk.LimitReached
	o.setState(StateDone)

	o.logger.Info().
		Int("pages", summary.Pages).
		Int("fetched", summary.Fetched).
		Int("admitted", summary.Admitted).
		Int("duplicates", summary.DuplicatesSkipped).
		Bool("limit_reached", summary.LimitReached).
		Dur("elapsed", summary.Elapsed).
		Msg("Transfer complete")

	return summary, nil
}

// processPage filters one page and forwards the admitted records in order.
func (o *Orchestrator) processPage(ctx context.Context, page *vocab.Page) error {
	session := o.session

	o.setState(StateFiltering)
	admitted := make([]vocab.Record, 0, page.Len())
	for _, rec := range page.Records {
		if session.Observe(rec) {
			admitted = append(admitted, rec)
			continue
		}
		recordsTotal.WithLabelValues("duplicate").Inc()
		o.logger.Warn().
			Str("word", rec.Word).
			Int("page", page.CurrentPage).
			Msg("Skipping duplicate record")
	}

	o.setState(StateSinking)
	for _, rec := range admitted {
		if err := o.sink.Add(rec); err != nil {
			return fmt.Errorf("add record %q: %w", rec.Word, err)
		}
		recordsTotal.WithLabelValues("admitted").Inc()
	}

	session.CompletePage()
	pagesTotal.Inc()

	o.logger.Debug().
		Int("page", page.CurrentPage).
		Int("records", page.Len()).
		Int("admitted", len(admitted)).
		Bool("has_next", page.HasNext).
		Msg("Page processed")

	if o.config.Progress != nil {
		o.config.Progress(Progress{
			Page:       page.CurrentPage,
			TotalPages: page.TotalPages,
			HasNext:    page.HasNext,
			Fetched:    session.Fetched(),
			Admitted:   session.Admitted(),
			Duplicates: session.Duplicates(),
		})
	}
	return nil
}

// finalize writes the sink into target and commits it, or aborts the target
// on any failure.
func (o *Orchestrator) finalize(target output.Target) error {
	w, err := target.Open()
	if err != nil {
		return err
	}

	if err := o.sink.Finalize(w); err != nil {
		if abortErr := target.Abort(); abortErr != nil {
			o.logger.Warn().Err(abortErr).Str("target", target.String()).Msg("Failed to discard output")
		}
		return err
	}

	if err := target.Commit(); err != nil {
		target.Abort()
		return err
	}
	return nil
}

func (o *Orchestrator) fail(session *Session, err error) (Summary, error) {
	o.setState(StateFailed)

	summary := session.Summary(o.config.Now())
	o.logger.Error().
		Err(err).
		Int("pages", summary.Pages).
		Int("fetched", summary.Fetched).
		Msg("Transfer failed")

	return summary, err
}
