package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/duoload/pkg/vocab"
	"github.com/rs/zerolog/log"
)

// Config holds walker configuration
type Config struct {
	// PageLimit caps the number of fetch calls. Zero means no limit.
	PageLimit int
}

// DefaultConfig returns an unlimited walk
func DefaultConfig() Config {
	return Config{}
}

// PageFetcher is the interface the remote client must implement for single-page fetching
type PageFetcher interface {
	// FetchPage fetches a single 1-based page
	FetchPage(ctx context.Context, page int) (*vocab.Page, error)
}

// Visitor receives the walk's events. Nil callbacks are skipped.
type Visitor struct {
	// BeforeFetch is called right before page is requested
	BeforeFetch func(page int)

	// Page is called with every fetched page, in order
	Page func(ctx context.Context, page *vocab.Page) error
}

// Result summarizes a finished walk
type Result struct {
	// Pages is the number of pages fetched and visited
	Pages int

	// LimitReached is true when the walk stopped at PageLimit while more pages were available
	LimitReached bool
}

// Walker fetches pages sequentially
type Walker struct {
	fetcher PageFetcher
	config  Config
}

// NewWalker creates a new walker
func NewWalker(fetcher PageFetcher, config Config) *Walker {
	if config.PageLimit < 0 {
		config.PageLimit = 0
	}

	return &Walker{
		fetcher: fetcher,
		config:  config,
	}
}

// ShouldContinue reports whether another page should be requested after
// fetched pages, the last of which is last.
func ShouldContinue(last *vocab.Page, fetched, limit int) bool {
	if last == nil || !last.HasNext {
		return false
	}
	return limit <= 0 || fetched < limit
}

// Walk fetches page 1, 2, ... and hands each to the visitor until the remote
// runs out of pages or the page limit is reached.
func (w *Walker) Walk(ctx context.Context, visitor Visitor) (Result, error) {
	start := time.Now()
	var result Result

	for pageNum := 1; ; pageNum++ {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("walk cancelled before page %d: %w", pageNum, err)
		}

		if visitor.BeforeFetch != nil {
			visitor.BeforeFetch(pageNum)
		}

		page, err := w.fetcher.FetchPage(ctx, pageNum)
		if err != nil {
			log.Debug().
				Err(err).
				Int("page", pageNum).
				Int("fetched_pages", result.Pages).
				Msg("Walk stopped by fetch error")
			return result, err
		}
		result.Pages++

		if visitor.Page != nil {
			if err := visitor.Page(ctx, page); err != nil {
				return result, err
			}
		}

		if !ShouldContinue(page, result.Pages, w.config.PageLimit) {
			result.LimitReached = page.HasNext
			break
		}
	}

	log.Debug().
		Int("pages", result.Pages).
		Bool("limit_reached", result.LimitReached).
		Dur("duration", time.Since(start)).
		Msg("Walk complete")

	return result, nil
}
