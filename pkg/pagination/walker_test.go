package pagination

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Sternrassler/duoload/pkg/vocab"
)

// scriptedFetcher serves a fixed number of pages and counts calls.
type scriptedFetcher struct {
	pages  int
	failAt int
	err    error
	calls  []int
}

func (f *scriptedFetcher) FetchPage(ctx context.Context, page int) (*vocab.Page, error) {
	f.calls = append(f.calls, page)
	if f.failAt == page {
		return nil, f.err
	}
	return &vocab.Page{
		Records: []vocab.Record{
			vocab.NewRecord(fmt.Sprintf("word-%d", page), "translation", "", vocab.StatusNew),
		},
		CurrentPage: page,
		HasNext:     page < f.pages,
	}, nil
}

func TestShouldContinue(t *testing.T) {
	more := &vocab.Page{HasNext: true}
	last := &vocab.Page{HasNext: false}

	tests := []struct {
		name     string
		page     *vocab.Page
		fetched  int
		limit    int
		expected bool
	}{
		{"more pages, no limit", more, 5, 0, true},
		{"last page", last, 1, 0, false},
		{"below limit", more, 1, 2, true},
		{"at limit", more, 2, 2, false},
		{"nil page", nil, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldContinue(tt.page, tt.fetched, tt.limit); got != tt.expected {
				t.Errorf("ShouldContinue() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestWalk_AllPages(t *testing.T) {
	fetcher := &scriptedFetcher{pages: 3}
	walker := NewWalker(fetcher, DefaultConfig())

	var visited []int
	var announced []int
	result, err := walker.Walk(context.Background(), Visitor{
		BeforeFetch: func(page int) { announced = append(announced, page) },
		Page: func(ctx context.Context, page *vocab.Page) error {
			visited = append(visited, page.CurrentPage)
			return nil
		},
	})

	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	if result.Pages != 3 || result.LimitReached {
		t.Errorf("result = %+v, want 3 pages without limit", result)
	}
	if fmt.Sprint(visited) != "[1 2 3]" || fmt.Sprint(announced) != "[1 2 3]" {
		t.Errorf("visited = %v, announced = %v", visited, announced)
	}
}

func TestWalk_PageLimit(t *testing.T) {
	tests := []struct {
		name          string
		pages         int
		limit         int
		expectedCalls int
		limitReached  bool
	}{
		{"limit below available", 5, 2, 2, true},
		{"limit equals available", 2, 2, 2, false},
		{"limit above available", 2, 10, 2, false},
		{"single page limit", 3, 1, 1, true},
		{"negative limit is unlimited", 4, -1, 4, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &scriptedFetcher{pages: tt.pages}
			walker := NewWalker(fetcher, Config{PageLimit: tt.limit})

			result, err := walker.Walk(context.Background(), Visitor{})
			if err != nil {
				t.Fatalf("Walk() error = %v", err)
			}
			if len(fetcher.calls) != tt.expectedCalls {
				t.Errorf("fetch calls = %d, want %d", len(fetcher.calls), tt.expectedCalls)
			}
			if result.Pages != tt.expectedCalls {
				t.Errorf("Pages = %d, want %d", result.Pages, tt.expectedCalls)
			}
			if result.LimitReached != tt.limitReached {
				t.Errorf("LimitReached = %v, want %v", result.LimitReached, tt.limitReached)
			}
		})
	}
}

func TestWalk_FetchError(t *testing.T) {
	boom := errors.New("boom")
	fetcher := &scriptedFetcher{pages: 5, failAt: 3, err: boom}
	walker := NewWalker(fetcher, DefaultConfig())

	visited := 0
	result, err := walker.Walk(context.Background(), Visitor{
		Page: func(ctx context.Context, page *vocab.Page) error {
			visited++
			return nil
		},
	})

	if !errors.Is(err, boom) {
		t.Fatalf("Walk() error = %v, want boom", err)
	}
	if result.Pages != 2 || visited != 2 {
		t.Errorf("pages = %d, visited = %d, want 2", result.Pages, visited)
	}
}

func TestWalk_VisitorError(t *testing.T) {
	stop := errors.New("stop")
	fetcher := &scriptedFetcher{pages: 5}
	walker := NewWalker(fetcher, DefaultConfig())

	_, err := walker.Walk(context.Background(), Visitor{
		Page: func(ctx context.Context, page *vocab.Page) error {
			if page.CurrentPage == 2 {
				return stop
			}
			return nil
		},
	})

	if !errors.Is(err, stop) {
		t.Fatalf("Walk() error = %v, want stop", err)
	}
	if len(fetcher.calls) != 2 {
		t.Errorf("fetch calls = %d, want 2", len(fetcher.calls))
	}
}

func TestWalk_Cancelled(t *testing.T) {
	fetcher := &scriptedFetcher{pages: 5}
	walker := NewWalker(fetcher, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := walker.Walk(ctx, Visitor{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Walk() error = %v, want context.Canceled", err)
	}
	if len(fetcher.calls) != 0 {
		t.Errorf("fetch calls = %d, want 0", len(fetcher.calls))
	}
}
