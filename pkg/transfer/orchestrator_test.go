package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/duoload/internal/testutil"
	"github.com/Sternrassler/duoload/pkg/client"
	"github.com/Sternrassler/duoload/pkg/output"
	"github.com/Sternrassler/duoload/pkg/ratelimit"
	"github.com/Sternrassler/duoload/pkg/vocab"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// base64 of "Deck:46f2b9ed-abf3-4bd8-a054-68dfa4a4203e"
const testDeckID = "RGVjazo0NmYyYjllZC1hYmYzLTRiZDgtYTA1NC02OGRmYTRhNDIwM2U="

// pageFetcher serves fixed pages and counts calls.
type pageFetcher struct {
	pages   [][]vocab.Record
	hasMore bool // report HasNext on the last page too
	errAt   int
	err     error
	calls   int
}

func (f *pageFetcher) FetchPage(ctx context.Context, page int) (*vocab.Page, error) {
	f.calls++
	if f.errAt == page {
		return nil, f.err
	}
	if page > len(f.pages) {
		return nil, fmt.Errorf("page %d out of range", page)
	}
	return &vocab.Page{
		Records:     f.pages[page-1],
		CurrentPage: page,
		HasNext:     page < len(f.pages) || f.hasMore,
	}, nil
}

// distinctPages builds n pages of size records with globally distinct words.
func distinctPages(n, size int) [][]vocab.Record {
	pages := make([][]vocab.Record, n)
	for p := range pages {
		for i := 0; i < size; i++ {
			pages[p] = append(pages[p], record(fmt.Sprintf("p%d-w%d", p+1, i+1)))
		}
	}
	return pages
}

// recordingTarget tracks how it is used.
type recordingTarget struct {
	buf       bytes.Buffer
	opened    bool
	committed bool
	aborted   bool
}

func (r *recordingTarget) Open() (io.Writer, error) {
	r.opened = true
	return &r.buf, nil
}

func (r *recordingTarget) Commit() error {
	r.committed = true
	return nil
}

func (r *recordingTarget) Abort() error {
	r.aborted = true
	return nil
}

func (r *recordingTarget) String() string {
	return "recording"
}

// captureLogs redirects the global logger for the duration of the test.
func captureLogs(t *testing.T) *syncBuffer {
	t.Helper()

	buf := &syncBuffer{}
	prev := log.Logger
	log.Logger = zerolog.New(buf).Level(zerolog.WarnLevel)
	t.Cleanup(func() { log.Logger = prev })
	return buf
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Lines() []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()

	var lines []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(b.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err == nil {
			lines = append(lines, entry)
		}
	}
	return lines
}

func decodeJSON(t *testing.T, data []byte) []vocab.Record {
	t.Helper()
	var records []vocab.Record
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("decode output: %v\n%s", err, data)
	}
	return records
}

func TestRun_ScenarioA_AllDistinct(t *testing.T) {
	fetcher := &pageFetcher{pages: distinctPages(3, 10)}
	sink := output.NewJSONSink()
	defer sink.Close()

	var progress []Progress
	orch := New(fetcher, sink, Config{
		Progress: func(p Progress) { progress = append(progress, p) },
	})
	target := &recordingTarget{}

	summary, err := orch.Run(context.Background(), target)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if orch.State() != StateDone {
		t.Errorf("State() = %v, want done", orch.State())
	}
	if summary.Fetched != 30 || summary.Admitted != 30 || summary.DuplicatesSkipped != 0 {
		t.Errorf("summary = %+v, want 30/30/0", summary)
	}
	if summary.Pages != 3 || summary.LimitReached {
		t.Errorf("pages = %d, limit reached = %v", summary.Pages, summary.LimitReached)
	}
	if fetcher.calls != 3 {
		t.Errorf("fetch calls = %d, want 3", fetcher.calls)
	}

	if len(progress) != 3 {
		t.Fatalf("progress notifications = %d, want one per page", len(progress))
	}
	last := progress[2]
	if last.Page != 3 || last.Fetched != 30 || last.Admitted != 30 || last.HasNext {
		t.Errorf("last progress = %+v", last)
	}

	if !target.opened || !target.committed {
		t.Errorf("target opened = %v, committed = %v", target.opened, target.committed)
	}
	records := decodeJSON(t, target.buf.Bytes())
	if len(records) != 30 || records[0].Word != "p1-w1" || records[29].Word != "p3-w10" {
		t.Errorf("output order not preserved: %d records", len(records))
	}
}

func TestRun_ScenarioB_DuplicateAcrossPages(t *testing.T) {
	logs := captureLogs(t)

	pages := distinctPages(3, 10)
	pages[1][4] = vocab.NewRecord("p1-w3", "another translation", "", vocab.StatusKnown)

	sink := output.NewJSONSink()
	defer sink.Close()
	orch := New(&pageFetcher{pages: pages}, sink, Config{})
	target := &recordingTarget{}

	summary, err := orch.Run(context.Background(), target)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if summary.Fetched != 30 || summary.Admitted != 29 || summary.DuplicatesSkipped != 1 {
		t.Errorf("summary = %+v, want 30/29/1", summary)
	}

	var warned []string
	for _, line := range logs.Lines() {
		if line["level"] == "warn" {
			word, _ := line["word"].(string)
			warned = append(warned, word)
		}
	}
	if len(warned) != 1 || warned[0] != "p1-w3" {
		t.Errorf("duplicate warnings = %v, want [p1-w3]", warned)
	}

	records := decodeJSON(t, target.buf.Bytes())
	count := 0
	for _, rec := range records {
		if rec.Word == "p1-w3" {
			count++
			if rec.Translation != "translation of p1-w3" {
				t.Errorf("kept translation %q, want the first occurrence", rec.Translation)
			}
		}
	}
	if count != 1 {
		t.Errorf("p1-w3 appears %d times in output", count)
	}
}

func TestRun_ScenarioC_RetriedTimeouts(t *testing.T) {
	mock := testutil.NewMockDuocards(testDeckID, testutil.GenerateCards("a", 5))
	defer mock.Close()
	mock.Enqueue(testutil.NewSlowResponse(time.Second), testutil.NewSlowResponse(time.Second))

	var mu sync.Mutex
	var delays []time.Duration
	cfg := client.DefaultConfig(testDeckID)
	cfg.Endpoint = mock.URL()
	cfg.RequestTimeout = 50 * time.Millisecond
	cfg.Pacer = ratelimit.NopPacer{}
	cfg.Sleeper = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		return ctx.Err()
	}

	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}

	sink := output.NewJSONSink()
	defer sink.Close()
	orch := New(c, sink, Config{})

	summary, err := orch.Run(context.Background(), &recordingTarget{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Admitted != 5 {
		t.Errorf("Admitted = %d, want 5", summary.Admitted)
	}
	if mock.GetRequestCount() != 3 {
		t.Errorf("requests = %d, want 3", mock.GetRequestCount())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(delays) != 2 || delays[0] != time.Second || delays[1] != 2*time.Second {
		t.Errorf("backoff delays = %v, want [1s 2s]", delays)
	}
}

func TestRun_ScenarioD_PageLimit(t *testing.T) {
	fetcher := &pageFetcher{pages: distinctPages(5, 4)}
	sink := output.NewJSONSink()
	defer sink.Close()

	orch := New(fetcher, sink, Config{PageLimit: 2})
	summary, err := orch.Run(context.Background(), &recordingTarget{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if fetcher.calls != 2 {
		t.Errorf("fetch calls = %d, want 2", fetcher.calls)
	}
	if orch.State() != StateDone {
		t.Errorf("State() = %v, want done", orch.State())
	}
	if !summary.LimitReached || summary.Fetched != 8 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestRun_PageLimitProperty(t *testing.T) {
	for limit := 1; limit <= 6; limit++ {
		fetcher := &pageFetcher{pages: distinctPages(4, 2), hasMore: false}
		sink := output.NewJSONSink()

		orch := New(fetcher, sink, Config{PageLimit: limit})
		if _, err := orch.Run(context.Background(), &recordingTarget{}); err != nil {
			t.Fatalf("limit %d: Run() error = %v", limit, err)
		}
		sink.Close()

		want := min(limit, 4)
		if fetcher.calls != want {
			t.Errorf("limit %d: fetch calls = %d, want %d", limit, fetcher.calls, want)
		}
	}
}

func TestRun_ScenarioE_InvalidCollection(t *testing.T) {
	mock := testutil.NewMockDuocards("some-other-deck", testutil.GenerateCards("a", 3))
	defer mock.Close()

	cfg := client.DefaultConfig(testDeckID)
	cfg.Endpoint = mock.URL()
	cfg.Pacer = ratelimit.NopPacer{}
	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "deck.apkg")
	pkgCfg := output.DefaultPackageConfig()
	pkgCfg.TempDir = t.TempDir()
	sink, err := output.NewPackageSink(pkgCfg)
	if err != nil {
		t.Fatalf("NewPackageSink() error = %v", err)
	}
	defer sink.Close()

	orch := New(c, sink, Config{})
	_, err = orch.Run(context.Background(), output.NewFileTarget(path))

	if kind, _ := client.KindOf(err); kind != client.KindInvalidCollection {
		t.Fatalf("Run() error = %v, want invalid collection", err)
	}
	if orch.State() != StateFailed {
		t.Errorf("State() = %v, want failed", orch.State())
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("requests = %d, want 1", mock.GetRequestCount())
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("destination dir not empty after failure: %v", entries)
	}
}

func TestRun_FetchErrorLeavesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vocab.json")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	boom := errors.New("connection reset")
	fetcher := &pageFetcher{pages: distinctPages(3, 2), errAt: 2, err: boom}
	sink := output.NewJSONSink()
	defer sink.Close()

	orch := New(fetcher, sink, Config{})
	summary, err := orch.Run(context.Background(), output.NewFileTarget(path))

	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want %v", err, boom)
	}
	if orch.State() != StateFailed {
		t.Errorf("State() = %v, want failed", orch.State())
	}
	if summary.Pages != 1 || summary.Fetched != 2 {
		t.Errorf("summary = %+v", summary)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "old" {
		t.Errorf("existing file modified: %q", data)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 1 {
		t.Errorf("unexpected files after failure: %v", entries)
	}
}

func TestRun_FinalizeRejected(t *testing.T) {
	pkgCfg := output.DefaultPackageConfig()
	pkgCfg.TempDir = t.TempDir()
	sink, err := output.NewPackageSink(pkgCfg)
	if err != nil {
		t.Fatalf("NewPackageSink() error = %v", err)
	}
	defer sink.Close()

	var stream bytes.Buffer
	orch := New(&pageFetcher{pages: distinctPages(1, 3)}, sink, Config{})
	_, err = orch.Run(context.Background(), output.NewStreamTarget(&stream, "stdout"))

	if !errors.Is(err, output.ErrUnsupportedDestination) {
		t.Fatalf("Run() error = %v, want ErrUnsupportedDestination", err)
	}
	if orch.State() != StateFailed {
		t.Errorf("State() = %v, want failed", orch.State())
	}
	if stream.Len() != 0 {
		t.Errorf("wrote %d bytes to the stream", stream.Len())
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	fetcher := &pageFetcher{pages: distinctPages(3, 1)}
	sink := output.NewJSONSink()
	defer sink.Close()

	target := &recordingTarget{}
	orch := New(fetcher, sink, Config{
		Progress: func(p Progress) {
			if p.Page == 1 {
				cancel()
			}
		},
	})

	_, err := orch.Run(ctx, target)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if fetcher.calls != 1 {
		t.Errorf("fetch calls = %d, want 1", fetcher.calls)
	}
	if target.opened {
		t.Error("target opened on a cancelled run")
	}
}

func TestRun_OnlyOnce(t *testing.T) {
	sink := output.NewJSONSink()
	defer sink.Close()
	orch := New(&pageFetcher{pages: distinctPages(1, 1)}, sink, Config{})

	if _, err := orch.Run(context.Background(), &recordingTarget{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, err := orch.Run(context.Background(), &recordingTarget{}); !errors.Is(err, ErrAlreadyRun) {
		t.Errorf("second Run() = %v, want ErrAlreadyRun", err)
	}
}

func TestRun_CounterInvariant(t *testing.T) {
	pages := [][]vocab.Record{
		{record("a"), record("b"), record("a")},
		{record("c"), record("b"), record("d")},
		{record("a"), record("e")},
	}

	sink := output.NewJSONSink()
	defer sink.Close()
	orch := New(&pageFetcher{pages: pages}, sink, Config{})

	summary, err := orch.Run(context.Background(), &recordingTarget{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if summary.Admitted+summary.DuplicatesSkipped != summary.Fetched {
		t.Errorf("admitted %d + duplicates %d != fetched %d", summary.Admitted, summary.DuplicatesSkipped, summary.Fetched)
	}
	if summary.Admitted != 5 || summary.Fetched != 8 {
		t.Errorf("summary = %+v", summary)
	}
	if sink.Count() != summary.Admitted {
		t.Errorf("sink count = %d, admitted = %d", sink.Count(), summary.Admitted)
	}
}

func TestRun_Elapsed(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ticks := []time.Time{start, start.Add(90 * time.Second)}
	now := func() time.Time {
		tick := ticks[0]
		if len(ticks) > 1 {
			ticks = ticks[1:]
		}
		return tick
	}

	sink := output.NewJSONSink()
	defer sink.Close()
	orch := New(&pageFetcher{pages: distinctPages(1, 1)}, sink, Config{Now: now})

	summary, err := orch.Run(context.Background(), &recordingTarget{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Elapsed != 90*time.Second {
		t.Errorf("Elapsed = %v, want 1m30s", summary.Elapsed)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateIdle, "idle"},
		{StateFetching, "fetching"},
		{StateFiltering, "filtering"},
		{StateSinking, "sinking"},
		{StateFinalizing, "finalizing"},
		{StateDone, "done"},
		{StateFailed, "failed"},
		{State(42), "state(42)"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("String() = %q, want %q", got, tt.expected)
		}
	}
}
