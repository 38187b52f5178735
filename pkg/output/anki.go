package output

import (
	"archive/zip"
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/duoload/pkg/logging"
	"github.com/Sternrassler/duoload/pkg/vocab"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"
)

const (
	collectionFile = "collection.anki2"
	mediaFile      = "media"
)

// guidNamespace seeds deterministic note GUIDs, so re-importing an updated
// export updates notes instead of duplicating them.
var guidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://duocards.com/duoload/notes"))

// PackageConfig configures a package sink.
type PackageConfig struct {
	// DeckName is the name of the generated deck.
	DeckName string

	// DeckDescription is shown on the deck overview.
	DeckDescription string

	// TempDir holds the working collection. Empty means os.TempDir().
	TempDir string
}

// DefaultPackageConfig returns the standard deck naming.
func DefaultPackageConfig() PackageConfig {
	return PackageConfig{
		DeckName:        DefaultDeckName,
		DeckDescription: DefaultDeckDescription,
	}
}

// PackageSink builds an Anki package. Notes are inserted into a temporary
// SQLite collection as they arrive; Finalize zips the collection. The zip
// container needs a seekable destination.
type PackageSink struct {
	dir       string
	dbPath    string
	db        *sql.DB
	tx        *sql.Tx
	noteStmt  *sql.Stmt
	cardStmt  *sql.Stmt
	baseID    int64
	count     int
	finalized bool
	now       func() time.Time
	logger    zerolog.Logger
}

// NewPackageSink creates the temporary collection.
func NewPackageSink(cfg PackageConfig) (*PackageSink, error) {
	return newPackageSink(cfg, time.Now)
}

func newPackageSink(cfg PackageConfig, now func() time.Time) (*PackageSink, error) {
	if cfg.DeckName == "" {
		cfg.DeckName = DefaultDeckName
	}

	dir, err := os.MkdirTemp(cfg.TempDir, "duoload-apkg-*")
	if err != nil {
		return nil, &IOError{Op: "create temp dir", Path: cfg.TempDir, Err: err}
	}

	s := &PackageSink{
		dir:    dir,
		dbPath: filepath.Join(dir, collectionFile),
		now:    now,
		logger: logging.NewLogger("output"),
	}

	if err := s.open(cfg); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *PackageSink) open(cfg PackageConfig) error {
	db, err := sql.Open("sqlite", s.dbPath)
	if err != nil {
		return fmt.Errorf("open collection: %w", err)
	}
	db.SetMaxOpenConns(1)
	s.db = db

	ctx := context.Background()
	pragmas := []string{
		"PRAGMA journal_mode = DELETE",
		"PRAGMA synchronous = OFF",
	}
	for _, stmt := range append(pragmas, collectionSchema...) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
	}

	now := s.now()
	cols, err := buildCollectionJSON(cfg.DeckName, cfg.DeckDescription, now)
	if err != nil {
		return fmt.Errorf("build collection metadata: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO col (id, crt, mod, scm, ver, dty, usn, ls, conf, models, decks, dconf, tags)
		VALUES (1, ?, ?, ?, ?, 0, 0, 0, ?, ?, ?, ?, ?)`,
		now.Truncate(24*time.Hour).Unix(),
		now.UnixMilli(),
		now.UnixMilli(),
		schemaVersion,
		cols.Conf, cols.Models, cols.Decks, cols.Dconf, cols.Tags,
	)
	if err != nil {
		return fmt.Errorf("insert collection row: %w", err)
	}

	s.tx, err = db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	s.noteStmt, err = s.tx.PrepareContext(ctx,
		`INSERT INTO notes (id, guid, mid, mod, usn, tags, flds, sfld, csum, flags, data)
		VALUES (?, ?, ?, ?, -1, ?, ?, ?, ?, 0, '')`)
	if err != nil {
		return fmt.Errorf("prepare note insert: %w", err)
	}

	s.cardStmt, err = s.tx.PrepareContext(ctx,
		`INSERT INTO cards (id, nid, did, ord, mod, usn, type, queue, due, ivl, factor, reps, lapses, left, odue, odid, flags, data)
		VALUES (?, ?, ?, 0, ?, -1, 0, 0, ?, 0, 0, 0, 0, 0, 0, 0, 0, '')`)
	if err != nil {
		return fmt.Errorf("prepare card insert: %w", err)
	}

	s.baseID = now.UnixMilli()
	return nil
}

// Add implements Sink. The record becomes one note with one card, tagged
// with its learning status.
func (s *PackageSink) Add(rec vocab.Record) error {
	if s.finalized {
		panic("output: Add called on finalized package sink")
	}
	if s.tx == nil {
		return fmt.Errorf("package sink is closed")
	}

	ctx := context.Background()
	id := s.baseID + int64(s.count)
	mod := s.now().Unix()
	fields := strings.Join([]string{rec.Word, rec.Translation, rec.ExampleText()}, fieldSeparator)

	_, err := s.noteStmt.ExecContext(ctx,
		id,
		NoteGUID(rec),
		ModelID,
		mod,
		" "+StatusTag(rec.Status)+" ",
		fields,
		rec.Word,
		fieldChecksum(rec.Word),
	)
	if err != nil {
		return fmt.Errorf("insert note %q: %w", rec.Word, err)
	}

	if _, err := s.cardStmt.ExecContext(ctx, id, id, DeckID, mod, s.count+1); err != nil {
		return fmt.Errorf("insert card %q: %w", rec.Word, err)
	}

	s.count++
	return nil
}

// Finalize implements Sink. Non-seekable destinations are rejected before
// anything is written.
func (s *PackageSink) Finalize(dst io.Writer) (err error) {
	if s.finalized {
		return ErrAlreadyFinalized
	}
	if !IsSeekable(dst) {
		recordFinalize(FormatPackage, ErrUnsupportedDestination)
		return fmt.Errorf("%w: anki packages must be written to a file", ErrUnsupportedDestination)
	}
	if s.tx == nil {
		return fmt.Errorf("package sink is closed")
	}

	s.finalized = true
	defer func() { recordFinalize(FormatPackage, err) }()

	if err := s.closeDB(true); err != nil {
		return err
	}

	zw := zip.NewWriter(dst)
	if err := s.writeCollection(zw); err != nil {
		return err
	}

	media, err := zw.CreateHeader(&zip.FileHeader{Name: mediaFile, Method: zip.Deflate})
	if err != nil {
		return &IOError{Op: "write package", Err: err}
	}
	if _, err := io.WriteString(media, "{}"); err != nil {
		return &IOError{Op: "write package", Err: err}
	}

	if err := zw.Close(); err != nil {
		return &IOError{Op: "write package", Err: err}
	}

	s.logger.Debug().Int("notes", s.count).Msg("Anki package written")
	return nil
}

func (s *PackageSink) writeCollection(zw *zip.Writer) error {
	f, err := os.Open(s.dbPath)
	if err != nil {
		return &IOError{Op: "read collection", Path: s.dbPath, Err: err}
	}
	defer f.Close()

	header := &zip.FileHeader{Name: collectionFile, Method: zip.Deflate}
	header.Modified = s.now()
	w, err := zw.CreateHeader(header)
	if err != nil {
		return &IOError{Op: "write package", Err: err}
	}
	if _, err := io.Copy(w, f); err != nil {
		return &IOError{Op: "write package", Err: err}
	}
	return nil
}

// closeDB commits or rolls back pending notes and closes the collection.
func (s *PackageSink) closeDB(commit bool) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if s.noteStmt != nil {
		keep(s.noteStmt.Close())
		s.noteStmt = nil
	}
	if s.cardStmt != nil {
		keep(s.cardStmt.Close())
		s.cardStmt = nil
	}
	if s.tx != nil {
		if commit {
			if err := s.tx.Commit(); err != nil {
				keep(fmt.Errorf("commit collection: %w", err))
			}
		} else {
			s.tx.Rollback()
		}
		s.tx = nil
	}
	if s.db != nil {
		keep(s.db.Close())
		s.db = nil
	}
	return firstErr
}

// Close implements Sink.
func (s *PackageSink) Close() error {
	err := s.closeDB(false)
	if s.dir != "" {
		if rmErr := os.RemoveAll(s.dir); rmErr != nil && err == nil {
			err = &IOError{Op: "remove temp dir", Path: s.dir, Err: rmErr}
		}
		s.dir = ""
	}
	return err
}

// Count implements Sink.
func (s *PackageSink) Count() int {
	return s.count
}

// Format implements Sink.
func (s *PackageSink) Format() Format {
	return FormatPackage
}

// StatusTag maps a learning status to its note tag.
func StatusTag(status vocab.Status) string {
	return "duoload_" + status.String()
}

// NoteGUID derives a stable GUID from a record's word and translation.
func NoteGUID(rec vocab.Record) string {
	return uuid.NewSHA1(guidNamespace, []byte(rec.Word+fieldSeparator+rec.Translation)).String()
}

// fieldChecksum is Anki's duplicate-check checksum: the first 8 hex digits
// of the SHA-1 of the sort field, as an integer.
func fieldChecksum(field string) int64 {
	sum := sha1.Sum([]byte(field))
	n, _ := strconv.ParseInt(hex.EncodeToString(sum[:])[:8], 16, 64)
	return n
}
