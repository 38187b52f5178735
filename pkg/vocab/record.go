// Package vocab defines the vocabulary records moved by duoload and the page
// envelope the remote source delivers them in.
package vocab

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Status is the learning state of a vocabulary record.
type Status int

const (
	// StatusNew marks a word that has not been practised yet.
	StatusNew Status = iota

	// StatusLearning marks a word that has been answered correctly at least once.
	StatusLearning

	// StatusKnown marks a word the learner has mastered.
	StatusKnown
)

// KnownThreshold is the Duocards known count at which a card counts as known.
const KnownThreshold = 5

// StatusFromKnownCount maps the remote knownCount to a Status.
func StatusFromKnownCount(knownCount int) Status {
	switch {
	case knownCount >= KnownThreshold:
		return StatusKnown
	case knownCount > 0:
		return StatusLearning
	default:
		return StatusNew
	}
}

// String returns the lowercase wire name of the status.
func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusLearning:
		return "learning"
	case StatusKnown:
		return "known"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ParseStatus is the inverse of String.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "new":
		return StatusNew, nil
	case "learning":
		return StatusLearning, nil
	case "known":
		return StatusKnown, nil
	default:
		return 0, fmt.Errorf("unknown status %q", s)
	}
}

// MarshalJSON encodes the status as its wire name.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a wire name.
func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Errors returned by Record.Validate.
var (
	ErrEmptyWord        = errors.New("word must be non-empty")
	ErrEmptyTranslation = errors.New("translation must be non-empty")
)

// Record is a single vocabulary entry. Records are values and are never
// mutated after construction.
//
// The identity of a record for deduplication is the exact Word text.
type Record struct {
	Word        string  `json:"word"`
	Translation string  `json:"translation"`
	Example     *string `json:"example"`
	Status      Status  `json:"status"`
}

// NewRecord builds a record, treating an empty example as absent.
func NewRecord(word, translation, example string, status Status) Record {
	rec := Record{
		Word:        word,
		Translation: translation,
		Status:      status,
	}
	if example != "" {
		rec.Example = &example
	}
	return rec
}

// Identity returns the deduplication key.
func (r Record) Identity() string {
	return r.Word
}

// ExampleText returns the example or an empty string when absent.
func (r Record) ExampleText() string {
	if r.Example == nil {
		return ""
	}
	return *r.Example
}

// Validate checks the required fields.
func (r Record) Validate() error {
	if r.Word == "" {
		return ErrEmptyWord
	}
	if r.Translation == "" {
		return ErrEmptyTranslation
	}
	return nil
}
