package transfer

import "github.com/Sternrassler/duoload/pkg/vocab"

// Filter remembers every identity it has admitted during one session.
// Identities are compared byte for byte. Nothing is ever evicted.
type Filter struct {
	seen       map[string]struct{}
	duplicates int
}

// NewFilter creates an empty filter.
func NewFilter() *Filter {
	return &Filter{seen: make(map[string]struct{})}
}

// Admit reports whether rec is the first record with its identity. A
// rejected record increments the duplicate count.
func (f *Filter) Admit(rec vocab.Record) bool {
	id := rec.Identity()
	if _, ok := f.seen[id]; ok {
		f.duplicates++
		return false
	}
	f.seen[id] = struct{}{}
	return true
}

// Duplicates returns the number of rejected records.
func (f *Filter) Duplicates() int {
	return f.duplicates
}

// Len returns the number of distinct identities admitted.
func (f *Filter) Len() int {
	return len(f.seen)
}
