package ledger

import (
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/migrator"
)

type (
	// Entry records one applied migration. Entries are only ever inserted.
	Entry struct {
		// ID is the surrogate key assigned by the store.
		ID int64

		// MigrationID is the changelog id of the applied migration.
		MigrationID int64

		// Locator is where the content was read from when it was applied.
		Locator string

		// Fingerprint is the hex SHA-256 of the content that was applied.
		Fingerprint string

		// AppliedAt is when the migration's transaction recorded the entry.
		AppliedAt time.Time
	}

	// EntrySet is a snapshot of the ledger indexed by migration id.
	EntrySet struct {
		entries []*Entry
		byID    map[int64]*Entry
	}
)

// NewEntrySet indexes entries, keeping their order. A migration id that
// appears twice means the ledger's uniqueness guarantee was violated and is
// reported as an error.
func NewEntrySet(entries []*Entry) (*EntrySet, error) {
	set := &EntrySet{
		entries: make([]*Entry, 0, len(entries)),
		byID:    make(map[int64]*Entry, len(entries)),
	}

	for _, e := range entries {
		if _, dup := set.byID[e.MigrationID]; dup {
			return nil, errors.Errorf("migration %d is recorded more than once", e.MigrationID)
		}

		set.byID[e.MigrationID] = e
		set.entries = append(set.entries, e)
	}

	return set, nil
}

// Get returns the entry for a migration id.
func (s *EntrySet) Get(migrationID int64) (*Entry, bool) {
	e, ok := s.byID[migrationID]
	return e, ok
}

// Has reports whether a migration id has been applied.
func (s *EntrySet) Has(migrationID int64) bool {
	_, ok := s.byID[migrationID]
	return ok
}

// Count returns the number of applied migrations.
func (s *EntrySet) Count() int {
	return len(s.entries)
}

// Entries returns the entries in the order they were recorded.
func (s *EntrySet) Entries() []*Entry {
	entries := make([]*Entry, len(s.entries))
	copy(entries, s.entries)
	return entries
}

// Orphans returns the entries whose migration id is not declared in
// descriptors, in ledger order. These are usually migrations removed from the
// changelog after they were applied.
func (s *EntrySet) Orphans(descriptors []migrator.Descriptor) []*Entry {
	declared := make(map[int64]struct{}, len(descriptors))
	for _, d := range descriptors {
		declared[d.ID] = struct{}{}
	}

	var orphans []*Entry
	for _, e := range s.entries {
		if _, ok := declared[e.MigrationID]; !ok {
			orphans = append(orphans, e)
		}
	}

	return orphans
}
