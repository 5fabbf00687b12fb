package migrator

import (
	"io/fs"

	"github.com/pkg/errors"
)

// Migration is a declared migration together with the content read from its
// locator.
//
// Content is read exactly once. The fingerprint is computed over those bytes
// and the statements that get executed are split from the very same bytes, so
// a file modified mid-run can never be executed under a stale fingerprint.
type Migration struct {
	Descriptor

	// Content holds the raw bytes found at the locator.
	Content []byte

	// Fingerprint is the hex SHA-256 digest of Content.
	Fingerprint string
}

// LoadMigration reads the content addressed by d.Locator from fsys.
//
// Example usage:
//
//	m, err := migrator.LoadMigration(os.DirFS("db"), migrator.Descriptor{
//		ID:      1,
//		Locator: "migrations/0001_create_users.sql",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("migration %d has fingerprint %s\n", m.ID, m.Fingerprint)
//
// Returns a *NotFoundError carrying the migration id if the content cannot be
// read.
func LoadMigration(fsys fs.FS, d Descriptor) (*Migration, error) {
	content, err := Fingerprinter{FS: fsys}.Read(d.Locator)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			nf.MigrationID = d.ID
		}
		return nil, err
	}

	return &Migration{
		Descriptor:  d,
		Content:     content,
		Fingerprint: Fingerprint(content),
	}, nil
}

// LoadMigrations loads every descriptor in order, stopping at the first
// failure.
func LoadMigrations(fsys fs.FS, descriptors []Descriptor) ([]*Migration, error) {
	migrations := make([]*Migration, 0, len(descriptors))
	for _, d := range descriptors {
		m, err := LoadMigration(fsys, d)
		if err != nil {
			return nil, err
		}

		migrations = append(migrations, m)
	}

	return migrations, nil
}

// Statements splits the migration content into executable statements.
func (m *Migration) Statements(s Splitter) ([]string, error) {
	stmts, err := s.Split(string(m.Content))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to split migration %d (%s)", m.ID, m.Locator)
	}

	return stmts, nil
}
