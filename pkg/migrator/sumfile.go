package migrator

import (
	"bufio"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type (
	// SumFile pins the fingerprint of every migration declared in a changelog.
	// It is committed alongside the changelog so that edits to migration content
	// are caught before anything reaches the database.
	SumFile struct {
		entries []SumEntry

		// TotalHash is "h1:" followed by the base64 SHA-256 of every entry line,
		// in order. Set by WriteTo and LoadSumFile.
		TotalHash string
	}

	// SumEntry is a single line of a sum file.
	SumEntry struct {
		ID          int64
		Locator     string
		Fingerprint string
	}

	// SumMismatch describes one difference between a sum file and the current
	// migrations.
	SumMismatch struct {
		ID       int64
		Locator  string
		Expected string
		Actual   string
	}
)

// NewSumFile returns an empty SumFile.
func NewSumFile() *SumFile {
	return &SumFile{entries: make([]SumEntry, 0)}
}

// BuildSumFile fingerprints the content of every descriptor in order.
//
// Example:
//
//	sum, err := migrator.BuildSumFile(os.DirFS("db"), descriptors)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	f, _ := os.Create("db/changelog.sum")
//	defer f.Close()
//	sum.WriteTo(f)
func BuildSumFile(fsys fs.FS, descriptors []Descriptor) (*SumFile, error) {
	fp := Fingerprinter{FS: fsys}
	sum := NewSumFile()

	for _, d := range descriptors {
		fingerprint, err := fp.Fingerprint(d.Locator)
		if err != nil {
			var nf *NotFoundError
			if errors.As(err, &nf) {
				nf.MigrationID = d.ID
			}
			return nil, err
		}

		sum.Add(d, fingerprint)
	}

	return sum, nil
}

// LoadSumFile parses the format written by WriteTo:
//
//	h1:<base64 total hash>
//	<id> <locator> <fingerprint>
//	...
//
// An empty document yields an empty SumFile. The total hash is checked against
// the entries, so a hand-edited sum file is rejected.
func LoadSumFile(r io.Reader) (*SumFile, error) {
	scanner := bufio.NewScanner(r)
	sum := NewSumFile()

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, errors.Wrap(err, "failed to read sum file")
		}
		return sum, nil
	}

	total := strings.TrimSpace(scanner.Text())
	if total != "" && !strings.HasPrefix(total, "h1:") {
		return nil, errors.Errorf("invalid total hash format: %s", total)
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		entry, err := parseSumEntry(line)
		if err != nil {
			return nil, err
		}

		sum.entries = append(sum.entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read sum file")
	}

	if computed := sum.computeTotalHash(); computed != total {
		return nil, errors.Errorf("sum file total hash %s does not match its entries (%s)", total, computed)
	}
	sum.TotalHash = total

	return sum, nil
}

// Add appends an entry for d with the given fingerprint.
func (s *SumFile) Add(d Descriptor, fingerprint string) {
	s.entries = append(s.entries, SumEntry{ID: d.ID, Locator: d.Locator, Fingerprint: fingerprint})
}

// Entries returns a copy of the entries in declaration order.
func (s *SumFile) Entries() []SumEntry {
	entries := make([]SumEntry, len(s.entries))
	copy(entries, s.entries)
	return entries
}

// Len returns the number of entries.
func (s *SumFile) Len() int {
	return len(s.entries)
}

// Compare reports every difference between s and current. Entries are
// matched by id; a changed locator, a changed fingerprint, an added or removed
// migration, and a different declaration order are all reported.
func (s *SumFile) Compare(current *SumFile) []SumMismatch {
	var mismatches []SumMismatch

	expected := make(map[int64]SumEntry, len(s.entries))
	for _, e := range s.entries {
		expected[e.ID] = e
	}

	seen := make(map[int64]bool, len(current.entries))
	for i, e := range current.entries {
		seen[e.ID] = true

		want, ok := expected[e.ID]
		switch {
		case !ok:
			mismatches = append(mismatches, SumMismatch{ID: e.ID, Locator: e.Locator, Actual: e.Fingerprint})
		case want.Fingerprint != e.Fingerprint || want.Locator != e.Locator:
			mismatches = append(mismatches, SumMismatch{
				ID:       e.ID,
				Locator:  e.Locator,
				Expected: want.Fingerprint,
				Actual:   e.Fingerprint,
			})
		case i >= len(s.entries) || s.entries[i].ID != e.ID:
			mismatches = append(mismatches, SumMismatch{
				ID:       e.ID,
				Locator:  e.Locator,
				Expected: want.Fingerprint,
				Actual:   e.Fingerprint,
			})
		}
	}

	for _, e := range s.entries {
		if !seen[e.ID] {
			mismatches = append(mismatches, SumMismatch{ID: e.ID, Locator: e.Locator, Expected: e.Fingerprint})
		}
	}

	return mismatches
}

// Verify fingerprints the content of descriptors and compares it with s.
// Any difference is returned as a *ConfigError listing every mismatch.
func (s *SumFile) Verify(fsys fs.FS, descriptors []Descriptor) error {
	current, err := BuildSumFile(fsys, descriptors)
	if err != nil {
		return err
	}

	mismatches := s.Compare(current)
	if len(mismatches) == 0 {
		return nil
	}

	lines := make([]string, 0, len(mismatches))
	for _, m := range mismatches {
		lines = append(lines, m.String())
	}

	return &ConfigError{Err: errors.Errorf("sum file is out of date:\n  %s", strings.Join(lines, "\n  "))}
}

// WriteTo writes the sum file to w, computing TotalHash first. An empty sum
// file is written as a single newline.
func (s *SumFile) WriteTo(w io.Writer) (int64, error) {
	var total int64

	s.TotalHash = s.computeTotalHash()

	n, err := fmt.Fprintf(w, "%s\n", s.TotalHash)
	total += int64(n)
	if err != nil {
		return total, err
	}

	for _, e := range s.entries {
		n, err := fmt.Fprintf(w, "%s\n", e)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}

	return total, nil
}

func (e SumEntry) String() string {
	return fmt.Sprintf("%d %s %s", e.ID, e.Locator, e.Fingerprint)
}

func (m SumMismatch) String() string {
	switch {
	case m.Expected == "":
		return fmt.Sprintf("migration %d (%s) is not in the sum file", m.ID, m.Locator)
	case m.Actual == "":
		return fmt.Sprintf("migration %d (%s) is in the sum file but not in the changelog", m.ID, m.Locator)
	case m.Expected == m.Actual:
		return fmt.Sprintf("migration %d (%s) moved or changed locator", m.ID, m.Locator)
	default:
		return fmt.Sprintf("migration %d (%s) changed: expected %s, got %s", m.ID, m.Locator, m.Expected, m.Actual)
	}
}

func (s *SumFile) computeTotalHash() string {
	if len(s.entries) == 0 {
		return ""
	}

	hasher := sha256.New()
	for _, e := range s.entries {
		fmt.Fprintf(hasher, "%s\n", e)
	}

	return "h1:" + base64.StdEncoding.EncodeToString(hasher.Sum(nil))
}

func parseSumEntry(line string) (SumEntry, error) {
	// Locators may contain spaces, so the id and fingerprint are peeled off
	// the ends.
	first := strings.IndexByte(line, ' ')
	last := strings.LastIndexByte(line, ' ')
	if first < 0 || first == last {
		return SumEntry{}, errors.Errorf("invalid sum entry: %s", line)
	}

	id, err := strconv.ParseInt(line[:first], 10, 64)
	if err != nil {
		return SumEntry{}, errors.Wrapf(err, "invalid migration id in sum entry: %s", line)
	}

	fingerprint := line[last+1:]
	if len(fingerprint) != FingerprintLength {
		return SumEntry{}, errors.Errorf("invalid fingerprint in sum entry: %s", line)
	}

	return SumEntry{ID: id, Locator: line[first+1 : last], Fingerprint: fingerprint}, nil
}
