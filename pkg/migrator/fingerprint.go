package migrator

import (
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"path"
)

// FingerprintLength is the length of a fingerprint: a hex-encoded SHA-256 digest.
const FingerprintLength = sha256.Size * 2

// Fingerprinter reads migration content addressed by locators and computes
// fingerprints over it.
type Fingerprinter struct {
	FS fs.FS
}

// Fingerprint returns the lowercase hex SHA-256 digest of content.
//
// The digest is computed over the exact bytes given. Line endings and
// whitespace are not normalized, so any byte difference yields a different
// fingerprint.
func Fingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Read returns the raw content addressed by locator. Failures are reported
// as *NotFoundError.
func (f Fingerprinter) Read(locator string) ([]byte, error) {
	content, err := fs.ReadFile(f.FS, path.Clean(locator))
	if err != nil {
		return nil, &NotFoundError{Locator: locator, Err: err}
	}

	return content, nil
}

// Fingerprint reads the content addressed by locator and fingerprints it.
func (f Fingerprinter) Fingerprint(locator string) (string, error) {
	content, err := f.Read(locator)
	if err != nil {
		return "", err
	}

	return Fingerprint(content), nil
}
