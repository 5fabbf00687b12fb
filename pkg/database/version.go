package database

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var versionPattern = regexp.MustCompile(`^(\d+)\.(\d+)(?:\.(\d+))?`)

// VersionInfo represents a parsed server version.
type VersionInfo struct {
	Major int    // Major version number (e.g., 16)
	Minor int    // Minor version number (e.g., 3)
	Patch int    // Patch version number (e.g., 0)
	Raw   string // Raw version string reported by the server
}

// String returns the version as "major.minor.patch".
func (v VersionInfo) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// IsAtLeast checks if this version is at least major.minor.
func (v VersionInfo) IsAtLeast(major, minor int) bool {
	if v.Major > major {
		return true
	}
	return v.Major == major && v.Minor >= minor
}

// Version retrieves and parses the server version.
func (c *Client) Version(ctx context.Context) (*VersionInfo, error) {
	var raw string
	if err := c.db.QueryRowContext(ctx, c.dialect.VersionQuery()).Scan(&raw); err != nil {
		return nil, errors.Wrapf(err, "failed to query %s version", c.dialect.Name())
	}

	version, err := parseVersion(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s version: %s", c.dialect.Name(), raw)
	}

	return version, nil
}

// parseVersion understands the formats reported by the supported stores:
//   - "3.46.0" (SQLite)
//   - "16.3 (Debian 16.3-1.pgdg120+1)" (PostgreSQL)
//   - "8.0.36-0ubuntu0.22.04.1" (MySQL)
//   - "10.11.6-MariaDB-log" (MariaDB)
func parseVersion(raw string) (*VersionInfo, error) {
	cleaned := strings.TrimSpace(raw)

	if idx := strings.IndexAny(cleaned, " -"); idx != -1 {
		cleaned = cleaned[:idx]
	}

	matches := versionPattern.FindStringSubmatch(cleaned)
	if matches == nil {
		return nil, errors.Errorf("invalid version format: %s", raw)
	}

	major, err := strconv.Atoi(matches[1])
	if err != nil {
		return nil, errors.Wrapf(err, "invalid major version: %s", matches[1])
	}

	minor, err := strconv.Atoi(matches[2])
	if err != nil {
		return nil, errors.Wrapf(err, "invalid minor version: %s", matches[2])
	}

	patch := 0
	if matches[3] != "" {
		if patch, err = strconv.Atoi(matches[3]); err != nil {
			return nil, errors.Wrapf(err, "invalid patch version: %s", matches[3])
		}
	}

	return &VersionInfo{Major: major, Minor: minor, Patch: patch, Raw: raw}, nil
}
