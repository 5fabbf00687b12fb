package migrator

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type (
	// Descriptor identifies a single migration declared in the changelog.
	//
	// The position of a descriptor in the changelog, not its ID, decides when it
	// runs. IDs only need to be unique within the changelog.
	Descriptor struct {
		// ID is the unique identifier recorded in the ledger.
		ID int64

		// Locator is the slash-separated path of the migration's SQL content,
		// relative to the directory containing the changelog.
		Locator string
	}

	// ChangelogSource loads the ordered list of migration descriptors.
	ChangelogSource interface {
		Load() ([]Descriptor, error)
	}

	// FileChangelog is a ChangelogSource backed by a YAML (or JSON) document
	// stored in a filesystem.
	//
	// Example:
	//
	//	src := migrator.FileChangelog{FS: os.DirFS("db"), Path: "changelog.yaml"}
	//	descriptors, err := src.Load()
	//	if err != nil {
	//		log.Fatal(err)
	//	}
	FileChangelog struct {
		FS   fs.FS
		Path string
	}

	// record is the on-disk shape of a changelog entry. file_path is the
	// historical field name, locator is accepted as an alias.
	record struct {
		ID       *int64 `yaml:"id"`
		FilePath string `yaml:"file_path"`
		Locator  string `yaml:"locator"`
	}
)

// Load reads and parses the changelog document.
func (c FileChangelog) Load() ([]Descriptor, error) {
	data, err := fs.ReadFile(c.FS, c.Path)
	if err != nil {
		return nil, &ConfigError{Path: c.Path, Err: errors.Wrap(err, "failed to read changelog")}
	}

	descriptors, err := LoadChangelog(bytes.NewReader(data))
	if err != nil {
		var cfgErr *ConfigError
		if errors.As(err, &cfgErr) {
			cfgErr.Path = c.Path
		}
		return nil, err
	}

	return descriptors, nil
}

// LoadChangelog parses a changelog document from r.
//
// The document must be a YAML sequence of mappings, each with an
// integer id and a file_path (or locator). Declaration order is preserved
// exactly. Every failure is returned as a *ConfigError.
//
// Example changelog:
//
//	- id: 1
//	  file_path: migrations/0001_create_users.sql
//	- id: 2
//	  file_path: migrations/0002_create_subscriptions.sql
func LoadChangelog(r io.Reader) ([]Descriptor, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ConfigError{Err: errors.New("changelog document is empty")}
		}
		return nil, &ConfigError{Err: errors.Wrap(err, "failed to parse changelog")}
	}

	seq, err := rootSequence(&doc)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	descriptors := make([]Descriptor, 0, len(seq.Content))
	seen := make(map[int64]int, len(seq.Content))

	for i, node := range seq.Content {
		d, err := decodeRecord(node)
		if err != nil {
			return nil, &ConfigError{Err: errors.Wrapf(err, "entry %d (line %d)", i+1, node.Line)}
		}

		if prev, ok := seen[d.ID]; ok {
			return nil, &ConfigError{Err: errors.Errorf("duplicate migration id %d in entries %d and %d", d.ID, prev, i+1)}
		}
		seen[d.ID] = i + 1

		descriptors = append(descriptors, d)
	}

	return descriptors, nil
}

// AppendDescriptor appends d to the changelog document stored in file,
// keeping existing entries and comments intact.
func AppendDescriptor(file string, d Descriptor) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return errors.Wrapf(err, "failed to read changelog: %s", file)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return &ConfigError{Path: file, Err: errors.Wrap(err, "failed to parse changelog")}
	}

	if doc.Kind == 0 {
		// Empty file.
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.SequenceNode, Tag: "!!seq"}}}
	}

	seq, err := rootSequence(&doc)
	if err != nil {
		return &ConfigError{Path: file, Err: err}
	}

	seq.Style = 0
	seq.Content = append(seq.Content, &yaml.Node{
		Kind: yaml.MappingNode,
		Tag:  "!!map",
		Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Tag: "!!str", Value: "id"},
			{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(d.ID, 10)},
			{Kind: yaml.ScalarNode, Tag: "!!str", Value: "file_path"},
			{Kind: yaml.ScalarNode, Tag: "!!str", Value: d.Locator},
		},
	})

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return errors.Wrap(err, "failed to encode changelog")
	}
	if err := enc.Close(); err != nil {
		return errors.Wrap(err, "failed to close yaml encoder")
	}

	info, err := os.Stat(file)
	if err != nil {
		return errors.Wrapf(err, "failed to stat changelog: %s", file)
	}

	return errors.Wrapf(os.WriteFile(file, buf.Bytes(), info.Mode().Perm()), "failed to write changelog: %s", file)
}

// NextID returns the id a newly declared migration should use: one more than
// the largest id in descriptors, or 1 for an empty changelog.
func NextID(descriptors []Descriptor) int64 {
	var highest int64
	for _, d := range descriptors {
		if d.ID > highest {
			highest = d.ID
		}
	}

	return highest + 1
}

func rootSequence(doc *yaml.Node) (*yaml.Node, error) {
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 {
		return nil, errors.New("changelog must contain a single document")
	}

	seq := doc.Content[0]
	if seq.Kind != yaml.SequenceNode {
		return nil, errors.Errorf("changelog must be a sequence of migrations (line %d)", seq.Line)
	}

	return seq, nil
}

func decodeRecord(node *yaml.Node) (Descriptor, error) {
	if node.Kind != yaml.MappingNode {
		return Descriptor{}, errors.New("migration must be a mapping with id and file_path")
	}

	var rec record
	if err := node.Decode(&rec); err != nil {
		return Descriptor{}, errors.Wrap(err, "failed to decode migration")
	}

	if rec.ID == nil {
		return Descriptor{}, errors.New("missing id")
	}

	filePath := strings.TrimSpace(rec.FilePath)
	locator := strings.TrimSpace(rec.Locator)

	switch {
	case filePath != "" && locator != "" && filePath != locator:
		return Descriptor{}, errors.Errorf("migration %d declares both file_path %q and locator %q", *rec.ID, filePath, locator)
	case filePath == "":
		filePath = locator
	}

	if filePath == "" {
		return Descriptor{}, errors.Errorf("migration %d is missing file_path", *rec.ID)
	}

	if !fs.ValidPath(path.Clean(filePath)) {
		return Descriptor{}, errors.Errorf("migration %d has invalid file_path %q: must be relative to the changelog", *rec.ID, filePath)
	}

	return Descriptor{ID: *rec.ID, Locator: filePath}, nil
}
