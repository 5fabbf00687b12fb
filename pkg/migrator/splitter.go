package migrator

import (
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
	"github.com/pkg/errors"
)

const (
	// SplitterNaive selects NaiveSplitter.
	SplitterNaive = "naive"

	// SplitterLexical selects LexicalSplitter.
	SplitterLexical = "lexical"
)

var (
	// sqlLexer tokenizes just enough SQL to find statement terminators that are
	// not inside literals, quoted identifiers, or comments.
	sqlLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Comment", Pattern: `--[^\n]*`},
		{Name: "MultilineComment", Pattern: `/\*(?s:.*?)\*/`},
		{Name: "String", Pattern: `'(?:[^']|'')*'`},
		{Name: "QuotedIdent", Pattern: `"(?:[^"]|"")*"`},
		{Name: "BacktickIdent", Pattern: "`[^`]*`"},
		{Name: "DollarQuoted", Pattern: `\$\$(?s:.*?)\$\$`},
		{Name: "Terminator", Pattern: `;`},
		{Name: "Text", Pattern: "[^;'\"`$/-]+"},
		{Name: "Char", Pattern: `[$/-]`},
	})

	lexerSymbols = sqlLexer.Symbols()
)

type (
	// Splitter decomposes migration content into an ordered sequence of
	// non-empty statements.
	Splitter interface {
		Split(content string) ([]string, error)
	}

	// NaiveSplitter splits content on every ';' and discards fragments that are
	// empty once surrounding whitespace is trimmed.
	//
	// Known limitation: a ';' inside a string literal or a comment still ends a
	// statement. Migrations that need one should use LexicalSplitter.
	NaiveSplitter struct{}

	// LexicalSplitter splits content on ';' terminators that appear outside of
	// string literals, quoted identifiers, dollar-quoted bodies and comments.
	// Fragments that contain nothing but comments are discarded.
	LexicalSplitter struct{}
)

// NewSplitter returns the splitter registered under name. An empty name
// selects the naive splitter.
func NewSplitter(name string) (Splitter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", SplitterNaive:
		return NaiveSplitter{}, nil
	case SplitterLexical:
		return LexicalSplitter{}, nil
	default:
		return nil, &ConfigError{Err: errors.Errorf("unknown splitter: %s", name)}
	}
}

// Split implements Splitter.
func (NaiveSplitter) Split(content string) ([]string, error) {
	parts := strings.Split(content, ";")

	stmts := make([]string, 0, len(parts))
	for _, part := range parts {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}

	return stmts, nil
}

// Split implements Splitter.
func (LexicalSplitter) Split(content string) ([]string, error) {
	lex, err := sqlLexer.Lex("", strings.NewReader(content))
	if err != nil {
		return nil, errors.Wrap(err, "failed to tokenize migration")
	}

	var (
		stmts   []string
		current strings.Builder
		hasCode bool
	)

	flush := func() {
		if stmt := strings.TrimSpace(current.String()); hasCode && stmt != "" {
			stmts = append(stmts, stmt)
		}
		current.Reset()
		hasCode = false
	}

	for {
		tok, err := lex.Next()
		if err != nil {
			return nil, errors.Wrap(err, "failed to tokenize migration")
		}

		if tok.EOF() {
			break
		}

		switch tok.Type {
		case lexerSymbols["Terminator"]:
			flush()
			continue
		case lexerSymbols["Comment"], lexerSymbols["MultilineComment"]:
		case lexerSymbols["Text"]:
			if strings.TrimSpace(tok.Value) != "" {
				hasCode = true
			}
		default:
			hasCode = true
		}

		current.WriteString(tok.Value)
	}

	flush()
	return stmts, nil
}
