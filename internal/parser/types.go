package parser

import "fmt"

// Options controls which lines are filtered before statement dispatch.
type Options struct {
	// SkipComments drops lines whose trimmed form starts with "#".
	SkipComments bool
	// SkipBlankLines drops lines that are empty after trimming. Blank lines
	// that close a python or menu block are still honoured.
	SkipBlankLines bool
}

// String renders the options in a stable form, used as part of cache keys.
func (o Options) String() string {
	return fmt.Sprintf("skip_comments=%t,skip_blank_lines=%t", o.SkipComments, o.SkipBlankLines)
}

// Tracer receives a diagnostic trace of a parse. Block is called after each
// line with the in-progress accumulator; implementations must not retain b.
type Tracer interface {
	Line(n int, raw string)
	Block(n int, b *Block)
}

// ParseResult holds parsing output for a single script file.
type ParseResult struct {
	// FilePath is the absolute path to the parsed file.
	FilePath string
	// FileType is the detected type (rpy).
	FileType string
	// Document is the ordered sequence of blocks.
	Document Document
	// LineCount is the number of source lines seen.
	LineCount int
	// ContentHash is the SHA-256 of the file content.
	ContentHash string
}

// Parser is the interface for script format parsers.
type Parser interface {
	// CanParse returns true if this parser handles the given file extension.
	CanParse(ext string) bool
	// Parse converts a script file into a Document.
	Parse(filePath string) (*ParseResult, error)
}
