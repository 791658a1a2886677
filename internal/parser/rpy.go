package parser

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"rpy-converter/internal/textutil"
)

var utf8BOM = []byte("\xef\xbb\xbf")

// RPYParser converts Ren'Py style script files into block documents.
type RPYParser struct {
	opts  Options
	trace func(filePath string) Tracer
}

// NewRPYParser creates a parser using the given line filters.
func NewRPYParser(opts Options) *RPYParser {
	return &RPYParser{opts: opts}
}

// WithTrace sets a factory returning the tracer for each parsed file.
func (p *RPYParser) WithTrace(fn func(filePath string) Tracer) *RPYParser {
	p.trace = fn
	return p
}

// Options returns the line filters the parser applies.
func (p *RPYParser) Options() Options { return p.opts }

func (p *RPYParser) CanParse(ext string) bool {
	return ext == ".rpy"
}

func (p *RPYParser) Parse(filePath string) (*ParseResult, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read rpy file: %w", err)
	}
	content = bytes.TrimPrefix(content, utf8BOM)
	hash := ContentHash(content)
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("decode rpy file %s: invalid UTF-8", filePath)
	}

	var tr Tracer
	if p.trace != nil {
		tr = p.trace(filePath)
	}

	script := string(content)
	lines := textutil.SplitLines(script)

	return &ParseResult{
		FilePath:    filePath,
		FileType:    "rpy",
		Document:    parseLines(lines, p.opts, tr),
		LineCount:   len(lines),
		ContentHash: hash,
	}, nil
}

// ContentHash is the hash Parse reports for a file with the given raw
// content. A leading UTF-8 byte order mark does not count.
func ContentHash(content []byte) string {
	return textutil.Hash(string(bytes.TrimPrefix(content, utf8BOM)))
}

// ParseScript converts script text into a Document. It never fails:
// lines matching no statement shape are dropped.
func ParseScript(script string, opts Options) Document {
	return parseLines(textutil.SplitLines(script), opts, nil)
}

// ParseScriptTrace is ParseScript reporting every line to tr.
func ParseScriptTrace(script string, opts Options, tr Tracer) Document {
	return parseLines(textutil.SplitLines(script), opts, tr)
}

func parseLines(lines []string, opts Options, tr Tracer) Document {
	p := newScriptParser(opts, tr)
	for i, raw := range lines {
		p.step(i+1, raw)
	}
	return p.finish()
}

type mode int

const (
	modeNone mode = iota
	// modeCode captures lines verbatim into python_code.
	modeCode
	// modeMenu collects menu options and their action lines.
	modeMenu
)

// scriptParser is the state of one parse: the output so far, the block
// being accumulated and the active capture mode.
type scriptParser struct {
	opts  Options
	trace Tracer
	doc   Document
	cur   *Block
	mode  mode
}

func newScriptParser(opts Options, tr Tracer) *scriptParser {
	return &scriptParser{
		opts:  opts,
		trace: tr,
		doc:   Document{},
		cur:   &Block{},
	}
}

func (p *scriptParser) step(n int, raw string) {
	if p.trace != nil {
		p.trace.Line(n, raw)
	}
	p.dispatch(raw, strings.TrimSpace(raw))
	if p.trace != nil {
		p.trace.Block(n, p.cur)
	}
}

func (p *scriptParser) dispatch(raw, line string) {
	switch p.mode {
	case modeCode:
		p.captureCode(raw, line)
		return
	case modeMenu:
		p.captureMenu(line)
		return
	}

	if p.opts.SkipComments && isComment(line) {
		return
	}
	if p.opts.SkipBlankLines && line == "" {
		return
	}

	for _, r := range rules {
		m := r.match(line)
		if m == nil {
			continue
		}
		if r.terminate {
			p.doc, p.cur = flush(p.doc, p.cur)
		}
		r.apply(p, m)
		return
	}
}

// captureCode appends the untrimmed line to python_code; a blank line ends
// the block and is consumed. Comment lines follow SkipComments as they do
// in menu capture.
func (p *scriptParser) captureCode(raw, line string) {
	if line == "" {
		p.mode = modeNone
		return
	}
	if p.opts.SkipComments && isComment(line) {
		return
	}
	p.cur.appendCode(raw)
}

// captureMenu handles one line inside a menu block. Lines before the first
// option are dropped.
func (p *scriptParser) captureMenu(line string) {
	if m := menuOptionPattern.FindStringSubmatch(line); m != nil {
		p.cur.addMenuOption(m[1])
		return
	}
	if line == "" {
		p.mode = modeNone
		return
	}
	if p.opts.SkipComments && isComment(line) {
		return
	}
	p.cur.addMenuAction(line)
}

func (p *scriptParser) finish() Document {
	p.doc, p.cur = flush(p.doc, p.cur)
	return p.doc
}

// flush returns doc with b appended when b holds at least one field, and a
// fresh accumulator to continue with.
func flush(doc Document, b *Block) (Document, *Block) {
	if !b.IsEmpty() {
		doc = append(doc, *b)
	}
	return doc, &Block{}
}
