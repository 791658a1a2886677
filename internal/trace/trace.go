// Package trace writes the parser's line-by-line diagnostic trace as JSON
// lines, optionally to a size-rotated file.
package trace

import (
	"io"

	"github.com/rs/zerolog"
	lj "gopkg.in/natefinch/lumberjack.v2"

	"rpy-converter/internal/parser"
)

// Log is a trace sink shared by every file of a run. It is safe for
// concurrent use as long as the underlying writer is.
type Log struct {
	logger zerolog.Logger
	closer io.Closer
}

// NewFileLog opens a rotating trace file at path. maxSizeMB <= 0 uses the
// lumberjack default.
func NewFileLog(path string, maxSizeMB int) *Log {
	w := &lj.Logger{Filename: path, MaxSize: maxSizeMB, MaxBackups: 3}
	l := NewLog(w)
	l.closer = w
	return l
}

// NewLog traces to w.
func NewLog(w io.Writer) *Log {
	return &Log{logger: zerolog.New(w).With().Timestamp().Logger()}
}

// ForFile returns a tracer tagging every event with filePath. Its signature
// matches parser.RPYParser.WithTrace.
func (l *Log) ForFile(filePath string) parser.Tracer {
	return &fileTracer{logger: l.logger.With().Str("file", filePath).Logger()}
}

// Close releases the trace file, if any.
func (l *Log) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

type fileTracer struct {
	logger zerolog.Logger
}

func (t *fileTracer) Line(n int, raw string) {
	t.logger.Log().Str("event", "line").Int("line", n).Str("raw", raw).Send()
}

func (t *fileTracer) Block(n int, b *parser.Block) {
	data, err := b.MarshalJSON()
	if err != nil {
		t.logger.Log().Str("event", "block").Int("line", n).Err(err).Send()
		return
	}
	t.logger.Log().Str("event", "block").Int("line", n).RawJSON("block", data).Send()
}
