// Package search indexes script dialogue as embeddings in PostgreSQL
// (pgvector) and answers similarity queries over it.
package search

import (
	"strconv"

	"rpy-converter/internal/parser"
	"rpy-converter/internal/textutil"
)

// DialogueLine is one spoken or narrated line of a document.
type DialogueLine struct {
	Hash    string
	File    string
	Label   string
	Speaker string // empty for narration
	Content string
	Block   int
}

// ExtractDialogue returns every dialogue line of doc with the label it
// appears under.
func ExtractDialogue(file string, doc parser.Document) []DialogueLine {
	var lines []DialogueLine
	label := ""
	for i := range doc {
		b := &doc[i]
		if name := b.Text(parser.KeyLabel); name != "" {
			label = name
		}
		content := b.Text(parser.KeyContent)
		if content == "" {
			continue
		}
		lines = append(lines, DialogueLine{
			Hash:    textutil.Hash(file + "\x00" + strconv.Itoa(i) + "\x00" + content),
			File:    file,
			Label:   label,
			Speaker: b.Text(parser.KeyChar),
			Content: content,
			Block:   i,
		})
	}
	return lines
}

// embedText is what gets embedded for a line: the speaker gives the model
// context for otherwise short utterances.
func embedText(l DialogueLine) string {
	if l.Speaker == "" {
		return l.Content
	}
	return l.Speaker + ": " + l.Content
}
