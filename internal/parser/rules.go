package parser

import (
	"regexp"
	"strings"
)

// ident matches a script identifier: Unicode letters, digits and underscore.
const ident = `[\p{L}\p{N}_]+`

// space matches one Unicode whitespace rune, including NBSP and the
// ideographic space, like the trim applied to every line.
const space = `[\s\p{Z}\x{85}]`

// Statement patterns. All are anchored at the start of the trimmed line
// only; text after a complete match is ignored.
var (
	labelPattern      = regexp.MustCompile(`^label` + space + `+(` + ident + `):`)
	scenePattern      = regexp.MustCompile(`^scene` + space + `+(.+)`)
	showPattern       = regexp.MustCompile(`^show` + space + `+(.+)`)
	hidePattern       = regexp.MustCompile(`^hide` + space + `+(.+)`)
	withPattern       = regexp.MustCompile(`^with` + space + `+(.+)`)
	playPattern       = regexp.MustCompile(`^play` + space + `+(music|sound)` + space + `+(.+)`)
	stopPattern       = regexp.MustCompile(`^stop` + space + `+(music|sound)(` + space + `+.+)?`)
	imageDefPattern   = regexp.MustCompile(`^image` + space + `+(.+?)` + space + `*=` + space + `*(.+)`)
	charDialogPattern = regexp.MustCompile(`^(` + ident + `)` + space + `+"(.+)"`)
	narratorPattern   = regexp.MustCompile(`^"(.+)"`)
	menuOptionPattern = regexp.MustCompile(`^"(.+)":$`)
	transitionPattern = regexp.MustCompile(`^(` + ident + `)` + space + `+(.+)`)
	variablePattern   = regexp.MustCompile(`^\$` + space + `*(.+?)` + space + `*=` + space + `*(.+)`)
	jumpPattern       = regexp.MustCompile(`^jump` + space + `+(.+)`)
	callPattern       = regexp.MustCompile(`^call` + space + `+(.+)`)
	positionalPattern = regexp.MustCompile(`^(at|zorder|xpos|ypos|xanchor|yanchor)` + space + `+(.+)`)
	attributePattern  = regexp.MustCompile(`^(alpha|rotate|zoom|offset)` + space + `+(.+)`)
)

const (
	commentMarker = "#"
	codeOpener    = "python:"
	menuOpener    = "menu:"
	returnLiteral = "return"
)

// transitionTypes is the closed set of words treated as a transition
// statement. Any other leading word falls through.
var transitionTypes = map[string]bool{
	"dissolve":     true,
	"fade":         true,
	"moveinright":  true,
	"moveinleft":   true,
	"moveoutright": true,
	"moveoutleft":  true,
}

// rule is one statement shape. A terminating rule flushes the current block
// before apply runs; an attaching rule writes into the current block.
type rule struct {
	name      string
	terminate bool
	match     func(line string) []string
	apply     func(p *scriptParser, m []string)
}

// rules are tried in order and the first match wins. Dialogue comes after
// every other terminating statement, and character dialogue before narrator
// dialogue since a quoted string alone is a suffix of the former.
var rules = []rule{
	{name: "label", terminate: true, match: matchPattern(labelPattern), apply: setField(KeyLabel)},
	{name: "scene", terminate: true, match: matchPattern(scenePattern), apply: setField(KeyNewBackground)},
	{name: "show", terminate: true, match: matchPattern(showPattern), apply: setField(KeyShow)},
	{name: "hide", terminate: true, match: matchPattern(hidePattern), apply: setField(KeyHide)},
	{name: "with", match: matchPattern(withPattern), apply: setField(KeyWith)},
	{name: "play", match: matchPattern(playPattern), apply: func(p *scriptParser, m []string) {
		p.cur.Set("play_"+m[1], m[2])
	}},
	{name: "stop", match: matchPattern(stopPattern), apply: func(p *scriptParser, m []string) {
		var v any = true
		if arg := strings.TrimSpace(m[2]); arg != "" {
			v = arg
		}
		p.cur.Set("stop_"+m[1], v)
	}},
	{name: "menu", terminate: true, match: matchExact(menuOpener), apply: func(p *scriptParser, _ []string) {
		p.cur.Set(KeyMenu, []MenuOption{})
		p.mode = modeMenu
	}},
	{name: "python", match: matchExact(codeOpener), apply: func(p *scriptParser, _ []string) {
		p.cur.Set(KeyPythonCode, "")
		p.mode = modeCode
	}},
	{name: "image", terminate: true, match: matchPattern(imageDefPattern), apply: func(p *scriptParser, m []string) {
		p.cur.Set(KeyImageDef, ImageDef{Name: m[1], Value: m[2]})
	}},
	{name: "char_dialogue", terminate: true, match: matchPattern(charDialogPattern), apply: func(p *scriptParser, m []string) {
		p.cur.Set(KeyChar, m[1])
		p.cur.Set(KeyContent, m[2])
	}},
	{name: "narrator_dialogue", terminate: true, match: matchPattern(narratorPattern), apply: setField(KeyContent)},
	{name: "transition", match: matchTransition, apply: func(p *scriptParser, m []string) {
		p.cur.Set(KeyTransition, Transition{Type: m[1], Duration: m[2]})
	}},
	{name: "variable", match: matchPattern(variablePattern), apply: func(p *scriptParser, m []string) {
		p.cur.Set(KeyVariable, Variable{Name: m[1], Value: m[2]})
	}},
	{name: "jump", match: matchPattern(jumpPattern), apply: setField(KeyJump)},
	{name: "call", match: matchPattern(callPattern), apply: setField(KeyCall)},
	{name: "return", match: matchExact(returnLiteral), apply: func(p *scriptParser, _ []string) {
		p.cur.Set(KeyReturn, true)
	}},
	{name: "positional", match: matchPattern(positionalPattern), apply: setKeyed},
	{name: "attribute", match: matchPattern(attributePattern), apply: setKeyed},
}

func matchPattern(re *regexp.Regexp) func(string) []string {
	return re.FindStringSubmatch
}

func matchExact(literal string) func(string) []string {
	return func(line string) []string {
		if line == literal {
			return []string{line}
		}
		return nil
	}
}

func matchTransition(line string) []string {
	m := transitionPattern.FindStringSubmatch(line)
	if m == nil || !transitionTypes[m[1]] {
		return nil
	}
	return m
}

// setField stores the first capture group under key.
func setField(key string) func(*scriptParser, []string) {
	return func(p *scriptParser, m []string) {
		p.cur.Set(key, m[1])
	}
}

// setKeyed stores the second capture group under the key named by the first.
func setKeyed(p *scriptParser, m []string) {
	p.cur.Set(m[1], m[2])
}

func isComment(line string) bool {
	return strings.HasPrefix(line, commentMarker)
}
