package graph

import (
	"regexp"
	"sort"
	"strings"

	"rpy-converter/internal/parser"
)

// EdgeKind is the relationship type between two labels.
type EdgeKind string

const (
	EdgeJump   EdgeKind = "JUMPS_TO"
	EdgeCall   EdgeKind = "CALLS"
	EdgeChoice EdgeKind = "CHOICE"
)

// EntryLabels are reached by the engine itself and never need a reference.
var EntryLabels = []string{
	"start", "main_menu", "before_main_menu", "splashscreen",
	"after_load", "after_warp", "quit",
}

// LabelDef is a label declaration.
type LabelDef struct {
	Name  string
	File  string
	Block int
}

// Edge is a control transfer. From is empty for transfers that occur before
// the first label of a file.
type Edge struct {
	From   string
	To     string
	Kind   EdgeKind
	Option string
	File   string
}

// Flow is the label graph of one or more documents.
type Flow struct {
	Labels   []LabelDef
	Edges    []Edge
	Speakers map[string][]string // label → speakers in first-seen order
}

var actionTarget = regexp.MustCompile(`^(jump|call)\s+(\S+)`)

// BuildFlow extracts labels, jumps, calls, menu choices and speakers from doc.
func BuildFlow(file string, doc parser.Document) *Flow {
	f := &Flow{Speakers: make(map[string][]string)}
	current := ""

	for i := range doc {
		b := &doc[i]
		if name := b.Text(parser.KeyLabel); name != "" {
			current = name
			f.Labels = append(f.Labels, LabelDef{Name: name, File: file, Block: i})
		}
		if speaker := b.Text(parser.KeyChar); speaker != "" && current != "" {
			f.addSpeaker(current, speaker)
		}
		for _, opt := range b.Menu() {
			for _, action := range opt.Actions {
				if m := actionTarget.FindStringSubmatch(action); m != nil && m[2] != "expression" {
					f.Edges = append(f.Edges, Edge{From: current, To: m[2], Kind: EdgeChoice, Option: opt.Option, File: file})
				}
			}
		}
		if to, ok := staticTarget(b.Text(parser.KeyCall)); ok {
			f.Edges = append(f.Edges, Edge{From: current, To: to, Kind: EdgeCall, File: file})
		}
		if to, ok := staticTarget(b.Text(parser.KeyJump)); ok {
			f.Edges = append(f.Edges, Edge{From: current, To: to, Kind: EdgeJump, File: file})
		}
	}
	return f
}

// staticTarget returns the label named by a jump/call argument. Computed
// targets ("expression ...") and empty arguments have none.
func staticTarget(arg string) (string, bool) {
	fields := strings.Fields(arg)
	if len(fields) == 0 || fields[0] == "expression" {
		return "", false
	}
	return fields[0], true
}

func (f *Flow) addSpeaker(label, speaker string) {
	for _, s := range f.Speakers[label] {
		if s == speaker {
			return
		}
	}
	f.Speakers[label] = append(f.Speakers[label], speaker)
}

// Merge combines flows of several files into one.
func Merge(flows ...*Flow) *Flow {
	out := &Flow{Speakers: make(map[string][]string)}
	for _, f := range flows {
		out.Labels = append(out.Labels, f.Labels...)
		out.Edges = append(out.Edges, f.Edges...)
		for label, speakers := range f.Speakers {
			for _, s := range speakers {
				out.addSpeaker(label, s)
			}
		}
	}
	return out
}

// FindingKind classifies a flow problem.
type FindingKind string

const (
	MissingTarget     FindingKind = "missing_target"
	DuplicateLabel    FindingKind = "duplicate_label"
	UnreferencedLabel FindingKind = "unreferenced_label"
)

// Finding is one problem found by Check.
type Finding struct {
	Kind  FindingKind
	Label string
	File  string
	From  string
}

// Check reports transfers to undefined labels, labels declared more than
// once and labels nothing transfers to. Results are sorted.
func Check(f *Flow) []Finding {
	var findings []Finding

	defined := make(map[string][]LabelDef)
	for _, l := range f.Labels {
		defined[l.Name] = append(defined[l.Name], l)
	}
	referenced := make(map[string]bool)
	for _, e := range f.Edges {
		referenced[e.To] = true
		if _, ok := defined[e.To]; !ok {
			findings = append(findings, Finding{Kind: MissingTarget, Label: e.To, File: e.File, From: e.From})
		}
	}

	entries := make(map[string]bool, len(EntryLabels))
	for _, name := range EntryLabels {
		entries[name] = true
	}

	for name, defs := range defined {
		if len(defs) > 1 {
			for _, d := range defs {
				findings = append(findings, Finding{Kind: DuplicateLabel, Label: name, File: d.File})
			}
		}
		if !referenced[name] && !entries[name] {
			findings = append(findings, Finding{Kind: UnreferencedLabel, Label: name, File: defs[0].File})
		}
	}

	sort.Slice(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Label != b.Label {
			return a.Label < b.Label
		}
		if a.File != b.File {
			return a.File < b.File
		}
		return a.From < b.From
	})
	return findings
}
