package graph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rpy-converter/internal/parser"
)

const chapterOne = `label start:
    e "Hello."
    m "Hi!"
    e "Ready?"
    menu:
        "Yes":
            jump chapter_two
        "No":
            call sulk
            jump expression next_label

    call intro
    jump chapter_two

label intro:
    m "Intro."
    return

label orphan:
    "Nobody comes here."
`

const chapterTwo = `label chapter_two:
    e "Part two."
    jump ending
`

func flowOf(file, script string) *Flow {
	return BuildFlow(file, parser.ParseScript(script, parser.Options{}))
}

func TestBuildFlow(t *testing.T) {
	f := flowOf("one.rpy", chapterOne)

	var names []string
	for _, l := range f.Labels {
		names = append(names, l.Name)
		assert.Equal(t, "one.rpy", l.File)
	}
	assert.Equal(t, []string{"start", "intro", "orphan"}, names)

	assert.Equal(t, []Edge{
		{From: "start", To: "chapter_two", Kind: EdgeChoice, Option: "Yes", File: "one.rpy"},
		{From: "start", To: "sulk", Kind: EdgeChoice, Option: "No", File: "one.rpy"},
		{From: "start", To: "intro", Kind: EdgeCall, File: "one.rpy"},
		{From: "start", To: "chapter_two", Kind: EdgeJump, File: "one.rpy"},
	}, f.Edges)

	assert.Equal(t, []string{"e", "m"}, f.Speakers["start"])
	assert.Equal(t, []string{"m"}, f.Speakers["intro"])
	assert.NotContains(t, f.Speakers, "orphan", "narration has no speaker")
}

func TestBuildFlowBeforeFirstLabel(t *testing.T) {
	f := flowOf("init.rpy", "jump start\ne \"Orphan line\"\n")
	require.Len(t, f.Edges, 1)
	assert.Equal(t, "", f.Edges[0].From)
	assert.Empty(t, f.Speakers)
}

func TestStaticTarget(t *testing.T) {
	to, ok := staticTarget("ending")
	assert.True(t, ok)
	assert.Equal(t, "ending", to)

	_, ok = staticTarget("expression \"ch\" + str(n)")
	assert.False(t, ok)
	_, ok = staticTarget("")
	assert.False(t, ok)
}

func TestMergeAndCheck(t *testing.T) {
	f := Merge(
		flowOf("one.rpy", chapterOne),
		flowOf("two.rpy", chapterTwo),
		flowOf("dup.rpy", "label intro:\n    return\n"),
	)

	assert.Len(t, f.Labels, 5)
	assert.Equal(t, []Finding{
		{Kind: DuplicateLabel, Label: "intro", File: "dup.rpy"},
		{Kind: DuplicateLabel, Label: "intro", File: "one.rpy"},
		{Kind: MissingTarget, Label: "ending", File: "two.rpy", From: "chapter_two"},
		{Kind: MissingTarget, Label: "sulk", File: "one.rpy", From: "start"},
		{Kind: UnreferencedLabel, Label: "orphan", File: "one.rpy"},
	}, Check(f))
}

func TestCheckCleanFlow(t *testing.T) {
	f := flowOf("a.rpy", "label start:\n    jump end\nlabel end:\n    return\n")
	assert.Empty(t, Check(f))
}

func TestFlowStatements(t *testing.T) {
	f := flowOf("one.rpy", "jump start\nlabel start:\n    e \"Hi\"\n    jump next\n")
	stmts := flowStatements(f)

	require.Len(t, stmts, 3, "label, one edge with a source, one speaker")
	assert.Equal(t, map[string]any{"name": "start", "file": "one.rpy", "block": 1}, stmts[0].params)
	assert.True(t, strings.Contains(stmts[1].cypher, "[r:JUMPS_TO"))
	assert.Equal(t, "next", stmts[1].params["to"])
	assert.Contains(t, stmts[2].cypher, "SPEAKS_IN")
	assert.Equal(t, "e", stmts[2].params["speaker"])
}
