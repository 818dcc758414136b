package cli

import (
	"strings"
	"testing"

	"github.com/c-bata/go-prompt"
	"github.com/stretchr/testify/assert"
)

func TestRunLines(t *testing.T) {
	t.Parallel()

	var got []string
	exec := func(line string) { got = append(got, line) }
	exit := func() bool { return len(got) != 0 && got[len(got)-1] == "quit" }
	RunLines(strings.NewReader("temp\n\n  blink 3 \nquit\nstate\n"), exec, exit)
	assert.Equal(t, []string{"temp", "blink 3", "quit"}, got)
}

func TestSuggests(t *testing.T) {
	t.Parallel()

	complete := Suggests([]prompt.Suggest{{Text: "blink"}, {Text: "temp"}, {Text: "threshold"}})
	buf := prompt.NewBuffer()
	buf.InsertText("th", false, true)
	ss := complete(*buf.Document())
	if assert.Len(t, ss, 1) {
		assert.Equal(t, "threshold", ss[0].Text)
	}

	buf.InsertText("reshold u", false, true)
	assert.Len(t, complete(*buf.Document()), 0)
}
