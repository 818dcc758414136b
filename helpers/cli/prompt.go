// Package cli runs line oriented interactive console.
package cli

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/mattn/go-isatty"
)

type ExecFunc = func(line string)
type CompleteFunc = func(d prompt.Document) []prompt.Suggest

// MainLoop reads commands until input ends or exit returns true.
// Terminal gets go-prompt with completion, piped stdin is executed line by line.
func MainLoop(tag string, exec ExecFunc, complete CompleteFunc, exit func() bool) {
	if isatty.IsTerminal(os.Stdin.Fd()) {
		prompt.New(exec, complete,
			prompt.OptionTitle(tag),
			prompt.OptionPrefix(tag+"> "),
			prompt.OptionSetExitCheckerOnInput(func(string, bool) bool { return exit() }),
		).Run()
		return
	}
	RunLines(os.Stdin, exec, exit)
}

func RunLines(r io.Reader, exec ExecFunc, exit func() bool) {
	scan := bufio.NewScanner(r)
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		if line == "" {
			continue
		}
		exec(line)
		if exit() {
			return
		}
	}
}

// Suggests builds filter over fixed word list.
func Suggests(ss []prompt.Suggest) CompleteFunc {
	return func(d prompt.Document) []prompt.Suggest {
		if strings.Contains(d.TextBeforeCursor(), " ") {
			return nil
		}
		return prompt.FilterFuzzy(ss, d.GetWordBeforeCursor(), true)
	}
}
