package shell

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/psaab/bessctl/pkg/cmdtree"
)

// completeTimeout bounds the engine listings one completion may issue.
const completeTimeout = 2 * time.Second

// Completer adapts a command registry to readline's AutoCompleter.
type Completer struct {
	sess *Session
	reg  *cmdtree.Registry
}

var _ readline.AutoCompleter = (*Completer)(nil)

// NewCompleter returns a completer for reg in sess.
func NewCompleter(sess *Session, reg *cmdtree.Registry) *Completer {
	return &Completer{sess: sess, reg: reg}
}

func (c *Completer) out() io.Writer {
	if c.sess.Editor != nil {
		return c.sess.Editor.Stdout()
	}
	return c.sess.Out
}

func (c *Completer) candidates(text string) []cmdtree.Candidate {
	ctx, cancel := context.WithTimeout(context.Background(), completeTimeout)
	defer cancel()
	cands, err := c.reg.Complete(ctx, text, c.sess)
	if err != nil {
		slog.Debug("completion failed", "line", text, "err", err)
		return nil
	}
	return cands
}

// Do implements readline.AutoCompleter. A single candidate is inserted
// followed by a space (directories excepted); several candidates are
// listed above the prompt and their common prefix is inserted.
func (c *Completer) Do(line []rune, pos int) ([][]rune, int) {
	if !c.sess.Completing() {
		return nil, 0
	}
	text := string(line[:pos])
	partial := cmdtree.PartialWord(text)

	cands := c.candidates(text)
	if len(cands) == 0 {
		return nil, 0
	}

	if len(cands) == 1 {
		suffix := cands[0].Name[len(partial):]
		if !strings.HasSuffix(suffix, "/") {
			suffix += " "
		}
		return [][]rune{[]rune(suffix)}, len(partial)
	}

	// Multiple matches: show descriptions above prompt.
	names := make([]string, len(cands))
	for i, cand := range cands {
		names[i] = cand.Name
	}
	cmdtree.WriteHelp(c.out(), cands)

	cp := cmdtree.CommonPrefix(names)
	suffix := cp[len(partial):]
	if suffix == "" {
		return nil, 0
	}
	return [][]rune{[]rune(suffix)}, len(partial)
}

// HelpListener lists the candidates for the cursor position when '?' is
// typed, then removes the '?' from the line.
func (c *Completer) HelpListener() readline.Listener {
	return readline.FuncListener(func(line []rune, pos int, key rune) ([]rune, int, bool) {
		if key != '?' || pos < 1 || !c.sess.Completing() {
			return line, pos, false
		}
		// Strip the '?' that readline already inserted.
		cleanLine := make([]rune, 0, len(line)-1)
		cleanLine = append(cleanLine, line[:pos-1]...)
		cleanLine = append(cleanLine, line[pos:]...)
		text := string(cleanLine[:pos-1])

		cands := c.candidates(text)
		if len(cands) == 0 {
			fmt.Fprintln(c.out(), "  (no help available)")
			return cleanLine, pos - 1, true
		}
		cmdtree.WriteHelp(c.out(), cands)
		return cleanLine, pos - 1, true
	})
}

// NewReadlineEditor creates the interactive line editor for sess, with
// completion from reg and the history file from the settings.
func NewReadlineEditor(sess *Session, reg *cmdtree.Registry) (*readline.Instance, error) {
	c := NewCompleter(sess, reg)
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          sess.Prompt(),
		HistoryFile:     sess.Settings.HistoryFile,
		HistoryLimit:    sess.Settings.HistorySize,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		AutoComplete:    c,
		Listener:        c.HelpListener(),
	})
	if err != nil {
		return nil, fmt.Errorf("readline init: %w", err)
	}
	return rl, nil
}
