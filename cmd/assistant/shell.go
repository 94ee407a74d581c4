package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// terminalShell renders shell interactions on stdout/stdin.
type terminalShell struct {
	in  *bufio.Reader
	out io.Writer
}

func newTerminalShell() *terminalShell {
	return &terminalShell{in: bufio.NewReader(os.Stdin), out: os.Stdout}
}

func (t *terminalShell) ShowDocument(path string) {
	fmt.Fprintf(t.out, "opened %s\n", path)
}

func (t *terminalShell) Confirm(ctx context.Context, message string) bool {
	fmt.Fprintf(t.out, "%s [y/N]: ", message)
	answerCh := make(chan string, 1)
	go func() {
		line, err := t.in.ReadString('\n')
		if err != nil {
			answerCh <- ""
			return
		}
		answerCh <- strings.ToLower(strings.TrimSpace(line))
	}()
	select {
	case answer := <-answerCh:
		return answer == "y" || answer == "yes"
	case <-ctx.Done():
		return false
	}
}

func (t *terminalShell) Info(message string)  { fmt.Fprintln(t.out, message) }
func (t *terminalShell) Warn(message string)  { fmt.Fprintln(t.out, "warning:", message) }
func (t *terminalShell) Error(message string) { fmt.Fprintln(t.out, "error:", message) }
