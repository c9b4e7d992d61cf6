package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// console is the operator's terminal. On a TTY it switches to raw mode and
// edits lines with x/term, so messages from the worker can be printed while
// the operator types. Otherwise it reads plain lines, which lets sessions be
// scripted through a pipe.
type console struct {
	mu  sync.Mutex
	out io.Writer

	fd       int
	oldState *term.State
	t        *term.Terminal
	lines    *bufio.Scanner
	color    bool
}

func newConsole(in io.Reader, out io.Writer) *console {
	c := &console{out: out}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if runtime.GOOS == "windows" {
			enableVT()
		}
		c.fd = int(f.Fd())
		oldState, err := term.MakeRaw(c.fd)
		if err == nil {
			c.oldState = oldState
			c.t = term.NewTerminal(struct {
				io.Reader
				io.Writer
			}{in, out}, promptLine(""))
			c.color = true
			return c
		}
		log.WithError(err).Debug("line editing not supported on this terminal")
	}
	c.lines = bufio.NewScanner(in)
	return c
}

func promptLine(p string) string {
	if p == "" {
		return "> "
	}
	return "[" + p + "] > "
}

// Close restores the terminal to cooked mode.
func (c *console) Close() {
	if c.oldState != nil {
		term.Restore(c.fd, c.oldState)
		c.oldState = nil
		fmt.Fprintln(c.out)
	}
}

// Write is safe to call from any goroutine.
func (c *console) Write(p []byte) (int, error) {
	if c.t != nil {
		return c.t.Write(p)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Write(p)
}

func (c *console) SetPrompt(p string) {
	if c.t != nil {
		c.t.SetPrompt(promptLine(p))
	}
}

func (c *console) print(color, msg string) {
	if c.color {
		fmt.Fprintf(c, "%s%s%s\n", color, msg, colorReset)
		return
	}
	fmt.Fprintln(c, msg)
}

// Info implements controller.Reporter.
func (c *console) Info(msg string) { c.print(colorGreen, msg) }

// Error implements controller.Reporter.
func (c *console) Error(msg string) { c.print(colorRed, msg) }

func (c *console) readLine() (string, error) {
	if c.t != nil {
		return c.t.ReadLine()
	}
	if !c.lines.Scan() {
		if err := c.lines.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return c.lines.Text(), nil
}

// Loop feeds each line to handle until it asks to quit, input ends or ctx
// is done. Command errors are shown and the loop continues.
func (c *console) Loop(ctx context.Context, handle func(ctx context.Context, line string) (bool, error)) error {
	for ctx.Err() == nil {
		line, err := c.readLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		quit, err := handle(ctx, line)
		if err != nil {
			c.Error(err.Error())
		}
		if quit {
			return nil
		}
	}
	return nil
}
