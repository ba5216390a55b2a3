// source.go - Command sources for the debug monitor
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package monitor

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/chzyer/readline"
)

// CommandSource yields one command line per call. io.EOF ends the session.
type CommandSource interface {
	Next() (string, error)
}

// LineSource replays a fixed script.
type LineSource struct {
	lines []string
	pos   int
}

func NewLineSource(lines ...string) *LineSource {
	return &LineSource{lines: lines}
}

func (s *LineSource) Next() (string, error) {
	if s.pos >= len(s.lines) {
		return "", io.EOF
	}
	s.pos++
	return s.lines[s.pos-1], nil
}

// ReaderSource reads newline separated commands, printing Prompt to Out
// before each one when both are set.
type ReaderSource struct {
	Prompt string
	Out    io.Writer

	sc *bufio.Scanner
}

func NewReaderSource(r io.Reader) *ReaderSource {
	return &ReaderSource{sc: bufio.NewScanner(r)}
}

func (s *ReaderSource) Next() (string, error) {
	if s.Out != nil && s.Prompt != "" {
		fmt.Fprint(s.Out, s.Prompt)
	}
	if !s.sc.Scan() {
		if err := s.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return s.sc.Text(), nil
}

// ReadlineSource reads from an interactive terminal with line editing and
// history.
type ReadlineSource struct {
	rl *readline.Instance
}

func NewReadlineSource(prompt, historyFile string) (*ReadlineSource, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "q",
	})
	if err != nil {
		return nil, fmt.Errorf("readline: %w", err)
	}
	return &ReadlineSource{rl: rl}, nil
}

func (s *ReadlineSource) Next() (string, error) {
	line, err := s.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		return "q", nil
	}
	return line, err
}

// Stdout is the terminal writer that keeps the prompt intact.
func (s *ReadlineSource) Stdout() io.Writer {
	return s.rl.Stdout()
}

func (s *ReadlineSource) Close() error {
	return s.rl.Close()
}
