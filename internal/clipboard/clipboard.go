// Package clipboard reads and writes the system clipboard through the
// platform's clipboard commands.
package clipboard

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// ErrUnavailable is returned when no clipboard command is installed.
var ErrUnavailable = errors.New("clipboard unavailable")

type direction int

const (
	read direction = iota
	write
)

// tool is one clipboard program and its arguments.
type tool struct {
	name string
	args []string
}

// tools lists, per GOOS and direction, the programs to try in order.
var tools = map[string]map[direction][]tool{
	"darwin": {
		read:  {{name: "pbpaste"}},
		write: {{name: "pbcopy"}},
	},
	"linux": {
		read: {
			{name: "wl-paste", args: []string{"--no-newline"}},
			{name: "xclip", args: []string{"-selection", "clipboard", "-o"}},
			{name: "xsel", args: []string{"--clipboard", "--output"}},
		},
		write: {
			{name: "wl-copy"},
			{name: "xclip", args: []string{"-selection", "clipboard"}},
			{name: "xsel", args: []string{"--clipboard", "--input"}},
		},
	},
}

// lookPath is replaced in tests.
var lookPath = exec.LookPath

// command returns the first installed tool for dir on goos.
func command(goos string, dir direction) (string, []string, error) {
	for _, t := range tools[goos][dir] {
		if _, err := lookPath(t.name); err == nil {
			return t.name, t.args, nil
		}
	}
	return "", nil, ErrUnavailable
}

// IsAvailable reports whether the clipboard can be read on this system.
func IsAvailable() bool {
	_, _, err := command(runtime.GOOS, read)
	return err == nil
}

// Read returns the clipboard text.
func Read() (string, error) {
	name, args, err := command(runtime.GOOS, read)
	if err != nil {
		return "", err
	}
	var out bytes.Buffer
	cmd := exec.Command(name, args...)
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("running %s: %w", name, err)
	}
	return out.String(), nil
}

// Copy replaces the clipboard text.
func Copy(text string) error {
	name, args, err := command(runtime.GOOS, write)
	if err != nil {
		return err
	}
	cmd := exec.Command(name, args...)
	cmd.Stdin = strings.NewReader(text)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("running %s: %w", name, err)
	}
	return nil
}
