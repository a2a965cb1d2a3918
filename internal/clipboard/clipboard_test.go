package clipboard

import (
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withInstalled(t *testing.T, names ...string) {
	t.Helper()
	installed := make(map[string]bool)
	for _, n := range names {
		installed[n] = true
	}
	orig := lookPath
	lookPath = func(name string) (string, error) {
		if installed[name] {
			return "/usr/bin/" + name, nil
		}
		return "", exec.ErrNotFound
	}
	t.Cleanup(func() { lookPath = orig })
}

func TestCommand(t *testing.T) {
	tests := []struct {
		name      string
		goos      string
		installed []string
		dir       direction
		wantName  string
		wantArgs  []string
	}{
		{"darwin read", "darwin", []string{"pbpaste", "pbcopy"}, read, "pbpaste", nil},
		{"darwin write", "darwin", []string{"pbpaste", "pbcopy"}, write, "pbcopy", nil},
		{"wayland first", "linux", []string{"wl-paste", "xclip"}, read, "wl-paste", []string{"--no-newline"}},
		{"xclip read", "linux", []string{"xclip"}, read, "xclip", []string{"-selection", "clipboard", "-o"}},
		{"xclip write", "linux", []string{"xclip"}, write, "xclip", []string{"-selection", "clipboard"}},
		{"xsel fallback", "linux", []string{"xsel"}, write, "xsel", []string{"--clipboard", "--input"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withInstalled(t, tt.installed...)
			name, args, err := command(tt.goos, tt.dir)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestCommand_Unavailable(t *testing.T) {
	withInstalled(t)
	_, _, err := command("linux", read)
	assert.ErrorIs(t, err, ErrUnavailable)

	withInstalled(t, "pbpaste")
	_, _, err = command("windows", read)
	assert.ErrorIs(t, err, ErrUnavailable)
}
