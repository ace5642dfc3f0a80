package flagx

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name         string
		args         []string
		allowedFlags []string
		want         []string
	}{
		{
			name:         "short flag with separate value",
			args:         []string{"-home", "/tmp/okp", "-x", "1"},
			allowedFlags: []string{"-home", "--home"},
			want:         []string{"-home", "/tmp/okp"},
		},
		{
			name:         "long flag with equals",
			args:         []string{"--home=/tmp/okp", "-x", "1"},
			allowedFlags: []string{"-home", "--home"},
			want:         []string{"--home=/tmp/okp"},
		},
		{
			name:         "unknown flags ignored",
			args:         []string{"-x", "1", "--y=2", "positional"},
			allowedFlags: []string{"-home"},
			want:         []string{},
		},
		{
			name:         "flag without value at end",
			args:         []string{"-home"},
			allowedFlags: []string{"-home"},
			want:         []string{"-home"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, tt.allowedFlags))
		})
	}
}

func TestStringFlag(t *testing.T) {
	origArgs := os.Args
	defer func() { os.Args = origArgs }()

	os.Args = []string{"okpcli", "-d", "/data/okp", "-other", "junk"}
	assert.Equal(t, "/data/okp", StringFlag("dir", "d", "data directory"))

	os.Args = []string{"okpcli", "--dir=/data/alt"}
	assert.Equal(t, "/data/alt", StringFlag("dir", "d", "data directory"))

	os.Args = []string{"okpcli"}
	assert.Equal(t, "", StringFlag("dir", "d", "data directory"))
}
