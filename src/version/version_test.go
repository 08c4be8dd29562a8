package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Release builds carry no flag.
func TestFlagEmpty(t *testing.T) {
	if len(Flag) > 0 {
		t.Fatalf("Version Flag is not empty: %s", Flag)
	}
}

func TestVersionPrefix(t *testing.T) {
	if !strings.HasPrefix(Version, "0.1.0") {
		t.Fatalf("unexpected version %s", Version)
	}
}

func TestBuild(t *testing.T) {
	assert.Equal(t, "0.1.0", build("0.1.0", "", ""))
	assert.Equal(t, "0.1.0-rc1", build("0.1.0", "rc1", ""))
	assert.Equal(t, "0.1.0-rc1-0123abcd", build("0.1.0", "rc1", "0123abcdef99"))
	assert.Equal(t, "0.1.0", build("0.1.0", "", "short"))
}
