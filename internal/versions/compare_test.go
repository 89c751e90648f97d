package versions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAtLeast(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		version  string
		minimum  string
		expected bool
	}{
		{name: "newer major", version: "1.0.0", minimum: "0.16.0", expected: true},
		{name: "newer minor", version: "0.27.0", minimum: "0.16.0", expected: true},
		{name: "equal", version: "0.16.0", minimum: "0.16.0", expected: true},
		{name: "older minor", version: "0.15.3", minimum: "0.16.0", expected: false},
		{name: "prerelease of minimum", version: "0.16.0-rc.0", minimum: "0.16.0", expected: false},
		{name: "v prefix", version: "v0.28.1", minimum: "0.16.0", expected: true},
		{name: "short version", version: "0.20", minimum: "0.16.0", expected: true},
		{name: "not semver", version: "main-abcdef", minimum: "0.16.0", expected: false},
		{name: "empty version", version: "", minimum: "0.16.0", expected: false},
		{name: "invalid minimum", version: "1.0.0", minimum: "latest", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, AtLeast(tt.version, tt.minimum))
		})
	}
}
