package osutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCgroupMemoryLimit(t *testing.T) {
	limit, ok := parseCgroupMemoryLimit("536870912\n")
	assert.True(t, ok)
	assert.EqualValues(t, 536870912, limit)

	for _, unrestricted := range []string{"max\n", "9223372036854771712\n", "0", "garbage"} {
		_, ok := parseCgroupMemoryLimit(unrestricted)
		assert.False(t, ok, unrestricted)
	}
}

func TestGetTotalMemory(t *testing.T) {
	assert.NotZero(t, GetTotalMemory())
}
