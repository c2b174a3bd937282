package hashutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashStringDeterministic(t *testing.T) {
	assert.Equal(t, HashString("tenant-a"), HashString("tenant-a"))
	assert.NotEqual(t, HashString("tenant-a"), HashString("tenant-b"))
}

func TestHashStringEmpty(t *testing.T) {
	assert.Equal(t, uint32(0), HashString(""))
}

func TestQueryDigestStable(t *testing.T) {
	params := []interface{}{1, "x"}
	assert.Equal(t, QueryDigest("SELECT 1", params), QueryDigest("SELECT 1", params))
	assert.NotEqual(t, QueryDigest("SELECT 1", params), QueryDigest("SELECT 2", params))
	assert.NotEqual(t,
		QueryDigest("SELECT 1", []interface{}{1, "x"}),
		QueryDigest("SELECT 1", []interface{}{"x", 1}))
}

func TestPolicyChecksumIsContentHash(t *testing.T) {
	a := PolicyChecksum([]byte(`{"version":1}`))
	b := PolicyChecksum([]byte(`{"version":1}`))
	c := PolicyChecksum([]byte(`{"version":2}`))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)
}
