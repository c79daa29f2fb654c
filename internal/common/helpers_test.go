package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyValueCSV(t *testing.T) {
	got, err := ParseKeyValueCSV(" starter:100, popular:550 ,")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"starter": 100, "popular": 550}, got)

	got, err = ParseKeyValueCSV("")
	require.NoError(t, err)
	assert.Empty(t, got)

	for _, bad := range []string{"starter", ":100", "starter:abc"} {
		_, err := ParseKeyValueCSV(bad)
		assert.Error(t, err, bad)
	}
}

func TestLoadLocationFallback(t *testing.T) {
	assert.Equal(t, time.UTC, LoadLocation(""))
	assert.Equal(t, time.UTC, LoadLocation("Nowhere/Special"))
}
