package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFeatures(t *testing.T) {
	got, err := parseFeatures([]string{"quantity=3", " category =food", "note=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"quantity": 3.0,
		"category": "food",
		"note":     "a=b",
	}, got)

	_, err = parseFeatures([]string{"quantity"})
	assert.Error(t, err)
	_, err = parseFeatures([]string{"=3"})
	assert.Error(t, err)
}
