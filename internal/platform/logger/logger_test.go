package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesServiceFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{
		Level:       "debug",
		Environment: "test",
		ServiceName: "be-doc-validations",
		Version:     "1.2.3",
		Output:      &buf,
	})

	log.Named("engine").Info().Str("document_id", "d1").Msg("Document fully approved")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "be-doc-validations", entry["service"])
	assert.Equal(t, "1.2.3", entry["version"])
	assert.Equal(t, "engine", entry["component"])
	assert.Equal(t, "d1", entry["document_id"])
	assert.Equal(t, "Document fully approved", entry["message"])
}

func TestNewDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "bogus", Output: &buf})

	log.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())

	log.Info().Msg("shown")
	assert.NotZero(t, buf.Len())
}
