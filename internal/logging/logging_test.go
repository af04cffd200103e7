package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJSONLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn", "json")

	log.Info().Msg("hidden")
	log.Warn().Str("component", "scheduler").Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"component":"scheduler"`)
	assert.Contains(t, out, `"level":"warn"`)
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "loud", "json")
	log.Debug().Msg("d-line")
	log.Info().Msg("i-line")
	assert.NotContains(t, buf.String(), "d-line")
	assert.Contains(t, buf.String(), "i-line")
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "abc", Preview("  abc ", 5))
	assert.Equal(t, "приве...", Preview("привет мир", 5))
}
