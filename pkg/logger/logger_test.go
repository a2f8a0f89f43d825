package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_UnknownLevelFallsBackToInfo(t *testing.T) {
	Init("not-a-real-level", false)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestInit_SetsGlobalLevel(t *testing.T) {
	Init("warn", false)
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	Init("info", false) // restore for other tests in the package
}

func TestComponent_TagsComponentField(t *testing.T) {
	Init("info", false)

	var buf bytes.Buffer
	base = zerolog.New(&buf).With().Timestamp().Logger()

	Component("pool").Info().Msg("handle opened")

	require.Contains(t, buf.String(), `"component":"pool"`)
	assert.Contains(t, buf.String(), "handle opened")
}

func TestBase_ReturnsProcessWideLogger(t *testing.T) {
	var buf bytes.Buffer
	base = zerolog.New(&buf).With().Timestamp().Logger()

	Base().Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
}
