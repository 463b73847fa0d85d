package utils_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speedopt-core/utils"
)

func TestLogLevelString(t *testing.T) {
	cases := []struct {
		level utils.LogLevel
		want  string
	}{
		{utils.TRACE, "TRACE"},
		{utils.DEBUG, "DEBUG"},
		{utils.INFO, "INFO"},
		{utils.WARN, "WARN"},
		{utils.ERROR, "ERROR"},
		{utils.CRITICAL, "CRITICAL"},
		{utils.LogLevel(99), "UNKNOWN"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.level.String())
	}
}

func TestFileLoggerWritesAboveMinLevel(t *testing.T) {
	p := filepath.Join(t.TempDir(), "out.log")
	log, err := utils.NewFileLogger(p, utils.INFO, false)
	require.NoError(t, err)
	defer log.Close()

	log.Debug("should not appear %d", 1)
	log.Info("hello %s", "world")
	log.Error("boom")

	contents, err := os.ReadFile(p)
	require.NoError(t, err)
	text := string(contents)
	assert.False(t, strings.Contains(text, "should not appear"))
	assert.True(t, strings.Contains(text, "hello world"))
	assert.True(t, strings.Contains(text, "[ERROR] boom"))
}

func TestFileLoggerSetMinLevelTakesEffect(t *testing.T) {
	p := filepath.Join(t.TempDir(), "out.log")
	log, err := utils.NewFileLogger(p, utils.ERROR, false)
	require.NoError(t, err)
	defer log.Close()

	log.Warn("hidden")
	log.SetMinLevel(utils.WARN)
	log.Warn("visible")

	contents, err := os.ReadFile(p)
	require.NoError(t, err)
	text := string(contents)
	assert.False(t, strings.Contains(text, "hidden"))
	assert.True(t, strings.Contains(text, "visible"))
}

func TestNewFileLoggerErrorsOnUnwritablePath(t *testing.T) {
	_, err := utils.NewFileLogger(filepath.Join(t.TempDir(), "nope", "out.log"), utils.INFO, false)
	assert.Error(t, err)
}
