package log

import (
	"bytes"
	"regexp"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLogFormatter struct{}

func (f *testLogFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return []byte(entry.Data["category"].(string) + ":" + entry.Message + "\n"), nil //nolint:forcetypeassert
}

func newTestLogger(t *testing.T, level logrus.Level, filter *regexp.Regexp) (*Logger, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&testLogFormatter{})
	l.SetLevel(level)

	return New(l, filter), &buf
}

func TestLoggerLevels(t *testing.T) {
	t.Parallel()

	logger, buf := newTestLogger(t, logrus.InfoLevel, nil)
	logger.Debugf("cdp", "hidden %d", 1)
	logger.Infof("spaceport", "Completed test %d of %d", 3, 24)
	logger.Errorf("runner", "boom")

	assert.Equal(t, "spaceport:Completed test 3 of 24\nrunner:boom\n", buf.String())
	assert.False(t, logger.DebugMode())

	require.NoError(t, logger.SetLevel("debug"))
	assert.True(t, logger.DebugMode())
	require.Error(t, logger.SetLevel("loud"))
}

func TestLoggerCategoryFilter(t *testing.T) {
	t.Parallel()

	logger, buf := newTestLogger(t, logrus.DebugLevel, regexp.MustCompile(`^cdp`))
	logger.Debugf("cdp:send", "-> %s", "{}")
	logger.Debugf("spaceport", "dropped")
	assert.Equal(t, "cdp:send:-> {}\n", buf.String())

	buf.Reset()
	require.NoError(t, logger.SetCategoryFilter(""))
	logger.Debugf("spaceport", "kept")
	assert.Equal(t, "spaceport:kept\n", buf.String())

	require.Error(t, logger.SetCategoryFilter("("))
}

func TestNilLogger(t *testing.T) {
	t.Parallel()

	var logger *Logger
	assert.NotPanics(t, func() { logger.Infof("any", "message") })
}

func TestNilLoggerLevel(t *testing.T) {
	t.Parallel()

	var logger *Logger
	assert.NotPanics(t, func() {
		assert.NoError(t, logger.SetLevel("debug"))
		assert.False(t, logger.DebugMode())
	})
	assert.Error(t, logger.SetLevel("loud"))
	assert.NoError(t, logger.SetCategoryFilter("cdp"))
	assert.Error(t, logger.SetCategoryFilter("("))

	inner := New(nil, nil)
	assert.NotPanics(t, func() {
		assert.NoError(t, inner.SetLevel("debug"))
		assert.False(t, inner.DebugMode())
	})
}
