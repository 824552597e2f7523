package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

type setupType struct {
	logger *RelayLogger
	buffer bytes.Buffer
}

func beforeEach(t *testing.T) *setupType {
	var r setupType

	err := InitLoggerWithWriter("info", "json", &r.buffer, false)
	require.NoError(t, err)

	r.logger = GetLogger()

	return &r
}

type logType struct {
	Time   string
	Level  string
	Source struct {
		Function string
		File     string
		Line     int
	}
	Msg     string
	Stack   string
	Error   string
	ChainID string `json:"chain_id"`
}

func parseResult(setup *setupType, t *testing.T) (string, logType) {
	raw := setup.buffer.String()
	var parsed logType

	err := json.Unmarshal(setup.buffer.Bytes(), &parsed)
	require.NoError(t, err, raw)

	return raw, parsed
}

func TestLogLevel(t *testing.T) {
	setup := beforeEach(t)

	setup.logger.log(slog.LevelDebug, 0, "test")
	require.Zero(t, setup.buffer.Len(), "debug log is output: %s", setup.buffer.String())
}

func TestInvalidSettings(t *testing.T) {
	var buf bytes.Buffer
	require.Error(t, InitLoggerWithWriter("verbose", "json", &buf, false))
	require.Error(t, InitLoggerWithWriter("info", "xml", &buf, false))
	require.Error(t, InitLogger("info", "json", "file", false))
}

func TestLogLog(t *testing.T) {
	setup := beforeEach(t)

	setup.logger.log(slog.LevelInfo, 0, "test")
	raw, r := parseResult(setup, t)

	require.Equal(t, "INFO", r.Level, raw)
	require.Regexp(t, `/log.TestLogLog$`, r.Source.Function, raw)
}

func TestLogError(t *testing.T) {
	setup := beforeEach(t)

	setup.logger.Error("testerr", fmt.Errorf("dummy"))
	raw, r := parseResult(setup, t)

	require.Equal(t, "ERROR", r.Level, raw)
	require.Regexp(t, `/log.TestLogError$`, r.Source.Function, raw)
	require.Equal(t, "dummy", r.Error, raw)
}

func TestLogErrorWithStack(t *testing.T) {
	setup := beforeEach(t)

	setup.logger.ErrorWithStack("testerr", fmt.Errorf("dummy"))
	raw, r := parseResult(setup, t)

	require.Regexp(t, `/log.TestLogErrorWithStack$`, r.Source.Function, raw)
	require.Contains(t, r.Stack, "TestLogErrorWithStack", raw)
}

func TestWithChain(t *testing.T) {
	setup := beforeEach(t)

	setup.logger.WithChain("ibc0").Info("test")
	raw, r := parseResult(setup, t)

	require.Equal(t, "ibc0", r.ChainID, raw)
}
