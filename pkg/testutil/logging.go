package testutil

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logs are discarded unless tests run verbosely. KEYS_TEST_LOG_LEVEL picks
// the level, which defaults to trace.
func init() {
	level := logrus.TraceLevel
	if configured, err := logrus.ParseLevel(os.Getenv("KEYS_TEST_LOG_LEVEL")); err == nil {
		level = configured
	}
	logrus.SetLevel(level)

	if !isVerbose() {
		logrus.StandardLogger().SetOutput(io.Discard)
	}
}

func isVerbose() bool {
	for _, arg := range os.Args {
		if arg == "-test.v" || strings.HasPrefix(arg, "-test.v=") && arg != "-test.v=false" {
			return true
		}
	}
	return false
}

// DisableLogging silences logrus until the returned func is called
func DisableLogging() (reset func()) {
	logger := logrus.StandardLogger()
	original := logger.Out
	logger.SetOutput(io.Discard)
	return func() {
		logger.SetOutput(original)
	}
}
