package logging

import (
	"io"
	"strings"

	"github.com/apsdehal/go-logger"
)

const defaultFormat = "%{time} [%{module}] [%{level}] %{message}"

// New builds the application logger. Anything other than DEBUG logs at info level.
func New(appName string, logLevel string, out io.Writer) (*logger.Logger, error) {
	log, err := logger.New(appName, 0, out)
	if err != nil {
		return nil, err
	}
	log.SetFormat(defaultFormat)

	if strings.EqualFold(logLevel, "DEBUG") {
		log.SetLogLevel(logger.DebugLevel)
	} else {
		log.SetLogLevel(logger.InfoLevel)
	}
	return log, nil
}

// Discard returns a logger that writes nowhere, for tests and tools
func Discard() *logger.Logger {
	log, _ := New("discard", "INFO", io.Discard)
	return log
}
