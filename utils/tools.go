package utils

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

func DltLogger(moduleName string) zerolog.Logger {
	writer := io.MultiWriter(os.Stdout)
	customConsoleWriter := zerolog.ConsoleWriter{Out: writer}
	customConsoleWriter.FormatCaller = func(i interface{}) string {
		return "\x1b[36m[DLT]\x1b[0m"
	}

	logger := zerolog.New(customConsoleWriter).With().Str("module", moduleName).Timestamp().Logger()
	return logger
}

// TryWithExponentialBackoff calls try until it succeeds, returns an error that
// shouldRetry rejects, the attempts are used up or ctx is done. The wait
// starts at one second and doubles after each failure.
func TryWithExponentialBackoff(ctx context.Context, attempts int, try func() error, shouldRetry func(error) bool, onError func(error, time.Duration)) error {
	timeout := time.Second
	var err error
	for attempt := 1; ; attempt++ {
		if err = try(); err == nil {
			return nil
		}
		if attempt >= attempts || !shouldRetry(err) {
			return err
		}
		onError(err, timeout)

		select {
		case <-ctx.Done():
			return err
		case <-time.After(timeout):
		}
		timeout *= 2
	}
}
