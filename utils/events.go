package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/analytics-go"
)

var (
	telemetryMu     sync.Mutex
	telemetryClient analytics.Client
	telemetryUserId string
)

// LoadEvent describes one finished load call.
type LoadEvent struct {
	Handler  string
	Method   string
	Presign  bool
	Rows     uint64
	Duration time.Duration
	Err      error
}

// EnableTelemetry starts sending load events. Events are dropped until it is
// called.
func EnableTelemetry(writeKey string) error {
	userId, err := getUserId()
	if err != nil {
		return fmt.Errorf("failed to read user id: %w", err)
	}

	telemetryMu.Lock()
	defer telemetryMu.Unlock()

	if telemetryClient != nil {
		_ = telemetryClient.Close()
	}
	telemetryClient = analytics.New(writeKey)
	telemetryUserId = userId
	return nil
}

// CloseTelemetry flushes pending events.
func CloseTelemetry() {
	telemetryMu.Lock()
	defer telemetryMu.Unlock()

	if telemetryClient == nil {
		return
	}
	if err := telemetryClient.Close(); err != nil {
		logger.Debug().Str("err", err.Error()).Msg("failed to flush telemetry")
	}
	telemetryClient = nil
}

func TrackLoad(event LoadEvent) {
	telemetryMu.Lock()
	defer telemetryMu.Unlock()

	if telemetryClient == nil {
		return
	}

	properties := analytics.NewProperties().
		Set("handler", event.Handler).
		Set("method", event.Method).
		Set("presign", event.Presign).
		Set("rows", event.Rows).
		Set("duration_ms", event.Duration.Milliseconds()).
		Set("success", event.Err == nil)

	err := telemetryClient.Enqueue(analytics.Track{
		UserId:     telemetryUserId,
		Event:      "load",
		Properties: properties,
		Context:    getContext(),
	})
	if err != nil {
		logger.Debug().Str("err", err.Error()).Msg("failed to enqueue telemetry event")
	}
}

func getContext() *analytics.Context {
	version := "local"
	build, ok := debug.ReadBuildInfo()

	if ok && strings.TrimSpace(build.Main.Version) != "" {
		version = strings.TrimSpace(build.Main.Version)
	}

	timezone, _ := time.Now().Zone()
	locale := os.Getenv("LANG")

	return &analytics.Context{
		App: analytics.AppInfo{
			Name:    "dlt",
			Version: version,
		},
		Location: analytics.LocationInfo{},
		OS: analytics.OSInfo{
			Name: fmt.Sprintf("%s %s", runtime.GOOS, runtime.GOARCH),
		},
		Locale:   locale,
		Timezone: timezone,
	}
}

func getUserId() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	dltDir := filepath.Join(home, ".kyve-dlt")
	if _, err = os.Stat(dltDir); os.IsNotExist(err) {
		if err := os.Mkdir(dltDir, 0o755); err != nil {
			return "", err
		}
	}

	userId := uuid.New().String()

	idFile := filepath.Join(dltDir, "id")
	if _, err = os.Stat(idFile); os.IsNotExist(err) {
		if err := os.WriteFile(idFile, []byte(userId), 0o644); err != nil {
			return "", err
		}
	} else {
		data, err := os.ReadFile(idFile)
		if err != nil {
			return "", err
		}
		userId = strings.TrimSpace(string(data))
	}

	return userId, nil
}
