package loader

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/KYVENetwork/dlt-load/destinations"
)

// LoadMethod selects how data reaches the table.
type LoadMethod int

const (
	// Streaming sends the encoded rows inline in one INSERT statement.
	Streaming LoadMethod = iota + 1
	// Stage uploads the data to a staging location first and then issues one
	// ingest statement referencing it.
	Stage
)

func (m LoadMethod) String() string {
	switch m {
	case Streaming:
		return "streaming"
	case Stage:
		return "stage"
	default:
		return fmt.Sprintf("LoadMethod(%d)", int(m))
	}
}

func ParseLoadMethod(s string) (LoadMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "streaming", "stream":
		return Streaming, nil
	case "stage", "staged":
		return Stage, nil
	default:
		return 0, fmt.Errorf("unknown load method %q, expected streaming or stage", s)
	}
}

type MethodOptions struct {
	Method LoadMethod
}

// Config is built once per connection and shared by every load.
type Config struct {
	// Presign makes the backend hand out direct upload URLs for staged
	// objects instead of proxying the upload.
	Presign bool

	// HTTPClient performs presigned uploads. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

type Loader struct {
	conn   destinations.Connection
	info   destinations.ConnInfo
	config Config
}

func NewLoader(conn destinations.Connection, config Config) *Loader {
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	return &Loader{
		conn:   conn,
		info:   conn.Info(),
		config: config,
	}
}

func (l *Loader) Connection() destinations.Connection {
	return l.conn
}

func (l *Loader) Close() error {
	return l.conn.Close()
}
