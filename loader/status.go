package loader

import (
	"fmt"

	"github.com/KYVENetwork/dlt-load/destinations"
)

// LoadStats is the result of one successful load call.
type LoadStats struct {
	WriteRows  uint64
	WriteBytes uint64
	// ErrorRows is nil unless the backend reports rows it skipped.
	ErrorRows *uint64
}

func (s LoadStats) String() string {
	if s.ErrorRows == nil {
		return fmt.Sprintf("rows: %d, bytes: %d", s.WriteRows, s.WriteBytes)
	}
	return fmt.Sprintf("rows: %d, bytes: %d, error rows: %d", s.WriteRows, s.WriteBytes, *s.ErrorRows)
}

var capabilities = map[string][]LoadMethod{
	destinations.HandlerHTTP:      {Streaming, Stage},
	destinations.HandlerBigQuery:  {Streaming, Stage},
	destinations.HandlerPostgres:  {Streaming},
	destinations.HandlerFlightSQL: {},
}

// Supports reports whether a connection can load with the given method. Call
// it before loading to pick a method. Handlers that are not listed are
// assumed to support both methods.
func Supports(info destinations.ConnInfo, method LoadMethod) error {
	if method != Streaming && method != Stage {
		return newError(UnsupportedOperation, "check support", fmt.Errorf("unknown load method %s", method))
	}

	methods, ok := capabilities[info.Handler]
	if !ok {
		return nil
	}
	for _, m := range methods {
		if m == method {
			return nil
		}
	}
	return newError(UnsupportedOperation, "check support", fmt.Errorf("%s load is not available with the %s handler", method, info.Handler))
}

// Supports checks the loader's own connection.
func (l *Loader) Supports(method LoadMethod) error {
	return Supports(l.info, method)
}
