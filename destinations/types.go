package destinations

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/KYVENetwork/dlt-load/schema"
)

const (
	HandlerHTTP      = "HTTP"
	HandlerFlightSQL = "FlightSQL"
	HandlerPostgres  = "PostgreSQL"
	HandlerBigQuery  = "BigQuery"
)

// ErrStagingUnsupported is returned by backends that cannot issue a staging
// location at all.
var ErrStagingUnsupported = errors.New("staging locations are not supported by this backend")

// ErrUnsupportedFormat is returned when a staged file cannot be ingested in
// its format or compression.
var ErrUnsupportedFormat = errors.New("file format not supported by this backend")

// Connection is the handle a load runs against. Statements on one connection
// are issued sequentially.
type Connection interface {
	Info() ConnInfo
	ExecuteStatement(ctx context.Context, sql string) (AffectedStats, error)
	RequestStagingLocation(ctx context.Context, req StageRequest) (StagedLocation, error)
	Upload(ctx context.Context, location StagedLocation, body io.Reader, size int64) (UploadResult, error)
	Close() error
}

// Ingester is implemented by backends that load a staged object with a load
// job rather than an ingest statement. table is the target as written in the
// insert statement.
type Ingester interface {
	IngestStaged(ctx context.Context, table string, location StagedLocation, format schema.FileFormat) (AffectedStats, error)
}

type ConnInfo struct {
	Handler  string
	Host     string
	Database string
	Dialect  schema.Dialect
}

// AffectedStats is what the backend reports for one statement. ErrorRows is
// nil unless the backend reports partially accepted statements.
type AffectedStats struct {
	WriteRows  uint64
	WriteBytes uint64
	ErrorRows  *uint64
}

type StageRequest struct {
	// Name is the object name relative to the load prefix, unique per load.
	Name    string
	Presign bool
}

// StagedLocation identifies where the bytes of exactly one load land.
type StagedLocation struct {
	Path string
	// Reference is spliced into the ingest statement in place of the
	// @_dlt_load placeholder.
	Reference string

	PresignedURL string
	Method       string
	Headers      map[string]string
}

func (l StagedLocation) Presigned() bool {
	return l.PresignedURL != ""
}

type UploadResult struct {
	Bytes int64
}

// QueryError is a statement the backend rejected.
type QueryError struct {
	Code    string
	Message string
	SQL     string
}

func (e *QueryError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("query failed: %s", e.Message)
	}
	return fmt.Sprintf("query failed (%s): %s", e.Code, e.Message)
}

// UploadError is a transport failure while moving bytes to a staging location.
type UploadError struct {
	Path       string
	StatusCode int
	Err        error
}

func (e *UploadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upload to %s failed with status %d: %v", e.Path, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upload to %s failed: %v", e.Path, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}
