package destinations

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/KYVENetwork/dlt-load/schema"
	"github.com/avast/retry-go"
	godatabend "github.com/datafuselabs/databend-go"
)

const (
	userStage       = "~"
	stageLoadPrefix = "_dlt_load"
)

type HTTPConfig struct {
	Databend *godatabend.Config
	Handler  string
}

// httpConfigFromURL hands the DSN to the databend driver after removing the
// options only this package understands.
func httpConfigFromURL(u *url.URL, q url.Values) (HTTPConfig, error) {
	config := HTTPConfig{Handler: HandlerHTTP}
	if strings.EqualFold(q.Get("handler"), "flightsql") {
		config.Handler = HandlerFlightSQL
	}
	q.Del("handler")

	dsn := *u
	if strings.HasPrefix(strings.ToLower(dsn.Scheme), "http") {
		dsn.Scheme = "databend+" + strings.ToLower(dsn.Scheme)
	}
	dsn.RawQuery = q.Encode()

	databendConfig, err := godatabend.ParseDSN(dsn.String())
	if err != nil {
		return HTTPConfig{}, fmt.Errorf("invalid databend dsn: %w", err)
	}
	if databendConfig.WaitTimeSecs < 0 {
		return HTTPConfig{}, fmt.Errorf("invalid wait_time_secs %d", databendConfig.WaitTimeSecs)
	}
	config.Databend = databendConfig
	return config, nil
}

func NewHTTP(config HTTPConfig) *HTTP {
	if config.Handler == "" {
		config.Handler = HandlerHTTP
	}
	if config.Databend == nil {
		config.Databend = godatabend.NewConfig()
	}
	return &HTTP{
		config: config,
		client: godatabend.NewAPIClientFromConfig(config.Databend),
	}
}

// HTTP runs statements through the databend query API. The api client keeps
// session state between calls, so calls are serialized.
type HTTP struct {
	config HTTPConfig

	mu     sync.Mutex
	client *godatabend.APIClient
}

func (h *HTTP) Info() ConnInfo {
	return ConnInfo{
		Handler:  h.config.Handler,
		Host:     h.config.Databend.Host,
		Database: h.config.Databend.Database,
		Dialect:  schema.DialectDatabend,
	}
}

func (h *HTTP) Close() error {
	return nil
}

func (h *HTTP) ExecuteStatement(ctx context.Context, sql string) (AffectedStats, error) {
	response, err := h.query(ctx, sql)
	if err != nil {
		return AffectedStats{}, err
	}
	if response.Stats == nil {
		return AffectedStats{}, nil
	}
	return AffectedStats{
		WriteRows:  response.Stats.WriteProgress.Rows,
		WriteBytes: response.Stats.WriteProgress.Bytes,
	}, nil
}

// Query runs sql and returns every row as nullable strings.
func (h *HTTP) Query(ctx context.Context, sql string) ([][]*string, error) {
	response, err := h.query(ctx, sql)
	if err != nil {
		return nil, err
	}
	return response.Data, nil
}

func (h *HTTP) query(ctx context.Context, sql string) (*godatabend.QueryResponse, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	start, err := h.client.StartQuery(ctx, sql, nil)
	if err != nil {
		return nil, databendError(err, sql)
	}
	defer func() {
		_ = h.client.CloseQuery(ctx, start)
	}()
	if start.Error != nil {
		return nil, databendError(start.Error, sql)
	}

	response, err := h.client.PollUntilQueryEnd(ctx, start)
	if err != nil {
		return nil, databendError(err, sql)
	}
	if strings.EqualFold(response.State, "Failed") {
		return nil, &QueryError{Message: "query failed without error details", SQL: sql}
	}
	return response, nil
}

// databendError maps driver errors onto QueryError. Transport failures are
// returned as they are.
func databendError(err error, sql string) error {
	var retryErr retry.Error
	if errors.As(err, &retryErr) {
		var last error
		for _, e := range retryErr.WrappedErrors() {
			if e != nil {
				last = e
			}
		}
		if last != nil {
			err = last
		}
	}

	var queryErr *godatabend.QueryError
	if errors.As(err, &queryErr) {
		return &QueryError{Code: strconv.Itoa(queryErr.Code), Message: queryErr.Message, SQL: sql}
	}
	var apiErr godatabend.APIError
	if errors.As(err, &apiErr) {
		return &QueryError{Code: strconv.Itoa(apiErr.StatusCode), Message: apiErr.Error(), SQL: sql}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("databend request failed: %w", err)
}

func (h *HTTP) stageLocation(name string) (*godatabend.StageLocation, StagedLocation) {
	stage := &godatabend.StageLocation{Name: userStage, Path: path.Join(stageLoadPrefix, name)}
	return stage, StagedLocation{
		Path:      stage.Path,
		Reference: stage.String(),
	}
}

// RequestStagingLocation places the object in the user stage. With presign the
// server issues a direct upload URL for it.
func (h *HTTP) RequestStagingLocation(ctx context.Context, req StageRequest) (StagedLocation, error) {
	if h.config.Handler == HandlerFlightSQL {
		return StagedLocation{}, ErrStagingUnsupported
	}

	stage, location := h.stageLocation(req.Name)
	if !req.Presign {
		return location, nil
	}

	h.mu.Lock()
	presigned, err := h.client.GetPresignedURL(ctx, stage)
	h.mu.Unlock()
	if err != nil {
		return StagedLocation{}, fmt.Errorf("failed to presign %s: %w", location.Reference, err)
	}

	location.Method = presigned.Method
	if location.Method == "" {
		location.Method = "PUT"
	}
	location.Headers = presigned.Headers
	location.PresignedURL = presigned.URL
	return location, nil
}

// Upload sends body through the server into the stage.
func (h *HTTP) Upload(ctx context.Context, location StagedLocation, body io.Reader, size int64) (UploadResult, error) {
	if h.config.Handler == HandlerFlightSQL {
		return UploadResult{}, ErrStagingUnsupported
	}

	counter := &countingReader{r: body}
	stage := &godatabend.StageLocation{Name: userStage, Path: location.Path}

	h.mu.Lock()
	err := h.client.UploadToStageByAPI(ctx, stage, bufio.NewReader(counter))
	h.mu.Unlock()
	if err != nil {
		uploadErr := &UploadError{Path: location.Path, Err: err}
		var apiErr godatabend.APIError
		if errors.As(err, &apiErr) {
			uploadErr.StatusCode = apiErr.StatusCode
		}
		return UploadResult{}, uploadErr
	}

	logger.Debug().Str("path", location.Path).Int64("bytes", counter.n).Int64("size", size).Msg("uploaded to stage")
	return UploadResult{Bytes: counter.n}, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
