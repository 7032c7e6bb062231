package destinations

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/storage"
	"github.com/KYVENetwork/dlt-load/schema"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const presignExpiry = 15 * time.Minute

type BigQueryConfig struct {
	ProjectId string
	DatasetId string
	Location  string

	// BucketName is the GCS bucket used for staged loads. Without it only
	// streaming loads are possible.
	BucketName      string
	StagePrefix     string
	CredentialsFile string
}

func NewBigQuery(ctx context.Context, config BigQueryConfig) (*BigQuery, error) {
	if config.ProjectId == "" {
		return nil, fmt.Errorf("bigquery project id is required")
	}
	if config.StagePrefix == "" {
		config.StagePrefix = "dlt"
	}

	var opts []option.ClientOption
	if config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
	}

	client, err := bigquery.NewClient(ctx, config.ProjectId, opts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery.NewClient: %w", err)
	}
	if config.Location != "" {
		client.Location = config.Location
	}

	var storageClient *storage.Client
	if config.BucketName != "" {
		storageClient, err = storage.NewClient(ctx, opts...)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("storage.NewClient: %w", err)
		}
	}

	return &BigQuery{
		config:  config,
		client:  client,
		storage: storageClient,
	}, nil
}

type BigQuery struct {
	config  BigQueryConfig
	client  *bigquery.Client
	storage *storage.Client
}

func (b *BigQuery) Info() ConnInfo {
	return ConnInfo{
		Handler:  HandlerBigQuery,
		Host:     b.config.ProjectId,
		Database: b.config.DatasetId,
		Dialect:  schema.DialectBigQuery,
	}
}

func (b *BigQuery) ExecuteStatement(ctx context.Context, stmt string) (AffectedStats, error) {
	query := b.client.Query(stmt)
	query.DefaultProjectID = b.config.ProjectId
	query.DefaultDatasetID = b.config.DatasetId

	job, err := query.Run(ctx)
	if err != nil {
		return AffectedStats{}, bigQueryError(err, stmt)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return AffectedStats{}, bigQueryError(err, stmt)
	}
	if status.Err() != nil {
		return AffectedStats{}, bigQueryError(status.Err(), stmt)
	}

	stats := queryJobStats(status)
	logger.Debug().Str("job", job.ID()).Uint64("rows", stats.WriteRows).Msg("BigQuery job finished")
	return stats, nil
}

// IngestStaged loads a staged object with a load job. Unlike a LOAD DATA
// statement the job reports the rows it wrote.
func (b *BigQuery) IngestStaged(ctx context.Context, table string, location StagedLocation, format schema.FileFormat) (AffectedStats, error) {
	if b.storage == nil {
		return AffectedStats{}, ErrStagingUnsupported
	}

	projectId, datasetId, tableId, err := b.splitTable(table)
	if err != nil {
		return AffectedStats{}, err
	}
	gcsRef, err := gcsSource(fmt.Sprintf("gs://%s/%s", b.config.BucketName, location.Path), format)
	if err != nil {
		return AffectedStats{}, err
	}

	loader := b.client.DatasetInProject(projectId, datasetId).Table(tableId).LoaderFrom(gcsRef)
	loader.WriteDisposition = bigquery.WriteAppend
	loader.CreateDisposition = bigquery.CreateNever

	job, err := loader.Run(ctx)
	if err != nil {
		return AffectedStats{}, bigQueryError(err, "load "+table)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return AffectedStats{}, bigQueryError(err, "load "+table)
	}
	if status.Err() != nil {
		return AffectedStats{}, bigQueryError(status.Err(), "load "+table)
	}

	stats := loadJobStats(status)
	logger.Debug().Str("job", job.ID()).Str("table", table).Uint64("rows", stats.WriteRows).Msg("BigQuery load job finished")
	return stats, nil
}

// splitTable resolves table, dataset.table or project.dataset.table against
// the connection defaults.
func (b *BigQuery) splitTable(name string) (string, string, string, error) {
	parts := strings.Split(strings.ReplaceAll(name, "`", ""), ".")
	for _, part := range parts {
		if part == "" {
			return "", "", "", fmt.Errorf("invalid table name %q", name)
		}
	}
	switch len(parts) {
	case 1:
		if b.config.DatasetId == "" {
			return "", "", "", fmt.Errorf("table %q has no dataset and the dsn names none", name)
		}
		return b.config.ProjectId, b.config.DatasetId, parts[0], nil
	case 2:
		return b.config.ProjectId, parts[0], parts[1], nil
	case 3:
		return parts[0], parts[1], parts[2], nil
	default:
		return "", "", "", fmt.Errorf("invalid table name %q", name)
	}
}

func gcsSource(uri string, format schema.FileFormat) (*bigquery.GCSReference, error) {
	gcsRef := bigquery.NewGCSReference(uri)
	switch format.Type {
	case schema.FileTypeCSV, schema.FileTypeTSV:
		if format.RecordDelimiter != "\n" && format.RecordDelimiter != "\r\n" {
			return nil, fmt.Errorf("%w: record delimiter %q", ErrUnsupportedFormat, format.RecordDelimiter)
		}
		gcsRef.SourceFormat = bigquery.CSV
		gcsRef.FieldDelimiter = format.FieldDelimiter
		gcsRef.Quote = format.Quote
		gcsRef.SkipLeadingRows = int64(format.SkipHeader)
		gcsRef.NullMarker = format.NullMarker
		gcsRef.AllowQuotedNewlines = true
	case schema.FileTypeNDJSON:
		gcsRef.SourceFormat = bigquery.JSON
	case schema.FileTypeParquet:
		gcsRef.SourceFormat = bigquery.Parquet
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format.Type)
	}

	switch format.Compression {
	case schema.CompressionGzip:
		gcsRef.Compression = bigquery.Gzip
	case schema.CompressionZstd:
		return nil, fmt.Errorf("%w: zstd compression", ErrUnsupportedFormat)
	}
	return gcsRef, nil
}

func queryJobStats(status *bigquery.JobStatus) AffectedStats {
	stats := AffectedStats{}
	if status == nil || status.Statistics == nil {
		return stats
	}
	if details, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
		stats.WriteRows = uint64(details.NumDMLAffectedRows)
		if details.DMLStats != nil && details.DMLStats.InsertedRowCount > 0 {
			stats.WriteRows = uint64(details.DMLStats.InsertedRowCount)
		}
	}
	return stats
}

func loadJobStats(status *bigquery.JobStatus) AffectedStats {
	stats := AffectedStats{}
	if status == nil || status.Statistics == nil {
		return stats
	}
	if details, ok := status.Statistics.Details.(*bigquery.LoadStatistics); ok {
		stats.WriteRows = uint64(details.OutputRows)
		stats.WriteBytes = uint64(details.OutputBytes)
	}
	return stats
}

func bigQueryError(err error, stmt string) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &QueryError{Code: strconv.Itoa(apiErr.Code), Message: apiErr.Message, SQL: stmt}
	}
	var jobErr *bigquery.Error
	if errors.As(err, &jobErr) {
		return &QueryError{Code: jobErr.Reason, Message: jobErr.Message, SQL: stmt}
	}
	return err
}

// RequestStagingLocation names an object in the staging bucket. With presign
// the client gets a V4 signed PUT URL and talks to GCS without credentials.
func (b *BigQuery) RequestStagingLocation(_ context.Context, req StageRequest) (StagedLocation, error) {
	if b.storage == nil {
		return StagedLocation{}, ErrStagingUnsupported
	}

	object := path.Join(b.config.StagePrefix, req.Name)
	location := StagedLocation{
		Path:      object,
		Reference: fmt.Sprintf("'gs://%s/%s'", b.config.BucketName, object),
	}
	if !req.Presign {
		return location, nil
	}

	signedURL, err := b.storage.Bucket(b.config.BucketName).SignedURL(object, &storage.SignedURLOptions{
		Scheme:      storage.SigningSchemeV4,
		Method:      http.MethodPut,
		ContentType: "application/octet-stream",
		Expires:     time.Now().Add(presignExpiry),
	})
	if err != nil {
		return StagedLocation{}, fmt.Errorf("failed to sign upload url for %s: %w", object, err)
	}

	location.PresignedURL = signedURL
	location.Method = http.MethodPut
	location.Headers = map[string]string{"Content-Type": "application/octet-stream"}
	return location, nil
}

func (b *BigQuery) Upload(ctx context.Context, location StagedLocation, body io.Reader, size int64) (UploadResult, error) {
	if b.storage == nil {
		return UploadResult{}, ErrStagingUnsupported
	}

	o := b.storage.Bucket(b.config.BucketName).Object(location.Path)
	o = o.If(storage.Conditions{DoesNotExist: true})

	wc := o.NewWriter(ctx)
	wc.ContentType = "application/octet-stream"

	written, err := io.Copy(wc, body)
	if err != nil {
		_ = wc.Close()
		return UploadResult{}, &UploadError{Path: location.Path, Err: fmt.Errorf("io.Copy: %w", err)}
	}
	if err := wc.Close(); err != nil {
		return UploadResult{}, &UploadError{Path: location.Path, Err: fmt.Errorf("Writer.Close: %w", err)}
	}

	logger.Debug().Str("object", location.Path).Int64("bytes", written).Int64("size", size).Msg("uploaded to bucket")
	return UploadResult{Bytes: written}, nil
}

func (b *BigQuery) Close() error {
	if b.storage != nil {
		_ = b.storage.Close()
	}
	return b.client.Close()
}
