package destinations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/storage"
	"github.com/KYVENetwork/dlt-load/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

func TestBigQueryError(t *testing.T) {
	plain := errors.New("connection reset")

	tests := []struct {
		name    string
		err     error
		code    string
		message string
	}{
		{"api error", &googleapi.Error{Code: 404, Message: "Not found: Table p:ds.books"}, "404", "Not found: Table p:ds.books"},
		{"wrapped api error", fmt.Errorf("run: %w", &googleapi.Error{Code: 403, Message: "quota exceeded"}), "403", "quota exceeded"},
		{"job error", &bigquery.Error{Reason: "invalid", Message: "Could not parse 'x' as INT64"}, "invalid", "Could not parse 'x' as INT64"},
		{"wrapped job error", fmt.Errorf("wait: %w", &bigquery.Error{Reason: "backendError", Message: "retry"}), "backendError", "retry"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := bigQueryError(tt.err, "INSERT INTO books VALUES (1)")
			var queryErr *QueryError
			require.ErrorAs(t, err, &queryErr)
			assert.Equal(t, tt.code, queryErr.Code)
			assert.Equal(t, tt.message, queryErr.Message)
			assert.Equal(t, "INSERT INTO books VALUES (1)", queryErr.SQL)
		})
	}

	assert.Same(t, plain, bigQueryError(plain, "SELECT 1"))
}

func TestBigQueryJobStats(t *testing.T) {
	status := func(details bigquery.Statistics) *bigquery.JobStatus {
		return &bigquery.JobStatus{Statistics: &bigquery.JobStatistics{Details: details}}
	}

	tests := []struct {
		name   string
		status *bigquery.JobStatus
		query  AffectedStats
		load   AffectedStats
	}{
		{
			name:   "dml",
			status: status(&bigquery.QueryStatistics{NumDMLAffectedRows: 3}),
			query:  AffectedStats{WriteRows: 3},
		},
		{
			name:   "dml with inserted rows",
			status: status(&bigquery.QueryStatistics{NumDMLAffectedRows: 3, DMLStats: &bigquery.DMLStatistics{InsertedRowCount: 5}}),
			query:  AffectedStats{WriteRows: 5},
		},
		{
			name:   "load job",
			status: status(&bigquery.LoadStatistics{OutputRows: 1000, OutputBytes: 64000, InputFileBytes: 20000}),
			load:   AffectedStats{WriteRows: 1000, WriteBytes: 64000},
		},
		{
			name:   "no statistics",
			status: &bigquery.JobStatus{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.query, queryJobStats(tt.status))
			assert.Equal(t, tt.load, loadJobStats(tt.status))
		})
	}
}

func TestGCSSource(t *testing.T) {
	ref, err := gcsSource("gs://bucket/dlt/a.csv", schema.FileFormat{SkipHeader: 1, NullMarker: "NULL"}.WithDefaults())
	require.NoError(t, err)
	assert.Equal(t, []string{"gs://bucket/dlt/a.csv"}, ref.URIs)
	assert.Equal(t, bigquery.CSV, ref.SourceFormat)
	assert.Equal(t, ",", ref.FieldDelimiter)
	assert.Equal(t, `"`, ref.Quote)
	assert.Equal(t, int64(1), ref.SkipLeadingRows)
	assert.Equal(t, "NULL", ref.NullMarker)
	assert.True(t, ref.AllowQuotedNewlines)
	assert.Empty(t, ref.Compression)

	ref, err = gcsSource("gs://bucket/dlt/a.tsv.gz", schema.FileFormat{Type: schema.FileTypeTSV, Compression: schema.CompressionGzip}.WithDefaults())
	require.NoError(t, err)
	assert.Equal(t, "\t", ref.FieldDelimiter)
	assert.Equal(t, bigquery.Gzip, ref.Compression)

	ref, err = gcsSource("gs://bucket/dlt/a.parquet", schema.FileFormat{Type: schema.FileTypeParquet}.WithDefaults())
	require.NoError(t, err)
	assert.Equal(t, bigquery.Parquet, ref.SourceFormat)

	for name, format := range map[string]schema.FileFormat{
		"zstd":             {Compression: schema.CompressionZstd},
		"record delimiter": {RecordDelimiter: "|"},
		"unknown type":     {Type: "xlsx"},
	} {
		_, err := gcsSource("gs://bucket/x", format.WithDefaults())
		assert.ErrorIs(t, err, ErrUnsupportedFormat, name)
	}
}

func TestBigQuerySplitTable(t *testing.T) {
	b := &BigQuery{config: BigQueryConfig{ProjectId: "proj", DatasetId: "default_ds"}}

	tests := []struct {
		name                    string
		project, dataset, table string
	}{
		{"books", "proj", "default_ds", "books"},
		{"ds.books", "proj", "ds", "books"},
		{"other.ds.books", "other", "ds", "books"},
		{"`other.ds.books`", "other", "ds", "books"},
		{"`ds`.`books`", "proj", "ds", "books"},
	}
	for _, tt := range tests {
		project, dataset, table, err := b.splitTable(tt.name)
		require.NoError(t, err, tt.name)
		assert.Equal(t, []string{tt.project, tt.dataset, tt.table}, []string{project, dataset, table}, tt.name)
	}

	for _, name := range []string{"a.b.c.d", "ds..books", ""} {
		_, _, _, err := b.splitTable(name)
		assert.Error(t, err, name)
	}

	noDataset := &BigQuery{config: BigQueryConfig{ProjectId: "proj"}}
	_, _, _, err := noDataset.splitTable("books")
	assert.Error(t, err)
}

func TestBigQueryWithoutBucket(t *testing.T) {
	b := &BigQuery{config: BigQueryConfig{ProjectId: "proj", DatasetId: "ds"}}

	info := b.Info()
	assert.Equal(t, HandlerBigQuery, info.Handler)
	assert.Equal(t, "proj", info.Host)
	assert.Equal(t, "ds", info.Database)
	assert.Equal(t, schema.DialectBigQuery.Name, info.Dialect.Name)

	_, err := b.RequestStagingLocation(context.Background(), StageRequest{Name: "a.csv"})
	assert.ErrorIs(t, err, ErrStagingUnsupported)
	_, err = b.Upload(context.Background(), StagedLocation{Path: "dlt/a.csv"}, strings.NewReader("x"), 1)
	assert.ErrorIs(t, err, ErrStagingUnsupported)
	_, err = b.IngestStaged(context.Background(), "ds.books", StagedLocation{Path: "dlt/a.csv"}, schema.DefaultCSVFormat())
	assert.ErrorIs(t, err, ErrStagingUnsupported)
}

func TestBigQueryStagingLocation(t *testing.T) {
	storageClient, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer storageClient.Close()

	b := &BigQuery{
		config:  BigQueryConfig{ProjectId: "proj", DatasetId: "ds", BucketName: "staging", StagePrefix: "dlt"},
		storage: storageClient,
	}

	location, err := b.RequestStagingLocation(context.Background(), StageRequest{Name: "a.csv.gz"})
	require.NoError(t, err)
	assert.Equal(t, "dlt/a.csv.gz", location.Path)
	assert.Equal(t, "'gs://staging/dlt/a.csv.gz'", location.Reference)
	assert.False(t, location.Presigned())
}
