package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/KYVENetwork/dlt-load/destinations"
	"github.com/KYVENetwork/dlt-load/schema"
	"github.com/KYVENetwork/dlt-load/utils"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// LoadPlaceholder marks where an ingest statement references the staged
// object, e.g. "INSERT INTO t VALUES FROM @_dlt_load FILE_FORMAT = (type = CSV)".
const LoadPlaceholder = "@_dlt_load"

var (
	insertTarget    = regexp.MustCompile("(?is)^\\s*INSERT\\s+(?:INTO\\s+)?([^\\s(]+)")
	loadPlaceholder = regexp.MustCompile("(?i)" + regexp.QuoteMeta(LoadPlaceholder))
)

func (l *Loader) stageRows(ctx context.Context, template string, rows [][]any, format schema.FileFormat) (LoadStats, error) {
	if len(rows) == 0 {
		return LoadStats{}, nil
	}

	encoder, err := schema.NewCSVEncoder(format)
	if err != nil {
		return LoadStats{}, newError(FormatError, "encode rows", err)
	}
	data, err := encoder.EncodeRows(rows)
	if err != nil {
		return LoadStats{}, newError(EncodingError, "encode rows", err)
	}
	data, err = compress(data, encoder.Format.Compression)
	if err != nil {
		return LoadStats{}, newError(EncodingError, "compress rows", err)
	}

	return l.stageAndIngest(ctx, bytes.NewReader(data), int64(len(data)), template, encoder.Format)
}

// stageAndIngest places body in a fresh staging location and then ingests it.
// Ingest only starts after the upload returned successfully. Nothing is
// retried here.
func (l *Loader) stageAndIngest(ctx context.Context, body io.Reader, size int64, template string, format schema.FileFormat) (LoadStats, error) {
	location, err := l.conn.RequestStagingLocation(ctx, destinations.StageRequest{
		Name:    uuid.New().String() + fileExtension(format),
		Presign: l.config.Presign,
	})
	if err != nil {
		return LoadStats{}, newError(StagingError, "request staging location", err)
	}

	logger.Debug().
		Str("path", location.Path).
		Bool("presigned", location.Presigned()).
		Int64("size", size).
		Msg("uploading to staging location")

	var uploaded int64
	if location.Presigned() {
		uploaded, err = l.uploadPresigned(ctx, location, body, size)
	} else {
		var result destinations.UploadResult
		result, err = l.conn.Upload(ctx, location, body, size)
		uploaded = result.Bytes
	}
	if err != nil {
		return LoadStats{}, newError(UploadError, "upload "+location.Path, err)
	}
	utils.PrometheusBytesUploaded.WithLabelValues(l.info.Handler).Add(float64(uploaded))

	affected, err := l.ingest(ctx, template, location, format)
	if err != nil {
		return LoadStats{}, err
	}

	stats := LoadStats{
		WriteRows:  affected.WriteRows,
		WriteBytes: affected.WriteBytes,
		ErrorRows:  affected.ErrorRows,
	}
	if stats.WriteBytes == 0 {
		stats.WriteBytes = uint64(uploaded)
	}
	return stats, nil
}

// ingest loads the staged object into the target table. Backends with a load
// job API get the object handed over directly unless the template spells out
// its own ingest statement.
func (l *Loader) ingest(ctx context.Context, template string, location destinations.StagedLocation, format schema.FileFormat) (destinations.AffectedStats, error) {
	if ingester, ok := l.conn.(destinations.Ingester); ok && loadPlaceholder.FindStringIndex(template) == nil {
		match := insertTarget.FindStringSubmatch(template)
		if match == nil {
			return destinations.AffectedStats{}, newError(UnsupportedOperation, "derive target table",
				fmt.Errorf("cannot derive target table from %q, use %s in the statement", template, LoadPlaceholder))
		}

		logger.Debug().Str("path", location.Path).Str("table", match[1]).Msg("starting load job for staged object")

		affected, err := ingester.IngestStaged(ctx, match[1], location, format)
		if errors.Is(err, destinations.ErrUnsupportedFormat) {
			return destinations.AffectedStats{}, newError(UnsupportedOperation, "load "+location.Path, err)
		}
		if err != nil {
			return destinations.AffectedStats{}, newError(QueryError, "load "+location.Path, err)
		}
		return affected, nil
	}

	stmt, err := renderIngest(template, l.info.Dialect, location.Reference, format)
	if err != nil {
		return destinations.AffectedStats{}, newError(UnsupportedOperation, "render ingest statement", err)
	}

	logger.Debug().Str("path", location.Path).Msg("ingesting staged object")

	affected, err := l.conn.ExecuteStatement(ctx, stmt)
	if err != nil {
		return destinations.AffectedStats{}, newError(QueryError, "ingest "+location.Path, err)
	}
	return affected, nil
}

// uploadPresigned sends the bytes straight to object storage. The server is
// not involved.
func (l *Loader) uploadPresigned(ctx context.Context, location destinations.StagedLocation, body io.Reader, size int64) (int64, error) {
	method := location.Method
	if method == "" {
		method = http.MethodPut
	}

	// the caller owns body, the transport must not close it
	req, err := http.NewRequestWithContext(ctx, method, location.PresignedURL, io.NopCloser(body))
	if err != nil {
		return 0, &destinations.UploadError{Path: location.Path, Err: err}
	}
	req.ContentLength = size
	if size == 0 {
		req.Body = http.NoBody
	}
	for key, value := range location.Headers {
		req.Header.Set(key, value)
	}

	res, err := l.config.HTTPClient.Do(req)
	if err != nil {
		return 0, &destinations.UploadError{Path: location.Path, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return 0, &destinations.UploadError{
			Path:       location.Path,
			StatusCode: res.StatusCode,
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(msg))),
		}
	}
	return size, nil
}

// renderIngest builds the ingest statement for a staged object. A template
// with the placeholder is used as is, otherwise the clause is derived from
// the dialect.
func renderIngest(template string, dialect schema.Dialect, reference string, format schema.FileFormat) (string, error) {
	if loc := loadPlaceholder.FindStringIndex(template); loc != nil {
		return template[:loc[0]] + reference + template[loc[1]:], nil
	}

	template = strings.TrimSuffix(strings.TrimSpace(template), ";")
	switch dialect.StageSyntax {
	case schema.StageSyntaxFileFormat:
		options, err := fileFormatOptions(dialect, format)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s FROM %s FILE_FORMAT = (%s)", template, reference, options), nil
	case schema.StageSyntaxLoadData:
		match := insertTarget.FindStringSubmatch(template)
		if match == nil {
			return "", fmt.Errorf("cannot derive target table from %q, use %s in the statement", template, LoadPlaceholder)
		}
		options, err := loadDataOptions(dialect, reference, format)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("LOAD DATA INTO %s FROM FILES(%s)", match[1], options), nil
	default:
		return "", fmt.Errorf("%s has no staged ingest syntax", dialect.Name)
	}
}

func fileFormatOptions(d schema.Dialect, f schema.FileFormat) (string, error) {
	options := []string{"type = " + strings.ToUpper(string(f.Type))}
	if f.Delimited() {
		for _, opt := range []struct{ key, value string }{
			{"field_delimiter", f.FieldDelimiter},
			{"record_delimiter", f.RecordDelimiter},
			{"quote", f.Quote},
		} {
			quoted, err := d.QuoteString(opt.value, opt.value)
			if err != nil {
				return "", err
			}
			options = append(options, opt.key+" = "+quoted)
		}
		options = append(options, fmt.Sprintf("skip_header = %d", f.SkipHeader))
		nullDisplay, err := d.QuoteString(f.NullMarker, f.NullMarker)
		if err != nil {
			return "", err
		}
		options = append(options, "null_display = "+nullDisplay)
	}
	options = append(options, "compression = "+strings.ToUpper(string(f.Compression)))
	return strings.Join(options, " "), nil
}

func loadDataOptions(d schema.Dialect, reference string, f schema.FileFormat) (string, error) {
	var options []string
	switch f.Type {
	case schema.FileTypeCSV, schema.FileTypeTSV:
		options = append(options, "format = 'CSV'")
	case schema.FileTypeNDJSON:
		options = append(options, "format = 'NEWLINE_DELIMITED_JSON'")
	case schema.FileTypeParquet:
		options = append(options, "format = 'PARQUET'")
	}
	options = append(options, "uris = ["+reference+"]")

	if f.Delimited() {
		for _, opt := range []struct{ key, value string }{
			{"field_delimiter", f.FieldDelimiter},
			{"quote", f.Quote},
			{"null_marker", f.NullMarker},
		} {
			quoted, err := d.QuoteString(opt.value, opt.value)
			if err != nil {
				return "", err
			}
			options = append(options, opt.key+" = "+quoted)
		}
		options = append(options, fmt.Sprintf("skip_leading_rows = %d", f.SkipHeader))
	}

	switch f.Compression {
	case schema.CompressionGzip:
		options = append(options, "compression = 'GZIP'")
	case schema.CompressionZstd:
		return "", fmt.Errorf("%s cannot ingest zstd compressed files", d.Name)
	}
	return strings.Join(options, ", "), nil
}

func compress(data []byte, compression schema.Compression) ([]byte, error) {
	var buf bytes.Buffer
	switch compression {
	case schema.CompressionGzip:
		gzipWriter := gzip.NewWriter(&buf)
		if _, err := gzipWriter.Write(data); err != nil {
			return nil, err
		}
		if err := gzipWriter.Close(); err != nil {
			return nil, err
		}
	case schema.CompressionZstd:
		zstdWriter, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		if _, err := zstdWriter.Write(data); err != nil {
			return nil, err
		}
		if err := zstdWriter.Close(); err != nil {
			return nil, err
		}
	default:
		return data, nil
	}
	return buf.Bytes(), nil
}

func fileExtension(format schema.FileFormat) string {
	ext := "." + string(format.Type)
	switch format.Compression {
	case schema.CompressionGzip:
		ext += ".gz"
	case schema.CompressionZstd:
		ext += ".zst"
	}
	return ext
}
