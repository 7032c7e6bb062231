package loader

import (
	"context"
	"fmt"
	"time"

	"github.com/KYVENetwork/dlt-load/schema"
	"github.com/KYVENetwork/dlt-load/utils"
)

var (
	logger = utils.DltLogger("loader")
)

// dataSource is either an in-memory row batch or an opened file.
type dataSource struct {
	rows [][]any
	file *FileSource
}

// StreamLoad loads an in-memory row batch. For Stage the rows are written as
// CSV with default options.
func (l *Loader) StreamLoad(ctx context.Context, sql string, rows [][]any, method LoadMethod) (LoadStats, error) {
	return l.run(ctx, method, func(ctx context.Context) (LoadStats, error) {
		return l.execute(ctx, sql, method, dataSource{rows: rows}, schema.DefaultCSVFormat())
	})
}

// LoadFile loads a CSV file with default format options.
func (l *Loader) LoadFile(ctx context.Context, sql, path string, method LoadMethod) (LoadStats, error) {
	return l.LoadFileWithOptions(ctx, sql, path, nil, &MethodOptions{Method: method})
}

// LoadFileWithOptions loads a file with the given format. A nil format means
// CSV defaults, nil options mean Stage.
func (l *Loader) LoadFileWithOptions(ctx context.Context, sql, path string, format *schema.FileFormat, opts *MethodOptions) (LoadStats, error) {
	method := Stage
	if opts != nil {
		method = opts.Method
	}
	fileFormat := schema.DefaultCSVFormat()
	if format != nil {
		fileFormat = *format
	}

	return l.run(ctx, method, func(ctx context.Context) (LoadStats, error) {
		source, err := OpenSource(path, fileFormat)
		if err != nil {
			return LoadStats{}, err
		}
		defer func() {
			if err := source.Close(); err != nil {
				logger.Warn().Str("path", path).Str("err", err.Error()).Msg("failed to close file")
			}
		}()

		return l.execute(ctx, sql, method, dataSource{file: source}, source.Format())
	})
}

func (l *Loader) execute(ctx context.Context, sql string, method LoadMethod, src dataSource, format schema.FileFormat) (LoadStats, error) {
	switch method {
	case Streaming:
		rows := src.rows
		if src.file != nil {
			records, err := src.file.Records()
			if err != nil {
				return LoadStats{}, err
			}
			rows = records
		}
		return l.streamRows(ctx, sql, rows)
	case Stage:
		if src.file != nil {
			return l.stageAndIngest(ctx, src.file.Reader(), src.file.Size(), sql, format)
		}
		return l.stageRows(ctx, sql, src.rows, format)
	default:
		return LoadStats{}, newError(UnsupportedOperation, "load", fmt.Errorf("unknown load method %s", method))
	}
}

// run checks support before anything touches the network, then records
// metrics, logs and telemetry around the load.
func (l *Loader) run(ctx context.Context, method LoadMethod, load func(ctx context.Context) (LoadStats, error)) (LoadStats, error) {
	if err := l.Supports(method); err != nil {
		utils.PrometheusLoadsFailed.WithLabelValues(l.info.Handler, method.String(), UnsupportedOperation.String()).Inc()
		return LoadStats{}, err
	}

	labels := []string{l.info.Handler, method.String()}
	utils.PrometheusLoadsStarted.WithLabelValues(labels...).Inc()
	startTime := time.Now()

	stats, err := load(ctx)
	duration := time.Since(startTime)

	utils.TrackLoad(utils.LoadEvent{
		Handler:  l.info.Handler,
		Method:   method.String(),
		Presign:  l.config.Presign,
		Rows:     stats.WriteRows,
		Duration: duration,
		Err:      err,
	})

	if err != nil {
		utils.PrometheusLoadsFailed.WithLabelValues(l.info.Handler, method.String(), KindOf(err).String()).Inc()
		logger.Error().
			Str("handler", l.info.Handler).
			Str("method", method.String()).
			Str("err", err.Error()).
			Msg("load failed")
		return LoadStats{}, err
	}

	utils.PrometheusLoadsFinished.WithLabelValues(labels...).Inc()
	utils.PrometheusRowsWritten.WithLabelValues(labels...).Add(float64(stats.WriteRows))
	utils.PrometheusLastLoadDuration.WithLabelValues(labels...).Set(duration.Seconds())

	logger.Info().
		Str("handler", l.info.Handler).
		Str("method", method.String()).
		Uint64("rows", stats.WriteRows).
		Uint64("bytes", stats.WriteBytes).
		Str("took", duration.String()).
		Msg("load finished")

	return stats, nil
}
