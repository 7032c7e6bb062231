package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KYVENetwork/dlt-load/loader"
	"github.com/KYVENetwork/dlt-load/schema"
	"github.com/KYVENetwork/dlt-load/utils"
)

// setupAmbient starts metrics and telemetry as configured.
func setupAmbient(config *utils.Config) {
	if config.Metrics.Enabled {
		utils.StartPrometheus(config.Metrics.Port)
	}
	if config.Telemetry.Enabled && config.Telemetry.WriteKey != "" {
		if err := utils.EnableTelemetry(config.Telemetry.WriteKey); err != nil {
			logger.Warn().Str("err", err.Error()).Msg("telemetry disabled")
		}
	}
}

// loadTarget reads the config once and resolves the DSN to load into. With an
// explicit dsn the config file is optional.
func loadTarget(configPath, destinationName, dsn string) (string, *utils.Config, error) {
	if dsn != "" {
		if _, err := os.Stat(configPath); err != nil {
			return dsn, nil, nil
		}
	}

	config, err := utils.LoadConfig(configPath)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dsn != "" {
		return dsn, config, nil
	}

	destination, err := utils.GetDestination(config, destinationName)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read destination: %w", err)
	}
	return destination.DSN, config, nil
}

// runJob loads one file and retries the whole load on transient failures.
func runJob(ctx context.Context, l *loader.Loader, job utils.Job, retries int) (loader.LoadStats, error) {
	method := loader.Stage
	if job.Method != "" {
		m, err := loader.ParseLoadMethod(job.Method)
		if err != nil {
			return loader.LoadStats{}, err
		}
		method = m
	}

	format := schema.DefaultCSVFormat()
	if job.Format != nil {
		format = job.Format.WithDefaults()
	}

	var stats loader.LoadStats
	err := utils.TryWithExponentialBackoff(ctx, retries+1, func() error {
		var err error
		stats, err = l.LoadFileWithOptions(ctx, job.SQL, job.File, &format, &loader.MethodOptions{Method: method})
		return err
	}, func(err error) bool {
		return loader.KindOf(err).Retryable()
	}, func(err error, wait time.Duration) {
		logger.Warn().
			Str("job", job.Name).
			Str("err", err.Error()).
			Str("retry_in", wait.String()).
			Msg("load failed, retrying")
	})
	if err != nil {
		return loader.LoadStats{}, fmt.Errorf("job %s: %w", job.Name, err)
	}
	return stats, nil
}

// shutdownContext is cancelled on the first SIGINT or SIGTERM. A second signal
// exits immediately.
func shutdownContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	shutdownChannel := make(chan os.Signal, 1)
	signal.Notify(shutdownChannel, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-shutdownChannel:
		case <-ctx.Done():
			signal.Stop(shutdownChannel)
			return
		}

		// First signal, attempt graceful shutdown
		cancel()
		logger.Info().Msg("Exiting...")
		logger.Warn().Msg("This can take some time, please wait until dlt exited!")

		// Second signal, force exit
		<-shutdownChannel
		logger.Warn().Msg("Received second signal, forcing exit...")
		os.Exit(1)
	}()

	return ctx, cancel
}
