package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/KYVENetwork/dlt-load/loader"
	"github.com/KYVENetwork/dlt-load/utils"
	"github.com/go-co-op/gocron/v2"
	"github.com/spf13/cobra"
)

var (
	jobNames         []string
	scheduledRetries int
)

func init() {
	startCmd.Flags().StringVar(&configPath, "config", utils.DefaultHomePath, "set custom config path")

	startCmd.Flags().StringSliceVarP(&jobNames, "job", "j", nil, "only schedule these jobs (default all)")

	startCmd.Flags().IntVar(&scheduledRetries, "retries", 3, "retry transient failures this many times per run")

	rootCmd.AddCommand(startCmd)
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the configured jobs on their cron schedules",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := utils.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		jobs := config.Jobs
		if len(jobNames) > 0 {
			jobs = nil
			for _, name := range jobNames {
				job, err := utils.GetJob(config, name)
				if err != nil {
					return err
				}
				jobs = append(jobs, job)
			}
		}
		if len(jobs) == 0 {
			return fmt.Errorf("no jobs defined")
		}

		setupAmbient(config)
		defer utils.CloseTelemetry()

		ctx, cancel := shutdownContext()
		defer cancel()

		loaders := make(map[string]*loader.Loader)
		defer func() {
			for name, l := range loaders {
				if err := l.Close(); err != nil {
					logger.Warn().Str("destination", name).Str("err", err.Error()).Msg("failed to close destination")
				}
			}
		}()

		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}

		for _, job := range jobs {
			l, ok := loaders[job.Destination]
			if !ok {
				destination, err := utils.GetDestination(config, job.Destination)
				if err != nil {
					return err
				}
				l, err = loader.Open(ctx, destination.DSN)
				if err != nil {
					return fmt.Errorf("job %s: %w", job.Name, err)
				}
				loaders[job.Destination] = l
			}

			_, err := scheduler.NewJob(
				gocron.CronJob(job.Cron, false),
				gocron.NewTask(scheduledLoad, ctx, l, job),
				gocron.WithName(job.Name),
				gocron.WithSingletonMode(gocron.LimitModeReschedule),
			)
			if err != nil {
				return fmt.Errorf("job %s: invalid schedule %q: %w", job.Name, job.Cron, err)
			}
			logger.Info().Str("job", job.Name).Str("cron", job.Cron).Msg("scheduled")
		}

		scheduler.Start()
		<-ctx.Done()

		if err := scheduler.Shutdown(); err != nil {
			return fmt.Errorf("failed to stop scheduler: %w", err)
		}
		return nil
	},
}

func scheduledLoad(ctx context.Context, l *loader.Loader, job utils.Job) {
	startTime := time.Now()
	stats, err := runJob(ctx, l, job, scheduledRetries)
	if err != nil {
		logger.Error().Str("job", job.Name).Str("err", err.Error()).Msg("scheduled load failed")
		return
	}
	logger.Info().
		Str("job", job.Name).
		Uint64("rows", stats.WriteRows).
		Str("took", time.Since(startTime).String()).
		Msg("scheduled load finished")
}
