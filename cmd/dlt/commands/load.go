package commands

import (
	"fmt"

	"github.com/KYVENetwork/dlt-load/loader"
	"github.com/KYVENetwork/dlt-load/schema"
	"github.com/KYVENetwork/dlt-load/utils"
	"github.com/spf13/cobra"
)

var (
	destinationName string
	dsn             string
	statement       string
	filePath        string
	methodName      string
	fileType        string
	delimiter       string
	compression     string
	skipHeader      int
	retries         int
	y               bool
)

func init() {
	loadCmd.Flags().StringVar(&configPath, "config", utils.DefaultHomePath, "set custom config path")

	loadCmd.Flags().StringVarP(&destinationName, "destination", "d", "", "name of the configured destination")
	loadCmd.Flags().StringVar(&dsn, "dsn", "", "connect to this DSN instead of a configured destination")
	loadCmd.MarkFlagsOneRequired("destination", "dsn")
	loadCmd.MarkFlagsMutuallyExclusive("destination", "dsn")

	loadCmd.Flags().StringVar(&statement, "sql", "", "insert statement, e.g. \"INSERT INTO books VALUES\"")
	if err := loadCmd.MarkFlagRequired("sql"); err != nil {
		panic(fmt.Errorf("flag 'sql' should be required: %w", err))
	}

	loadCmd.Flags().StringVarP(&filePath, "file", "f", "", "path of the file to load")
	if err := loadCmd.MarkFlagRequired("file"); err != nil {
		panic(fmt.Errorf("flag 'file' should be required: %w", err))
	}

	loadCmd.Flags().StringVarP(&methodName, "method", "m", "stage", "load method: stage or streaming")

	loadCmd.Flags().StringVar(&fileType, "type", "csv", "file type: csv, tsv, ndjson or parquet")

	loadCmd.Flags().StringVar(&delimiter, "delimiter", "", "field delimiter (default depends on type)")

	loadCmd.Flags().StringVar(&compression, "compression", "none", "file compression: none, gzip or zstd")

	loadCmd.Flags().IntVar(&skipHeader, "skip-header", 0, "number of header lines to skip")

	loadCmd.Flags().IntVar(&retries, "retries", 0, "retry transient failures this many times")

	loadCmd.Flags().BoolVarP(&y, "yes", "y", false, "automatically answer yes for all questions")

	rootCmd.AddCommand(loadCmd)
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load a file into a table",
	RunE: func(cmd *cobra.Command, args []string) error {
		method, err := loader.ParseLoadMethod(methodName)
		if err != nil {
			return err
		}

		format := schema.FileFormat{
			Type:           schema.FileType(fileType),
			FieldDelimiter: delimiter,
			SkipHeader:     skipHeader,
			Compression:    schema.Compression(compression),
		}.WithDefaults()
		if err := format.Validate(); err != nil {
			return err
		}

		ctx, cancel := shutdownContext()
		defer cancel()

		target, config, err := loadTarget(configPath, destinationName, dsn)
		if err != nil {
			return err
		}
		if config != nil {
			setupAmbient(config)
			defer utils.CloseTelemetry()
		}

		l, err := loader.Open(ctx, target)
		if err != nil {
			return fmt.Errorf("failed to set up loader: %w", err)
		}
		defer l.Close()

		if err := l.Supports(method); err != nil {
			return err
		}

		if !y && !utils.PromptConfirm(fmt.Sprintf("\nLoad %s with %s into %s? [y/N]: ", filePath, method, l.Connection().Info().Host)) {
			logger.Info().Msg("aborted")
			return nil
		}

		stats, err := runJob(ctx, l, utils.Job{
			Name:   "load",
			SQL:    statement,
			File:   filePath,
			Method: method.String(),
			Format: &format,
		}, retries)
		if err != nil {
			return err
		}

		fmt.Printf("Loaded %s\n", stats)
		return nil
	},
}
