package commands

import (
	"fmt"
	"os"

	"github.com/KYVENetwork/dlt-load/utils"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logger     = utils.DltLogger("cmd")
)

var rootCmd = &cobra.Command{
	Use:           "dlt",
	Short:         "Bulk load files into SQL databases",
	SilenceErrors: true,
	SilenceUsage:  true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
