package commands

import (
	"fmt"

	"github.com/KYVENetwork/dlt-load/utils"
	"github.com/spf13/cobra"
)

func init() {
	initCmd.Flags().StringVar(&configPath, "config", utils.DefaultHomePath, "set custom config path")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize dlt",
	Run: func(cmd *cobra.Command, args []string) {
		if err := utils.InitConfig(configPath); err != nil {
			logger.Error().Msg(err.Error())
			return
		}

		if !utils.PromptConfirm("\nDo you want to create a destination? [y/N]: ") {
			return
		}

		configNode, err := utils.LoadConfigWithComments(configPath)
		if err != nil {
			logger.Error().Str("err", err.Error()).Msg("failed to load config")
			return
		}

		newDestination := utils.CreateDestinationEntry()
		utils.AddNodeToConfig(configNode, "destinations", &newDestination)

		// Remove example destinations and jobs
		if _, err := utils.RemoveNamedEntries(configNode, "destinations", []string{"databend_example", "postgres_example", "big_query_example"}); err != nil {
			logger.Error().Str("err", err.Error()).Msg("failed to clear config template")
			return
		}
		if _, err := utils.RemoveNamedEntries(configNode, "jobs", []string{"books_example"}); err != nil {
			logger.Error().Str("err", err.Error()).Msg("failed to clear config template")
			return
		}

		destinationName := utils.GetNodeValue(newDestination, "name")
		if utils.PromptConfirm("\nDo you want to schedule a job for it? [y/N]: ") {
			newJob := utils.CreateJobEntry(destinationName)
			utils.AddNodeToConfig(configNode, "jobs", &newJob)
		}

		if err := utils.SaveConfigWithComments(configPath, configNode); err != nil {
			logger.Error().Str("err", err.Error()).Msg("error saving config")
			return
		}

		fmt.Printf("\nSuccessfully initialized and created destination \033[36m`%s`\033[0m!\n", destinationName)

		fmt.Println("\nTo load a file, run one of the following commands: \n" +
			"\033[32m" +
			"dlt load --destination " + destinationName + " --sql \"INSERT INTO books VALUES\" --file books.csv\n" +
			"dlt start\n" +
			"\033[0m")

		fmt.Println("To manage your config, run one of the following commands: \n" +
			"\033[32m" +
			"dlt destinations {add|remove|list}\n" +
			"dlt jobs {add|remove|list}" +
			"\033[0m")
	},
}
