package commands

import (
	"fmt"

	"github.com/KYVENetwork/dlt-load/utils"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func init() {
	jobsCmd.PersistentFlags().StringVar(&configPath, "config", utils.DefaultHomePath, "set custom config path")

	jobsCmd.AddCommand(jobsAddCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsRemoveCmd)

	rootCmd.AddCommand(jobsCmd)
}

var jobsCmd = &cobra.Command{
	Use:     "jobs",
	Short:   "Add or remove a scheduled job or list all",
	Aliases: []string{"j"},
}

var jobsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new job",
	Run: func(cmd *cobra.Command, args []string) {
		configNode, err := utils.LoadConfigWithComments(configPath)
		if err != nil {
			logger.Error().Str("err", err.Error()).Msg("failed to load config")
			return
		}

		destinationName := utils.SelectDestination(configNode)
		if destinationName == "" {
			logger.Error().Msg("no destination selected")
			return
		}

		newJob := utils.CreateJobEntry(destinationName)
		if valueExists(configNode, utils.GetNodeValue(newJob, "name"), "jobs") {
			logger.Error().Str("job", utils.GetNodeValue(newJob, "name")).Msg("job already exists")
			return
		}
		utils.AddNodeToConfig(configNode, "jobs", &newJob)

		if err := utils.SaveConfigWithComments(configPath, configNode); err != nil {
			logger.Error().Str("err", err.Error()).Msg("error saving config")
			return
		}

		logger.Info().Msg("Job added successfully!")
	},
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all jobs",
	Run: func(cmd *cobra.Command, args []string) {
		config, err := utils.LoadConfig(configPath)
		if err != nil {
			logger.Error().Str("err", err.Error()).Msg("failed to load config")
			return
		}

		if len(config.Jobs) == 0 {
			fmt.Println("No jobs defined.")
			return
		}

		columnOffset := 2
		maxNameLen, maxDestinationLen, maxMethodLen, maxCronLen := len("Name"), len("Destination"), len("Method"), len("Cron")
		for _, job := range config.Jobs {
			maxNameLen = max(maxNameLen, len(job.Name))
			maxDestinationLen = max(maxDestinationLen, len(job.Destination))
			maxMethodLen = max(maxMethodLen, len(job.Method))
			maxCronLen = max(maxCronLen, len(job.Cron))
		}
		maxNameLen += columnOffset
		maxDestinationLen += columnOffset
		maxMethodLen += columnOffset
		maxCronLen += columnOffset

		fmt.Printf("\033[36m%-*s %-*s %-*s %-*s %s\033[0m\n", maxNameLen, "Name", maxDestinationLen, "Destination", maxMethodLen, "Method", maxCronLen, "Cron", "File")
		for _, job := range config.Jobs {
			method := job.Method
			if method == "" {
				method = "stage"
			}
			fmt.Printf("%-*s %-*s %-*s %-*s %s\n", maxNameLen, job.Name, maxDestinationLen, job.Destination, maxMethodLen, method, maxCronLen, job.Cron, job.File)
		}
	},
}

var jobsRemoveCmd = &cobra.Command{
	Use:   "remove [job name]",
	Short: "Remove a job by name",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		configNode, err := utils.LoadConfigWithComments(configPath)
		if err != nil {
			logger.Error().Str("err", err.Error()).Msg("failed to load config")
			return
		}

		removed, err := utils.RemoveNamedEntries(configNode, "jobs", []string{args[0]})
		if err != nil {
			logger.Info().Msg("No jobs defined.")
			return
		}
		if removed == 0 {
			logger.Error().Msg("Job not found.")
			return
		}

		if err := utils.SaveConfigWithComments(configPath, configNode); err != nil {
			logger.Error().Str("err", err.Error()).Msg("error saving config")
			return
		}
		logger.Info().Msg("Job removed successfully!")
	},
}

func valueExists(configNode *yaml.Node, name, key string) bool {
	return utils.Contains(utils.NodeNames(configNode, key), name)
}
