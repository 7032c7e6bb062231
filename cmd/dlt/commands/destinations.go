package commands

import (
	"fmt"
	"net/url"

	"github.com/KYVENetwork/dlt-load/loader"
	"github.com/KYVENetwork/dlt-load/utils"
	"github.com/spf13/cobra"
)

func init() {
	destinationsCmd.PersistentFlags().StringVar(&configPath, "config", utils.DefaultHomePath, "set custom config path")

	destinationsCmd.AddCommand(destinationsAddCmd)
	destinationsCmd.AddCommand(destinationsListCmd)
	destinationsCmd.AddCommand(destinationsRemoveCmd)
	destinationsCmd.AddCommand(destinationsCheckCmd)

	rootCmd.AddCommand(destinationsCmd)
}

var destinationsCmd = &cobra.Command{
	Use:     "destinations",
	Short:   "Add, remove, check or list destinations",
	Aliases: []string{"d"},
}

var destinationsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new destination",
	Run: func(cmd *cobra.Command, args []string) {
		configNode, err := utils.LoadConfigWithComments(configPath)
		if err != nil {
			logger.Error().Str("err", err.Error()).Msg("failed to load config")
			return
		}

		newDestination := utils.CreateDestinationEntry()
		if utils.Contains(utils.NodeNames(configNode, "destinations"), utils.GetNodeValue(newDestination, "name")) {
			logger.Error().Str("destination", utils.GetNodeValue(newDestination, "name")).Msg("destination already exists")
			return
		}
		utils.AddNodeToConfig(configNode, "destinations", &newDestination)

		if err := utils.SaveConfigWithComments(configPath, configNode); err != nil {
			logger.Error().Str("err", err.Error()).Msg("error saving config")
			return
		}

		logger.Info().Msg("Destination added successfully!")
	},
}

var destinationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all specified destinations",
	Run: func(cmd *cobra.Command, args []string) {
		config, err := utils.LoadConfig(configPath)
		if err != nil {
			logger.Error().Str("err", err.Error()).Msg("failed to load config")
			return
		}

		if len(config.Destinations) == 0 {
			fmt.Println("No destinations defined.")
			return
		}

		columnOffset := 2
		maxNameLen, maxSchemeLen := len("Name"), len("Type")
		for _, d := range config.Destinations {
			maxNameLen = max(maxNameLen, len(d.Name))
			if u, err := url.Parse(d.DSN); err == nil {
				maxSchemeLen = max(maxSchemeLen, len(u.Scheme))
			}
		}
		maxNameLen += columnOffset
		maxSchemeLen += columnOffset

		fmt.Printf("\033[36m%-*s %-*s %s\033[0m\n", maxNameLen, "Name", maxSchemeLen, "Type", "DSN")
		for _, d := range config.Destinations {
			scheme, redacted := "?", "invalid dsn"
			if u, err := url.Parse(d.DSN); err == nil {
				scheme, redacted = u.Scheme, u.Redacted()
			}
			fmt.Printf("%-*s %-*s %s\n", maxNameLen, d.Name, maxSchemeLen, scheme, redacted)
		}
	},
}

var destinationsRemoveCmd = &cobra.Command{
	Use:   "remove [destination name]",
	Short: "Remove a destination by name",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		configNode, err := utils.LoadConfigWithComments(configPath)
		if err != nil {
			logger.Error().Str("err", err.Error()).Msg("failed to load config")
			return
		}

		removed, err := utils.RemoveNamedEntries(configNode, "destinations", []string{args[0]})
		if err != nil {
			logger.Info().Msg("No destinations defined.")
			return
		}
		if removed == 0 {
			logger.Error().Msg("Destination not found.")
			return
		}

		if err := utils.SaveConfigWithComments(configPath, configNode); err != nil {
			logger.Error().Str("err", err.Error()).Msg("error saving config")
			return
		}
		logger.Info().Msg("Destination removed successfully!")
	},
}

var destinationsCheckCmd = &cobra.Command{
	Use:   "check [destination name]",
	Short: "Connect to a destination and show the load methods it supports",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := shutdownContext()
		defer cancel()

		l, err := loader.SetupLoader(ctx, configPath, args[0])
		if err != nil {
			return err
		}
		defer l.Close()

		info := l.Connection().Info()
		fmt.Printf("Handler:  %s\n", info.Handler)
		fmt.Printf("Host:     %s\n", info.Host)
		fmt.Printf("Database: %s\n", info.Database)
		for _, method := range []loader.LoadMethod{loader.Streaming, loader.Stage} {
			if err := l.Supports(method); err != nil {
				fmt.Printf("%-9s \033[31mno\033[0m\n", method.String()+":")
				continue
			}
			fmt.Printf("%-9s \033[32myes\033[0m\n", method.String()+":")
		}
		return nil
	},
}
