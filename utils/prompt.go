package utils

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

func PromptConfirm(prompt string) bool {
	answer := ""
	fmt.Printf("\u001B[36m%s\u001B[0m", prompt)
	if _, err := fmt.Scan(&answer); err != nil {
		logger.Error().Str("err", err.Error()).Msg("failed to read user input")
		return false
	}
	return strings.ToLower(answer) == "y"
}

func PromptDropdown(prompt string, options []string) string {
	fmt.Println(prompt)
	for i, option := range options {
		fmt.Printf("%d: %s\n", i+1, option)
	}
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Printf("\033[36mSelect option [1-%v]: \033[0m", len(options))
		input, _ := reader.ReadString('\n')
		choice, err := strconv.Atoi(strings.TrimSpace(input))
		if err == nil && choice > 0 && choice <= len(options) {
			return options[choice-1]
		}
		fmt.Println("Invalid choice, please try again.")
	}
}

func PromptInput(prompt string) string {
	var input string
	for {
		fmt.Print(prompt)
		reader := bufio.NewReader(os.Stdin)
		rawInput, _ := reader.ReadString('\n')
		input = strings.TrimSpace(rawInput)
		if input != "" {
			break
		}
		fmt.Println("Input cannot be empty. Please try again.")
	}
	return input
}

func PromptInputWithDefault(prompt string, defaultValue string) string {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultValue
	}
	return input
}

// NodeNames lists the names of all entries in a config section.
func NodeNames(configNode *yaml.Node, section string) []string {
	var names []string
	for i, node := range configNode.Content[0].Content {
		if node.Value == section && i+1 < len(configNode.Content[0].Content) {
			entries := configNode.Content[0].Content[i+1]
			for _, entry := range entries.Content {
				names = append(names, GetNodeValue(*entry, "name"))
			}
			break
		}
	}
	return names
}

func SelectDestination(configNode *yaml.Node) string {
	destinations := NodeNames(configNode, "destinations")
	if len(destinations) == 0 {
		fmt.Println("No destinations found in the configuration.")
		return ""
	}
	return PromptDropdown("\n\u001B[36mSelect a destination: \u001B[0m", destinations)
}
