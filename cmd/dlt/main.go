package main

import (
	"github.com/KYVENetwork/dlt-load/cmd/dlt/commands"
	"github.com/rs/zerolog"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	commands.Execute()
}
