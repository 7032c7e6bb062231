package loader

import (
	"context"
	"fmt"

	"github.com/KYVENetwork/dlt-load/destinations"
	"github.com/KYVENetwork/dlt-load/utils"
)

// Open connects to the DSN and returns a loader carrying the DSN settings.
func Open(ctx context.Context, dsn string) (*Loader, error) {
	conn, settings, err := destinations.Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open destination: %w", err)
	}
	return NewLoader(conn, Config{Presign: settings.Presign}), nil
}

// SetupLoader opens the named destination of the config file.
func SetupLoader(ctx context.Context, configPath, destinationName string) (*Loader, error) {
	config, err := utils.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %v", err)
	}

	destination, err := utils.GetDestination(config, destinationName)
	if err != nil {
		return nil, fmt.Errorf("failed to read destination: %v", err)
	}

	return Open(ctx, destination.DSN)
}
