package utils

import "github.com/KYVENetwork/dlt-load/schema"

type Config struct {
	LogLevel     string        `yaml:"log_level"`
	Metrics      Metrics       `yaml:"metrics"`
	Telemetry    Telemetry     `yaml:"telemetry"`
	Destinations []Destination `yaml:"destinations"`
	Jobs         []Job         `yaml:"jobs"`
}

type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port"`
}

type Telemetry struct {
	Enabled  bool   `yaml:"enabled"`
	WriteKey string `yaml:"write_key,omitempty"`
}

type Destination struct {
	Name string `yaml:"name"`
	DSN  string `yaml:"dsn"`
}

// Job is a load that `dlt start` runs on its cron schedule.
type Job struct {
	Name        string             `yaml:"name"`
	Destination string             `yaml:"destination"`
	SQL         string             `yaml:"sql"`
	File        string             `yaml:"file"`
	Method      string             `yaml:"method,omitempty"`
	Cron        string             `yaml:"cron"`
	Format      *schema.FileFormat `yaml:"format,omitempty"`
}
