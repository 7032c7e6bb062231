package utils

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/KYVENetwork/dlt-load/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfigTemplate(t *testing.T) {
	config, err := ParseConfig(defaultConfig)
	require.NoError(t, err)

	assert.Equal(t, "info", config.LogLevel)
	assert.False(t, config.Telemetry.Enabled)
	require.Len(t, config.Destinations, 3)
	require.Len(t, config.Jobs, 1)

	job, err := GetJob(config, "books_example")
	require.NoError(t, err)
	destination, err := GetDestination(config, job.Destination)
	require.NoError(t, err)
	assert.Contains(t, destination.DSN, "presign=on")
}

func TestParseConfig(t *testing.T) {
	config, err := ParseConfig([]byte(`
log_level: debug
metrics:
  enabled: true
destinations:
  - name: warehouse
    dsn: http://root:@localhost:8000/default?presign=off
jobs:
  - name: events
    destination: warehouse
    sql: INSERT INTO events VALUES
    file: /data/events.tsv.gz
    method: streaming
    cron: "*/5 * * * *"
    format:
      type: TSV
      compression: gzip
      skip_header: 1
`))
	require.NoError(t, err)

	assert.Equal(t, "2112", config.Metrics.Port)
	job := config.Jobs[0]
	require.NotNil(t, job.Format)
	assert.Equal(t, schema.FileFormat{
		Type:            schema.FileTypeTSV,
		FieldDelimiter:  "\t",
		RecordDelimiter: "\n",
		Quote:           `"`,
		NullMarker:      schema.DefaultNullMarker,
		SkipHeader:      1,
		Compression:     schema.CompressionGzip,
	}, job.Format.WithDefaults())

	_, err = GetDestination(config, "missing")
	assert.Error(t, err)
}

func TestParseConfigInvalid(t *testing.T) {
	for name, doc := range map[string]string{
		"duplicate destination": "destinations: [{name: a, dsn: x}, {name: a, dsn: y}]",
		"missing dsn":           "destinations: [{name: a}]",
		"unknown destination":   "jobs: [{name: j, destination: b, sql: s, file: f}]",
		"missing file":          "destinations: [{name: a, dsn: x}]\njobs: [{name: j, destination: a, sql: s}]",
		"unknown method":        "destinations: [{name: a, dsn: x}]\njobs: [{name: j, destination: a, sql: s, file: f, method: attachment}]",
		"not yaml":              "destinations: [",
	} {
		_, err := ParseConfig([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestLoadConfigCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "load.yml")

	_, err := LoadConfig(path)
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, defaultConfig, data)

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Len(t, config.Destinations, 3)

	assert.Error(t, InitConfig(path))
}

func TestConfigNodeEditing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "load.yml")
	require.NoError(t, InitConfig(path))

	node, err := LoadConfigWithComments(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"databend_example", "postgres_example", "big_query_example"}, NodeNames(node, "destinations"))

	removed, err := RemoveNamedEntries(node, "destinations", []string{"postgres_example", "unknown"})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	entry := yamlEntry("name", "lake", "dsn", "bigquery://p/d?bucket=b")
	AddNodeToConfig(node, "destinations", &entry)
	require.NoError(t, SaveConfigWithComments(path, node))

	require.NoError(t, ClearConfig(path, "jobs", []string{"books_example"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	config, err := ParseConfig(data)
	require.NoError(t, err)

	var names []string
	for _, d := range config.Destinations {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"databend_example", "big_query_example", "lake"}, names)
	assert.Empty(t, config.Jobs)

	_, err = RemoveNamedEntries(node, "sources", nil)
	assert.Error(t, err)
}

func TestTryWithExponentialBackoff(t *testing.T) {
	transient := errors.New("transient")
	permanent := errors.New("permanent")
	retryable := func(err error) bool { return errors.Is(err, transient) }

	calls := 0
	err := TryWithExponentialBackoff(context.Background(), 3, func() error {
		calls++
		return permanent
	}, retryable, func(error, time.Duration) {})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)

	calls = 0
	err = TryWithExponentialBackoff(context.Background(), 1, func() error {
		calls++
		return transient
	}, retryable, func(error, time.Duration) {})
	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 1, calls)

	ctx, cancel := context.WithCancel(context.Background())
	calls = 0
	var waits []time.Duration
	err = TryWithExponentialBackoff(ctx, 5, func() error {
		calls++
		return transient
	}, retryable, func(_ error, wait time.Duration) {
		waits = append(waits, wait)
		cancel()
	})
	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []time.Duration{time.Second}, waits)

	calls = 0
	err = TryWithExponentialBackoff(context.Background(), 3, func() error {
		calls++
		return nil
	}, retryable, func(error, time.Duration) {})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestTrackLoadWithoutTelemetry(t *testing.T) {
	// no client configured, must not block or panic
	TrackLoad(LoadEvent{Handler: "HTTP", Method: "stage", Rows: 3})
	CloseTelemetry()
}

func yamlEntry(kv ...string) yaml.Node {
	node := yaml.Node{Kind: yaml.MappingNode}
	for _, v := range kv {
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: v})
	}
	return node
}
