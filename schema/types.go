package schema

import (
	"fmt"
	"strings"
)

type FileType string

const (
	FileTypeCSV     FileType = "csv"
	FileTypeTSV     FileType = "tsv"
	FileTypeNDJSON  FileType = "ndjson"
	FileTypeParquet FileType = "parquet"
)

type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

const DefaultNullMarker = `\N`

// FileFormat describes the shape of a delimited file. Zero fields fall back to
// the CSV defaults, see WithDefaults.
type FileFormat struct {
	Type            FileType    `yaml:"type"`
	FieldDelimiter  string      `yaml:"field_delimiter,omitempty"`
	RecordDelimiter string      `yaml:"record_delimiter,omitempty"`
	Quote           string      `yaml:"quote,omitempty"`
	NullMarker      string      `yaml:"null_marker,omitempty"`
	SkipHeader      int         `yaml:"skip_header,omitempty"`
	Compression     Compression `yaml:"compression,omitempty"`
}

func DefaultCSVFormat() FileFormat {
	return FileFormat{}.WithDefaults()
}

func (f FileFormat) WithDefaults() FileFormat {
	if f.Type == "" {
		f.Type = FileTypeCSV
	}
	f.Type = FileType(strings.ToLower(string(f.Type)))
	if f.FieldDelimiter == "" {
		if f.Type == FileTypeTSV {
			f.FieldDelimiter = "\t"
		} else {
			f.FieldDelimiter = ","
		}
	}
	if f.RecordDelimiter == "" {
		f.RecordDelimiter = "\n"
	}
	if f.Quote == "" {
		f.Quote = `"`
	}
	if f.NullMarker == "" {
		f.NullMarker = DefaultNullMarker
	}
	if f.Compression == "" {
		f.Compression = CompressionNone
	}
	f.Compression = Compression(strings.ToLower(string(f.Compression)))
	return f
}

// Delimited reports whether records can be split client-side.
func (f FileFormat) Delimited() bool {
	return f.Type == FileTypeCSV || f.Type == FileTypeTSV
}

func (f FileFormat) Validate() error {
	switch f.Type {
	case FileTypeCSV, FileTypeTSV, FileTypeNDJSON, FileTypeParquet:
	default:
		return fmt.Errorf("unknown file type %q", f.Type)
	}
	switch f.Compression {
	case CompressionNone, CompressionGzip, CompressionZstd:
	default:
		return fmt.Errorf("unknown compression %q", f.Compression)
	}
	if len([]rune(f.FieldDelimiter)) != 1 {
		return fmt.Errorf("field delimiter must be a single character, got %q", f.FieldDelimiter)
	}
	if len([]rune(f.Quote)) != 1 {
		return fmt.Errorf("quote must be a single character, got %q", f.Quote)
	}
	if f.RecordDelimiter != "\n" && f.RecordDelimiter != "\r\n" {
		return fmt.Errorf("record delimiter must be \\n or \\r\\n, got %q", f.RecordDelimiter)
	}
	if f.SkipHeader < 0 {
		return fmt.Errorf("skip_header must not be negative")
	}
	return nil
}

// StageSyntax selects how a staged object is referenced by an ingest
// statement that carries no explicit placeholder.
type StageSyntax int

const (
	StageSyntaxNone StageSyntax = iota
	// INSERT INTO t VALUES FROM @stage/path FILE_FORMAT = (...)
	StageSyntaxFileFormat
	// LOAD DATA INTO t FROM FILES(format = 'CSV', uris = [...])
	StageSyntaxLoadData
)

// Dialect holds the literal rules of a backend's SQL.
type Dialect struct {
	Name string

	// BackslashEscapes quotes ' as \' and escapes control characters.
	// Without it ' is doubled and backslashes are literal.
	BackslashEscapes bool

	// NULEscape writes NUL as \0. Dialects without it reject NUL bytes.
	NULEscape bool

	// TypedTimestamps prefixes timestamp literals with TIMESTAMP.
	TypedTimestamps bool

	StageSyntax StageSyntax
}

var (
	DialectDatabend = Dialect{Name: "databend", BackslashEscapes: true, NULEscape: true, StageSyntax: StageSyntaxFileFormat}
	DialectPostgres = Dialect{Name: "postgres", TypedTimestamps: true}
	DialectBigQuery = Dialect{Name: "bigquery", BackslashEscapes: true, TypedTimestamps: true, StageSyntax: StageSyntaxLoadData}
)
