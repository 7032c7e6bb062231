package loader

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/KYVENetwork/dlt-load/schema"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// FileSource is an open data file. The handle is owned by the load call and
// released by Close on every path.
type FileSource struct {
	path   string
	format schema.FileFormat
	file   *os.File
	size   int64
}

func OpenSource(path string, format schema.FileFormat) (*FileSource, error) {
	format = format.WithDefaults()
	if err := format.Validate(); err != nil {
		return nil, newError(FormatError, "open "+path, err)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, newError(IOError, "open", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, newError(IOError, "stat", err)
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, newError(IOError, "open", fmt.Errorf("%s is a directory", path))
	}

	return &FileSource{
		path:   path,
		format: format,
		file:   file,
		size:   info.Size(),
	}, nil
}

func (s *FileSource) Path() string {
	return s.path
}

func (s *FileSource) Format() schema.FileFormat {
	return s.format
}

func (s *FileSource) Size() int64 {
	return s.size
}

// Reader returns the raw, still compressed bytes of the file.
func (s *FileSource) Reader() io.Reader {
	return s.file
}

func (s *FileSource) Close() error {
	return s.file.Close()
}

// Records decompresses and splits the file into rows. Unquoted fields equal
// to the null marker become nil, quoted ones stay strings.
func (s *FileSource) Records() ([][]any, error) {
	op := "read " + s.path
	if !s.format.Delimited() {
		return nil, newError(FormatError, op, fmt.Errorf("%s files cannot be split into rows", s.format.Type))
	}

	r, release, err := decompress(s.file, s.format.Compression)
	if err != nil {
		return nil, newError(FormatError, op, err)
	}
	defer release()

	reader := newDelimitedReader(r, s.format)
	var rows [][]any
	skipped := 0
	for {
		record, err := reader.readRecord()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pathErr *fs.PathError
			if errors.As(err, &pathErr) {
				return nil, newError(IOError, op, err)
			}
			return nil, newError(FormatError, op, err)
		}
		if skipped < s.format.SkipHeader {
			skipped++
			continue
		}
		if len(rows) > 0 && len(record) != len(rows[0]) {
			return nil, newError(FormatError, op, fmt.Errorf("line %d: %d fields, expected %d", reader.line-1, len(record), len(rows[0])))
		}
		rows = append(rows, record)
	}
	return rows, nil
}

func decompress(r io.Reader, compression schema.Compression) (io.Reader, func(), error) {
	switch compression {
	case schema.CompressionGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip: %w", err)
		}
		return zr, func() { _ = zr.Close() }, nil
	case schema.CompressionZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd: %w", err)
		}
		return dec, dec.Close, nil
	default:
		return r, func() {}, nil
	}
}

type delimitedReader struct {
	r     *bufio.Reader
	delim rune
	quote rune
	null  string
	line  int
}

func newDelimitedReader(r io.Reader, format schema.FileFormat) *delimitedReader {
	return &delimitedReader{
		r:     bufio.NewReader(r),
		delim: []rune(format.FieldDelimiter)[0],
		quote: []rune(format.Quote)[0],
		null:  format.NullMarker,
		line:  1,
	}
}

// readRecord returns the next record, or io.EOF. Blank lines are skipped.
func (d *delimitedReader) readRecord() ([]any, error) {
	var (
		record  []any
		field   strings.Builder
		quoted  bool
		inQuote bool
		started bool
	)
	flush := func() {
		value := field.String()
		if !quoted && value == d.null {
			record = append(record, nil)
		} else {
			record = append(record, value)
		}
		field.Reset()
		quoted = false
	}

	for {
		c, _, err := d.r.ReadRune()
		if errors.Is(err, io.EOF) {
			if inQuote {
				return nil, fmt.Errorf("line %d: unterminated quoted field", d.line)
			}
			if !started {
				return nil, io.EOF
			}
			flush()
			return record, nil
		}
		if err != nil {
			return nil, err
		}
		started = true

		if inQuote {
			if c == d.quote {
				next, _, err := d.r.ReadRune()
				if err == nil && next == d.quote {
					field.WriteRune(d.quote)
					continue
				}
				if err == nil {
					_ = d.r.UnreadRune()
				}
				inQuote = false
				continue
			}
			if c == '\n' {
				d.line++
			}
			field.WriteRune(c)
			continue
		}

		switch c {
		case d.quote:
			if field.Len() > 0 || quoted {
				return nil, fmt.Errorf("line %d: bare quote in field", d.line)
			}
			inQuote, quoted = true, true
		case d.delim:
			flush()
		case '\n', '\r':
			if c == '\r' {
				next, _, err := d.r.ReadRune()
				if err == nil && next != '\n' {
					_ = d.r.UnreadRune()
				}
			}
			d.line++
			if len(record) == 0 && field.Len() == 0 && !quoted {
				started = false
				continue
			}
			flush()
			return record, nil
		default:
			if quoted {
				return nil, fmt.Errorf("line %d: unexpected %q after closing quote", d.line, c)
			}
			field.WriteRune(c)
		}
	}
}
