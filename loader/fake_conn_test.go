package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/KYVENetwork/dlt-load/destinations"
	"github.com/KYVENetwork/dlt-load/schema"
	"github.com/stretchr/testify/require"
)

var (
	insertValuesStmt = regexp.MustCompile(`(?is)^INSERT\s+INTO\s+(\S+)\s+VALUES\s*(\(.*)$`)
	stageIngestStmt  = regexp.MustCompile(`(?is)^INSERT\s+INTO\s+(\S+)\s+VALUES\s+FROM\s+@~/(\S+)\s+FILE_FORMAT\s*=\s*\((.*)\)\s*$`)
	skipHeaderOption = regexp.MustCompile(`(?i)skip_header\s*=\s*(\d+)`)
)

// fakeConn is an in-memory backend with a Databend-like dialect. Presigned
// uploads go to an httptest object store that writes into the same objects.
type fakeConn struct {
	t       *testing.T
	handler string

	mu             sync.Mutex
	tables         map[string][][]*string
	objects        map[string][]byte
	statements     []string
	stageRequests  []destinations.StageRequest
	proxiedUploads int
	presignedPuts  int

	stagingErr   error
	uploadErr    error
	presignFails bool

	store *httptest.Server
}

func newFakeConn(t *testing.T, handler string) *fakeConn {
	f := &fakeConn{
		t:       t,
		handler: handler,
		tables:  map[string][][]*string{},
		objects: map[string][]byte{},
	}
	f.store = httptest.NewServer(http.HandlerFunc(f.handlePut))
	t.Cleanup(f.store.Close)
	return f
}

func (f *fakeConn) handlePut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if f.presignFails {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("slow down"))
		return
	}
	if r.Header.Get("X-Stage") != "dlt" {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.objects[strings.TrimPrefix(r.URL.Path, "/")] = data
	f.presignedPuts++
	f.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (f *fakeConn) loader(presign bool) *Loader {
	return NewLoader(f, Config{Presign: presign, HTTPClient: f.store.Client()})
}

func (f *fakeConn) Info() destinations.ConnInfo {
	return destinations.ConnInfo{
		Handler:  f.handler,
		Host:     "fake",
		Database: "default",
		Dialect:  schema.DialectDatabend,
	}
}

func (f *fakeConn) ExecuteStatement(_ context.Context, sql string) (destinations.AffectedStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statements = append(f.statements, sql)

	if m := stageIngestStmt.FindStringSubmatch(sql); m != nil {
		return f.ingest(m[1], m[2], m[3])
	}
	if m := insertValuesStmt.FindStringSubmatch(sql); m != nil {
		if m[1] == "rejected" {
			return destinations.AffectedStats{}, &destinations.QueryError{Code: "1006", Message: "table rejected is read only", SQL: sql}
		}
		rows, err := parseTuples(m[2])
		if err != nil {
			return destinations.AffectedStats{}, &destinations.QueryError{Code: "1005", Message: err.Error(), SQL: sql}
		}
		f.tables[m[1]] = append(f.tables[m[1]], rows...)
		return destinations.AffectedStats{WriteRows: uint64(len(rows))}, nil
	}
	return destinations.AffectedStats{}, &destinations.QueryError{Code: "1005", Message: "syntax error", SQL: sql}
}

func (f *fakeConn) ingest(table, object, options string) (destinations.AffectedStats, error) {
	data, ok := f.objects[object]
	if !ok {
		return destinations.AffectedStats{}, &destinations.QueryError{Code: "1025", Message: "file not found: " + object}
	}

	format := schema.DefaultCSVFormat()
	switch {
	case strings.HasSuffix(object, ".gz"):
		format.Compression = schema.CompressionGzip
	case strings.HasSuffix(object, ".zst"):
		format.Compression = schema.CompressionZstd
	}
	if m := skipHeaderOption.FindStringSubmatch(options); m != nil {
		format.SkipHeader, _ = strconv.Atoi(m[1])
	}

	r, release, err := decompress(bytes.NewReader(data), format.Compression)
	if err != nil {
		return destinations.AffectedStats{}, &destinations.QueryError{Code: "1046", Message: err.Error()}
	}
	defer release()

	reader := newDelimitedReader(r, format)
	var rows [][]*string
	for skipped := 0; ; {
		record, err := reader.readRecord()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return destinations.AffectedStats{}, &destinations.QueryError{Code: "1046", Message: err.Error()}
		}
		if skipped < format.SkipHeader {
			skipped++
			continue
		}
		row := make([]*string, len(record))
		for i, v := range record {
			if s, ok := v.(string); ok {
				row[i] = &s
			}
		}
		rows = append(rows, row)
	}

	f.tables[table] = append(f.tables[table], rows...)
	return destinations.AffectedStats{WriteRows: uint64(len(rows)), WriteBytes: uint64(len(data))}, nil
}

func (f *fakeConn) RequestStagingLocation(_ context.Context, req destinations.StageRequest) (destinations.StagedLocation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stageRequests = append(f.stageRequests, req)

	if f.stagingErr != nil {
		return destinations.StagedLocation{}, f.stagingErr
	}

	p := path.Join("_dlt_load", req.Name)
	location := destinations.StagedLocation{Path: p, Reference: "@~/" + p}
	if req.Presign {
		location.PresignedURL = f.store.URL + "/" + p
		location.Method = http.MethodPut
		location.Headers = map[string]string{"X-Stage": "dlt"}
	}
	return location, nil
}

func (f *fakeConn) Upload(_ context.Context, location destinations.StagedLocation, body io.Reader, _ int64) (destinations.UploadResult, error) {
	if f.uploadErr != nil {
		return destinations.UploadResult{}, &destinations.UploadError{Path: location.Path, Err: f.uploadErr}
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return destinations.UploadResult{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[location.Path] = data
	f.proxiedUploads++
	return destinations.UploadResult{Bytes: int64(len(data))}, nil
}

func (f *fakeConn) Close() error {
	return nil
}

func (f *fakeConn) rows(table string) [][]*string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tables[table]
}

// networkCalls counts everything that would have left the process.
func (f *fakeConn) networkCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.statements) + len(f.stageRequests) + f.proxiedUploads + f.presignedPuts
}

// parseTuples reads a VALUES tuple list written with backslash escapes.
func parseTuples(s string) ([][]*string, error) {
	var rows [][]*string
	i := 0
	skipSpace := func() {
		for i < len(s) && (s[i] == ' ' || s[i] == '\n' || s[i] == '\t') {
			i++
		}
	}

	for {
		skipSpace()
		if i < len(s) && s[i] == ',' && len(rows) > 0 {
			i++
			skipSpace()
		}
		if i >= len(s) {
			return rows, nil
		}
		if s[i] != '(' {
			return nil, fmt.Errorf("expected ( at offset %d", i)
		}
		i++

		var row []*string
		for {
			skipSpace()
			if i >= len(s) {
				return nil, fmt.Errorf("unterminated tuple")
			}
			if s[i] == '\'' {
				i++
				var b strings.Builder
				for {
					if i >= len(s) {
						return nil, fmt.Errorf("unterminated string")
					}
					c := s[i]
					if c == '\\' && i+1 < len(s) {
						i++
						switch s[i] {
						case 'n':
							b.WriteByte('\n')
						case 'r':
							b.WriteByte('\r')
						case 't':
							b.WriteByte('\t')
						case '0':
							b.WriteByte(0)
						default:
							b.WriteByte(s[i])
						}
						i++
						continue
					}
					i++
					if c == '\'' {
						break
					}
					b.WriteByte(c)
				}
				v := b.String()
				row = append(row, &v)
			} else {
				j := i
				for j < len(s) && s[j] != ',' && s[j] != ')' {
					j++
				}
				token := strings.TrimSpace(s[i:j])
				i = j
				if strings.EqualFold(token, "NULL") {
					row = append(row, nil)
				} else {
					row = append(row, &token)
				}
			}

			skipSpace()
			if i < len(s) && s[i] == ',' {
				i++
				continue
			}
			if i < len(s) && s[i] == ')' {
				i++
				break
			}
			return nil, fmt.Errorf("unexpected input at offset %d", i)
		}
		rows = append(rows, row)
	}
}

func strs(row []*string) []any {
	out := make([]any, len(row))
	for i, v := range row {
		if v != nil {
			out[i] = *v
		}
	}
	return out
}

func requireTable(t *testing.T, f *fakeConn, table string, expected [][]any) {
	t.Helper()
	actual := f.rows(table)
	require.Len(t, actual, len(expected))
	for i, row := range actual {
		require.Equal(t, expected[i], strs(row), "row %d", i)
	}
}
