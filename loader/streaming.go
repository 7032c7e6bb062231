package loader

import (
	"context"
	"strings"

	"github.com/KYVENetwork/dlt-load/schema"
)

// streamRows sends all rows inline as one INSERT ... VALUES statement. Meant
// for small batches, the statement size limit of the backend applies.
func (l *Loader) streamRows(ctx context.Context, template string, rows [][]any) (LoadStats, error) {
	if len(rows) == 0 {
		return LoadStats{}, nil
	}

	values, err := schema.EncodeValues(l.info.Dialect, rows)
	if err != nil {
		return LoadStats{}, newError(EncodingError, "encode rows", err)
	}
	stmt := streamingPrefix(template) + " " + values

	logger.Debug().Int("rows", len(rows)).Int("statement_bytes", len(stmt)).Msg("sending inline insert")

	affected, err := l.conn.ExecuteStatement(ctx, stmt)
	if err != nil {
		return LoadStats{}, newError(QueryError, "insert", err)
	}
	stats := LoadStats{
		WriteRows:  affected.WriteRows,
		WriteBytes: affected.WriteBytes,
		ErrorRows:  affected.ErrorRows,
	}
	if stats.WriteBytes == 0 {
		stats.WriteBytes = uint64(len(values))
	}
	return stats, nil
}

// streamingPrefix turns a statement template into the part in front of the
// tuple list. A staged file clause ("VALUES FROM @_dlt_load ...") is cut off.
func streamingPrefix(template string) string {
	prefix := strings.TrimSpace(template)
	if loc := loadPlaceholder.FindStringIndex(prefix); loc != nil {
		prefix = strings.TrimSpace(prefix[:loc[0]])
		if hasSuffixFold(prefix, "from") {
			prefix = strings.TrimSpace(prefix[:len(prefix)-len("from")])
		}
	}
	prefix = strings.TrimSuffix(prefix, ";")
	if !hasSuffixFold(prefix, "values") {
		prefix += " VALUES"
	}
	return prefix
}

func hasSuffixFold(s, suffix string) bool {
	if len(s) < len(suffix) || !strings.EqualFold(s[len(s)-len(suffix):], suffix) {
		return false
	}
	if len(s) == len(suffix) {
		return true
	}
	c := s[len(s)-len(suffix)-1]
	return c == ' ' || c == '\t' || c == '\n' || c == ')' || c == '`' || c == '"'
}
