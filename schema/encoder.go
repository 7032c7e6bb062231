package schema

import (
	"bytes"
	"database/sql/driver"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

const TimestampLayout = "2006-01-02 15:04:05.000000"

// EncodingError is returned when a value has no literal representation.
type EncodingError struct {
	Row    int
	Column int
	Value  any
	Reason string
}

func (e *EncodingError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("column %d: cannot encode %T: %s", e.Column, e.Value, e.Reason)
	}
	return fmt.Sprintf("row %d column %d: cannot encode %T: %s", e.Row, e.Column, e.Value, e.Reason)
}

type valueKind int

const (
	kindNull valueKind = iota
	kindText
	kindNumber
	kindBool
	kindTimestamp
)

type scalar struct {
	kind valueKind
	text string
}

var timeType = reflect.TypeOf(time.Time{})

func toScalar(v any) (scalar, string) {
	switch x := v.(type) {
	case nil:
		return scalar{kind: kindNull}, ""
	case string:
		return scalar{kind: kindText, text: x}, ""
	case []byte:
		if x == nil {
			return scalar{kind: kindNull}, ""
		}
		return scalar{kind: kindText, text: string(x)}, ""
	case bool:
		return scalar{kind: kindBool, text: strconv.FormatBool(x)}, ""
	case time.Time:
		if x.UTC().Year() < 0 || x.UTC().Year() > 9999 {
			return scalar{}, "timestamp out of range"
		}
		return scalar{kind: kindTimestamp, text: FormatTimestamp(x)}, ""
	case float32:
		return floatScalar(float64(x), 32)
	case float64:
		return floatScalar(x, 64)
	case driver.Valuer:
		rv := reflect.ValueOf(x)
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return scalar{kind: kindNull}, ""
		}
		inner, err := x.Value()
		if err != nil {
			return scalar{}, err.Error()
		}
		return toScalar(inner)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return scalar{kind: kindNull}, ""
		}
		return toScalar(rv.Elem().Interface())
	case reflect.String:
		return scalar{kind: kindText, text: rv.String()}, ""
	case reflect.Bool:
		return scalar{kind: kindBool, text: strconv.FormatBool(rv.Bool())}, ""
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return scalar{kind: kindNumber, text: strconv.FormatInt(rv.Int(), 10)}, ""
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return scalar{kind: kindNumber, text: strconv.FormatUint(rv.Uint(), 10)}, ""
	case reflect.Float32, reflect.Float64:
		return floatScalar(rv.Float(), rv.Type().Bits())
	case reflect.Struct:
		if rv.Type().ConvertibleTo(timeType) {
			return toScalar(rv.Convert(timeType).Interface())
		}
	}
	return scalar{}, "unsupported type"
}

func floatScalar(f float64, bits int) (scalar, string) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return scalar{}, "non-finite float"
	}
	return scalar{kind: kindNumber, text: strconv.FormatFloat(f, 'g', -1, bits)}, ""
}

// Literal renders v as a SQL literal. A nil value becomes the NULL keyword and
// every string is quoted, so the text "NULL" stays a string.
func (d Dialect) Literal(v any) (string, error) {
	s, reason := toScalar(v)
	if reason != "" {
		return "", &EncodingError{Row: -1, Column: -1, Value: v, Reason: reason}
	}
	return d.literal(s, v)
}

func (d Dialect) literal(s scalar, v any) (string, error) {
	switch s.kind {
	case kindNull:
		return "NULL", nil
	case kindNumber:
		return s.text, nil
	case kindBool:
		return strings.ToUpper(s.text), nil
	case kindTimestamp:
		if d.TypedTimestamps {
			return "TIMESTAMP '" + s.text + "'", nil
		}
		return "'" + s.text + "'", nil
	default:
		return d.QuoteString(s.text, v)
	}
}

// QuoteString quotes text as a string literal. The second argument is only
// used to report errors.
func (d Dialect) QuoteString(text string, v any) (string, error) {
	var b strings.Builder
	b.Grow(len(text) + 2)
	b.WriteByte('\'')
	for i := 0; i < len(text); i++ {
		c := text[i]
		if d.BackslashEscapes {
			switch c {
			case '\\':
				b.WriteString(`\\`)
			case '\'':
				b.WriteString(`\'`)
			case '\n':
				b.WriteString(`\n`)
			case '\r':
				b.WriteString(`\r`)
			case '\t':
				b.WriteString(`\t`)
			case 0:
				if !d.NULEscape {
					return "", &EncodingError{Row: -1, Column: -1, Value: v, Reason: "NUL byte in text"}
				}
				b.WriteString(`\0`)
			default:
				b.WriteByte(c)
			}
			continue
		}
		switch c {
		case '\'':
			b.WriteString("''")
		case 0:
			return "", &EncodingError{Row: -1, Column: -1, Value: v, Reason: "NUL byte in text"}
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('\'')
	return b.String(), nil
}

func (d Dialect) ValuesTuple(row []any) (string, error) {
	var b strings.Builder
	b.WriteByte('(')
	for i, v := range row {
		if i > 0 {
			b.WriteString(", ")
		}
		lit, err := d.Literal(v)
		if err != nil {
			return "", withPosition(err, -1, i)
		}
		b.WriteString(lit)
	}
	b.WriteByte(')')
	return b.String(), nil
}

// EncodeValues renders rows as the tuple list of a VALUES clause.
func EncodeValues(d Dialect, rows [][]any) (string, error) {
	if err := checkWidth(rows); err != nil {
		return "", err
	}
	var b strings.Builder
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		tuple, err := d.ValuesTuple(row)
		if err != nil {
			return "", withPosition(err, i, -1)
		}
		b.WriteString(tuple)
	}
	return b.String(), nil
}

// CSVEncoder writes rows as delimited text. Text fields are always quoted and
// nulls are written as the bare null marker.
type CSVEncoder struct {
	Format FileFormat
}

func NewCSVEncoder(format FileFormat) (*CSVEncoder, error) {
	format = format.WithDefaults()
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if !format.Delimited() {
		return nil, fmt.Errorf("file type %s is not delimited", format.Type)
	}
	return &CSVEncoder{Format: format}, nil
}

func (e *CSVEncoder) EncodeLine(row []any) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.writeLine(&buf, row); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *CSVEncoder) EncodeRows(rows [][]any) ([]byte, error) {
	if err := checkWidth(rows); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	for i, row := range rows {
		if err := e.writeLine(&buf, row); err != nil {
			return nil, withPosition(err, i, -1)
		}
	}
	return buf.Bytes(), nil
}

func (e *CSVEncoder) writeLine(buf *bytes.Buffer, row []any) error {
	quote := e.Format.Quote
	for i, v := range row {
		if i > 0 {
			buf.WriteString(e.Format.FieldDelimiter)
		}
		s, reason := toScalar(v)
		if reason != "" {
			return &EncodingError{Row: -1, Column: i, Value: v, Reason: reason}
		}
		switch s.kind {
		case kindNull:
			buf.WriteString(e.Format.NullMarker)
		case kindText:
			buf.WriteString(quote)
			buf.WriteString(strings.ReplaceAll(s.text, quote, quote+quote))
			buf.WriteString(quote)
		default:
			if strings.Contains(s.text, e.Format.FieldDelimiter) {
				buf.WriteString(quote + s.text + quote)
			} else {
				buf.WriteString(s.text)
			}
		}
	}
	buf.WriteString(e.Format.RecordDelimiter)
	return nil
}

func checkWidth(rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	width := len(rows[0])
	for i, row := range rows {
		if len(row) != width {
			return &EncodingError{
				Row:    i,
				Column: len(row),
				Value:  row,
				Reason: fmt.Sprintf("row has %d columns, expected %d", len(row), width),
			}
		}
	}
	return nil
}

func withPosition(err error, row, column int) error {
	encErr, ok := err.(*EncodingError)
	if !ok {
		return err
	}
	if row >= 0 {
		encErr.Row = row
	}
	if column >= 0 {
		encErr.Column = column
	}
	return encErr
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp accepts the timestamp spellings servers and files commonly
// use. Values without a zone are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}
