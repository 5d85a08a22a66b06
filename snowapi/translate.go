package snowapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/vjain20/gosnowsql/internal/codec"
)

// Column type tags sent in rowType.
const (
	TypeArray        = "array"
	TypeBinary       = "binary"
	TypeBoolean      = "boolean"
	TypeDate         = "date"
	TypeFixed        = "fixed"
	TypeText         = "text"
	TypeTime         = "time"
	TypeTimestampLTZ = "timestamp_ltz"
	TypeTimestampNTZ = "timestamp_ntz"
	TypeTimestampTZ  = "timestamp_tz"
)

// Column describes a single column in the result set.
type Column struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Scale     int    `json:"-"`
	Precision *int   `json:"precision"`
	Length    *int   `json:"length"`
	Nullable  bool   `json:"nullable"`
}

// Schema is the ordered column list of a result set. Cell i of a raw row
// belongs to Schema[i].
type Schema []Column

var requiredColumnKeys = []string{"name", "type", "scale"}

// ParseSchema builds a Schema from the rowType array of a response. Every
// entry must carry name, type and scale (scale may be null); the whole
// schema is rejected otherwise.
func ParseSchema(rowType []json.RawMessage) (Schema, error) {
	schema := make(Schema, 0, len(rowType))
	for i, raw := range rowType {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
			return nil, &TranslateError{Message: fmt.Sprintf("column %d is not an object", i)}
		}
		for _, key := range requiredColumnKeys {
			if _, ok := fields[key]; !ok {
				return nil, &TranslateError{Message: fmt.Sprintf("column %d: field %q not found", i, key)}
			}
		}

		var col Column
		if err := json.Unmarshal(raw, &col); err != nil {
			return nil, &TranslateError{Message: fmt.Sprintf("column %d: %v", i, err)}
		}
		var scale *int
		if err := json.Unmarshal(fields["scale"], &scale); err != nil {
			return nil, &TranslateError{Message: fmt.Sprintf("column %d: scale: %v", i, err)}
		}
		if scale != nil {
			col.Scale = *scale
		}
		schema = append(schema, col)
	}
	return schema, nil
}

// Row is one decoded result row. Values keep the schema's column order.
type Row struct {
	columns []string
	values  []any
}

// Columns returns the column names in order.
func (r Row) Columns() []string { return r.columns }

// Values returns the decoded values in column order.
func (r Row) Values() []any { return r.values }

// Len returns the number of columns.
func (r Row) Len() int { return len(r.values) }

// Get returns the value of the named column. With duplicate names the last
// one wins, as in Map.
func (r Row) Get(name string) (any, bool) {
	for i := len(r.columns) - 1; i >= 0; i-- {
		if r.columns[i] == name {
			return r.values[i], true
		}
	}
	return nil, false
}

// Map returns the row keyed by column name.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.columns))
	for i, name := range r.columns {
		m[name] = r.values[i]
	}
	return m
}

// Decode converts one raw row into typed values according to schema.
//
// A nil cell is SQL NULL and decodes to nil whatever the type. Cells that do
// not parse for their type (a boolean other than "0"/"1", a timestamp in the
// wrong shape) also decode to nil. An unknown type tag is an error.
func Decode(schema Schema, raw []*string) (Row, error) {
	row := Row{
		columns: make([]string, len(schema)),
		values:  make([]any, len(schema)),
	}
	for i, col := range schema {
		row.columns[i] = col.Name

		var cell *string
		if i < len(raw) {
			cell = raw[i]
		}
		v, err := decodeCell(col, cell)
		if err != nil {
			return Row{}, err
		}
		row.values[i] = v
	}
	return row, nil
}

func decodeCell(col Column, cell *string) (any, error) {
	switch strings.ToLower(col.Type) {
	case TypeArray, TypeBinary, TypeText, TypeBoolean, TypeDate, TypeFixed,
		TypeTime, TypeTimestampLTZ, TypeTimestampNTZ, TypeTimestampTZ:
	default:
		return nil, &TranslateError{Type: col.Type}
	}
	if cell == nil {
		return nil, nil
	}
	v := *cell

	switch strings.ToLower(col.Type) {
	case TypeArray:
		return decodeArray(v), nil
	case TypeBinary, TypeText:
		return v, nil
	case TypeBoolean:
		return decodeBoolean(v), nil
	case TypeDate:
		return decodeDate(v), nil
	case TypeFixed:
		return decodeFixed(v, col.Scale), nil
	case TypeTime, TypeTimestampLTZ, TypeTimestampNTZ:
		return decodeTime(v), nil
	default:
		return decodeTimeWithTimezone(v), nil
	}
}

func decodeArray(v string) any {
	var out any
	if err := codec.Unmarshal([]byte(v), &out); err != nil {
		return nil
	}
	return out
}

func decodeBoolean(v string) any {
	switch v {
	case "0":
		return false
	case "1":
		return true
	}
	return nil
}

var epoch = time.Unix(0, 0).UTC()

// decodeDate reads a day count since 1970-01-01.
func decodeDate(v string) any {
	days, err := strconv.ParseInt(strings.TrimSpace(v), 10, 32)
	if err != nil {
		return nil
	}
	return epoch.AddDate(0, 0, int(days))
}

// decodeFixed returns int64 for scale 0, cutting off any fraction in the
// text, and float64 otherwise. Integers beyond int64 come back as *big.Int.
func decodeFixed(v string, scale int) any {
	if scale != 0 {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil
		}
		return f
	}

	digits := v
	if i := strings.IndexAny(v, ".eE"); i >= 0 {
		digits = v[:i]
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err == nil {
		return n
	}
	if errors.Is(err, strconv.ErrRange) {
		if b, ok := new(big.Int).SetString(digits, 10); ok {
			return b
		}
	}
	return nil
}

var (
	timePattern   = regexp.MustCompile(`^(\d+)\.(\d{6})\d{3}`)
	timeTZPattern = regexp.MustCompile(`^(\d+)\.(\d{6})\d{3}\s(\d{1,4})`)
)

// decodeTime reads "<seconds>.<nanoseconds>" into a UTC time with
// microsecond precision.
func decodeTime(v string) any {
	m := timePattern.FindStringSubmatch(v)
	if m == nil {
		return nil
	}
	t, ok := unixMicro(m[1], m[2])
	if !ok {
		return nil
	}
	return t
}

// decodeTimeWithTimezone reads "<seconds>.<nanoseconds> <offset minutes>".
func decodeTimeWithTimezone(v string) any {
	m := timeTZPattern.FindStringSubmatch(v)
	if m == nil {
		return nil
	}
	t, ok := unixMicro(m[1], m[2])
	if !ok {
		return nil
	}
	minutes, err := strconv.Atoi(m[3])
	if err != nil {
		return nil
	}
	return t.In(offsetZone(minutes))
}

func unixMicro(sec, micro string) (time.Time, bool) {
	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	us, err := strconv.ParseInt(micro, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(s, us*int64(time.Microsecond)).UTC(), true
}

// offsetZone builds a fixed zone named like "+16:30". Offsets past +12:00
// are kept as sent.
func offsetZone(minutes int) *time.Location {
	return time.FixedZone(fmt.Sprintf("+%02d:%02d", minutes/60, minutes%60), minutes*60)
}
