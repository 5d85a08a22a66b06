package snowapi

import (
	"encoding/json"
	"fmt"

	"github.com/vjain20/gosnowsql/internal/codec"
)

// Response codes of the SQL API.
const (
	CodeSuccess = "090001" // statement executed successfully
	CodeAsync   = "333334" // asynchronous execution accepted / still running
)

// QueryRequest represents the request body for executing a SQL statement.
type QueryRequest struct {
	Statement         string               `json:"statement"`
	Timeout           int                  `json:"timeout,omitempty"`
	Warehouse         string               `json:"warehouse,omitempty"`
	Database          string               `json:"database,omitempty"`
	Schema            string               `json:"schema,omitempty"`
	Role              string               `json:"role,omitempty"`
	ResultSetMetaData *ResultSetMetaConfig `json:"resultSetMetaData,omitempty"`
}

// ResultSetMetaConfig defines the format of metadata in response.
type ResultSetMetaConfig struct {
	Format string `json:"format"`
}

// PartitionMeta provides partition-level metadata.
type PartitionMeta struct {
	RowCount         int  `json:"rowCount"`
	UncompressedSize int  `json:"uncompressedSize"`
	CompressedSize   *int `json:"compressedSize,omitempty"`
}

// RawPage is the decoded body of a statement response: submission, status
// poll, page fetch or cancellation.
type RawPage struct {
	Code               string
	Message            string
	SQLState           string
	StatementHandle    string
	StatementStatusURL string
	CreatedOn          json.Number // milliseconds since epoch

	// ResultSetMetaData and Data are left undecoded until a cursor needs them.
	ResultSetMetaData json.RawMessage
	Data              json.RawMessage

	fields map[string]json.RawMessage
}

func newRawPage(obj map[string]json.RawMessage) (*RawPage, error) {
	p := &RawPage{
		fields:            obj,
		ResultSetMetaData: obj["resultSetMetaData"],
		Data:              obj["data"],
	}
	for key, dst := range map[string]*string{
		"code":               &p.Code,
		"message":            &p.Message,
		"sqlState":           &p.SQLState,
		"statementHandle":    &p.StatementHandle,
		"statementStatusUrl": &p.StatementStatusURL,
	} {
		s, err := scalarString(obj[key])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		*dst = s
	}
	if raw, ok := obj["createdOn"]; ok {
		if err := codec.Unmarshal(raw, &p.CreatedOn); err != nil {
			return nil, fmt.Errorf("field %q: %w", "createdOn", err)
		}
	}
	return p, nil
}

// Has reports whether the response carried the named top-level field.
func (p *RawPage) Has(field string) bool {
	_, ok := p.fields[field]
	return ok
}

// Rows decodes the page's row data. A JSON null cell becomes a nil pointer.
func (p *RawPage) Rows() ([][]*string, error) {
	if len(p.Data) == 0 {
		return nil, nil
	}
	var rows [][]*string
	if err := codec.Unmarshal(p.Data, &rows); err != nil {
		return nil, fmt.Errorf("field %q: %w", "data", err)
	}
	return rows, nil
}

// scalarString reads a JSON string or number member as text. Absent and
// null members read as "".
func scalarString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var v any
	if err := codec.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	}
	return "", fmt.Errorf("unexpected JSON value %s", raw)
}
