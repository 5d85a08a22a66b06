package snowapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vjain20/gosnowsql/internal/codec"
)

const (
	userAgent           = "gosnowsql/" + Version
	headerTokenType     = "X-Snowflake-Authorization-Token-Type"
	tokenTypeKeyPairJWT = "KEYPAIR_JWT"

	requestIDParam = "requestId"
	retryParam     = "retry"
)

// Service submits, polls, pages and cancels statements for one Client under
// one ExecutionContext. It is not safe for concurrent use.
type Service struct {
	client *Client
	exec   ExecutionContext
}

// ExecutionContext returns the context statements are submitted under.
func (s *Service) ExecutionContext() ExecutionContext {
	return s.exec
}

// Submit sends statement for asynchronous execution and returns the
// server-assigned handle.
func (s *Service) Submit(ctx context.Context, statement string) (string, error) {
	header, err := s.headers(true)
	if err != nil {
		return "", err
	}
	base, err := s.client.statementsURL()
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(QueryRequest{
		Statement: statement,
		Timeout:   s.exec.Timeout,
		Warehouse: s.exec.Warehouse,
		Database:  s.exec.Database,
		Schema:    s.exec.Schema,
		Role:      s.exec.Role,
		ResultSetMetaData: &ResultSetMetaConfig{
			Format: "jsonv2",
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	query := url.Values{
		"async":        {"true"},
		"nullable":     {strconv.FormatBool(s.exec.Nullable)},
		requestIDParam: {uuid.NewString()},
	}
	target := base + "?" + query.Encode()

	page, err := s.call(ctx, http.MethodPost, target, header, body, true)
	if err != nil {
		return "", err
	}
	if err := checkResult(page, CodeAsync); err != nil {
		return "", err
	}

	logger.WithField("handle", page.StatementHandle).Debug("statement submitted")
	return page.StatementHandle, nil
}

// FetchPage returns page (1-based) of the statement's result. The same call
// serves as a status poll: while the statement runs the body carries code
// 333334 and no data.
func (s *Service) FetchPage(ctx context.Context, handle string, page int) (*RawPage, error) {
	header, err := s.headers(false)
	if err != nil {
		return nil, err
	}
	base, err := s.client.statementsURL()
	if err != nil {
		return nil, err
	}

	query := url.Values{"partition": {strconv.Itoa(page - 1)}}
	target := base + "/" + url.PathEscape(handle) + "?" + query.Encode()

	logger.WithFields(logrus.Fields{"handle": handle, "page": page}).Debug("fetching page")
	return s.call(ctx, http.MethodGet, target, header, nil, true)
}

// Cancel asks the server to stop a running statement.
func (s *Service) Cancel(ctx context.Context, handle string) error {
	header, err := s.headers(false)
	if err != nil {
		return err
	}
	base, err := s.client.statementsURL()
	if err != nil {
		return err
	}

	target := base + "/" + url.PathEscape(handle) + "/cancel"
	page, err := s.call(ctx, http.MethodPost, target, header, nil, false)
	if err != nil {
		return err
	}
	if err := checkResult(page, CodeSuccess); err != nil {
		return err
	}

	logger.WithField("handle", handle).Debug("statement cancelled")
	return nil
}

// GetResult fetches the first page of a statement. While the statement has
// not completed successfully the returned Result reports Executed() false
// and holds no schema or rows.
func (s *Service) GetResult(ctx context.Context, handle string) (*Result, error) {
	page, err := s.FetchPage(ctx, handle, 1)
	if err != nil {
		return nil, err
	}

	result := &Result{
		service:  s,
		id:       page.StatementHandle,
		executed: page.Code == CodeSuccess,
	}
	if result.id == "" {
		result.id = handle
	}
	if !result.executed {
		return result, nil
	}

	for _, field := range []string{"resultSetMetaData", "data", "createdOn"} {
		if !page.Has(field) {
			return nil, unacceptable("object %q not found", field)
		}
	}

	var meta map[string]json.RawMessage
	if err := json.Unmarshal(page.ResultSetMetaData, &meta); err != nil || meta == nil {
		return nil, unacceptable("object %q is not an object", "resultSetMetaData")
	}
	for _, field := range []string{"numRows", "partitionInfo", "rowType"} {
		if _, ok := meta[field]; !ok {
			return nil, unacceptable("object %q in %q not found", field, "resultSetMetaData")
		}
	}

	var (
		numRows    json.Number
		partitions []PartitionMeta
		rowType    []json.RawMessage
	)
	if err := codec.Unmarshal(meta["numRows"], &numRows); err != nil {
		return nil, unacceptable("numRows: %v", err)
	}
	total, err := numRows.Int64()
	if err != nil {
		return nil, unacceptable("numRows: %v", err)
	}
	if err := json.Unmarshal(meta["partitionInfo"], &partitions); err != nil {
		return nil, unacceptable("partitionInfo: %v", err)
	}
	if err := json.Unmarshal(meta["rowType"], &rowType); err != nil {
		return nil, unacceptable("rowType: %v", err)
	}
	schema, err := ParseSchema(rowType)
	if err != nil {
		return nil, err
	}
	rows, err := page.Rows()
	if err != nil {
		return nil, unacceptable("%v", err)
	}
	createdOn, err := page.CreatedOn.Int64()
	if err != nil {
		return nil, unacceptable("createdOn: %v", err)
	}

	result.total = total
	result.page = 1
	result.pageTotal = len(partitions)
	result.partitions = partitions
	result.schema = schema
	result.data = rows
	// Whole seconds only.
	result.createdOn = time.Unix(createdOn/1000, 0)

	logger.WithFields(logrus.Fields{
		"handle": result.id,
		"rows":   total,
		"pages":  result.pageTotal,
	}).Debug("statement result ready")
	return result, nil
}

// WaitForResult polls GetResult every interval until the statement has
// executed. maxPolls <= 0 polls until ctx is done.
func (s *Service) WaitForResult(ctx context.Context, handle string, interval time.Duration, maxPolls int) (*Result, error) {
	for i := 0; maxPolls <= 0 || i < maxPolls; i++ {
		result, err := s.GetResult(ctx, handle)
		if err != nil {
			return nil, err
		}
		if result.Executed() {
			return result, nil
		}
		if maxPolls > 0 && i == maxPolls-1 {
			break
		}

		logger.WithFields(logrus.Fields{"handle": handle, "poll": i + 1}).Debug("statement still running")
		timer := time.NewTimer(interval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
	return nil, ErrMaxPollsExceeded
}

// Execute submits statement and waits for its first page.
func (s *Service) Execute(ctx context.Context, statement string, interval time.Duration, maxPolls int) (*Result, error) {
	handle, err := s.Submit(ctx, statement)
	if err != nil {
		return nil, err
	}
	return s.WaitForResult(ctx, handle, interval, maxPolls)
}

// headers builds the headers sent on every call. A missing token fails here,
// before anything goes on the wire.
func (s *Service) headers(withBody bool) (http.Header, error) {
	token, err := s.client.identity.Token()
	if err != nil {
		return nil, err
	}

	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	h.Set("Accept", "application/json")
	h.Set("Accept-Encoding", "gzip")
	h.Set("User-Agent", userAgent)
	h.Set(headerTokenType, tokenTypeKeyPairJWT)
	if withBody {
		h.Set("Content-Type", "application/json")
	}
	return h, nil
}

// call sends one request and decodes the body. With failOnStatus, an HTTP
// status of 400 or above becomes a ResultError carrying whatever code and
// message the body holds.
func (s *Service) call(ctx context.Context, method, target string, header http.Header, body []byte, failOnStatus bool) (*RawPage, error) {
	resp, err := s.client.transport.Do(ctx, &Request{
		Method: method,
		URL:    target,
		Header: header,
		Body:   body,
	})
	if err != nil {
		return nil, err
	}

	page, decodeErr := decodeResponse(resp, target)
	if failOnStatus && resp.StatusCode >= http.StatusBadRequest {
		rerr := &ResultError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		if decodeErr == nil {
			rerr.Code = page.Code
			if page.Message != "" {
				rerr.Message = page.Message
			}
		}
		return nil, rerr
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return page, nil
}

func decodeResponse(resp *Response, target string) (*RawPage, error) {
	body := resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") && len(body) > 0 {
		inflated, err := codec.Inflate(body)
		if err != nil {
			return nil, &DecodeError{URL: target, Err: err}
		}
		body = inflated
	}

	obj, err := codec.DecodeObject(body)
	if err != nil {
		return nil, &DecodeError{URL: target, Err: err}
	}
	page, err := newRawPage(obj)
	if err != nil {
		return nil, &DecodeError{URL: target, Err: err}
	}
	return page, nil
}

// checkResult verifies a submission or cancellation response: code and
// message present, code among allowed, handle and status URL present.
func checkResult(page *RawPage, allowed ...string) error {
	if !page.Has("code") || !page.Has("message") {
		return &ResultError{Status: http.StatusNotAcceptable, Message: "unacceptable result"}
	}

	ok := false
	for _, code := range allowed {
		if page.Code == code {
			ok = true
			break
		}
	}
	if !ok {
		return &ResultError{Status: http.StatusUnprocessableEntity, Code: page.Code, Message: page.Message}
	}

	if !page.Has("statementHandle") || !page.Has("statementStatusUrl") {
		return &ResultError{Status: http.StatusUnprocessableEntity, Message: "unprocessable result"}
	}
	return nil
}
