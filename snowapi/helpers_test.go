package snowapi

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzip"
)

// transportFunc adapts a function to the Transport interface.
type transportFunc func(ctx context.Context, req *Request) (*Response, error)

func (f transportFunc) Do(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

func jsonResponse(t *testing.T, status int, body any) *Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal response: %v", err)
	}
	return &Response{StatusCode: status, Header: http.Header{}, Body: b}
}

// newStubClient returns a client with a token already installed that sends
// every request through fn.
func newStubClient(t *testing.T, fn transportFunc) *Client {
	t.Helper()
	c, err := NewClient(Config{
		Account:   "acct",
		User:      "user",
		BaseURL:   "https://example.test",
		Transport: fn,
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	c.Identity().SetToken("test-token")
	return c
}

func newTestKeys(t *testing.T) ([]byte, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("failed to marshal private key: %v", err)
	}
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("failed to marshal public key: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}),
		string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pub}))
}

func strp(s string) *string { return &s }

// fakeAPI is an in-memory SQL API serving one statement.
type fakeAPI struct {
	t *testing.T

	handle      string
	rowType     []map[string]any
	partitions  [][][]*string
	pendingFor  int  // polls answered with 333334 before the result is ready
	gzipMembers bool // compress bodies as one gzip member per half
	failCode    string

	mu        sync.Mutex
	polls     int
	fetched   []int
	submitted []QueryRequest
	queries   []map[string][]string
	headers   []http.Header
	cancelled bool
}

func newFakeAPI(t *testing.T) *fakeAPI {
	return &fakeAPI{
		t:      t,
		handle: "01b2c3d4-0000-0001-0000-000000000001",
		rowType: []map[string]any{
			{"name": "ID", "type": "fixed", "scale": 0},
			{"name": "NAME", "type": "text", "scale": nil},
			{"name": "ACTIVE", "type": "boolean", "scale": nil},
		},
		partitions: [][][]*string{
			{{strp("1"), strp("one"), strp("1")}, {strp("2"), strp("two"), strp("0")}, {strp("3"), nil, nil}},
			{{strp("4"), strp("four"), strp("1")}, {strp("5"), strp("five"), strp("0")}},
			{{strp("6"), strp("six"), strp("1")}},
		},
	}
}

func (f *fakeAPI) numRows() int {
	n := 0
	for _, p := range f.partitions {
		n += len(p)
	}
	return n
}

func (f *fakeAPI) start() (*httptest.Server, *Client) {
	r := mux.NewRouter()
	r.HandleFunc("/api/v2/statements", f.submit).Methods(http.MethodPost)
	r.HandleFunc("/api/v2/statements/{handle}", f.page).Methods(http.MethodGet)
	r.HandleFunc("/api/v2/statements/{handle}/cancel", f.cancel).Methods(http.MethodPost)

	srv := httptest.NewServer(r)
	f.t.Cleanup(srv.Close)

	c, err := NewClient(Config{Account: "acct", User: "user", BaseURL: srv.URL, RetryPolicy: DefaultRetryPolicy()})
	if err != nil {
		f.t.Fatalf("failed to create client: %v", err)
	}
	c.Identity().SetToken("test-token")
	return srv, c
}

func (f *fakeAPI) record(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headers = append(f.headers, r.Header.Clone())
	f.queries = append(f.queries, r.URL.Query())
}

func (f *fakeAPI) submit(w http.ResponseWriter, r *http.Request) {
	f.record(r)
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.submitted = append(f.submitted, req)
	f.mu.Unlock()

	f.write(w, http.StatusAccepted, map[string]any{
		"code":               CodeAsync,
		"message":            "Asynchronous execution in progress.",
		"statementHandle":    f.handle,
		"statementStatusUrl": "/api/v2/statements/" + f.handle,
	})
}

func (f *fakeAPI) page(w http.ResponseWriter, r *http.Request) {
	f.record(r)
	if mux.Vars(r)["handle"] != f.handle {
		f.write(w, http.StatusNotFound, map[string]any{"code": "000709", "message": "Statement not found"})
		return
	}
	partition, err := strconv.Atoi(r.URL.Query().Get("partition"))
	if err != nil || partition < 0 || partition >= len(f.partitions) {
		f.write(w, http.StatusBadRequest, map[string]any{"code": "000001", "message": "bad partition"})
		return
	}

	f.mu.Lock()
	f.polls++
	pending := f.polls <= f.pendingFor
	if !pending {
		f.fetched = append(f.fetched, partition+1)
	}
	f.mu.Unlock()

	if f.failCode != "" {
		f.write(w, http.StatusUnprocessableEntity, map[string]any{
			"code":            f.failCode,
			"message":         "SQL compilation error",
			"statementHandle": f.handle,
		})
		return
	}
	if pending {
		f.write(w, http.StatusAccepted, map[string]any{
			"code":               CodeAsync,
			"message":            "Asynchronous execution in progress.",
			"statementHandle":    f.handle,
			"statementStatusUrl": "/api/v2/statements/" + f.handle,
		})
		return
	}
	if partition > 0 {
		f.write(w, http.StatusOK, map[string]any{"data": f.partitions[partition]})
		return
	}

	info := make([]map[string]any, len(f.partitions))
	for i, p := range f.partitions {
		info[i] = map[string]any{"rowCount": len(p), "uncompressedSize": 100}
	}
	f.write(w, http.StatusOK, map[string]any{
		"code":               CodeSuccess,
		"message":            "Statement executed successfully.",
		"statementHandle":    f.handle,
		"statementStatusUrl": "/api/v2/statements/" + f.handle,
		"createdOn":          1633082116654,
		"resultSetMetaData": map[string]any{
			"numRows":       f.numRows(),
			"format":        "jsonv2",
			"rowType":       f.rowType,
			"partitionInfo": info,
		},
		"data": f.partitions[0],
	})
}

func (f *fakeAPI) cancel(w http.ResponseWriter, r *http.Request) {
	f.record(r)
	f.mu.Lock()
	f.cancelled = true
	f.mu.Unlock()
	f.write(w, http.StatusOK, map[string]any{
		"code":               CodeSuccess,
		"message":            "Statement aborted.",
		"statementHandle":    mux.Vars(r)["handle"],
		"statementStatusUrl": "/api/v2/statements/" + mux.Vars(r)["handle"],
	})
}

func (f *fakeAPI) write(w http.ResponseWriter, status int, body any) {
	b, err := json.Marshal(body)
	if err != nil {
		f.t.Errorf("failed to marshal body: %v", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if f.gzipMembers {
		half := len(b) / 2
		var buf bytes.Buffer
		for _, part := range [][]byte{b[:half], b[half:]} {
			zw := gzip.NewWriter(&buf)
			if _, err := zw.Write(part); err != nil {
				f.t.Errorf("gzip write: %v", err)
			}
			if err := zw.Close(); err != nil {
				f.t.Errorf("gzip close: %v", err)
			}
		}
		b = buf.Bytes()
		w.Header().Set("Content-Encoding", "gzip")
	}
	w.WriteHeader(status)
	if _, err := w.Write(b); err != nil {
		f.t.Errorf("write: %v", err)
	}
}

func (f *fakeAPI) String() string {
	return fmt.Sprintf("fakeAPI{polls: %d, fetched: %v}", f.polls, f.fetched)
}
