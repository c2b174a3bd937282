// Package shardclient implements an HTTP client for the shard admin/query
// protocol. The protocol is specified in literal HTTP-path terms,
// so the client speaks net/http + encoding/json rather than a generated RPC
// stub.
package shardclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/healthfees-org/workersql-sub002/pkg/workerr"
)

// QuerySpec mirrors the {sql, params, hints?} payload shape shared across
// query/mutation/ddl requests.
type QuerySpec struct {
	SQL    string        `json:"sql"`
	Params []interface{} `json:"params,omitempty"`
	Hints  string        `json:"hints,omitempty"`
}

// QueryResult is the response body of POST /query.
type QueryResult struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// MutationResult is the response body of POST /mutation and the
// aggregate-free per-op result inside a batch.
type MutationResult struct {
	Success bool `json:"success"`
	Data    struct {
		RowsAffected int64  `json:"rowsAffected"`
		LastInsertID *int64 `json:"lastInsertId,omitempty"`
	} `json:"data"`
}

// BatchOp is one operation of a POST /mutation/batch request.
type BatchOp struct {
	SQL    string        `json:"sql"`
	Params []interface{} `json:"params,omitempty"`
}

// BatchResult is the response body of POST /mutation/batch.
type BatchResult struct {
	Success      bool  `json:"success"`
	RowsAffected int64 `json:"rowsAffected"`
}

// ExportRow is one row yielded by POST /admin/export.
type ExportRow map[string]interface{}

// ExportPage is one page of a POST /admin/export cursor stream.
type ExportPage struct {
	Rows       []ExportRow `json:"rows"`
	NextCursor *string     `json:"next_cursor,omitempty"`
}

// Event is one entry of the GET /admin/events append-only log.
type Event struct {
	ID       uint64        `json:"id"`
	TS       uint64        `json:"ts"`
	TenantID string        `json:"tenant_id"`
	Type     string        `json:"type"` // QUERY|DDL
	SQL      string        `json:"sql"`
	Params   []interface{} `json:"params,omitempty"`
}

// EventPage is one page of the GET /admin/events stream.
type EventPage struct {
	Events []Event `json:"events"`
}

// Client speaks the shard admin/query protocol against a single shard's
// base URL.
type Client struct {
	ShardID string
	BaseURL string
	HTTP    *http.Client
}

// New constructs a Client for the given shard, defaulting the HTTP client's
// timeout to 10s if httpClient is nil.
func New(shardID, baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{ShardID: shardID, BaseURL: strings.TrimRight(baseURL, "/"), HTTP: httpClient}
}

// Query executes a SELECT via POST /query.
func (c *Client) Query(ctx context.Context, tenantID string, spec QuerySpec) (*QueryResult, error) {
	var out QueryResult
	err := c.post(ctx, "/query", map[string]interface{}{
		"query":     spec,
		"tenant_id": tenantID,
	}, &out)
	return &out, err
}

// Mutation executes an INSERT/UPDATE/DELETE via POST /mutation.
func (c *Client) Mutation(ctx context.Context, tenantID string, spec QuerySpec, transactionID string) (*MutationResult, error) {
	var out MutationResult
	body := map[string]interface{}{
		"query":     spec,
		"tenant_id": tenantID,
	}
	if transactionID != "" {
		body["transaction_id"] = transactionID
	}
	err := c.post(ctx, "/mutation", body, &out)
	return &out, err
}

// DDL executes a CREATE/ALTER/DROP/TRUNCATE/RENAME via POST /ddl.
func (c *Client) DDL(ctx context.Context, tenantID string, spec QuerySpec) error {
	var out struct {
		Success bool `json:"success"`
	}
	return c.post(ctx, "/ddl", map[string]interface{}{
		"query":     spec,
		"tenant_id": tenantID,
	}, &out)
}

// Batch dispatches a grouped set of mutation ops via POST /mutation/batch.
func (c *Client) Batch(ctx context.Context, tenantID string, ops []BatchOp) (*BatchResult, error) {
	var out BatchResult
	err := c.post(ctx, "/mutation/batch", map[string]interface{}{
		"tenant_id":  tenantID,
		"operations": ops,
	}, &out)
	return &out, err
}

// Export fetches one page of rows via POST /admin/export.
func (c *Client) Export(ctx context.Context, tenantID, table string, cursor *string, limit int) (*ExportPage, error) {
	if limit <= 0 {
		limit = 200
	}
	var out ExportPage
	body := map[string]interface{}{
		"tenant_id": tenantID,
		"table":     table,
		"limit":     limit,
	}
	if cursor != nil {
		body["cursor"] = *cursor
	}
	err := c.post(ctx, "/admin/export", body, &out)
	return &out, err
}

// Import upserts a page of rows via POST /admin/import.
func (c *Client) Import(ctx context.Context, tenantID, table string, rows []ExportRow) error {
	var out struct {
		Success bool `json:"success"`
	}
	return c.post(ctx, "/admin/import", map[string]interface{}{
		"tenant_id": tenantID,
		"table":     table,
		"rows":      rows,
		"mode":      "upsert",
	}, &out)
}

// Events fetches one page of the append-only event log via GET
// /admin/events, starting strictly after `after`.
func (c *Client) Events(ctx context.Context, after uint64, limit int, tenantIDs []string) (*EventPage, error) {
	if limit <= 0 {
		limit = 200
	}
	q := url.Values{}
	q.Set("after", strconv.FormatUint(after, 10))
	q.Set("limit", strconv.Itoa(limit))
	if len(tenantIDs) > 0 {
		q.Set("tenant_ids", strings.Join(tenantIDs, ","))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/admin/events?"+q.Encode(), nil)
	if err != nil {
		return nil, workerr.Wrap(workerr.ShardUnavailable, "build events request", err)
	}

	var page EventPage
	if err := c.do(req, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return workerr.Wrap(workerr.Internal, "encode shard request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return workerr.Wrap(workerr.ShardUnavailable, "build shard request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return workerr.Wrap(workerr.ShardUnavailable, fmt.Sprintf("shard %s unreachable", c.ShardID), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return workerr.Wrap(workerr.ShardUnavailable, "read shard response", err)
	}

	if resp.StatusCode >= 400 {
		return workerr.New(workerr.MutationFailed, fmt.Sprintf("shard %s returned %d: %s", c.ShardID, resp.StatusCode, string(data)))
	}

	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return workerr.Wrap(workerr.Internal, "decode shard response", err)
	}
	return nil
}
