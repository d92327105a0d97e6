// Package client talks to the cacheoracle HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/cacheoracle/cacheoracle/model"
	"github.com/cacheoracle/cacheoracle/monitor"
)

type Client struct {
	scheme   string
	endpoint string

	retry   int // retry on transport errors and 5xx responses
	backOff int // millisecond
	httpCli *http.Client
}

const maxReadTimeout = 30 // second

func NewClient(host string, port int) *Client {
	cli := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        16,
			MaxIdleConnsPerHost: 4,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: time.Minute,
			}).DialContext,
		},
		Timeout: maxReadTimeout * time.Second,
	}
	return NewWithClient(cli, host, port)
}

// NewWithClient allow using user defined http client to setup the client
func NewWithClient(cli *http.Client, host string, port int) *Client {
	scheme := "http"
	if u, err := url.Parse(host); err == nil && u.Scheme != "" {
		scheme = u.Scheme
		host = u.Host
	}
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, strconv.Itoa(port))
	}
	return &Client{
		scheme:   scheme,
		endpoint: host,
		httpCli:  cli,
	}
}

func (c *Client) ConfigRetry(retryCount int, backOffMillisecond int) {
	c.retry = retryCount
	c.backOff = backOffMillisecond
}

func (c *Client) getReq(ctx context.Context, method, relativePath string, query url.Values, body []byte) (*http.Request, error) {
	targetURL := (&url.URL{
		Scheme:   c.scheme,
		Host:     c.endpoint,
		Path:     path.Join("/api", relativePath),
		RawQuery: query.Encode(),
	}).String()
	var bodyReader io.Reader
	if len(body) > 0 {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, targetURL, bodyReader)
	if err != nil {
		return nil, err
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do sends the request and decodes a response of status `expect` into out.
// Transport errors and 5xx responses are retried with the configured backoff.
func (c *Client) do(ctx context.Context, method, relativePath string, query url.Values, body []byte, expect int, out interface{}) error {
	retryCount := 0
RETRY:
	req, err := c.getReq(ctx, method, relativePath, query, body)
	if err != nil {
		return &APIError{Type: RequestErr, Reason: err.Error()}
	}
	resp, err := c.httpCli.Do(req)
	if err != nil {
		if retryCount < c.retry && ctx.Err() == nil {
			time.Sleep(time.Duration(c.backOff) * time.Millisecond)
			retryCount++
			goto RETRY
		}
		return &APIError{Type: RequestErr, Reason: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 && retryCount < c.retry {
		discardResponseBody(resp.Body)
		resp.Body.Close()
		time.Sleep(time.Duration(c.backOff) * time.Millisecond)
		retryCount++
		goto RETRY
	}
	if resp.StatusCode != expect {
		return &APIError{
			Type:       ResponseErr,
			StatusCode: resp.StatusCode,
			Reason:     parseResponseError(resp),
			RequestID:  resp.Header.Get("X-Request-ID"),
		}
	}
	if out == nil {
		discardResponseBody(resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{
			Type:       ResponseErr,
			StatusCode: resp.StatusCode,
			Reason:     err.Error(),
			RequestID:  resp.Header.Get("X-Request-ID"),
		}
	}
	return nil
}

// GetMetrics collects a snapshot of the server behind connectionString. With
// a non-empty connectionID the server also persists it and tracks uptime.
// A failed collection returns the result along with the error, since the
// result carries the public reason.
func (c *Client) GetMetrics(ctx context.Context, connectionID, connectionString string) (*monitor.Result, error) {
	body, err := json.Marshal(monitor.Request{
		ConnectionID:     connectionID,
		ConnectionString: connectionString,
	})
	if err != nil {
		return nil, &APIError{Type: RequestErr, Reason: err.Error()}
	}
	retryCount := 0
RETRY:
	req, err := c.getReq(ctx, http.MethodPost, "metrics", nil, body)
	if err != nil {
		return nil, &APIError{Type: RequestErr, Reason: err.Error()}
	}
	resp, err := c.httpCli.Do(req)
	if err != nil {
		if retryCount < c.retry && ctx.Err() == nil {
			time.Sleep(time.Duration(c.backOff) * time.Millisecond)
			retryCount++
			goto RETRY
		}
		return nil, &APIError{Type: RequestErr, Reason: err.Error(), ConnectionID: connectionID}
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusBadRequest:
	default:
		if resp.StatusCode >= 500 && retryCount < c.retry {
			discardResponseBody(resp.Body)
			resp.Body.Close()
			time.Sleep(time.Duration(c.backOff) * time.Millisecond)
			retryCount++
			goto RETRY
		}
		return nil, &APIError{
			Type:         ResponseErr,
			StatusCode:   resp.StatusCode,
			Reason:       parseResponseError(resp),
			ConnectionID: connectionID,
			RequestID:    resp.Header.Get("X-Request-ID"),
		}
	}
	result := new(monitor.Result)
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return nil, &APIError{
			Type:         ResponseErr,
			StatusCode:   resp.StatusCode,
			Reason:       err.Error(),
			ConnectionID: connectionID,
			RequestID:    resp.Header.Get("X-Request-ID"),
		}
	}
	if !result.Success {
		return result, &APIError{
			Type:         ResponseErr,
			StatusCode:   resp.StatusCode,
			Reason:       fmt.Sprintf("[%d]%s", resp.StatusCode, result.Error),
			ConnectionID: connectionID,
			RequestID:    resp.Header.Get("X-Request-ID"),
		}
	}
	return result, nil
}

func limitQuery(limit int) url.Values {
	query := url.Values{}
	if limit > 0 {
		query.Add("limit", strconv.Itoa(limit))
	}
	return query
}

// UptimeHistory returns the uptime records of the connection, newest first.
// limit <= 0 means the server default.
func (c *Client) UptimeHistory(ctx context.Context, connectionID string, limit int) ([]model.UptimeRecord, error) {
	var respData struct {
		Uptime []model.UptimeRecord `json:"uptime"`
	}
	err := c.do(ctx, http.MethodGet, path.Join("connections", connectionID, "uptime"), limitQuery(limit), nil, http.StatusOK, &respData)
	if err != nil {
		return nil, withConnection(err, connectionID)
	}
	return respData.Uptime, nil
}

// Reboots returns the detected reboots of the connection, newest first.
func (c *Client) Reboots(ctx context.Context, connectionID string, limit int) ([]model.RebootEvent, error) {
	var respData struct {
		Reboots []model.RebootEvent `json:"reboots"`
	}
	err := c.do(ctx, http.MethodGet, path.Join("connections", connectionID, "reboots"), limitQuery(limit), nil, http.StatusOK, &respData)
	if err != nil {
		return nil, withConnection(err, connectionID)
	}
	return respData.Reboots, nil
}

// Snapshots returns the persisted snapshots of the connection, newest first.
func (c *Client) Snapshots(ctx context.Context, connectionID string, limit int) ([]*model.Snapshot, error) {
	var respData struct {
		Snapshots []*model.Snapshot `json:"snapshots"`
	}
	err := c.do(ctx, http.MethodGet, path.Join("connections", connectionID, "snapshots"), limitQuery(limit), nil, http.StatusOK, &respData)
	if err != nil {
		return nil, withConnection(err, connectionID)
	}
	return respData.Snapshots, nil
}

// DeleteConnection drops everything stored for the connection.
func (c *Client) DeleteConnection(ctx context.Context, connectionID string) error {
	err := c.do(ctx, http.MethodDelete, path.Join("connections", connectionID), nil, nil, http.StatusNoContent, nil)
	return withConnection(err, connectionID)
}

func withConnection(err error, connectionID string) error {
	if apiErr, ok := err.(*APIError); ok {
		apiErr.ConnectionID = connectionID
	}
	return err
}

func discardResponseBody(resp io.ReadCloser) {
	// discard response body, to make this connection reusable in the http connection pool
	ioutil.ReadAll(resp)
}

func parseResponseError(resp *http.Response) string {
	respBytes, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return fmt.Sprintf("Invalid response: %s", err)
	}
	var errData struct {
		Error string `json:"error"`
	}
	err = json.Unmarshal(respBytes, &errData)
	if err != nil {
		return fmt.Sprintf("Invalid JSON: %s", err)
	}
	return fmt.Sprintf("[%d]%s", resp.StatusCode, errData.Error)
}
