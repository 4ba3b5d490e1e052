// Package attio mirrors the destination CRM: a record-oriented HTTP API
// with paginated reads, upserts keyed by a business attribute, and
// deletes by record id.
package attio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultBaseURL  = "https://api.attio.com/v2"
	defaultPageSize = 500
	requestTimeout  = 10 * time.Second
)

// StatusError is any non-2xx response from the API. The body is kept so
// validation rejections are debuggable from the log alone.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("attio: unexpected status %d: %s", e.StatusCode, e.Body)
}

type ClientOptions struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	PageSize   int
	Logger     zerolog.Logger
}

// Client is the low-level API client. One instance, and its underlying
// HTTP client, is reused for every call in a run. Failures are surfaced
// immediately: this is a batch job, retrying is the scheduler's problem.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	pageSize   int
	log        zerolog.Logger
}

func NewClient(opts ClientOptions) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(opts.APIKey),
		httpClient: httpClient,
		pageSize:   pageSize,
		log:        opts.Logger,
	}
}

// Records reads one collection completely, page by page. The loop stops
// on the first short page.
func (c *Client) Records(ctx context.Context, object Object) ([]recordPayload, error) {
	c.log.Debug().Str("object", string(object)).Msg("fetching records")
	var all []recordPayload
	offset := 0
	for {
		body := map[string]int{"limit": c.pageSize, "offset": offset}
		var page struct {
			Data []recordPayload `json:"data"`
		}
		endpoint := fmt.Sprintf("objects/%s/records/query", object)
		if err := c.doJSON(ctx, http.MethodPost, endpoint, body, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Data...)
		if len(page.Data) < c.pageSize {
			break
		}
		offset += c.pageSize
	}
	c.log.Debug().Str("object", string(object)).Int("count", len(all)).Msg("fetched records")
	return all, nil
}

// Assert performs the conditional create-or-update: insert or replace the
// record whose matching attribute equals the payload's value. Returns the
// canonical record as the API now holds it.
func (c *Client) Assert(ctx context.Context, object Object, matchingAttribute string, body RecordBody) (recordPayload, error) {
	endpoint := fmt.Sprintf("objects/%s/records?matching_attribute=%s", object, url.QueryEscape(matchingAttribute))
	var response struct {
		Data *recordPayload `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodPut, endpoint, body, &response); err != nil {
		return recordPayload{}, err
	}
	if response.Data == nil {
		return recordPayload{}, fmt.Errorf("attio: asserting %s returned no record", object)
	}
	return *response.Data, nil
}

// Delete removes a record by its internal id.
func (c *Client) Delete(ctx context.Context, object Object, recordID uuid.UUID) error {
	endpoint := fmt.Sprintf("objects/%s/records/%s", object, recordID)
	return c.doJSON(ctx, http.MethodDelete, endpoint, nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+endpoint, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	respBody, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	return json.Unmarshal(respBody, out)
}
