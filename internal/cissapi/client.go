package cissapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/jumadata/warehouse-worker/internal/batch"
)

// requestTimeout bounds a single page request. Large months on the busiest
// services have been observed to take over an hour server-side.
const requestTimeout = 90 * time.Minute

// Client drives paginated extraction from the ERP service API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

type clause struct {
	Campo    string   `json:"campo"`
	Valor    []string `json:"valor"`
	Operador string   `json:"operador"`
}

type serviceRequest struct {
	Clausulas []clause `json:"clausulas"`
	Page      int      `json:"page"`
}

// Extract pulls every page of a service, optionally filtered to an inclusive
// date window on filterField. The window is widened to full days
// (00:00:00.000000 through 23:59:59.999999) so day-boundary rows are never
// missed whatever the source's time granularity.
//
// On a request failure mid-way it returns the records gathered so far
// together with the error; the caller decides whether the partial batch is
// worth loading. An empty first page is a valid zero-record result.
func (c *Client) Extract(ctx context.Context, token, service, filterField string, window *batch.DateRange) ([]map[string]any, error) {
	payload := serviceRequest{Clausulas: []clause{}}

	if filterField != "" && window != nil {
		payload.Clausulas = append(payload.Clausulas, clause{
			Campo: filterField,
			Valor: []string{
				window.Start.Format("2006-01-02") + " 00:00:00.000000",
				window.End.Format("2006-01-02") + " 23:59:59.999999",
			},
			Operador: "BETWEEN",
		})
	}

	serviceURL := c.baseURL + "/" + service
	var all []map[string]any

	for page := 1; ; page++ {
		payload.Page = page

		records, hasNext, err := c.fetchPage(ctx, token, serviceURL, payload)
		if err != nil {
			return all, fmt.Errorf("failed to fetch page %d of %s: %w", page, service, err)
		}

		if len(records) == 0 {
			if page == 1 {
				log.Printf("Service %s returned 0 records", service)
			}
			return all, nil
		}

		all = append(all, records...)
		if !hasNext {
			return all, nil
		}
	}
}

func (c *Client) fetchPage(ctx context.Context, token, serviceURL string, payload serviceRequest) ([]map[string]any, bool, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serviceURL, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var apiResp struct {
		Registros []map[string]any `json:"registros"`
		Data      []map[string]any `json:"data"`
		HasNext   bool             `json:"hasNext"`
	}
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, false, fmt.Errorf("failed to parse response: %w", err)
	}

	// Some services expose records under "registros", others under "data".
	records := apiResp.Registros
	if records == nil {
		records = apiResp.Data
	}

	return records, apiResp.HasNext, nil
}
