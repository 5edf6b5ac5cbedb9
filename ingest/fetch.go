/*
Package ingest fetches the upstream disclosure tiles and turns them
into engine datasets.

PURPOSE:
  The upstream portal publishes four "tile" reports, each a JSON object
  whose payload of interest is an INNER JSON string (an array of
  loosely-typed row objects). This package fetches those tiles, decodes
  the double-encoded rows, and maps them onto the engine's record types.

  The engine never sees any of this: ingestion ends at
  ReplaceDataset on the storage boundary.
*/
package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Tile identifies one upstream report.
type Tile struct {
	Name    string // local identifier, also the raw-file base name
	Key     string // key of the inner JSON string in the response
	Payload string // request body the portal expects
}

// Tiles is the full set of reports a refresh ingests.
var Tiles = []Tile{
	{Name: "allocated_limit", Key: "Allocated Limit", Payload: "combo=0%2C0%2C0%2C2&key=Allocated%20Limit"},
	{Name: "total_expenditure", Key: "Total Expenditure", Payload: "combo=0%2C0%2C0%2C2&key=Total%20Expenditure"},
	{Name: "total_works_recommended", Key: "Total Works Recommended", Payload: "combo=0%2C0%2C0%2C2&key=Total%20Works%20Recommended"},
	{Name: "total_works_completed", Key: "Total Works Completed", Payload: "combo=0%2C0%2C0%2C2&key=Total%20Works%20Completed"},
}

// DefaultBaseURL is the public portal endpoint serving tile reports.
const DefaultBaseURL = "https://mplads.mospi.gov.in/rest/PreLoginDashboardData/getTilesReportData"

// Client fetches tile reports. The base URL and HTTP client are
// injectable for tests.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: baseURL,
		// The portal is slow to assemble large tiles.
		HTTPClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// FetchTile downloads one tile's raw response body.
func (c *Client) FetchTile(ctx context.Context, t Tile) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, strings.NewReader(t.Payload))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", t.Name, err)
	}
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", t.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: upstream returned %d", t.Name, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: read body: %w", t.Name, err)
	}
	return body, nil
}
