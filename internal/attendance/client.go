package attendance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPDeviceClient speaks the JSON pull protocol exposed by the terminal
// gateway: GET /punches?since=<cursor> returns events plus the next cursor.
type HTTPDeviceClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPDeviceClient builds a client for one gateway endpoint.
func NewHTTPDeviceClient(baseURL string, timeout time.Duration) *HTTPDeviceClient {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPDeviceClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type punchWire struct {
	EmployeeCode string    `json:"employee_code"`
	Timestamp    time.Time `json:"timestamp"`
	Direction    string    `json:"direction"`
	DeviceSerial string    `json:"device_serial"`
}

type punchPage struct {
	Punches []punchWire `json:"punches"`
	Cursor  string      `json:"cursor"`
}

// FetchPunches pulls all events recorded after the cursor.
func (c *HTTPDeviceClient) FetchPunches(ctx context.Context, since string) ([]Punch, string, error) {
	u := c.baseURL + "/punches"
	if since != "" {
		u += "?since=" + url.QueryEscape(since)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("attendance: device returned %d", resp.StatusCode)
	}
	var page punchPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, "", fmt.Errorf("attendance: decode punches: %w", err)
	}
	out := make([]Punch, 0, len(page.Punches))
	for _, p := range page.Punches {
		out = append(out, Punch{
			EmployeeCode: p.EmployeeCode,
			Timestamp:    p.Timestamp,
			Direction:    Direction(p.Direction),
			DeviceSerial: p.DeviceSerial,
		})
	}
	return out, page.Cursor, nil
}

var _ DeviceClient = (*HTTPDeviceClient)(nil)
