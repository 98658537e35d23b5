// Package monitor watches a running simulation through its HTTP API.
// It observes status and countries, triages them into alert levels and
// drives the admin endpoints.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/talgya/statecraft/internal/engine"
	"github.com/talgya/statecraft/internal/scheduler"
)

// Snapshot holds everything collected during one observation.
type Snapshot struct {
	Status    Status        `json:"status"`
	Countries []CountryInfo `json:"countries"`
	Tasks     []TaskInfo    `json:"tasks"`
}

// Status mirrors GET /api/v1/status.
type Status struct {
	engine.TimeStatus
	RunID     string  `json:"run_id"`
	DateText  string  `json:"date_text"`
	Speed     float64 `json:"speed"`
	Countries int     `json:"countries"`
}

// CountryInfo mirrors items from GET /api/v1/countries.
type CountryInfo struct {
	Name       string  `json:"name"`
	Government string  `json:"government"`
	GDP        float64 `json:"gdp"`
	Stability  int     `json:"stability"`
	Approval   int     `json:"approval"`
	Military   int     `json:"military"`
	Resources  int     `json:"resources"`
	Cash       float64 `json:"cash"`
	Debt       float64 `json:"debt"`
	Rating     string  `json:"rating"`
}

// TaskInfo mirrors items from GET /api/v1/tasks.
type TaskInfo struct {
	ID       scheduler.TaskID `json:"id"`
	Kind     scheduler.Kind   `json:"kind"`
	Payload  json.RawMessage  `json:"payload"`
	DueAt    uint64           `json:"due_at"`
	DueIn    uint64           `json:"due_in"`
	Interval int64            `json:"interval,omitempty"`
	Limit    int              `json:"limit,omitempty"`
	Runs     int              `json:"runs"`
}

// Observer fetches simulation state from the API.
type Observer struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewObserver creates an Observer targeting the given API base URL.
func NewObserver(baseURL string) *Observer {
	return &Observer{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Observe fetches status, countries and tasks.
func (o *Observer) Observe(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}

	if err := o.fetchJSON(ctx, "/api/v1/status", &snap.Status); err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}
	if err := o.fetchJSON(ctx, "/api/v1/countries", &snap.Countries); err != nil {
		return nil, fmt.Errorf("fetch countries: %w", err)
	}
	if err := o.fetchJSON(ctx, "/api/v1/tasks", &snap.Tasks); err != nil {
		return nil, fmt.Errorf("fetch tasks: %w", err)
	}
	return snap, nil
}

// Reports fetches up to n recent report lines.
func (o *Observer) Reports(ctx context.Context, n int) ([]string, error) {
	var out struct {
		Lines []string `json:"lines"`
	}
	if err := o.fetchJSON(ctx, fmt.Sprintf("/api/v1/reports?n=%d", n), &out); err != nil {
		return nil, err
	}
	return out.Lines, nil
}

// Ready reports whether the API answers its status endpoint.
func (o *Observer) Ready(ctx context.Context) bool {
	var st Status
	return o.fetchJSON(ctx, "/api/v1/status", &st) == nil
}

// fetchJSON GETs a path and decodes the JSON response into target.
func (o *Observer) fetchJSON(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
