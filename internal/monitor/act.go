package monitor

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

	"github.com/talgya/statecraft/internal/economy"
	"github.com/talgya/statecraft/internal/engine"
	"github.com/talgya/statecraft/internal/industry"
	"github.com/talgya/statecraft/internal/scheduler"
)

// APIError is a non-success answer from the admin API.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.Code, e.Message)
}

// ScheduleRequest is the body of POST /api/v1/tasks.
type ScheduleRequest struct {
	Kind     scheduler.Kind    `json:"kind"`
	Payload  scheduler.Payload `json:"payload"`
	Delay    uint64            `json:"delay"`
	Interval int64             `json:"interval,omitempty"`
	Limit    int               `json:"limit,omitempty"`
}

// Actor drives the admin endpoints.
type Actor struct {
	BaseURL    string
	AdminKey   string
	HTTPClient *http.Client
}

// NewActor creates an Actor targeting the given API base URL with admin auth.
func NewActor(baseURL, adminKey string) *Actor {
	return &Actor{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		AdminKey: adminKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Tick asks the server to run one tick of the given minutes.
func (a *Actor) Tick(ctx context.Context, minutes float64) (*engine.TickReport, error) {
	var report engine.TickReport
	if err := a.send(ctx, http.MethodPost, "/api/v1/tick", map[string]float64{"minutes": minutes}, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// SetMultiplier changes the time multiplier and returns its display form.
func (a *Actor) SetMultiplier(ctx context.Context, value string) (string, error) {
	var out struct {
		Display string `json:"display_multiplier"`
	}
	if err := a.send(ctx, http.MethodPost, "/api/v1/multiplier", map[string]string{"multiplier": value}, &out); err != nil {
		return "", err
	}
	return out.Display, nil
}

// SetSpeed changes the wall-clock loop speed.
func (a *Actor) SetSpeed(ctx context.Context, speed float64) error {
	return a.send(ctx, http.MethodPost, "/api/v1/speed", map[string]float64{"speed": speed}, nil)
}

// Schedule adds a task and returns its id.
func (a *Actor) Schedule(ctx context.Context, req ScheduleRequest) (scheduler.TaskID, error) {
	if req.Payload != nil {
		req.Kind = req.Payload.Kind()
	}
	var out struct {
		ID scheduler.TaskID `json:"id"`
	}
	if err := a.send(ctx, http.MethodPost, "/api/v1/tasks", req, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// Cancel removes a pending task.
func (a *Actor) Cancel(ctx context.Context, id scheduler.TaskID) error {
	return a.send(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/tasks/%d", id), nil, nil)
}

// Dissolve removes a country.
func (a *Actor) Dissolve(ctx context.Context, name string) error {
	return a.send(ctx, http.MethodDelete, "/api/v1/countries/"+name, nil, nil)
}

// SetAllocation replaces a country's budget allocation.
func (a *Actor) SetAllocation(ctx context.Context, country string, b economy.BudgetAllocation) error {
	return a.send(ctx, http.MethodPost, "/api/v1/countries/"+url.PathEscape(country)+"/allocation", b, nil)
}

// Subsidize sets a sector subsidy in percent of its costs.
func (a *Actor) Subsidize(ctx context.Context, sector string, percent float64) (industry.Overview, error) {
	var out industry.Overview
	err := a.send(ctx, http.MethodPost, "/api/v1/industry/"+url.PathEscape(sector)+"/subsidy", map[string]float64{"percent": percent}, &out)
	return out, err
}

// Snapshot asks the server to persist its state.
func (a *Actor) Snapshot(ctx context.Context) error {
	return a.send(ctx, http.MethodPost, "/api/v1/snapshot", nil, nil)
}

func (a *Actor) send(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+a.AdminKey)

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{Code: resp.StatusCode, Message: msg}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
