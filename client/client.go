// Package client is the terminal-side library for the shop-floor API: a REST
// client, an optimistic job view, and a synchronizer that keeps the view
// current over websocket events with a polling backstop.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/c360studio/shopfloor/cutlist"
	"github.com/c360studio/shopfloor/storage"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// IsConflict reports whether err is a 409 response, meaning another terminal
// changed the job state first.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client talks to the shop-floor REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the given base URL (e.g. "http://shopserver:8080").
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// ListJobs fetches all jobs.
func (c *Client) ListJobs(ctx context.Context) ([]*cutlist.Job, error) {
	var jobs []*cutlist.Job
	if err := c.do(ctx, http.MethodGet, "/api/v1/jobs", nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// CreateJob creates a job.
func (c *Client) CreateJob(ctx context.Context, name, customer string) (*cutlist.Job, error) {
	var j cutlist.Job
	req := map[string]string{"name": name, "customer": customer}
	if err := c.do(ctx, http.MethodPost, "/api/v1/jobs", req, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// GetJobDetail fetches the full job view.
func (c *Client) GetJobDetail(ctx context.Context, jobID string) (*storage.JobDetail, error) {
	var detail storage.JobDetail
	if err := c.do(ctx, http.MethodGet, "/api/v1/jobs/"+jobID+"/detail", nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Transition applies a job status action (start, pause, resume, complete).
func (c *Client) Transition(ctx context.Context, jobID, action string) (*cutlist.Job, error) {
	var j cutlist.Job
	if err := c.do(ctx, http.MethodPost, "/api/v1/jobs/"+jobID+"/"+action, nil, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// CreateCutlist appends a cutlist to a job.
func (c *Client) CreateCutlist(ctx context.Context, jobID, name string) (*cutlist.Cutlist, error) {
	var cl cutlist.Cutlist
	req := map[string]string{"name": name}
	if err := c.do(ctx, http.MethodPost, "/api/v1/jobs/"+jobID+"/cutlists", req, &cl); err != nil {
		return nil, err
	}
	return &cl, nil
}

// CreateMaterial adds a material to a cutlist.
func (c *Client) CreateMaterial(ctx context.Context, cutlistID, color string, totalSheets int) (*cutlist.Material, error) {
	var m cutlist.Material
	req := map[string]any{"color": color, "total_sheets": totalSheets}
	if err := c.do(ctx, http.MethodPost, "/api/v1/cutlists/"+cutlistID+"/materials", req, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// sheetStatusRequest mirrors the server's sheet-status body.
type sheetStatusRequest struct {
	SheetIndex int                 `json:"sheet_index"`
	Status     cutlist.SheetStatus `json:"status"`
}

// SetSheetStatus writes one sheet's status on a material.
func (c *Client) SetSheetStatus(ctx context.Context, materialID string, sheetIndex int, status cutlist.SheetStatus) (*cutlist.Material, error) {
	var m cutlist.Material
	req := sheetStatusRequest{SheetIndex: sheetIndex, Status: status}
	if err := c.do(ctx, http.MethodPut, "/api/v1/materials/"+materialID+"/sheet-status", req, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// SetRecutSheetStatus writes one sheet's status on a recut batch.
func (c *Client) SetRecutSheetStatus(ctx context.Context, recutID string, sheetIndex int, status cutlist.SheetStatus) (*cutlist.RecutBatch, error) {
	var batch cutlist.RecutBatch
	req := sheetStatusRequest{SheetIndex: sheetIndex, Status: status}
	if err := c.do(ctx, http.MethodPut, "/api/v1/recuts/"+recutID+"/sheet-status", req, &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

// AddRecut creates a recut batch on a material.
func (c *Client) AddRecut(ctx context.Context, materialID string, quantity int, reason string) (*cutlist.RecutBatch, error) {
	var batch cutlist.RecutBatch
	req := map[string]any{"quantity": quantity, "reason": reason}
	if err := c.do(ctx, http.MethodPost, "/api/v1/materials/"+materialID+"/recuts", req, &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

// DeleteRecut removes a recut batch.
func (c *Client) DeleteRecut(ctx context.Context, recutID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/recuts/"+recutID, nil, nil)
}

// AddSheets raises a material's sheet count.
func (c *Client) AddSheets(ctx context.Context, materialID string, additional int) (*cutlist.Material, error) {
	var m cutlist.Material
	req := map[string]int{"additional": additional}
	if err := c.do(ctx, http.MethodPost, "/api/v1/materials/"+materialID+"/sheets", req, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// DeleteSheet removes a skipped sheet slot from a material.
func (c *Client) DeleteSheet(ctx context.Context, materialID string, sheetIndex int) (*cutlist.Material, error) {
	var m cutlist.Material
	path := fmt.Sprintf("/api/v1/materials/%s/sheets/%d", materialID, sheetIndex)
	if err := c.do(ctx, http.MethodDelete, path, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// StartSession opens a viewing-session timer on a job.
func (c *Client) StartSession(ctx context.Context, jobID string) (string, error) {
	var resp struct {
		SessionID string `json:"session_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/jobs/"+jobID+"/sessions", nil, &resp); err != nil {
		return "", err
	}
	return resp.SessionID, nil
}

// StopSession closes a viewing-session timer.
func (c *Client) StopSession(ctx context.Context, jobID, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/jobs/"+jobID+"/sessions/"+sessionID, nil, nil)
}
