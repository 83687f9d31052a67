package teamlinesdk

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
)

// Client is a minimal Teamline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Attachment is a name+location file reference.
type Attachment struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

// Assignment represents the API assignment model (partial).
type Assignment struct {
	ID          string   `json:"id"`
	ClientID    string   `json:"client_id"`
	Title       string   `json:"title"`
	Brief       string   `json:"brief,omitempty"`
	StartDate   string   `json:"start_date,omitempty"`
	DueDate     string   `json:"due_date"`
	Status      string   `json:"status"`
	Teammates   []string `json:"teammates"`
	Supervisors []string `json:"supervisors"`
}

// ActivityEvent represents one log entry.
type ActivityEvent struct {
	ID     int64  `json:"id"`
	TS     string `json:"ts"`
	Author string `json:"author"`
	Type   string `json:"type"`
	Note   string `json:"note,omitempty"`
	Urgent bool   `json:"urgent,omitempty"`
}

// Notification represents one feed entry.
type Notification struct {
	ID           string `json:"id"`
	AssignmentID string `json:"assignment_id"`
	Subject      string `json:"subject"`
	Body         string `json:"body"`
	CreatedAt    string `json:"created_at"`
	ReadAt       string `json:"read_at,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateAssignmentInput are the fields for a new assignment.
type CreateAssignmentInput struct {
	Title     string       `json:"title"`
	Brief     string       `json:"brief,omitempty"`
	Steps     string       `json:"steps,omitempty"`
	StartDate string       `json:"start_date,omitempty"`
	DueDate   string       `json:"due_date"`
	Teammates []string     `json:"teammates"`
	Files     []Attachment `json:"files,omitempty"`
}

// CreateAssignment submits a new assignment for review.
func (c *Client) CreateAssignment(ctx context.Context, in CreateAssignmentInput) (Assignment, error) {
	var resp Assignment
	err := c.do(ctx, http.MethodPost, "v0/assignments", in, &resp)
	return resp, err
}

// ListAssignments returns the caller's role-scoped assignment list.
func (c *Client) ListAssignments(ctx context.Context) ([]Assignment, error) {
	var resp []Assignment
	err := c.do(ctx, http.MethodGet, "v0/assignments", nil, &resp)
	return resp, err
}

// GetAssignment fetches one assignment.
func (c *Client) GetAssignment(ctx context.Context, id string) (Assignment, error) {
	var resp Assignment
	err := c.do(ctx, http.MethodGet, "v0/assignments/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ExtendAssignment requests a new due date.
func (c *Client) ExtendAssignment(ctx context.Context, id, dueDate string) (Assignment, error) {
	var resp Assignment
	endpoint := fmt.Sprintf("v0/assignments/%s/extend", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"due_date": dueDate}, &resp)
	return resp, err
}

// CancelAssignment cancels an assignment.
func (c *Client) CancelAssignment(ctx context.Context, id, note string) (Assignment, error) {
	var resp Assignment
	endpoint := fmt.Sprintf("v0/assignments/%s/cancel", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"note": note}, &resp)
	return resp, err
}

// SupervisorAct applies a review decision (approve, decline, request_revision,
// approve_extension).
func (c *Client) SupervisorAct(ctx context.Context, id, action, note, newDueDate string) (Assignment, error) {
	body := map[string]any{"action": action}
	if note != "" {
		body["note"] = note
	}
	if newDueDate != "" {
		body["new_due_date"] = newDueDate
	}
	var resp Assignment
	endpoint := fmt.Sprintf("v0/assignments/%s/supervisor", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// TeammateAct applies a teammate response (accept, decline, request_extension,
// request_cancel, request_update, deliver).
func (c *Client) TeammateAct(ctx context.Context, id, action, note string, files []Attachment) (Assignment, error) {
	body := map[string]any{"action": action}
	if note != "" {
		body["note"] = note
	}
	if len(files) > 0 {
		body["files"] = files
	}
	var resp Assignment
	endpoint := fmt.Sprintf("v0/assignments/%s/teammate", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// SendMessage posts a reply on an assignment.
func (c *Client) SendMessage(ctx context.Context, id, text, targetRole, targetID string) (Assignment, error) {
	body := map[string]any{"text": text, "target_role": targetRole, "target_id": targetID}
	var resp Assignment
	endpoint := fmt.Sprintf("v0/assignments/%s/messages", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Activity returns an assignment's activity trail.
func (c *Client) Activity(ctx context.Context, id string) ([]ActivityEvent, error) {
	var resp []ActivityEvent
	endpoint := fmt.Sprintf("v0/assignments/%s/activity", url.PathEscape(id))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Notifications returns the caller's notification feed.
func (c *Client) Notifications(ctx context.Context) ([]Notification, error) {
	var resp []Notification
	err := c.do(ctx, http.MethodGet, "v0/notifications", nil, &resp)
	return resp, err
}

// MarkNotificationRead marks one notification as read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	endpoint := fmt.Sprintf("v0/notifications/%s/read", url.PathEscape(id))
	return c.do(ctx, http.MethodPost, endpoint, nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
