// Package api is the HTTP client for the StoryHive story service. All calls
// go through the http.Client handed to New, so installing a caching transport
// there is enough to make every request offline-aware.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/storyhive/storyhive/internal/storage"
	"github.com/storyhive/storyhive/internal/validation"
)

const (
	// DefaultBaseURL is the public story service.
	DefaultBaseURL = "https://story-api.dicoding.dev/v1"

	userAgent      = "storyhive/1.0 (offline-first client)"
	defaultTimeout = 30 * time.Second
)

// Client talks to the story service. The zero value is not usable; construct
// with New.
type Client struct {
	baseURL string
	http    *http.Client
}

// New validates baseURL and returns a Client. A nil httpClient gets a default
// with a coarse 30s timeout.
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	normalized, err := validation.NewServiceURLValidator().ValidateAndNormalize(baseURL)
	if err != nil {
		return nil, fmt.Errorf("validating base URL: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimSuffix(normalized, "/"),
		http:    httpClient,
	}, nil
}

// BaseURL returns the normalized service URL the client targets.
func (c *Client) BaseURL() string { return c.baseURL }

// Register creates a new account.
func (c *Client) Register(ctx context.Context, name, email, password string) error {
	body := map[string]string{"name": name, "email": email, "password": password}
	var out messageResponse
	return c.postJSON(ctx, "/register", "", body, &out, "register")
}

// Login authenticates and returns the issued session, including the bearer
// token used for subsequent calls.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	body := map[string]string{"email": email, "password": password}
	var out loginResponse
	if err := c.postJSON(ctx, "/login", "", body, &out, "login"); err != nil {
		return nil, err
	}
	return &out.LoginResult, nil
}

// Stories lists geotagged stories. A token is optional; without one the
// service returns the public feed.
func (c *Client) Stories(ctx context.Context, token string) (*StoriesResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/stories", token, nil)
	if err != nil {
		return nil, err
	}
	var out StoriesResponse
	if err := c.do(req, &out, "list stories"); err != nil {
		return nil, err
	}
	return &out, nil
}

// StoryDetail fetches a single story by id.
func (c *Client) StoryDetail(ctx context.Context, token, id string) (*storage.Story, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/stories/"+id, token, nil)
	if err != nil {
		return nil, err
	}
	var out storyDetailResponse
	if err := c.do(req, &out, "story detail"); err != nil {
		return nil, err
	}
	return &out.Story, nil
}

// AddStory submits a story as multipart form data. With an empty token the
// guest endpoint is used. Returns the server message on success.
func (c *Client) AddStory(ctx context.Context, token string, draft StoryDraft) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := mw.WriteField("description", draft.Description); err != nil {
		return "", fmt.Errorf("building form: %w", err)
	}
	if len(draft.Photo) > 0 {
		name := draft.PhotoName
		if name == "" {
			name = "photo.jpg"
		}
		part, err := mw.CreateFormFile("photo", name)
		if err != nil {
			return "", fmt.Errorf("building form: %w", err)
		}
		if _, err := part.Write(draft.Photo); err != nil {
			return "", fmt.Errorf("building form: %w", err)
		}
	}
	if draft.Lat != nil {
		if err := mw.WriteField("lat", strconv.FormatFloat(*draft.Lat, 'f', -1, 64)); err != nil {
			return "", fmt.Errorf("building form: %w", err)
		}
	}
	if draft.Lon != nil {
		if err := mw.WriteField("lon", strconv.FormatFloat(*draft.Lon, 'f', -1, 64)); err != nil {
			return "", fmt.Errorf("building form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("building form: %w", err)
	}

	path := "/stories"
	if token == "" {
		path = "/stories/guest"
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, token, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out messageResponse
	if err := c.do(req, &out, "add story"); err != nil {
		return "", err
	}
	return out.Message, nil
}

// SubscribePush registers a web-push subscription for the session.
func (c *Client) SubscribePush(ctx context.Context, token string, sub PushSubscription) error {
	var out messageResponse
	return c.postJSON(ctx, "/notifications/subscribe", token, sub, &out, "subscribe push")
}

// UnsubscribePush removes the subscription identified by endpoint.
func (c *Client) UnsubscribePush(ctx context.Context, token, endpoint string) error {
	body := map[string]string{"endpoint": endpoint}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodDelete, "/notifications/subscribe", token, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	var out messageResponse
	return c.do(req, &out, "unsubscribe push")
}

// TestNotification asks the service to push a test message to every
// subscription registered for the session.
func (c *Client) TestNotification(ctx context.Context, token, title, body, url string) error {
	payload := map[string]string{
		"title":     title,
		"body":      body,
		"url":       url,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"userAgent": userAgent,
	}
	var out messageResponse
	return c.postJSON(ctx, "/notifications/test", token, payload, &out, "test notification")
}

func (c *Client) postJSON(ctx context.Context, path, token string, body, out any, op string) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: encoding request: %w", op, err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, token, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out, op)
}

func (c *Client) newRequest(ctx context.Context, method, path, token string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do sends req and decodes the JSON envelope into out. Non-2xx responses
// become an *APIError carrying the server message when one was supplied.
func (c *Client) do(req *http.Request, out any, op string) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("%s: reading response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope messageResponse
		_ = json.Unmarshal(data, &envelope)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    envelope.Message,
			Operation:  op,
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", op, err)
	}
	return nil
}
