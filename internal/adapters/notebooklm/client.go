// Package notebooklm talks to a notebook gateway: a service that holds a
// logged-in NotebookLM browser session and exposes it as JSON over HTTP.
// NotebookLM itself has no public API, so NOTEBOOKLM_BASE_URL must point at
// such a gateway, not at notebooklm.google.com.
//
//	GET  /api/session                  -> {"csrf_token", "session_id"}
//	GET  /api/notebooks/{id}/sources   -> {"sources": [{"id", "title"}]}
//	POST /api/notebooks/{id}/ask       {"prompt", "source_ids"} -> {"answer"}
//
// Requests carry the cookies of a Playwright storage-state file plus the
// X-Csrf-Token and X-Session-Id headers from the last /api/session call.
package notebooklm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/PabloGalante/kbrelay/internal/domain"
)

const tracerName = "github.com/PabloGalante/kbrelay/notebooklm"

// ErrUnauthorized is returned when the upstream rejects the stored credentials.
var ErrUnauthorized = errors.New("notebooklm: credentials rejected")

// APIError is a non-2xx upstream response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return "notebooklm: status " + strconv.Itoa(e.Status) + ": " + e.Body
}

// Connector opens authenticated clients from a stored browser session.
type Connector struct {
	baseURL string
	http    *http.Client
	now     func() time.Time
}

// NewConnector builds a Connector for the gateway at baseURL. timeout caps
// every upstream HTTP exchange; zero means no cap.
func NewConnector(baseURL string, timeout time.Duration) *Connector {
	return &Connector{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

// Connect loads the credential file and returns a client carrying its
// cookies. No request is made until KeepSessionOpen.
func (c *Connector) Connect(ctx context.Context, credentialPath string) (domain.Connection, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "notebooklm.Connect")
	defer span.End()

	if c.baseURL == "" {
		return nil, fail(span, errors.New("no gateway base url configured"))
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fail(span, errors.Wrap(err, "parse base url"))
	}

	st, err := loadStorageState(credentialPath)
	if err != nil {
		return nil, fail(span, err)
	}

	cookies := st.cookiesFor(base.Hostname(), c.now())
	if len(cookies) == 0 {
		return nil, fail(span, errors.Errorf("no valid cookies for %s in %s", base.Hostname(), credentialPath))
	}
	span.SetAttributes(attribute.Int("cookies", len(cookies)))

	return &Client{
		base:    base,
		http:    c.http,
		cookies: cookies,
		tracer:  otel.Tracer(tracerName),
	}, nil
}

// Client talks to one notebook host with one browser session.
// It is not safe for concurrent use; the session manager serializes calls.
type Client struct {
	base    *url.URL
	http    *http.Client
	cookies []*http.Cookie
	tracer  trace.Tracer

	csrfToken string
	sessionID string
}

type sessionResponse struct {
	CSRFToken string `json:"csrf_token"`
	SessionID string `json:"session_id"`
}

type sourcesResponse struct {
	Sources []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"sources"`
}

type askRequest struct {
	Prompt    string   `json:"prompt"`
	SourceIDs []string `json:"source_ids,omitempty"`
}

type askResponse struct {
	Answer string `json:"answer"`
}

// KeepSessionOpen fetches the per-session tokens every later call needs.
func (c *Client) KeepSessionOpen(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "notebooklm.KeepSessionOpen")
	defer span.End()

	return fail(span, c.fetchTokens(ctx, "open session"))
}

// RefreshAuth renews the session tokens and any rotated cookies in place.
func (c *Client) RefreshAuth(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "notebooklm.RefreshAuth")
	defer span.End()

	return fail(span, c.fetchTokens(ctx, "refresh auth"))
}

func (c *Client) fetchTokens(ctx context.Context, op string) error {
	var out sessionResponse
	if err := c.do(ctx, http.MethodGet, "/api/session", nil, &out); err != nil {
		return errors.Wrap(err, op)
	}
	if out.CSRFToken == "" {
		return errors.Errorf("%s: upstream returned no csrf token", op)
	}
	c.csrfToken = out.CSRFToken
	c.sessionID = out.SessionID
	return nil
}

func (c *Client) ListSources(ctx context.Context, notebookID string) ([]domain.SourceID, error) {
	ctx, span := c.tracer.Start(ctx, "notebooklm.ListSources",
		trace.WithAttributes(attribute.String("notebook.id", notebookID)))
	defer span.End()

	var out sourcesResponse
	if err := c.do(ctx, http.MethodGet, notebookPath(notebookID, "sources"), nil, &out); err != nil {
		return nil, fail(span, errors.Wrap(err, "list sources"))
	}

	ids := make([]domain.SourceID, 0, len(out.Sources))
	for _, s := range out.Sources {
		if s.ID != "" {
			ids = append(ids, domain.SourceID(s.ID))
		}
	}
	span.SetAttributes(attribute.Int("sources", len(ids)))
	return ids, nil
}

// Ask sends prompt to the notebook, scoped to sourceIDs when any are given.
func (c *Client) Ask(ctx context.Context, notebookID, prompt string, sourceIDs []domain.SourceID) (string, error) {
	ctx, span := c.tracer.Start(ctx, "notebooklm.Ask", trace.WithAttributes(
		attribute.String("notebook.id", notebookID),
		attribute.Int("prompt.len", len(prompt)),
		attribute.Int("sources", len(sourceIDs)),
	))
	defer span.End()

	if c.csrfToken == "" {
		return "", fail(span, errors.New("ask: session not open"))
	}

	req := askRequest{Prompt: prompt}
	for _, id := range sourceIDs {
		req.SourceIDs = append(req.SourceIDs, string(id))
	}

	var out askResponse
	if err := c.do(ctx, http.MethodPost, notebookPath(notebookID, "ask"), req, &out); err != nil {
		return "", fail(span, errors.Wrap(err, "ask"))
	}
	span.SetAttributes(attribute.Int("answer.len", len(out.Answer)))
	return out.Answer, nil
}

func notebookPath(notebookID, leaf string) string {
	return "/api/notebooks/" + notebookID + "/" + leaf
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		reader = bytes.NewReader(raw)
	}

	u := c.base.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.csrfToken != "" {
		req.Header.Set("X-Csrf-Token", c.csrfToken)
	}
	if c.sessionID != "" {
		req.Header.Set("X-Session-Id", c.sessionID)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	c.mergeCookies(resp.Cookies())

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return errors.Wrap(err, "read response")
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errors.Wrapf(ErrUnauthorized, "%s %s", method, path)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &APIError{Status: resp.StatusCode, Body: snippet(raw)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

// mergeCookies replaces stored cookies the upstream rotated.
func (c *Client) mergeCookies(updates []*http.Cookie) {
	for _, u := range updates {
		replaced := false
		for i, ck := range c.cookies {
			if ck.Name == u.Name {
				c.cookies[i] = &http.Cookie{Name: u.Name, Value: u.Value}
				replaced = true
				break
			}
		}
		if !replaced {
			c.cookies = append(c.cookies, &http.Cookie{Name: u.Name, Value: u.Value})
		}
	}
}

func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		return s[:200]
	}
	return s
}

// fail records err on span and returns it unchanged.
func fail(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
