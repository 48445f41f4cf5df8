// Package transport performs JSON and multipart round trips against the advisory
// services and maps every failure onto the domain error taxonomy.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/casava/domain"
	"github.com/satriahrh/casava/internal/audio"
)

const maxErrorBody = 64 * 1024

// Client is a base URL plus an http.Client with a fixed timeout
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// New creates a transport client. The timeout applies to the whole round trip.
func New(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// BaseURL returns the configured base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Form is a multipart body: plain fields first, then file parts
type Form struct {
	Fields [][2]string
	Files  []audio.Part
}

// Add appends a plain field
func (f *Form) Add(name, value string) {
	f.Fields = append(f.Fields, [2]string{name, value})
}

// Request describes one round trip
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// JSON is marshalled as the body when set
	JSON any
	// Form is sent as multipart/form-data when set
	Form   *Form
	Bearer string
}

// Do performs req and decodes a 2xx JSON response into out (when out is non-nil).
// Failures come back as *domain.NetworkError, *domain.ServiceError or *domain.DecodeError.
func (c *Client) Do(ctx context.Context, op string, req Request, out any) error {
	httpReq, err := c.build(ctx, req)
	if err != nil {
		// Nothing was sent
		return &domain.NetworkError{Op: op, Err: fmt.Errorf("failed to build request: %w", err)}
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Warn("Request failed",
			zap.String("op", op),
			zap.String("url", httpReq.URL.Redacted()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return &domain.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		message := ErrorMessage(resp.StatusCode, body)
		c.logger.Warn("Service returned error",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.String("message", message),
			zap.Duration("elapsed", time.Since(start)))
		return &domain.ServiceError{Op: op, Status: resp.StatusCode, Message: message}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.NetworkError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	c.logger.Debug("Request completed",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)))

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &domain.DecodeError{Op: op, Err: err}
	}
	return nil
}

func (c *Client) build(ctx context.Context, req Request) (*http.Request, error) {
	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case req.Form != nil:
		buf, ct, err := encodeForm(req.Form)
		if err != nil {
			return nil, err
		}
		body, contentType = buf, ct
	case req.JSON != nil:
		payload, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body, contentType = bytes.NewReader(payload), "application/json"
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if req.Bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Bearer)
	}
	return httpReq, nil
}

func encodeForm(form *Form) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	for _, field := range form.Fields {
		if err := w.WriteField(field[0], field[1]); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", field[0], err)
		}
	}

	for _, part := range form.Files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			escapeQuotes(part.FieldName), escapeQuotes(part.FileName)))
		header.Set("Content-Type", part.ContentType)

		pw, err := w.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create part %s: %w", part.FieldName, err)
		}
		if _, err := io.Copy(pw, part.Body); err != nil {
			return nil, "", fmt.Errorf("failed to write part %s: %w", part.FieldName, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

type errorEnvelope struct {
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Detail  json.RawMessage `json:"detail"`
}

type validationDetail struct {
	Loc  []any  `json:"loc"`
	Msg  string `json:"msg"`
	Type string `json:"type"`
}

// ErrorMessage extracts a human readable message from either error envelope
// ({message} or {detail:[{loc,msg,type}]}), defaulting to "HTTP error <status>".
func ErrorMessage(status int, body []byte) string {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil {
		if msg := strings.TrimSpace(env.Message); msg != "" {
			return msg
		}
		if msg := detailMessage(env.Detail); msg != "" {
			return msg
		}
		if msg := strings.TrimSpace(env.Error); msg != "" {
			return msg
		}
	}
	return fmt.Sprintf("HTTP error %d", status)
}

func detailMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text)
	}

	var details []validationDetail
	if err := json.Unmarshal(raw, &details); err != nil {
		return ""
	}

	msgs := make([]string, 0, len(details))
	for _, d := range details {
		if d.Msg == "" {
			continue
		}
		if field := fieldName(d.Loc); field != "" {
			msgs = append(msgs, field+": "+d.Msg)
		} else {
			msgs = append(msgs, d.Msg)
		}
	}
	return strings.Join(msgs, "; ")
}

// fieldName drops the leading location ("body", "query") FastAPI puts first
func fieldName(loc []any) string {
	parts := make([]string, 0, len(loc))
	for i, l := range loc {
		s := fmt.Sprint(l)
		if i == 0 && len(loc) > 1 && (s == "body" || s == "query" || s == "path" || s == "header") {
			continue
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ".")
}

// IsTimeout reports whether err is a timeout or deadline expiry
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
