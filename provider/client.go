// Package provider is the HTTP client for the signature-provider API.
//
// The rest of the repo depends only on the operation contracts for
// agreement creation and verification, never on the transport.
// Transport-layer failures are returned as-is so the submission layer can
// tell them apart from application-layer rejections (*APIError).
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"
)

// Recipient is one signer on an agreement, in signing order.
type Recipient struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Order int    `json:"order,omitempty"`
}

// Options tune agreement creation.
type Options struct {
	SigningFlow string `json:"signing_flow,omitempty"` // SEQUENTIAL or PARALLEL
	Message     string `json:"message,omitempty"`
}

// Agreement is the provider's record of a sent document.
type Agreement struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
	Name   string `json:"name,omitempty"`
}

// Config configures a Client.
type Config struct {
	BaseURL string        `json:"base_url" yaml:"base_url"`
	APIKey  string        `json:"-" yaml:"api_key"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"` // per-request; default 30s
	Logger  *slog.Logger  `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client talks to the signature-provider REST API.
type Client struct {
	cfg  Config
	http *http.Client
}

// New creates a Client.
func New(cfg Config) *Client {
	cfg.defaults()
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// UploadTransient uploads document bytes as a transient document and
// returns the provider's transient document ID, valid for a short window
// during which an agreement can reference it.
func (c *Client) UploadTransient(ctx context.Context, filename string, data []byte) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("File", filename)
	if err != nil {
		return "", fmt.Errorf("provider: multipart: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("provider: multipart write: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("provider: multipart close: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/transientDocuments", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	var out struct {
		TransientDocumentID string `json:"transientDocumentId"`
	}
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	return out.TransientDocumentID, nil
}

// CreateAgreement asks the provider to create a signature agreement over a
// previously-uploaded transient document. An *APIError means the provider
// received and rejected the request; any other error is a transport symptom
// with no proof the request failed remotely.
func (c *Client) CreateAgreement(ctx context.Context, transientDocID string, recipients []Recipient, name string, opts Options) (*Agreement, error) {
	if transientDocID == "" {
		return nil, &APIError{Status: http.StatusBadRequest, Code: "missing_document", Message: "transient document id is required"}
	}
	if len(recipients) == 0 {
		return nil, &APIError{Status: http.StatusBadRequest, Code: "missing_recipients", Message: "at least one recipient is required"}
	}

	payload := map[string]any{
		"name":                name,
		"transientDocumentId": transientDocID,
		"recipients":          recipients,
		"signingFlow":         opts.SigningFlow,
		"message":             opts.Message,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("provider: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/agreements", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	var ag Agreement
	if err := c.do(req, &ag); err != nil {
		return nil, err
	}
	if ag.ID == "" {
		return nil, &APIError{Status: http.StatusBadGateway, Code: "missing_agreement_id", Message: "provider response carried no agreement id"}
	}
	c.cfg.Logger.Info("provider: agreement created", "agreement_id", ag.ID, "name", name)
	return &ag, nil
}

// VerifyAgreement looks up an agreement by ID. A nil Agreement with nil
// error means the provider has no trace of it.
func (c *Client) VerifyAgreement(ctx context.Context, agreementID string) (*Agreement, error) {
	if agreementID == "" {
		return nil, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/agreements/"+agreementID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	var ag Agreement
	if err := c.do(req, &ag); err != nil {
		var apiErr *APIError
		if asAPIError(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &ag, nil
}

// do executes the request and decodes a JSON response into out. A received
// HTTP error status becomes an *APIError; transport failures pass through
// untouched.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var envelope struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &envelope) == nil {
			apiErr.Code = envelope.Code
			apiErr.Message = envelope.Message
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("provider: decode response: %w", err)
	}
	return nil
}
