// Package transport issues Basic-Auth requests against the NCDS gateway.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/denysvitali/ncds-go/internal/models"
	"github.com/denysvitali/ncds-go/pkg/config"
)

// FormField is one part of a multipart/form-data body. When File is set the
// part is written as a file upload named FileName, otherwise Value is used.
type FormField struct {
	Name     string
	Value    string
	FileName string
	File     io.Reader
}

// Option configures a Transport.
type Option func(*Transport)

// WithHTTPClient overrides the HTTP client used for every request.
func WithHTTPClient(h *http.Client) Option {
	return func(t *Transport) {
		if h != nil {
			t.httpClient = h
		}
	}
}

// Transport executes single authenticated requests. It never retries.
type Transport struct {
	baseURL     *url.URL
	credentials models.Credentials
	httpClient  *http.Client
	logger      *logrus.Logger
}

// New creates a Transport for the configured gateway
func New(cfg config.RemoteConfig, logger *logrus.Logger, opts ...Option) (*Transport, error) {
	base, err := config.NormalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	if cfg.InsecureSkipVerify {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed gateways
		httpClient.Transport = tr
	}

	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	t := &Transport{
		baseURL: parsed,
		credentials: models.Credentials{
			Username: cfg.Username,
			Password: cfg.Password,
		},
		httpClient: httpClient,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Request performs an authenticated GET of urlPath relative to the base URL.
// A raw query already present in urlPath is sent as is; query, when non-empty,
// replaces it.
func (t *Transport) Request(ctx context.Context, urlPath string, query url.Values) ([]byte, error) {
	fullURL, err := t.buildURL(urlPath, query)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, &models.TransportError{Method: http.MethodGet, URL: fullURL, Err: err}
	}
	return t.do(req)
}

// MultipartUpload POSTs fields as multipart/form-data, in the given order.
func (t *Transport) MultipartUpload(ctx context.Context, urlPath string, fields []FormField) ([]byte, error) {
	fullURL, err := t.buildURL(urlPath, nil)
	if err != nil {
		return nil, err
	}

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for _, f := range fields {
		if f.File != nil {
			part, err := mw.CreateFormFile(f.Name, f.FileName)
			if err != nil {
				return nil, fmt.Errorf("create form file %s: %w", f.Name, err)
			}
			if _, err := io.Copy(part, f.File); err != nil {
				return nil, &models.LocalIOError{Op: "read", Path: f.FileName, Err: err}
			}
			continue
		}
		if err := mw.WriteField(f.Name, f.Value); err != nil {
			return nil, fmt.Errorf("write form field %s: %w", f.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, body)
	if err != nil {
		return nil, &models.TransportError{Method: http.MethodPost, URL: fullURL, Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return t.do(req)
}

func (t *Transport) do(req *http.Request) ([]byte, error) {
	req.SetBasicAuth(t.credentials.Username, t.credentials.Password)

	start := time.Now()
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, &models.TransportError{Method: req.Method, URL: req.URL.String(), Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			t.logger.Warnf("Failed to close response body: %v", closeErr)
		}
	}()

	data, readErr := io.ReadAll(resp.Body)

	t.logger.WithFields(logrus.Fields{
		"method":  req.Method,
		"url":     req.URL.String(),
		"status":  resp.StatusCode,
		"bytes":   len(data),
		"latency": time.Since(start),
	}).Debug("Gateway request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &models.TransportError{
			Method:     req.Method,
			URL:        req.URL.String(),
			StatusCode: resp.StatusCode,
			Body:       data,
			Err:        errors.New(resp.Status),
		}
	}
	if readErr != nil {
		return nil, &models.TransportError{Method: req.Method, URL: req.URL.String(), Err: readErr}
	}
	return data, nil
}

func (t *Transport) buildURL(urlPath string, query url.Values) (string, error) {
	ref, err := url.Parse(urlPath)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", urlPath, err)
	}
	if len(query) > 0 {
		ref.RawQuery = query.Encode()
	}
	return t.baseURL.ResolveReference(ref).String(), nil
}
