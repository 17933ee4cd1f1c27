// Package transfer implements the upload, download, delete and list
// operations of the NCDS client.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/denysvitali/ncds-go/internal/models"
	"github.com/denysvitali/ncds-go/pkg/listing"
	"github.com/denysvitali/ncds-go/pkg/telemetry"
	"github.com/denysvitali/ncds-go/pkg/transport"
)

// Gateway endpoints
const (
	UploadEndpoint   = "do_upload.php"
	DownloadEndpoint = "do_download.php"
	DeleteEndpoint   = "do_delete.php"
)

// Transport is the subset of *transport.Transport the operations need
type Transport interface {
	Request(ctx context.Context, urlPath string, query url.Values) ([]byte, error)
	MultipartUpload(ctx context.Context, urlPath string, fields []transport.FormField) ([]byte, error)
}

// Resolver maps remote paths to file ids
type Resolver interface {
	FetchListing(ctx context.Context) (string, error)
	Resolve(ctx context.Context, path string) (int64, error)
}

// Client runs transfer operations against one gateway
type Client struct {
	transport Transport
	resolver  Resolver
	logger    *logrus.Logger
	tracer    trace.Tracer
}

// New creates a Client that resolves paths through the gateway listing
func New(tr Transport, logger *logrus.Logger) *Client {
	return NewWithResolver(tr, listing.NewResolver(tr, logger), logger)
}

// NewWithResolver creates a Client with a custom resolver
func NewWithResolver(tr Transport, resolver Resolver, logger *logrus.Logger) *Client {
	return &Client{
		transport: tr,
		resolver:  resolver,
		logger:    logger,
		tracer:    otel.Tracer(telemetry.InstrumentationName),
	}
}

// Put uploads localPath to remotePath and returns the gateway's reply as text.
func (c *Client) Put(ctx context.Context, localPath, remotePath string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "put")
	defer span.End()
	span.SetAttributes(
		attribute.String("local_path", localPath),
		attribute.String("remote_path", remotePath),
	)

	target := models.UploadTarget{LocalPath: localPath, RemotePath: remotePath}
	if err := target.Validate(); err != nil {
		span.RecordError(err)
		return "", err
	}

	f, err := os.Open(target.LocalPath)
	if err != nil {
		span.RecordError(err)
		return "", &models.LocalIOError{Op: "read", Path: target.LocalPath, Err: err}
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			c.logger.Warnf("Failed to close file %s: %v", target.LocalPath, closeErr)
		}
	}()

	if info, err := f.Stat(); err != nil {
		span.RecordError(err)
		return "", &models.LocalIOError{Op: "read", Path: target.LocalPath, Err: err}
	} else if info.IsDir() {
		err := &models.LocalIOError{Op: "read", Path: target.LocalPath, Err: errors.New("is a directory")}
		span.RecordError(err)
		return "", err
	}

	body, err := c.transport.MultipartUpload(ctx, UploadEndpoint, []transport.FormField{
		{Name: "path", Value: target.RemotePath},
		{Name: "upload_file", FileName: filepath.Base(target.LocalPath), File: f},
		{Name: "submit", Value: ""},
	})
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	telemetry.Report(ctx, c.logger, "put", map[string]any{
		"local_path":  localPath,
		"remote_path": remotePath,
		"reply_bytes": len(body),
	})
	return FormatUploadReply(string(body)), nil
}

// Get resolves remotePath and downloads it to localPath.
func (c *Client) Get(ctx context.Context, remotePath, localPath string) error {
	ctx, span := c.tracer.Start(ctx, "get")
	defer span.End()
	span.SetAttributes(attribute.String("remote_path", remotePath))

	fileID, err := c.resolver.Resolve(ctx, remotePath)
	if err != nil {
		span.RecordError(err)
		return err
	}
	return c.GetByID(ctx, fileID, localPath)
}

// GetByID downloads the file with the given id to localPath, replacing any
// existing file. The bytes are written unmodified.
func (c *Client) GetByID(ctx context.Context, fileID int64, localPath string) error {
	ctx, span := c.tracer.Start(ctx, "get_by_id")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("file_id", fileID),
		attribute.String("local_path", localPath),
	)

	body, err := c.transport.Request(ctx, DownloadEndpoint, fileIDQuery(fileID))
	if err != nil {
		span.RecordError(err)
		return err
	}

	if err := writeFile(localPath, body); err != nil {
		span.RecordError(err)
		return err
	}

	telemetry.Report(ctx, c.logger, "get", map[string]any{
		"file_id":    fileID,
		"local_path": localPath,
		"bytes":      len(body),
	})
	return nil
}

// Delete resolves remotePath, removes it on the gateway and returns the reply.
func (c *Client) Delete(ctx context.Context, remotePath string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "delete")
	defer span.End()
	span.SetAttributes(attribute.String("remote_path", remotePath))

	fileID, err := c.resolver.Resolve(ctx, remotePath)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	body, err := c.transport.Request(ctx, DeleteEndpoint, fileIDQuery(fileID))
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	telemetry.Report(ctx, c.logger, "delete", map[string]any{
		"remote_path": remotePath,
		"file_id":     fileID,
	})
	return FormatDeleteReply(string(body)), nil
}

// List returns the raw gateway listing.
func (c *Client) List(ctx context.Context) (string, error) {
	ctx, span := c.tracer.Start(ctx, "list")
	defer span.End()

	raw, err := c.resolver.FetchListing(ctx)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return raw, nil
}

// FormatUploadReply turns the upload reply into plain text. The gateway uses
// "<br />" as line break and "@" in place of "/" in paths.
func FormatUploadReply(body string) string {
	return strings.ReplaceAll(FormatDeleteReply(body), "@", "/")
}

// FormatDeleteReply replaces the gateway's "<br />" line breaks with newlines.
func FormatDeleteReply(body string) string {
	return strings.ReplaceAll(body, "<br />", "\n")
}

func fileIDQuery(fileID int64) url.Values {
	return url.Values{"fileid": {strconv.FormatInt(fileID, 10)}}
}

func writeFile(path string, data []byte) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return &models.LocalIOError{Op: "write", Path: path, Err: err}
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = &models.LocalIOError{Op: "write", Path: path, Err: closeErr}
		}
	}()

	if _, err := f.Write(data); err != nil {
		return &models.LocalIOError{Op: "write", Path: path, Err: fmt.Errorf("write %d bytes: %w", len(data), err)}
	}
	return nil
}
