// Package listing resolves remote paths to the numeric file identifiers the
// gateway uses for download and delete.
//
// The gateway has no path lookup endpoint, so resolution always fetches the
// full listing and scans it. The listing is a whitespace separated text table:
// a header line followed by "path id" rows.
package listing

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/denysvitali/ncds-go/internal/models"
	"github.com/denysvitali/ncds-go/pkg/telemetry"
)

// ListEndpoint returns the machine-readable listing
const ListEndpoint = "list.php?python"

// Requester issues an authenticated GET and returns the response body
type Requester interface {
	Request(ctx context.Context, urlPath string, query url.Values) ([]byte, error)
}

// Resolver fetches listings and resolves paths against them
type Resolver struct {
	requester Requester
	logger    *logrus.Logger
	tracer    trace.Tracer
}

// NewResolver creates a Resolver on top of the given requester
func NewResolver(requester Requester, logger *logrus.Logger) *Resolver {
	return &Resolver{
		requester: requester,
		logger:    logger,
		tracer:    otel.Tracer(telemetry.InstrumentationName),
	}
}

// FetchListing returns the raw listing text. Nothing is cached.
func (r *Resolver) FetchListing(ctx context.Context) (string, error) {
	ctx, span := r.tracer.Start(ctx, "fetch_listing")
	defer span.End()

	body, err := r.requester.Request(ctx, ListEndpoint, nil)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	span.SetAttributes(attribute.Int("listing.bytes", len(body)))
	return string(body), nil
}

// Resolve returns the id of the first listing entry whose path equals path.
func (r *Resolver) Resolve(ctx context.Context, path string) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "resolve")
	defer span.End()
	span.SetAttributes(attribute.String("path", path))

	raw, err := r.FetchListing(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	id, err := Lookup(Parse(raw), path)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	telemetry.Report(ctx, r.logger, "resolve", map[string]any{
		"path":    path,
		"file_id": id,
	})
	return id, nil
}

// Parse turns listing text into entries, in server order. The first line is a
// header and is dropped. Lines with fewer than two fields are skipped. An id
// that is not a positive integer is kept as 0 so the row still shadows later
// rows with the same path.
func Parse(raw string) []models.FileEntry {
	lines := strings.Split(raw, "\n")
	if len(lines) <= 1 {
		return nil
	}

	entries := make([]models.FileEntry, 0, len(lines)-1)
	for _, line := range lines[1:] {
		fields := strings.FieldsFunc(line, isASCIISpace)
		if len(fields) < 2 {
			continue
		}
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil || id <= 0 {
			id = 0
		}
		entries = append(entries, models.FileEntry{Path: fields[0], ID: id})
	}
	return entries
}

// Lookup applies the first-match rule to parsed entries.
func Lookup(entries []models.FileEntry, path string) (int64, error) {
	for _, entry := range entries {
		if entry.Path != path {
			continue
		}
		if entry.ID == 0 {
			return 0, &models.NotFoundError{Path: path}
		}
		return entry.ID, nil
	}
	return 0, &models.NotFoundError{Path: path}
}

// isASCIISpace splits listing columns. Non-ASCII spaces such as U+00A0 stay
// part of the path.
func isASCIISpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}
