package transport

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denysvitali/ncds-go/internal/models"
	"github.com/denysvitali/ncds-go/pkg/config"
)

func newTestTransport(t *testing.T, handler http.Handler) *Transport {
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	tr, err := New(config.RemoteConfig{
		BaseURL:  ts.URL + "/physics/server",
		Username: "ncdsphysics",
		Password: "s3cret",
	}, logger)
	require.NoError(t, err)
	return tr
}

func TestRequest_SendsBasicAuthAndRawQuery(t *testing.T) {
	var gotAuth, gotPath, gotQuery string
	tr := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte("PATH FILEID\n"))
	}))

	body, err := tr.Request(context.Background(), "list.php?python", nil)
	require.NoError(t, err)

	expected := "Basic " + base64.StdEncoding.EncodeToString([]byte("ncdsphysics:s3cret"))
	assert.Equal(t, expected, gotAuth)
	assert.Equal(t, "/physics/server/list.php", gotPath)
	assert.Equal(t, "python", gotQuery)
	assert.Equal(t, "PATH FILEID\n", string(body))
}

func TestRequest_QueryParams(t *testing.T) {
	var gotFileID string
	tr := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFileID = r.URL.Query().Get("fileid")
		_, _ = w.Write([]byte{0x00, 0xff, 0x10})
	}))

	body, err := tr.Request(context.Background(), "do_download.php", url.Values{"fileid": {"42"}})
	require.NoError(t, err)
	assert.Equal(t, "42", gotFileID)
	assert.Equal(t, []byte{0x00, 0xff, 0x10}, body)
}

func TestRequest_NonSuccessStatus(t *testing.T) {
	tr := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusUnauthorized)
	}))

	_, err := tr.Request(context.Background(), "list.php?python", nil)
	require.Error(t, err)

	var terr *models.TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, http.StatusUnauthorized, terr.StatusCode)
	assert.Contains(t, string(terr.Body), "denied")
}

func TestRequest_ConnectionFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	base := ts.URL
	ts.Close()

	tr, err := New(config.RemoteConfig{BaseURL: base}, nil)
	require.NoError(t, err)

	_, err = tr.Request(context.Background(), "list.php?python", nil)
	var terr *models.TransportError
	require.True(t, errors.As(err, &terr))
	assert.Zero(t, terr.StatusCode)
	assert.Error(t, terr.Err)
}

func TestRequest_NoRetry(t *testing.T) {
	calls := 0
	tr := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := tr.Request(context.Background(), "do_delete.php", url.Values{"fileid": {"1"}})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestMultipartUpload(t *testing.T) {
	var (
		gotAuth   string
		gotOrder  []string
		gotPath   string
		gotFile   string
		gotName   string
		gotSubmit []string
	)
	tr := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))

		mr, err := r.MultipartReader()
		if !assert.NoError(t, err) {
			return
		}
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if !assert.NoError(t, err) {
				return
			}
			data, _ := io.ReadAll(part)
			gotOrder = append(gotOrder, part.FormName())
			switch part.FormName() {
			case "path":
				gotPath = string(data)
			case "upload_file":
				gotFile = string(data)
				gotName = part.FileName()
			case "submit":
				gotSubmit = append(gotSubmit, string(data))
			}
		}
		_, _ = w.Write([]byte("Path: @a@b <br />"))
	}))

	body, err := tr.MultipartUpload(context.Background(), "do_upload.php", []FormField{
		{Name: "path", Value: "/a/b"},
		{Name: "upload_file", FileName: "b.txt", File: strings.NewReader("payload")},
		{Name: "submit", Value: ""},
	})
	require.NoError(t, err)

	assert.Equal(t, "Path: @a@b <br />", string(body))
	assert.True(t, strings.HasPrefix(gotAuth, "Basic "))
	assert.Equal(t, []string{"path", "upload_file", "submit"}, gotOrder)
	assert.Equal(t, "/a/b", gotPath)
	assert.Equal(t, "payload", gotFile)
	assert.Equal(t, "b.txt", gotName)
	assert.Equal(t, []string{""}, gotSubmit)
}

func TestMultipartUpload_FileReadError(t *testing.T) {
	hits := 0
	tr := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))

	readErr := errors.New("read failed")
	_, err := tr.MultipartUpload(context.Background(), "do_upload.php", []FormField{
		{Name: "path", Value: "/a"},
		{Name: "upload_file", FileName: "a.txt", File: iotest.ErrReader(readErr)},
		{Name: "submit", Value: ""},
	})

	var ioErr *models.LocalIOError
	require.True(t, errors.As(err, &ioErr))
	assert.ErrorIs(t, err, readErr)
	assert.Zero(t, hits)
}

func TestNew_InvalidBaseURL(t *testing.T) {
	_, err := New(config.RemoteConfig{BaseURL: "not a url"}, nil)
	assert.Error(t, err)
}
