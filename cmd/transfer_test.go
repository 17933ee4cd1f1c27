package cmd

import (
	"bytes"
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denysvitali/ncds-go/internal/models"
	"github.com/denysvitali/ncds-go/pkg/config"
	"github.com/denysvitali/ncds-go/pkg/sandbox"
)

func startSandbox(t *testing.T) string {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	srv, err := sandbox.New(&config.Config{
		Sandbox: config.SandboxConfig{
			DataDir:  t.TempDir(),
			Username: "cli",
			Password: "cli-pw",
		},
	}, quiet)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Engine())
	t.Cleanup(ts.Close)
	return ts.URL
}

func executeCommand(t *testing.T, baseURL string, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(append([]string{
		"--config", filepath.Join(t.TempDir(), "none.yaml"),
		"--base-url", baseURL,
		"--username", "cli",
		"--password", "cli-pw",
		"--log-level", "error",
	}, args...))
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestCLIRoundTrip(t *testing.T) {
	baseURL := startSandbox(t)

	src := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(src, []byte("results"), 0644))

	out, err := executeCommand(t, baseURL, "put", src, "/lab/report.txt")
	require.NoError(t, err)
	assert.Contains(t, out, "Source Path: "+src)
	assert.Contains(t, out, "Path: /lab/report.txt")
	assert.Contains(t, out, separator)

	out, err = executeCommand(t, baseURL, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "/lab/report.txt 1")

	dst := filepath.Join(t.TempDir(), "copy.txt")
	_, err = executeCommand(t, baseURL, "get", "/lab/report.txt", dst)
	require.NoError(t, err)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "results", string(got))

	byID := filepath.Join(t.TempDir(), "by-id.txt")
	_, err = executeCommand(t, baseURL, "get-id", "1", byID)
	require.NoError(t, err)
	assert.FileExists(t, byID)

	out, err = executeCommand(t, baseURL, "delete", "/lab/report.txt")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted: /lab/report.txt")

	_, err = executeCommand(t, baseURL, "delete", "/lab/report.txt")
	var nf *models.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestCLIErrors(t *testing.T) {
	baseURL := startSandbox(t)

	t.Run("wrong argument count", func(t *testing.T) {
		_, err := executeCommand(t, baseURL, "put", "only-one")
		assert.Error(t, err)
	})

	t.Run("remote path too long", func(t *testing.T) {
		src := filepath.Join(t.TempDir(), "f")
		require.NoError(t, os.WriteFile(src, []byte("x"), 0644))

		_, err := executeCommand(t, baseURL, "put", src, "/"+strings.Repeat("p", 80))
		var verr *models.ValidationError
		assert.True(t, errors.As(err, &verr))
	})

	t.Run("invalid file id", func(t *testing.T) {
		_, err := executeCommand(t, baseURL, "get-id", "abc", filepath.Join(t.TempDir(), "x"))
		assert.Error(t, err)
	})
}
