// Package sandbox serves a local stand-in for the NCDS gateway, implementing
// the list, upload, download and delete endpoints the client talks to.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/denysvitali/ncds-go/internal/models"
	"github.com/denysvitali/ncds-go/pkg/config"
)

// Server represents the sandbox HTTP server
type Server struct {
	config    *config.Config
	logger    *logrus.Logger
	store     *Store
	engine    *gin.Engine
	server    *http.Server
	startTime time.Time
}

// New creates a new sandbox server instance
func New(cfg *config.Config, logger *logrus.Logger) (*Server, error) {
	store, err := NewStore(cfg.Sandbox.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	if logger.Level == logrus.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(ginLogger(logger))

	if cfg.Telemetry.Enabled {
		engine.Use(otelgin.Middleware("ncds-sandbox"))
	}

	engine.Use(gin.BasicAuth(gin.Accounts{
		cfg.Sandbox.Username: cfg.Sandbox.Password,
	}))

	server := &Server{
		config:    cfg,
		logger:    logger,
		store:     store,
		engine:    engine,
		startTime: time.Now(),
	}
	server.setupRoutes()

	return server, nil
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Sandbox.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting sandbox gateway on port %d (data in %s)", s.config.Sandbox.Port, s.store.dataDir)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Engine returns the gin engine for testing purposes
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Store exposes the backing store
func (s *Server) Store() *Store {
	return s.store
}

func (s *Server) setupRoutes() {
	s.engine.GET("/list.php", s.handleList)
	s.engine.POST("/do_upload.php", s.handleUpload)
	s.engine.GET("/do_download.php", s.handleDownload)
	s.engine.GET("/do_delete.php", s.handleDelete)
	s.engine.GET("/server_info", s.handleServerInfo)
}

func (s *Server) handleList(c *gin.Context) {
	c.String(http.StatusOK, s.store.Listing())
}

func (s *Server) handleUpload(c *gin.Context) {
	path := c.PostForm("path")
	if err := validateUploadPath(path); err != nil {
		c.String(http.StatusBadRequest, "%s<br />", err.Error())
		return
	}

	header, err := c.FormFile("upload_file")
	if err != nil {
		c.String(http.StatusBadRequest, "Missing upload_file: %v<br />", err)
		return
	}

	src, err := header.Open()
	if err != nil {
		c.String(http.StatusInternalServerError, "Cannot read upload: %v<br />", err)
		return
	}
	defer src.Close()

	id, err := s.store.Save(path, src)
	if err != nil {
		s.logger.Errorf("Failed to store %s: %v", path, err)
		c.String(http.StatusInternalServerError, "Cannot store file: %v<br />", err)
		return
	}

	s.logger.WithFields(logrus.Fields{"path": path, "file_id": id, "size": header.Size}).Info("Stored upload")
	c.String(http.StatusOK, uploadReply(path, id))
}

func (s *Server) handleDownload(c *gin.Context) {
	id, ok := fileIDParam(c)
	if !ok {
		return
	}

	payload, found := s.store.PayloadPath(id)
	if !found {
		c.String(http.StatusNotFound, "No such file id %d<br />", id)
		return
	}
	c.Header("Content-Type", "application/octet-stream")
	c.File(payload)
}

func (s *Server) handleDelete(c *gin.Context) {
	id, ok := fileIDParam(c)
	if !ok {
		return
	}

	entry, found, err := s.store.Delete(id)
	if !found {
		c.String(http.StatusNotFound, "No such file id %d<br />", id)
		return
	}
	if err != nil {
		s.logger.Warnf("Failed to remove payload of file %d: %v", id, err)
	}

	s.logger.WithFields(logrus.Fields{"path": entry.Path, "file_id": id}).Info("Deleted file")
	c.String(http.StatusOK, deleteReply(entry))
}

func (s *Server) handleServerInfo(c *gin.Context) {
	info := models.ServerInfo{
		Uptime:    time.Since(s.startTime).Seconds(),
		FileCount: len(s.store.Entries()),
		DataDir:   s.store.dataDir,
		Stats:     s.systemStats(),
	}
	c.JSON(http.StatusOK, info)
}

func fileIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Query("fileid"), 10, 64)
	if err != nil || id <= 0 {
		c.String(http.StatusBadRequest, "Invalid fileid %q<br />", c.Query("fileid"))
		return 0, false
	}
	return id, true
}

func validateUploadPath(path string) error {
	if path == "" {
		return errors.New("path is required")
	}
	if strings.IndexFunc(path, unicode.IsSpace) >= 0 {
		return errors.New("path cannot contain whitespace")
	}
	return models.UploadTarget{RemotePath: path}.Validate()
}

// uploadReply mirrors the gateway's confirmation page. Slashes in the path
// are sent as "@".
func uploadReply(path string, id int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Path: %s <br />", strings.ReplaceAll(path, "/", "@"))
	fmt.Fprintf(&b, "File ID: <br />%d<br />", id)
	b.WriteString("Saved to DB <br />")
	return b.String()
}

func deleteReply(entry models.FileEntry) string {
	return fmt.Sprintf("Deleted: %s<br />File ID: %d<br />", entry.Path, entry.ID)
}

func ginLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"status":  c.Writer.Status(),
			"method":  c.Request.Method,
			"path":    path,
			"ip":      c.ClientIP(),
			"latency": time.Since(start),
		})
		if raw != "" {
			entry = entry.WithField("query", raw)
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			entry.Error("Sandbox request")
		case status >= 400:
			entry.Warn("Sandbox request")
		default:
			entry.Debug("Sandbox request")
		}
	}
}
