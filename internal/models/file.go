package models

import "fmt"

// MaxRemotePathLength is the longest remote path the gateway accepts, in bytes.
const MaxRemotePathLength = 70

// FileEntry represents one row of the remote listing
type FileEntry struct {
	Path string `json:"path"`
	ID   int64  `json:"id"`
}

// Credentials are sent as HTTP Basic-Auth with every request
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"-"`
}

// UploadTarget pairs a local source file with its remote destination
type UploadTarget struct {
	LocalPath  string `json:"local_path"`
	RemotePath string `json:"remote_path"`
}

// Validate enforces the gateway's remote path length limit. The limit is
// counted in bytes, so multi-byte characters use up more of it.
func (u UploadTarget) Validate() error {
	if n := len(u.RemotePath); n > MaxRemotePathLength {
		return &ValidationError{
			Field:  "remote path",
			Value:  u.RemotePath,
			Reason: fmt.Sprintf("cannot be longer than %d characters (got %d bytes)", MaxRemotePathLength, n),
		}
	}
	return nil
}

// ServerInfo is the sandbox /server_info response
type ServerInfo struct {
	Uptime    float64     `json:"uptime"`
	FileCount int         `json:"file_count"`
	DataDir   string      `json:"data_dir"`
	Stats     SystemStats `json:"stats"`
}

// SystemStats holds resource usage of the sandbox process and its data dir
type SystemStats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryRSS     uint64  `json:"memory_rss"`
	MemoryPercent float32 `json:"memory_percent"`
	DiskTotal     uint64  `json:"disk_total"`
	DiskUsed      uint64  `json:"disk_used"`
	DiskFree      uint64  `json:"disk_free"`
	DiskPercent   float64 `json:"disk_percent"`
}
