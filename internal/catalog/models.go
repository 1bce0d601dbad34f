package catalog

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a browser record does not exist.
var ErrNotFound = errors.New("catalog record not found")

// Browser is an installed browser.
type Browser struct {
	ID             string    `json:"id"`
	BrowserType    string    `json:"browser_type"`
	Version        string    `json:"version"`
	Platform       string    `json:"platform"`
	InstallPath    string    `json:"install_path"`
	ExecutablePath string    `json:"executable_path"`
	DownloadDate   time.Time `json:"download_date"`
	FileSize       int64     `json:"file_size"`
	IsRunning      bool      `json:"is_running"`
	CreatedAt      time.Time `json:"created_at"`
}

// TaskRecord is the persisted view of a download task.
type TaskRecord struct {
	ID              string    `json:"id"`
	BrowserID       string    `json:"browser_id,omitempty"`
	BrowserType     string    `json:"browser_type"`
	Version         string    `json:"version"`
	Platform        string    `json:"platform"`
	Status          string    `json:"status"`
	Progress        float64   `json:"progress"`
	DownloadedBytes int64     `json:"downloaded_bytes"`
	TotalBytes      int64     `json:"total_bytes"`
	ETASeconds      *int64    `json:"estimated_time_remaining,omitempty"`
	RetryCount      int       `json:"retry_count"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	InstallPath     string    `json:"install_path,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Stats summarizes catalog contents.
type Stats struct {
	Browsers       int            `json:"browsers"`
	InstalledBytes int64          `json:"installed_bytes"`
	Tasks          map[string]int `json:"tasks"`
}

// DatabaseHealth reports diagnostic information about the database file.
type DatabaseHealth struct {
	DBPath         string `json:"db_path"`
	DatabaseExists bool   `json:"database_exists"`
	SchemaVersion  int    `json:"schema_version"`
	IntegrityCheck string `json:"integrity_check"`
	SizeBytes      int64  `json:"size_bytes"`
}
