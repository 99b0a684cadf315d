package storage

import "time"

const ManifestSuffix = ".manifest.json"

// Manifest describes one uploaded export archive.
type Manifest struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	Instance    string    `json:"instance"`
	Scope       string    `json:"scope"`
	SourceDir   string    `json:"source_dir"`
	Compression string    `json:"compression"`
	Encryption  bool      `json:"encryption"`
	CreatedAt   time.Time `json:"created_at"`
	SizeBytes   int64     `json:"size_bytes"`
	FileCount   int       `json:"file_count"`
	ToolVersion string    `json:"tool_version"`
}

func ManifestKey(objectKey string) string {
	return objectKey + ManifestSuffix
}
