package domain

import "time"

// ExtractionMetadata describes the most recent successful extraction. It is
// overwritten on every run.
type ExtractionMetadata struct {
	ExtractionTimestamp time.Time `json:"extraction_timestamp"`
	APILatestUpdate     int64     `json:"api_latest_update"`
	TotalRecords        int64     `json:"total_records"`
	FilesCreated        int       `json:"files_created"`
	FilePattern         string    `json:"file_pattern"`
}
