package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// File name prefixes and glob patterns for each stage's output directory.
const (
	RawPrefix          = "aerogeradores_raw_"
	ProcessedPrefix    = "aerogeradores_processed_"
	ConsolidatedPrefix = "aerogeradores_consolidado_"

	RawPattern          = RawPrefix + "*.json"
	ProcessedPattern    = ProcessedPrefix + "*.parquet"
	ConsolidatedPattern = ConsolidatedPrefix + "*.csv"

	MetadataFile = "extraction_metadata.json"

	// RunTimestampLayout tags every file produced by one stage run.
	RunTimestampLayout = "20060102_150405"
)

// RunTimestamp formats t as a run tag.
func RunTimestamp(t time.Time) string {
	return t.Format(RunTimestampLayout)
}

// PageWidth is the zero-padding width for page numbers so that names sort
// lexicographically in page order for any page count.
func PageWidth(pages int) int {
	w := len(strconv.Itoa(pages))
	if w < 4 {
		return 4
	}
	return w
}

// RawFileName names the payload file of a 1-based page.
func RawFileName(runTS string, page, pages int) string {
	return fmt.Sprintf("%s%s_page_%0*d.json", RawPrefix, runTS, PageWidth(pages), page)
}

// ProcessedFileName derives the Parquet name from a raw payload name,
// e.g. aerogeradores_raw_X_page_0001.json -> aerogeradores_processed_X_page_0001.parquet.
func ProcessedFileName(rawName string) string {
	base := strings.TrimSuffix(rawName, ".json")
	return strings.Replace(base, "raw", "processed", 1) + ".parquet"
}

// ConsolidatedFileName names the CSV produced by a consolidation run.
func ConsolidatedFileName(runTS string) string {
	return ConsolidatedPrefix + runTS + ".csv"
}
