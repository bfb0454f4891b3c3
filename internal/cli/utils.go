// Package cli provides CLI output formatting for Smriti.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/smriti-ai/smriti/internal/models"
)

// SearchOutputFormat is the format for search result output.
type SearchOutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText SearchOutputFormat = "text"
	// OutputCompact is one result per line.
	OutputCompact SearchOutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON SearchOutputFormat = "json"
)

// ParseOutputFormat maps a flag value to a SearchOutputFormat.
func ParseOutputFormat(s string) (SearchOutputFormat, error) {
	switch s {
	case "text", "":
		return OutputText, nil
	case "compact":
		return OutputCompact, nil
	case "json":
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
	}
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format SearchOutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	case OutputCompact:
		writeSearchResultsCompact(w, response)
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d results in %dms (%s)\n", response.Total, response.QueryTime, response.Source)
	if response.FallbackReason != "" {
		fmt.Fprintf(w, "Fallback: %s\n", response.FallbackReason)
	}
	fmt.Fprintln(w)
	for _, result := range response.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", result.Rank, result.Score)
		if result.Page.Title != "" {
			fmt.Fprintf(w, "Title: %s\n", result.Page.Title)
		}
		fmt.Fprintf(w, "URL: %s\n", result.Page.URL)
		fmt.Fprintf(w, "Visited: %s\n", result.Page.Timestamp.Format("2006-01-02 15:04"))
		fmt.Fprintln(w)
	}
}

func writeSearchResultsCompact(w io.Writer, response *models.SearchResponse) {
	for _, result := range response.Results {
		title := result.Page.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(w, "%.4f\t%s\t%s\n", result.Score, Truncate(title, 60), result.Page.URL)
	}
}

// WriteStats writes index stats to w, as JSON when asJSON is set.
func WriteStats(w io.Writer, stats *models.IndexStats, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}
	fmt.Fprintf(w, "state:              %s\n", stats.State)
	fmt.Fprintf(w, "total_pages:        %d\n", stats.TotalPages)
	fmt.Fprintf(w, "valid_embeddings:   %d\n", stats.ValidEmbeddings)
	fmt.Fprintf(w, "invalid_embeddings: %d\n", stats.InvalidEmbeddings)
	fmt.Fprintf(w, "index_size:         %d\n", stats.IndexSize)
	fmt.Fprintf(w, "estimated_memory:   %d bytes\n", stats.EstimatedMemoryBytes)
	if stats.OldestEntry != nil {
		fmt.Fprintf(w, "oldest_entry:       %s\n", stats.OldestEntry.Format("2006-01-02 15:04"))
	}
	if stats.NewestEntry != nil {
		fmt.Fprintf(w, "newest_entry:       %s\n", stats.NewestEntry.Format("2006-01-02 15:04"))
	}
	if stats.Error != "" {
		fmt.Fprintf(w, "error:              %s\n", stats.Error)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "# configuration")
	fmt.Fprintf(w, "dimensions:         %d\n", stats.Config.Dimensions)
	fmt.Fprintf(w, "max_elements:       %d\n", stats.Config.MaxElements)
	fmt.Fprintf(w, "m:                  %d\n", stats.Config.M)
	fmt.Fprintf(w, "ef_construction:    %d\n", stats.Config.EfConstruction)
	fmt.Fprintf(w, "ef_search:          %d\n", stats.Config.EfSearch)
	fmt.Fprintf(w, "result_count:       %d\n", stats.Config.ResultCount)
	fmt.Fprintf(w, "auto_index:         %t\n", stats.Config.AutoIndex)
	return nil
}

// Truncate truncates s to maxLen and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
