package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// WriteResultsCSV writes one code,status,details row per result.
func WriteResultsCSV(w io.Writer, results []Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"code", "status", "details"}); err != nil {
		return err
	}
	for _, r := range results {
		details := strings.TrimSpace(whitespaceRun.ReplaceAllString(r.Details, " "))
		if err := cw.Write([]string{r.Code, r.Status, details}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportFileName is shift_results_<timestamp>.csv, matching the browser download name.
func ExportFileName(now time.Time) string {
	return "shift_results_" + now.UTC().Format("2006-01-02-15-04-05") + ".csv"
}

// ExportResults writes results to path, or to a generated name inside dir when path is empty.
func ExportResults(path, dir string, results []Result, now time.Time) (string, error) {
	if len(results) == 0 {
		return "", fmt.Errorf("no results to export")
	}
	if path == "" {
		if dir == "" {
			dir = "."
		}
		path = filepath.Join(dir, ExportFileName(now))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := WriteResultsCSV(f, results); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, f.Close()
}
