// Package export writes normalized tables as spreadsheet snapshots.
package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/Sternrassler/listing-crawler/pkg/logging"
	"github.com/Sternrassler/listing-crawler/pkg/normalize"
)

// DateLayout formats the snapshot date in file names.
const DateLayout = "2006-01-02"

// Config holds exporter configuration.
type Config struct {
	// Dir is the output directory; it is created when missing.
	Dir string

	// Sheet is the worksheet name.
	Sheet string
}

// DefaultConfig writes Sheet1 into the working directory.
func DefaultConfig() Config {
	return Config{Dir: ".", Sheet: "Sheet1"}
}

// Writer writes tables to .xlsx files.
type Writer struct {
	config Config
	logger zerolog.Logger
}

// New creates a writer.
func New(cfg Config) *Writer {
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	if cfg.Sheet == "" {
		cfg.Sheet = "Sheet1"
	}
	return &Writer{config: cfg, logger: logging.NewLogger("export")}
}

// FileName returns "<label><YYYY-MM-DD>.xlsx".
func FileName(label string, date time.Time) string {
	return label + date.Format(DateLayout) + ".xlsx"
}

// Write stores table under Dir and returns the file path. The header row is
// the table's columns. The file is written to a temporary name first and
// renamed into place, so an existing snapshot is never left half-written.
func (w *Writer) Write(table *normalize.Table, label string, date time.Time) (string, error) {
	if table == nil {
		return "", errors.New("nil table")
	}
	if err := os.MkdirAll(w.config.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(w.config.Dir, FileName(label, date))

	f := excelize.NewFile()
	defer f.Close()

	if name := f.GetSheetName(0); name != w.config.Sheet {
		if err := f.SetSheetName(name, w.config.Sheet); err != nil {
			return "", fmt.Errorf("rename sheet: %w", err)
		}
	}

	sw, err := f.NewStreamWriter(w.config.Sheet)
	if err != nil {
		return "", fmt.Errorf("stream writer: %w", err)
	}

	header := make([]any, len(table.Columns))
	for i, c := range table.Columns {
		header[i] = c
	}
	if err := sw.SetRow("A1", header); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}
	for i, row := range table.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return "", err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return "", fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return "", fmt.Errorf("flush sheet: %w", err)
	}

	tmp, err := os.CreateTemp(w.config.Dir, ".export-*.xlsx")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := f.WriteTo(tmp); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close workbook: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("move workbook into place: %w", err)
	}

	w.logger.Info().
		Str("path", path).
		Int("rows", table.Len()).
		Int("columns", len(table.Columns)).
		Msg("Wrote spreadsheet")
	return path, nil
}
