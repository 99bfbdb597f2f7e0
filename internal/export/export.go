// Package export writes result sets to CSV, JSON or Parquet, locally or to
// the object store.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/duckmesh/sqlassist/internal/query"
	"github.com/duckmesh/sqlassist/internal/storage"
)

const objectStoreScheme = "s3://"

var ErrNoObjectStore = errors.New("object store is not configured")

type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatParquet Format = "parquet"
)

// FormatFromPath picks the format from the target's extension.
func FormatFromPath(target string) (Format, error) {
	switch strings.ToLower(path.Ext(target)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	case ".parquet":
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("unsupported export format for %q: use .csv, .json or .parquet", target)
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatJSON:
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

func Encode(format Format, result query.Result) ([]byte, error) {
	switch format {
	case FormatCSV:
		return encodeCSV(result)
	case FormatJSON:
		return encodeJSON(result)
	case FormatParquet:
		return encodeParquet(result)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

type Exporter struct {
	// Dir is where relative local targets are written.
	Dir   string
	Store storage.ObjectStore
}

// Export writes result to target and returns where it ended up. Targets
// starting with s3:// are stored as object keys.
func (e *Exporter) Export(ctx context.Context, target string, result query.Result) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", fmt.Errorf("export target is required")
	}
	if len(result.Columns) == 0 {
		return "", fmt.Errorf("result has no columns to export")
	}
	format, err := FormatFromPath(target)
	if err != nil {
		return "", err
	}
	body, err := Encode(format, result)
	if err != nil {
		return "", err
	}

	if strings.HasPrefix(target, objectStoreScheme) {
		if e.Store == nil {
			return "", ErrNoObjectStore
		}
		key := strings.TrimPrefix(target, objectStoreScheme)
		info, err := e.Store.Put(ctx, key, bytes.NewReader(body), int64(len(body)), storage.PutOptions{
			ContentType: format.ContentType(),
			Metadata: map[string]string{
				"sqlassist-format":  string(format),
				"sqlassist-rows":    strconv.Itoa(len(result.Rows)),
				"sqlassist-columns": strings.Join(result.Columns, ","),
			},
		})
		if err != nil {
			return "", fmt.Errorf("upload export: %w", err)
		}
		if info.URI != "" {
			return info.URI, nil
		}
		return objectStoreScheme + info.Key, nil
	}

	localPath := target
	if !filepath.IsAbs(localPath) {
		dir := e.Dir
		if dir == "" {
			dir = "."
		}
		localPath = filepath.Join(dir, localPath)
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}
	if err := os.WriteFile(localPath, body, 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return localPath, nil
}

func encodeCSV(result query.Result) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(result.Columns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(result.Columns))
	for _, row := range result.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) && row[i] != nil {
				record[i] = cellString(row[i])
			}
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

type jsonDocument struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

func encodeJSON(result query.Result) ([]byte, error) {
	rows := make([][]any, 0, len(result.Rows))
	for _, row := range result.Rows {
		out := make([]any, len(row))
		for i, value := range row {
			if raw, ok := value.([]byte); ok {
				value = string(raw)
			}
			out[i] = value
		}
		rows = append(rows, out)
	}
	body, err := json.MarshalIndent(jsonDocument{Columns: result.Columns, Rows: rows}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode json export: %w", err)
	}
	return append(body, '\n'), nil
}

// cellRecord is one cell of the result in long layout, so every result
// shape shares a single parquet schema.
type cellRecord struct {
	Row    int64   `parquet:"row"`
	Column string  `parquet:"column"`
	Value  *string `parquet:"value,optional"`
}

func encodeParquet(result query.Result) ([]byte, error) {
	records := make([]cellRecord, 0, len(result.Rows)*len(result.Columns))
	for rowIndex, row := range result.Rows {
		for colIndex, column := range result.Columns {
			record := cellRecord{Row: int64(rowIndex), Column: column}
			if colIndex < len(row) && row[colIndex] != nil {
				value := cellString(row[colIndex])
				record.Value = &value
			}
			records = append(records, record)
		}
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[cellRecord](buf)
	if _, err := writer.Write(records); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func cellString(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case []byte:
		return string(typed)
	case time.Time:
		return typed.Format(time.RFC3339Nano)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32)
	default:
		return fmt.Sprint(typed)
	}
}
