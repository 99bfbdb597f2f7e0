package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/duckmesh/sqlassist/internal/query"
	"github.com/duckmesh/sqlassist/internal/storage"
)

var patients = query.Result{
	Columns:     []string{"name", "age", "note"},
	Rows:        [][]any{{"Asha Rao", int64(34), nil}, {[]byte("Ben, Jr."), int64(61), "follow-up"}},
	ReturnsRows: true,
}

func TestFormatFromPath(t *testing.T) {
	for target, want := range map[string]Format{"a.csv": FormatCSV, "dir/B.JSON": FormatJSON, "s3://x/y.parquet": FormatParquet} {
		got, err := FormatFromPath(target)
		if err != nil || got != want {
			t.Fatalf("FormatFromPath(%q) = %q, %v", target, got, err)
		}
	}
	if _, err := FormatFromPath("result.xlsx"); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestEncodeCSV(t *testing.T) {
	body, err := Encode(FormatCSV, patients)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want := "name,age,note\nAsha Rao,34,\n\"Ben, Jr.\",61,follow-up\n"
	if string(body) != want {
		t.Fatalf("csv = %q, want %q", body, want)
	}
}

func TestEncodeJSON(t *testing.T) {
	body, err := Encode(FormatJSON, patients)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	var doc struct {
		Columns []string `json:"columns"`
		Rows    [][]any  `json:"rows"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if len(doc.Columns) != 3 || len(doc.Rows) != 2 {
		t.Fatalf("doc = %+v", doc)
	}
	if doc.Rows[1][0] != "Ben, Jr." || doc.Rows[0][2] != nil {
		t.Fatalf("rows = %#v", doc.Rows)
	}
}

func TestEncodeParquetUsesLongLayout(t *testing.T) {
	body, err := Encode(FormatParquet, patients)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	records, err := parquet.Read[cellRecord](bytes.NewReader(body), int64(len(body)))
	if err != nil {
		t.Fatalf("parquet.Read() error = %v", err)
	}
	if len(records) != 6 {
		t.Fatalf("records = %d, want 6", len(records))
	}
	if records[0].Column != "name" || records[0].Value == nil || *records[0].Value != "Asha Rao" {
		t.Fatalf("first record = %+v", records[0])
	}
	if records[2].Column != "note" || records[2].Value != nil {
		t.Fatalf("null cell = %+v", records[2])
	}
	if records[4].Row != 1 || *records[4].Value != "61" {
		t.Fatalf("record 4 = %+v", records[4])
	}
}

func TestExportWritesLocalFile(t *testing.T) {
	dir := t.TempDir()
	exporter := &Exporter{Dir: dir}
	location, err := exporter.Export(context.Background(), "exports/patients.csv", patients)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if location != filepath.Join(dir, "exports", "patients.csv") {
		t.Fatalf("location = %q", location)
	}
	body, err := os.ReadFile(location)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.HasPrefix(string(body), "name,age,note\n") {
		t.Fatalf("body = %q", body)
	}
}

func TestExportUploadsToObjectStore(t *testing.T) {
	store := &memoryStore{objects: map[string][]byte{}}
	exporter := &Exporter{Store: store}
	location, err := exporter.Export(context.Background(), "s3://exports/patients.json", patients)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if location != "s3://exports/patients.json" {
		t.Fatalf("location = %q", location)
	}
	if store.contentType != "application/json" || len(store.objects["exports/patients.json"]) == 0 {
		t.Fatalf("store = %+v", store)
	}
	if store.metadata["sqlassist-format"] != "json" || store.metadata["sqlassist-rows"] != strconv.Itoa(len(patients.Rows)) {
		t.Fatalf("metadata = %v", store.metadata)
	}
	if store.metadata["sqlassist-columns"] != strings.Join(patients.Columns, ",") {
		t.Fatalf("metadata = %v", store.metadata)
	}
}

func TestExportReportsStoreURI(t *testing.T) {
	store := &memoryStore{objects: map[string][]byte{}, uriPrefix: "s3://bucket-a/dev/"}
	exporter := &Exporter{Store: store}
	location, err := exporter.Export(context.Background(), "s3://exports/patients.csv", patients)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if location != "s3://bucket-a/dev/exports/patients.csv" {
		t.Fatalf("location = %q", location)
	}
}

func TestExportErrors(t *testing.T) {
	exporter := &Exporter{Dir: t.TempDir()}
	if _, err := exporter.Export(context.Background(), "s3://a.csv", patients); !errors.Is(err, ErrNoObjectStore) {
		t.Fatalf("Export() error = %v, want ErrNoObjectStore", err)
	}
	if _, err := exporter.Export(context.Background(), "out.csv", query.Result{}); err == nil {
		t.Fatal("expected error for empty result")
	}
	if _, err := exporter.Export(context.Background(), " ", patients); err == nil {
		t.Fatal("expected error for blank target")
	}
}

type memoryStore struct {
	objects     map[string][]byte
	contentType string
	metadata    map[string]string
	uriPrefix   string
}

func (m *memoryStore) Put(_ context.Context, key string, body io.Reader, _ int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	m.objects[key] = raw
	m.contentType = opts.ContentType
	m.metadata = opts.Metadata
	info := storage.ObjectInfo{Key: key, Size: int64(len(raw))}
	if m.uriPrefix != "" {
		info.URI = m.uriPrefix + key
	}
	return info, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}
