package schema

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/duckmesh/sqlassist/internal/storage"
)

const clinicTOML = `
dialect = "PostgreSQL"
rules = ["Appointments live in visits."]

[[tables]]
name = "visits"
description = "Scheduled visits."

  [[tables.columns]]
  name = "id"
  type = "BIGINT"

  [[tables.columns]]
  name = "patient_name"
  type = "TEXT"
  description = "Who is visiting"
`

func TestDefaultCatalogue(t *testing.T) {
	cat := Default()
	if cat.Dialect != "MySQL" {
		t.Fatalf("Dialect = %q", cat.Dialect)
	}
	if got := cat.TableNames(); len(got) != 1 || got[0] != "patient_personal_details" {
		t.Fatalf("TableNames() = %v", got)
	}
	desc := cat.Describe()
	for _, want := range []string{
		"Table: patient_personal_details",
		"- name (VARCHAR): Patient's full name",
		"- session_type (INT)",
		"- other_field_values (LONGTEXT)",
	} {
		if !strings.Contains(desc, want) {
			t.Fatalf("Describe() missing %q:\n%s", want, desc)
		}
	}
	if len(cat.Rules) == 0 || !strings.Contains(strings.Join(cat.Rules, "\n"), `"names"`) {
		t.Fatalf("Rules = %v", cat.Rules)
	}
}

func TestLoadAndDescribe(t *testing.T) {
	cat, err := Load(strings.NewReader(clinicTOML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := "SQL dialect: PostgreSQL\n\nTable: visits\nScheduled visits.\n- id (BIGINT)\n- patient_name (TEXT): Who is visiting"
	if got := cat.Describe(); got != want {
		t.Fatalf("Describe() = %q, want %q", got, want)
	}
}

func TestLoadRejectsInvalidCatalogues(t *testing.T) {
	tests := map[string]string{
		"no tables":      `dialect = "MySQL"`,
		"unnamed table":  "[[tables]]\n[[tables.columns]]\nname = \"id\"\n",
		"no columns":     "[[tables]]\nname = \"t\"\n",
		"unnamed column": "[[tables]]\nname = \"t\"\n[[tables.columns]]\ntype = \"INT\"\n",
		"bad toml":       "[[tables",
	}
	for name, doc := range tests {
		if _, err := Load(strings.NewReader(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestResolvePrefersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.toml")
	if err := os.WriteFile(path, []byte(clinicTOML), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	store := &fakeStore{objects: map[string]string{"schemas/a.toml": clinicTOML}}
	cat, source, err := Resolve(context.Background(), Source{File: path, ObjectKey: "schemas/a.toml", Store: store})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if source != path || cat.Tables[0].Name != "visits" {
		t.Fatalf("Resolve() = %v from %q", cat.TableNames(), source)
	}
	if store.gets != 0 {
		t.Fatalf("object store should not be consulted, gets=%d", store.gets)
	}
}

func TestResolveFromObjectStore(t *testing.T) {
	store := &fakeStore{objects: map[string]string{"schemas/a.toml": clinicTOML}}
	cat, source, err := Resolve(context.Background(), Source{ObjectKey: "schemas/a.toml", Store: store})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if source != "schemas/a.toml" || cat.Dialect != "PostgreSQL" {
		t.Fatalf("Resolve() = %+v from %q", cat, source)
	}
}

func TestLoadObjectErrors(t *testing.T) {
	if _, err := LoadObject(context.Background(), nil, "k"); err == nil {
		t.Fatal("expected error without a store")
	}
	store := &fakeStore{objects: map[string]string{}}
	if _, err := LoadObject(context.Background(), store, "missing.toml"); err == nil {
		t.Fatal("expected error for missing object")
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

type fakeStore struct {
	objects map[string]string
	gets    int
}

func (f *fakeStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ storage.PutOptions) (storage.ObjectInfo, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	f.objects[key] = string(raw)
	return storage.ObjectInfo{Key: key, Size: int64(len(raw))}, nil
}

func (f *fakeStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	f.gets++
	body, ok := f.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(strings.NewReader(body)), nil
}
