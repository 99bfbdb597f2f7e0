package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/duckmesh/sqlassist/internal/storage"
)

func TestPutPlacesExportUnderPrefix(t *testing.T) {
	api := &fakeAPI{}
	store := newTestStore(t, "bucket-a", "/sqlassist/prod/", api)

	info, err := store.Put(context.Background(), "/exports/./patients.csv", strings.NewReader("id\n1\n"), 5, storage.PutOptions{
		ContentType: "text/csv",
		Metadata:    map[string]string{"rows": "1"},
	})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if api.putBucket != "bucket-a" || api.putKey != "sqlassist/prod/exports/patients.csv" {
		t.Fatalf("put target = %s/%s", api.putBucket, api.putKey)
	}
	if api.putOpts.ContentType != "text/csv" || api.putOpts.Metadata["rows"] != "1" {
		t.Fatalf("put options = %+v", api.putOpts)
	}
	if api.putBody != "id\n1\n" {
		t.Fatalf("put body = %q", api.putBody)
	}
	if info.URI != "s3://bucket-a/sqlassist/prod/exports/patients.csv" {
		t.Fatalf("URI = %q", info.URI)
	}
}

func TestObjectKeyRejectsUnsafeKeys(t *testing.T) {
	store := newTestStore(t, "bucket-a", "", &fakeAPI{})
	for _, key := range []string{"../secrets.txt", "a/../../b", " ", "/", "exports/", `exports\a.csv`, ".."} {
		if _, err := store.Put(context.Background(), key, strings.NewReader("x"), 1, storage.PutOptions{}); err == nil {
			t.Fatalf("expected key validation error for %q", key)
		}
	}
}

func TestURIWithoutPrefix(t *testing.T) {
	store := newTestStore(t, "bucket-a", "", &fakeAPI{})
	uri, err := store.URI("schemas/clinic.toml")
	if err != nil {
		t.Fatalf("URI() error = %v", err)
	}
	if uri != "s3://bucket-a/schemas/clinic.toml" {
		t.Fatalf("URI() = %q", uri)
	}
}

func TestGetWrapsMissingObject(t *testing.T) {
	store := newTestStore(t, "bucket-a", "", &fakeAPI{getErr: storage.ErrObjectNotFound})
	_, err := store.Get(context.Background(), "schemas/missing.toml")
	if !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() error = %v, want ErrObjectNotFound", err)
	}
	if !strings.Contains(err.Error(), "s3://bucket-a/schemas/missing.toml") {
		t.Fatalf("Get() error = %v", err)
	}
}

func TestGetReturnsSchemaDocument(t *testing.T) {
	store := newTestStore(t, "bucket-a", "pre", &fakeAPI{})
	reader, err := store.Get(context.Background(), "schemas/clinic.toml")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer reader.Close()
	body, _ := io.ReadAll(reader)
	if string(body) != "pre/schemas/clinic.toml" {
		t.Fatalf("body = %q", body)
	}
}

func TestEnsureBucket(t *testing.T) {
	missing := &fakeAPI{}
	if err := newTestStore(t, "bucket-a", "", missing).ensureBucket(context.Background(), "us-east-1"); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
	if missing.madeRegion != "us-east-1" {
		t.Fatalf("MakeBucket region = %q", missing.madeRegion)
	}

	present := &fakeAPI{bucketExists: true}
	if err := newTestStore(t, "bucket-a", "", present).ensureBucket(context.Background(), "us-east-1"); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
	if present.madeRegion != "" {
		t.Fatal("MakeBucket should not be called for an existing bucket")
	}
}

func TestNewWithClientValidates(t *testing.T) {
	if _, err := NewWithClient("bucket", "", nil); err == nil {
		t.Fatal("expected error for nil client")
	}
	if _, err := NewWithClient(" ", "", &fakeAPI{}); err == nil {
		t.Fatal("expected error for empty bucket")
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		raw        string
		useSSL     bool
		wantHost   string
		wantSecure bool
		wantErr    bool
	}{
		{raw: "https://minio.example.com", wantHost: "minio.example.com", wantSecure: true},
		{raw: "http://minio:9000", useSSL: true, wantHost: "minio:9000", wantSecure: true},
		{raw: "minio:9000", wantHost: "minio:9000"},
		{raw: "ftp://minio:9000", wantErr: true},
		{raw: "https://", wantErr: true},
		{raw: " ", wantErr: true},
	}
	for _, tc := range tests {
		host, secure, err := parseEndpoint(tc.raw, tc.useSSL)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("parseEndpoint(%q) expected error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseEndpoint(%q) error = %v", tc.raw, err)
		}
		if host != tc.wantHost || secure != tc.wantSecure {
			t.Fatalf("parseEndpoint(%q) = %q/%v", tc.raw, host, secure)
		}
	}
}

func newTestStore(t *testing.T, bucket, prefix string, api objectAPI) *Store {
	t.Helper()
	store, err := NewWithClient(bucket, prefix, api)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	return store
}

type fakeAPI struct {
	putBucket    string
	putKey       string
	putBody      string
	putOpts      storage.PutOptions
	bucketExists bool
	madeRegion   string
	getErr       error
}

func (f *fakeAPI) PutObject(_ context.Context, bucket, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	f.putBucket, f.putKey, f.putBody, f.putOpts = bucket, key, string(raw), opts
	return storage.ObjectInfo{Key: key, Size: size, ETag: "etag-1"}, nil
}

func (f *fakeAPI) GetObject(_ context.Context, _, key string) (io.ReadCloser, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return io.NopCloser(strings.NewReader(key)), nil
}

func (f *fakeAPI) BucketExists(context.Context, string) (bool, error) {
	return f.bucketExists, nil
}

func (f *fakeAPI) MakeBucket(_ context.Context, _, region string) error {
	f.madeRegion = region
	return nil
}
