package delta

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func writeCommit(t *testing.T, dir string, version int64, lines ...string) {
	t.Helper()
	path := filepath.Join(dir, "_delta_log", fmt.Sprintf("%020d.json", version))
	body := ""
	for _, line := range lines {
		body += line + "\n"
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write commit %d: %v", version, err)
	}
}

func newTableDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "_delta_log"), 0o755); err != nil {
		t.Fatalf("mkdir log: %v", err)
	}
	return dir
}

const (
	protocolLine = `{"protocol":{"minReaderVersion":1,"minWriterVersion":2}}`
	metadataLine = `{"metaData":{"id":"aa11","format":{"provider":"parquet","options":{}},"schemaString":"{\"type\":\"struct\",\"fields\":[]}","partitionColumns":["date"]}}`
)

func TestOpenReplaysLog(t *testing.T) {
	dir := newTableDir(t)
	writeCommit(t, dir, 0,
		protocolLine,
		metadataLine,
		`{"add":{"path":"date=2024-01-01/part-00000-aaaabbbb-cccc-dddd-eeee-ffff00001111-c000.snappy.parquet","partitionValues":{"date":"2024-01-01"},"size":1024,"dataChange":true}}`,
	)
	writeCommit(t, dir, 1,
		`{"add":{"path":"f2.parquet","partitionValues":{},"size":2048,"stats":"{\"numRecords\":7}","dataChange":true}}`,
	)

	snap, err := NewLogOpener(nil, nil).Open(context.Background(), dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if snap.Version != 1 {
		t.Fatalf("version = %d, want 1", snap.Version)
	}
	if snap.MinReaderVersion != 1 {
		t.Fatalf("minReaderVersion = %d, want 1", snap.MinReaderVersion)
	}
	if snap.Metadata.ID != "aa11" {
		t.Fatalf("metadata id = %q", snap.Metadata.ID)
	}
	if snap.Metadata.Format.Provider != "parquet" {
		t.Fatalf("format provider = %q", snap.Metadata.Format.Provider)
	}
	if len(snap.Metadata.PartitionColumns) != 1 || snap.Metadata.PartitionColumns[0] != "date" {
		t.Fatalf("partition columns = %v", snap.Metadata.PartitionColumns)
	}
	if len(snap.Files) != 2 {
		t.Fatalf("files = %d, want 2", len(snap.Files))
	}
	// Manifest order follows log order.
	if snap.Files[1].Path != "f2.parquet" {
		t.Fatalf("file order wrong: %+v", snap.Files)
	}
	if snap.Files[1].Stats != `{"numRecords":7}` {
		t.Fatalf("stats = %q", snap.Files[1].Stats)
	}
	if snap.Files[0].PartitionValues["date"] != "2024-01-01" {
		t.Fatalf("partition values = %v", snap.Files[0].PartitionValues)
	}
}

func TestOpenHonorsRemoves(t *testing.T) {
	dir := newTableDir(t)
	writeCommit(t, dir, 0,
		protocolLine,
		metadataLine,
		`{"add":{"path":"a.parquet","partitionValues":{},"size":1,"dataChange":true}}`,
		`{"add":{"path":"b.parquet","partitionValues":{},"size":2,"dataChange":true}}`,
	)
	writeCommit(t, dir, 1,
		`{"remove":{"path":"a.parquet","deletionTimestamp":1700000000000,"dataChange":true}}`,
	)

	snap, err := NewLogOpener(nil, nil).Open(context.Background(), dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(snap.Files) != 1 || snap.Files[0].Path != "b.parquet" {
		t.Fatalf("removed file still present: %+v", snap.Files)
	}
	if snap.Version != 1 {
		t.Fatalf("version = %d, want 1", snap.Version)
	}
}

func TestOpenReAddAfterRemove(t *testing.T) {
	dir := newTableDir(t)
	writeCommit(t, dir, 0,
		protocolLine,
		metadataLine,
		`{"add":{"path":"a.parquet","partitionValues":{},"size":5,"dataChange":true}}`,
	)
	writeCommit(t, dir, 1,
		`{"remove":{"path":"a.parquet","deletionTimestamp":1700000000000,"dataChange":true}}`,
	)
	writeCommit(t, dir, 2,
		`{"add":{"path":"a.parquet","partitionValues":{},"size":9,"dataChange":true}}`,
	)

	snap, err := NewLogOpener(nil, nil).Open(context.Background(), dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(snap.Files) != 1 {
		t.Fatalf("re-added file duplicated in manifest: %+v", snap.Files)
	}
	if snap.Files[0].Size != 9 {
		t.Fatalf("manifest holds stale entry: %+v", snap.Files[0])
	}
}

func TestOpenMetadataReplacement(t *testing.T) {
	dir := newTableDir(t)
	writeCommit(t, dir, 0, protocolLine, metadataLine)
	writeCommit(t, dir, 1,
		`{"metaData":{"id":"bb22","format":{"provider":"parquet"},"schemaString":"{}","partitionColumns":[]}}`,
	)

	snap, err := NewLogOpener(nil, nil).Open(context.Background(), dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if snap.Metadata.ID != "bb22" {
		t.Fatalf("metadata not replaced: %q", snap.Metadata.ID)
	}
}

func TestOpenMissingTable(t *testing.T) {
	_, err := NewLogOpener(nil, nil).Open(context.Background(), filepath.Join(t.TempDir(), "nope"))
	if err == nil {
		t.Fatal("expected error for missing table")
	}
	var openErr *OpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("error type = %T, want *OpenError", err)
	}
}

func TestOpenEmptyLogDir(t *testing.T) {
	dir := newTableDir(t)
	if _, err := NewLogOpener(nil, nil).Open(context.Background(), dir); err == nil {
		t.Fatal("expected error for empty log")
	}
}

// brokenStore fails every operation, standing in for a store with a
// transient backend outage.
type brokenStore struct{ err error }

func (b *brokenStore) List(context.Context, string) ([]string, error) { return nil, b.err }
func (b *brokenStore) Read(context.Context, string) ([]byte, error)   { return nil, b.err }

func TestReadLastCheckpoint(t *testing.T) {
	ctx := context.Background()
	opener := NewLogOpener(nil, nil)

	// Absent pointer file: no checkpoint, no error.
	cp, err := opener.readLastCheckpoint(ctx, &localStore{root: newTableDir(t)})
	if err != nil {
		t.Fatalf("absent pointer: %v", err)
	}
	if cp != nil {
		t.Fatalf("absent pointer yielded checkpoint: %+v", cp)
	}

	// A transient read failure must propagate, not degrade into a
	// checkpoint-less replay.
	_, err = opener.readLastCheckpoint(ctx, &brokenStore{err: errors.New("connection reset")})
	if err == nil {
		t.Fatal("transient failure swallowed")
	}
}

func TestS3StoreJoin(t *testing.T) {
	rooted := &s3Store{bucket: "b", root: "tables/t1"}
	if got := rooted.join("_delta_log/f.json"); got != "tables/t1/_delta_log/f.json" {
		t.Fatalf("rooted join = %q", got)
	}

	// Tables at the bucket root must not grow a leading slash.
	bare := &s3Store{bucket: "b"}
	if got := bare.join("_delta_log/f.json"); got != "_delta_log/f.json" {
		t.Fatalf("bucket-root join = %q", got)
	}
}

func TestSplitS3URI(t *testing.T) {
	cases := []struct {
		uri, bucket, key string
	}{
		{"s3://bucket/tables/t1", "bucket", "tables/t1"},
		{"s3://bucket/tables/t1/", "bucket", "tables/t1"},
		{"s3://bucket", "bucket", ""},
	}
	for _, tc := range cases {
		bucket, key, err := splitS3URI(tc.uri)
		if err != nil {
			t.Fatalf("splitS3URI(%q): %v", tc.uri, err)
		}
		if bucket != tc.bucket || key != tc.key {
			t.Errorf("splitS3URI(%q) = (%q, %q), want (%q, %q)", tc.uri, bucket, key, tc.bucket, tc.key)
		}
	}
	if _, _, err := splitS3URI("s3://"); err == nil {
		t.Error("splitS3URI(\"s3://\"): expected error")
	}
}

func TestCommitVersion(t *testing.T) {
	cases := []struct {
		key     string
		version int64
		ok      bool
	}{
		{"_delta_log/00000000000000000000.json", 0, true},
		{"_delta_log/00000000000000000042.json", 42, true},
		{"_delta_log/00000000000000000042.checkpoint.parquet", 0, false},
		{"_delta_log/_last_checkpoint", 0, false},
		{"_delta_log/42.json", 0, false},
	}
	for _, tc := range cases {
		version, ok := commitVersion(tc.key)
		if ok != tc.ok || version != tc.version {
			t.Errorf("commitVersion(%q) = (%d, %v), want (%d, %v)", tc.key, version, ok, tc.version, tc.ok)
		}
	}
}
