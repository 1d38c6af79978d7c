package signing

import "testing"

func TestFileID(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{
			path: "s3://delta-riverbank/COVID-19_NYT/part-00006-d0ec7722-b30c-4e1c-92cd-b4fe8d3bb954-c000.snappy.parquet",
			want: "d0ec7722-b30c-4e1c-92cd-b4fe8d3bb954",
		},
		{
			path: "part-00000-aaaabbbb-cccc-dddd-eeee-ffff00001111-c000.snappy.parquet",
			want: "aaaabbbb-cccc-dddd-eeee-ffff00001111",
		},
		{
			// Only the final segment is inspected.
			path: "date=2024-01-01/part-00001-d0ec7722-b30c-4e1c-92cd-b4fe8d3bb954-c000.gz.parquet",
			want: "d0ec7722-b30c-4e1c-92cd-b4fe8d3bb954",
		},
		{path: "part-123-not-a-conforming-name.parquet", want: ""},
		{path: "data.parquet", want: ""},
		{path: "part-00006-short-c000.snappy.parquet", want: ""},
		{path: "", want: ""},
	}

	for _, tc := range cases {
		if got := FileID(tc.path); got != tc.want {
			t.Errorf("FileID(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestParseS3URI(t *testing.T) {
	bucket, key, err := ParseS3URI("s3://my-bucket/some/deep/key.parquet")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if bucket != "my-bucket" || key != "some/deep/key.parquet" {
		t.Fatalf("got (%q, %q)", bucket, key)
	}

	for _, bad := range []string{"http://bucket/key", "s3://", "s3://bucket-only"} {
		if _, _, err := ParseS3URI(bad); err == nil {
			t.Errorf("ParseS3URI(%q): expected error", bad)
		}
	}
}

func TestResolveFileURI(t *testing.T) {
	cases := []struct {
		root, path, want string
	}{
		{"s3://bucket/table", "part-1.parquet", "s3://bucket/table/part-1.parquet"},
		{"s3://bucket/table/", "part-1.parquet", "s3://bucket/table/part-1.parquet"},
		{"s3://bucket/table", "s3://elsewhere/abs.parquet", "s3://elsewhere/abs.parquet"},
	}
	for _, tc := range cases {
		if got := ResolveFileURI(tc.root, tc.path); got != tc.want {
			t.Errorf("ResolveFileURI(%q, %q) = %q, want %q", tc.root, tc.path, got, tc.want)
		}
	}
}
