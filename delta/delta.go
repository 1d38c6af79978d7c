// Package delta opens externally stored Delta tables and materializes their
// current snapshot: version, protocol, metadata, and the file manifest.
package delta

import (
	"context"
	"fmt"
)

// Format describes how a table's data files are encoded.
type Format struct {
	Provider string            `json:"provider" parquet:"provider,optional"`
	Options  map[string]string `json:"options,omitempty" parquet:"options,optional"`
}

// Metadata is the table-level metadata carried in a snapshot.
type Metadata struct {
	ID               string
	Format           Format
	SchemaString     string
	PartitionColumns []string
}

// File is one data file of a snapshot. Path is relative to the table root.
type File struct {
	Path            string
	PartitionValues map[string]string
	Size            int64
	Stats           string
}

// Snapshot is the materialized state of a table at a single version.
type Snapshot struct {
	Version          int64
	MinReaderVersion int
	Metadata         Metadata
	Files            []File
}

// Opener turns a table location into its current snapshot. Every call
// re-reads the table; there is no caching across calls.
type Opener interface {
	Open(ctx context.Context, location string) (*Snapshot, error)
}

// OpenError wraps a failure to open a table or replay its log.
type OpenError struct {
	Location string
	Err      error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open table %s: %v", e.Location, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}
