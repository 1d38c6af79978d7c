package server

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/delta-incubator/riverbank/delta"
)

// versionHeader carries the snapshot version on every table-scoped
// response.
const versionHeader = "Delta-Table-Version"

// listResponse is the paginated envelope of the list endpoints. The
// pagination token is part of the wire contract but never populated; no
// cursor logic exists.
type listResponse struct {
	Items         []any  `json:"items"`
	NextPageToken string `json:"nextPageToken,omitempty"`
}

func newListResponse() *listResponse {
	return &listResponse{Items: []any{}}
}

// Table-detail responses are a sequence of independent JSON objects, one
// per line: a protocol line, a metadata line, then (for query responses)
// one line per data file in manifest order.

type protocolLine struct {
	Protocol protocolBody `json:"protocol"`
}

type protocolBody struct {
	MinReaderVersion int `json:"minReaderVersion"`
}

type metadataLine struct {
	MetaData metadataBody `json:"metaData"`
}

type metadataBody struct {
	ID               string       `json:"id"`
	Format           delta.Format `json:"format"`
	SchemaString     string       `json:"schemaString"`
	PartitionColumns []string     `json:"partitionColumns"`
}

type fileLine struct {
	File fileBody `json:"file"`
}

type fileBody struct {
	URL             string            `json:"url"`
	ID              string            `json:"id,omitempty"`
	PartitionValues map[string]string `json:"partitionValues"`
	Size            int64             `json:"size"`
	Stats           string            `json:"stats"`
}

// assembleLines serializes the protocol and metadata lines of a snapshot,
// followed by any file lines, newline-separated.
func assembleLines(snap *delta.Snapshot, files []fileLine) ([]byte, error) {
	partitions := snap.Metadata.PartitionColumns
	if partitions == nil {
		partitions = []string{}
	}

	lines := make([]any, 0, 2+len(files))
	lines = append(lines,
		protocolLine{Protocol: protocolBody{MinReaderVersion: snap.MinReaderVersion}},
		metadataLine{MetaData: metadataBody{
			ID:               snap.Metadata.ID,
			Format:           snap.Metadata.Format,
			SchemaString:     snap.Metadata.SchemaString,
			PartitionColumns: partitions,
		}},
	)
	for _, f := range files {
		lines = append(lines, f)
	}

	var buf bytes.Buffer
	for i, line := range lines {
		if i > 0 {
			buf.WriteByte('\n')
		}
		data, err := json.Marshal(line)
		if err != nil {
			return nil, fmt.Errorf("marshal response line: %w", err)
		}
		buf.Write(data)
	}
	return buf.Bytes(), nil
}
