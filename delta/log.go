package delta

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/parquet-go/parquet-go"

	"github.com/delta-incubator/riverbank/metrics"
)

const logDir = "_delta_log"

// LogOpener materializes snapshots by replaying a table's transaction log:
// the newest checkpoint (if any) followed by every later JSON commit.
type LogOpener struct {
	s3     *s3.Client
	logger *slog.Logger
}

// NewLogOpener creates a LogOpener. s3Client may be nil when only local
// table locations are served.
func NewLogOpener(s3Client *s3.Client, logger *slog.Logger) *LogOpener {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogOpener{
		s3:     s3Client,
		logger: logger.With("component", "delta"),
	}
}

// Open replays the table's log and returns its current snapshot.
func (o *LogOpener) Open(ctx context.Context, location string) (*Snapshot, error) {
	start := time.Now()
	snap, err := o.open(ctx, location)
	metrics.SnapshotOpenDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SnapshotOpenFailures.Inc()
		return nil, &OpenError{Location: location, Err: err}
	}
	o.logger.Debug("table opened",
		"location", location,
		"version", snap.Version,
		"files", len(snap.Files),
		"elapsed", time.Since(start),
	)
	return snap, nil
}

// replay accumulates log actions into snapshot state. Files are kept in
// first-seen order, matching the order the log added them. seen tracks
// every path ever added so a remove-then-re-add keeps a single order slot.
type replay struct {
	version   int64
	protocol  int
	metadata  *Metadata
	files     map[string]File
	fileOrder []string
	seen      map[string]bool
}

func (o *LogOpener) open(ctx context.Context, location string) (*Snapshot, error) {
	store, err := o.storeFor(location)
	if err != nil {
		return nil, err
	}

	r := &replay{version: -1, files: make(map[string]File), seen: make(map[string]bool)}

	fromVersion := int64(0)
	if cp, err := o.readLastCheckpoint(ctx, store); err != nil {
		return nil, err
	} else if cp != nil {
		if err := o.applyCheckpoint(ctx, store, cp, r); err != nil {
			return nil, err
		}
		r.version = cp.Version
		fromVersion = cp.Version + 1
	}

	keys, err := store.List(ctx, logDir)
	if err != nil {
		return nil, fmt.Errorf("list log: %w", err)
	}
	for _, key := range keys {
		version, ok := commitVersion(key)
		if !ok || version < fromVersion {
			continue
		}
		data, err := store.Read(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read commit %s: %w", key, err)
		}
		if err := applyCommit(data, r); err != nil {
			return nil, fmt.Errorf("replay commit %s: %w", key, err)
		}
		if version > r.version {
			r.version = version
		}
	}

	if r.version < 0 {
		return nil, fmt.Errorf("no delta log found under %s", location)
	}
	if r.metadata == nil {
		return nil, fmt.Errorf("log has no metaData action")
	}

	snap := &Snapshot{
		Version:          r.version,
		MinReaderVersion: r.protocol,
		Metadata:         *r.metadata,
	}
	for _, path := range r.fileOrder {
		if f, ok := r.files[path]; ok {
			snap.Files = append(snap.Files, f)
		}
	}
	return snap, nil
}

// commitVersion parses the version out of a "%020d.json" log entry name.
func commitVersion(key string) (int64, bool) {
	name := key[strings.LastIndex(key, "/")+1:]
	base, ok := strings.CutSuffix(name, ".json")
	if !ok || len(base) != 20 {
		return 0, false
	}
	version, err := strconv.ParseInt(base, 10, 64)
	if err != nil {
		return 0, false
	}
	return version, true
}

// action is one line of a JSON commit. Exactly one field is set per line;
// the rest stay nil. The same shape describes checkpoint rows, where every
// action occupies one parquet row.
type action struct {
	Protocol *protocolAction `json:"protocol,omitempty" parquet:"protocol,optional"`
	MetaData *metadataAction `json:"metaData,omitempty" parquet:"metaData,optional"`
	Add      *addAction      `json:"add,omitempty" parquet:"add,optional"`
	Remove   *removeAction   `json:"remove,omitempty" parquet:"remove,optional"`
}

type protocolAction struct {
	MinReaderVersion int `json:"minReaderVersion" parquet:"minReaderVersion,optional"`
}

type metadataAction struct {
	ID               string   `json:"id" parquet:"id,optional"`
	Format           Format   `json:"format" parquet:"format,optional"`
	SchemaString     string   `json:"schemaString" parquet:"schemaString,optional"`
	PartitionColumns []string `json:"partitionColumns" parquet:"partitionColumns,optional"`
}

type addAction struct {
	Path            string            `json:"path" parquet:"path,optional"`
	PartitionValues map[string]string `json:"partitionValues" parquet:"partitionValues,optional"`
	Size            int64             `json:"size" parquet:"size,optional"`
	Stats           string            `json:"stats,omitempty" parquet:"stats,optional"`
}

type removeAction struct {
	Path string `json:"path" parquet:"path,optional"`
}

func applyCommit(data []byte, r *replay) error {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var act action
		if err := json.Unmarshal(line, &act); err != nil {
			return fmt.Errorf("parse action: %w", err)
		}
		apply(&act, r)
	}
	return scanner.Err()
}

func apply(act *action, r *replay) {
	switch {
	case act.Protocol != nil:
		r.protocol = act.Protocol.MinReaderVersion
	case act.MetaData != nil:
		r.metadata = &Metadata{
			ID:               act.MetaData.ID,
			Format:           act.MetaData.Format,
			SchemaString:     act.MetaData.SchemaString,
			PartitionColumns: act.MetaData.PartitionColumns,
		}
	case act.Add != nil:
		if !r.seen[act.Add.Path] {
			r.seen[act.Add.Path] = true
			r.fileOrder = append(r.fileOrder, act.Add.Path)
		}
		r.files[act.Add.Path] = File{
			Path:            act.Add.Path,
			PartitionValues: act.Add.PartitionValues,
			Size:            act.Add.Size,
			Stats:           act.Add.Stats,
		}
	case act.Remove != nil:
		delete(r.files, act.Remove.Path)
	}
}

// lastCheckpoint is the _delta_log/_last_checkpoint pointer file.
type lastCheckpoint struct {
	Version int64 `json:"version"`
	Size    int64 `json:"size"`
	Parts   int   `json:"parts,omitempty"`
}

func (o *LogOpener) readLastCheckpoint(ctx context.Context, store objectStore) (*lastCheckpoint, error) {
	data, err := store.Read(ctx, logDir+"/_last_checkpoint")
	if errors.Is(err, errObjectNotFound) {
		// Absent pointer file means no checkpoint; replay from version 0.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read _last_checkpoint: %w", err)
	}
	var cp lastCheckpoint
	if err := json.Unmarshal(bytes.TrimSpace(data), &cp); err != nil {
		return nil, fmt.Errorf("parse _last_checkpoint: %w", err)
	}
	return &cp, nil
}

func (o *LogOpener) applyCheckpoint(ctx context.Context, store objectStore, cp *lastCheckpoint, r *replay) error {
	for _, key := range checkpointKeys(cp) {
		data, err := store.Read(ctx, key)
		if err != nil {
			return fmt.Errorf("read checkpoint %s: %w", key, err)
		}
		rows, err := parquet.Read[action](bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return fmt.Errorf("parse checkpoint %s: %w", key, err)
		}
		for i := range rows {
			apply(&rows[i], r)
		}
	}
	return nil
}

func checkpointKeys(cp *lastCheckpoint) []string {
	if cp.Parts <= 1 {
		return []string{fmt.Sprintf("%s/%020d.checkpoint.parquet", logDir, cp.Version)}
	}
	keys := make([]string, 0, cp.Parts)
	for part := 1; part <= cp.Parts; part++ {
		keys = append(keys, fmt.Sprintf("%s/%020d.checkpoint.%010d.%010d.parquet", logDir, cp.Version, part, cp.Parts))
	}
	return keys
}
