package signal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"proppilot/internal/types"
)

// ErrStale marks a snapshot whose taken timestamp is older than the
// configured horizon. The runner holds on stale data instead of
// deciding from it.
var ErrStale = errors.New("snapshot is stale")

// Source supplies the latest feature snapshot for a symbol.
type Source interface {
	Snapshot(ctx context.Context, symbol string) (SnapshotResult, error)
}

// SnapshotResult pairs the typed snapshot with the raw document so the
// decision log can retain exactly what the engine saw.
type SnapshotResult struct {
	Snapshot types.MarketSnapshot
	Raw      string
}

// FileSource reads snapshots from the feature-feed drop directory, one
// JSON document per symbol, overwritten in place by the feed.
type FileSource struct {
	dir    string
	maxAge time.Duration
	now    func() time.Time
}

func NewFileSource(dir string, maxAge time.Duration) *FileSource {
	return &FileSource{dir: dir, maxAge: maxAge, now: time.Now}
}

func (s *FileSource) Snapshot(ctx context.Context, symbol string) (SnapshotResult, error) {
	if err := ctx.Err(); err != nil {
		return SnapshotResult{}, err
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	path := filepath.Join(s.dir, symbol+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return SnapshotResult{}, fmt.Errorf("reading snapshot for %s failed: %w", symbol, err)
	}
	snap, err := ParseSnapshot(string(raw))
	if err != nil {
		return SnapshotResult{}, fmt.Errorf("snapshot for %s rejected: %w", symbol, err)
	}
	if snap.Symbol != symbol {
		return SnapshotResult{}, fmt.Errorf("snapshot symbol mismatch: file %s carries %s", path, snap.Symbol)
	}
	if s.maxAge > 0 && s.now().Sub(snap.Taken) > s.maxAge {
		return SnapshotResult{}, fmt.Errorf("%w: %s taken %s", ErrStale, symbol, snap.Taken.Format(time.RFC3339))
	}
	return SnapshotResult{Snapshot: snap, Raw: string(raw)}, nil
}
