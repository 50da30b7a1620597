package store

import (
	"context"
	"fmt"
	"time"

	"github.com/oicur0t/watchlogs/pkg/models"
)

// FilePatch holds the user-editable fields of a file. Nil fields are kept.
type FilePatch struct {
	Enabled *bool
	Color   *string
}

// Commit is the result of reading [From, To) of a file planned against Epoch
type Commit struct {
	Path    string
	Epoch   uint64
	From    int64
	To      int64
	ModTime time.Time
	Records []any
}

// AddFile starts tracking path with readUntil 0
func (s *Store) AddFile(ctx context.Context, path string, modTime time.Time) (models.File, error) {
	var added models.File
	err := s.do(ctx, "add_file", func(cur *Snapshot) (*Snapshot, error) {
		if cur.fileIndex(path) >= 0 {
			return nil, fmt.Errorf("file %s: %w", path, ErrExists)
		}
		next := cur.clone()
		added = models.NewFile(path, modTime)
		added.Epoch = s.nextEpoch()
		next.Files = append(next.Files, added)
		return next, nil
	})
	return added, err
}

// UpdateFile applies a patch to the file's display fields
func (s *Store) UpdateFile(ctx context.Context, path string, patch FilePatch) error {
	return s.do(ctx, "update_file", func(cur *Snapshot) (*Snapshot, error) {
		i := cur.fileIndex(path)
		if i < 0 {
			return nil, fmt.Errorf("file %s: %w", path, ErrUnknownFile)
		}
		next := cur.clone()
		if patch.Enabled != nil {
			next.Files[i].Enabled = *patch.Enabled
		}
		if patch.Color != nil {
			next.Files[i].Color = *patch.Color
		}
		return next, nil
	})
}

// RemoveFile drops the file and all of its logs in one step
func (s *Store) RemoveFile(ctx context.Context, path string) error {
	return s.do(ctx, "remove_file", func(cur *Snapshot) (*Snapshot, error) {
		i := cur.fileIndex(path)
		if i < 0 {
			return nil, fmt.Errorf("file %s: %w", path, ErrUnknownFile)
		}
		next := cur.clone()
		next.Files = append(next.Files[:i], next.Files[i+1:]...)
		purgeFile(next, path)
		return next, nil
	})
}

// ClearFile resets the cursor to 0 and drops the file's logs. Reads planned
// before the clear are discarded on commit.
func (s *Store) ClearFile(ctx context.Context, path string, modTime time.Time) (models.File, error) {
	var cleared models.File
	err := s.do(ctx, "clear_file", func(cur *Snapshot) (*Snapshot, error) {
		i := cur.fileIndex(path)
		if i < 0 {
			return nil, fmt.Errorf("file %s: %w", path, ErrUnknownFile)
		}
		next := cur.clone()
		f := &next.Files[i]
		f.ReadUntil = 0
		if modTime.IsZero() {
			modTime = s.now()
		}
		f.LastModified = modTime
		f.Epoch = s.nextEpoch()
		cleared = *f
		purgeFile(next, path)
		return next, nil
	})
	return cleared, err
}

// CommitRead advances the cursor and merges the records as one mutation. It
// fails with ErrStale when the file was cleared or re-added since the read
// was planned, or when the cursor moved in the meantime.
func (s *Store) CommitRead(ctx context.Context, c Commit) error {
	return s.do(ctx, "commit_read", func(cur *Snapshot) (*Snapshot, error) {
		i := cur.fileIndex(c.Path)
		if i < 0 {
			return nil, fmt.Errorf("file %s: %w", c.Path, ErrStale)
		}
		f := cur.Files[i]
		if f.Epoch != c.Epoch {
			return nil, fmt.Errorf("file %s epoch %d, read planned at %d: %w", c.Path, f.Epoch, c.Epoch, ErrStale)
		}
		if f.ReadUntil != c.From || c.To < c.From {
			return nil, fmt.Errorf("file %s cursor %d, read covered [%d, %d): %w", c.Path, f.ReadUntil, c.From, c.To, ErrStale)
		}

		next := cur.clone()
		next.Files[i].ReadUntil = c.To
		if !c.ModTime.IsZero() {
			next.Files[i].LastModified = c.ModTime
		}
		if len(c.Records) > 0 {
			next.Logs = mergeNewest(s.normalizeBatch(next, c.Path, c.Records), cur.Logs)
		}
		return next, nil
	})
}

// AddLogs normalizes records for a known file and merges them in date order
// without touching the file's cursor
func (s *Store) AddLogs(ctx context.Context, path string, records []any) error {
	return s.do(ctx, "add_logs", func(cur *Snapshot) (*Snapshot, error) {
		if cur.fileIndex(path) < 0 {
			return nil, fmt.Errorf("file %s: %w", path, ErrUnknownFile)
		}
		if len(records) == 0 {
			return nil, nil
		}
		next := cur.clone()
		next.Logs = mergeNewest(s.normalizeBatch(next, path, records), cur.Logs)
		return next, nil
	})
}

func (s *Store) normalizeBatch(snap *Snapshot, path string, records []any) []*models.Log {
	rules := s.rules(snap)
	receivedAt := s.now()
	batch := make([]*models.Log, 0, len(records))
	for _, raw := range records {
		batch = append(batch, s.norm.Normalize(raw, path, receivedAt, rules))
	}
	sortNewest(batch)
	return batch
}

// purgeFile removes the logs of path and their display state
func purgeFile(snap *Snapshot, path string) {
	kept := make([]*models.Log, 0, len(snap.Logs))
	removed := false
	for _, l := range snap.Logs {
		if l.File == path {
			removed = true
			continue
		}
		kept = append(kept, l)
	}
	if !removed {
		return
	}
	snap.Logs = kept
	snap.ui = snap.ui.retain(snap.Logs)
}
