package store

import (
	"context"
	"fmt"
	"maps"

	"github.com/google/uuid"
	"github.com/oicur0t/watchlogs/pkg/models"
)

// retain returns a copy keeping only entries for logs still present
func (u uiState) retain(logs []*models.Log) uiState {
	if len(u.opened) == 0 && len(u.expanded) == 0 {
		return u
	}
	present := make(map[uuid.UUID]struct{}, len(logs))
	for _, l := range logs {
		present[l.ID] = struct{}{}
	}

	next := uiState{
		opened:   make(map[uuid.UUID]bool, len(u.opened)),
		expanded: make(map[uuid.UUID]map[string]bool, len(u.expanded)),
	}
	for id, v := range u.opened {
		if _, ok := present[id]; ok {
			next.opened[id] = v
		}
	}
	for id, v := range u.expanded {
		if _, ok := present[id]; ok {
			next.expanded[id] = v
		}
	}
	return next
}

func (u uiState) withOpened(id uuid.UUID, open bool) uiState {
	next := uiState{
		opened:   make(map[uuid.UUID]bool, len(u.opened)+1),
		expanded: u.expanded,
	}
	for k, v := range u.opened {
		next.opened[k] = v
	}
	if open {
		next.opened[id] = true
	} else {
		delete(next.opened, id)
		// Closing a log resets its payload tree
		if _, ok := u.expanded[id]; ok {
			next.expanded = make(map[uuid.UUID]map[string]bool, len(u.expanded))
			for k, v := range u.expanded {
				if k != id {
					next.expanded[k] = v
				}
			}
		}
	}
	return next
}

func (u uiState) withExpanded(id uuid.UUID, path string, expanded bool) uiState {
	nodes := make(map[string]bool, len(u.expanded[id])+1)
	for k, v := range u.expanded[id] {
		nodes[k] = v
	}
	if expanded {
		nodes[path] = true
	} else {
		delete(nodes, path)
	}

	next := uiState{
		opened:   u.opened,
		expanded: make(map[uuid.UUID]map[string]bool, len(u.expanded)+1),
	}
	for k, v := range u.expanded {
		next.expanded[k] = v
	}
	next.expanded[id] = nodes
	return next
}

// ToggleOpened flips the details flag of a log and returns the new value
func (s *Store) ToggleOpened(ctx context.Context, id uuid.UUID) (bool, error) {
	var opened bool
	err := s.do(ctx, "toggle_opened", func(cur *Snapshot) (*Snapshot, error) {
		if _, ok := cur.Log(id); !ok {
			return nil, fmt.Errorf("log %s: %w", id, ErrUnknownLog)
		}
		next := cur.clone()
		opened = !cur.ui.opened[id]
		next.ui = cur.ui.withOpened(id, opened)
		return next, nil
	})
	return opened, err
}

// TogglePayload flips the collapse state of an expandable payload node
func (s *Store) TogglePayload(ctx context.Context, id uuid.UUID, path string) (bool, error) {
	var expanded bool
	err := s.do(ctx, "toggle_payload", func(cur *Snapshot) (*Snapshot, error) {
		log, ok := cur.Log(id)
		if !ok {
			return nil, fmt.Errorf("log %s: %w", id, ErrUnknownLog)
		}
		if !log.Payload.Find(path).Expandable() {
			return nil, fmt.Errorf("log %s node %q: %w", id, path, ErrUnknownNode)
		}
		next := cur.clone()
		expanded = !cur.ui.expanded[id][path]
		next.ui = cur.ui.withExpanded(id, path, expanded)
		return next, nil
	})
	return expanded, err
}

// withOpenedLogs opens every log in logs in one copy. With expand set, each
// expandable payload node is expanded too.
func (u uiState) withOpenedLogs(logs []*models.Log, expand bool) uiState {
	next := uiState{
		opened:   make(map[uuid.UUID]bool, len(u.opened)+len(logs)),
		expanded: u.expanded,
	}
	maps.Copy(next.opened, u.opened)
	if expand {
		next.expanded = make(map[uuid.UUID]map[string]bool, len(u.expanded)+len(logs))
		maps.Copy(next.expanded, u.expanded)
	}

	for _, log := range logs {
		next.opened[log.ID] = true
		if !expand {
			continue
		}
		nodes := make(map[string]bool, len(next.expanded[log.ID]))
		maps.Copy(nodes, next.expanded[log.ID])
		log.Payload.Walk(func(n *models.Node) bool {
			if n.Expandable() {
				nodes[n.Path] = true
			}
			return true
		})
		if len(nodes) > 0 {
			next.expanded[log.ID] = nodes
		}
	}
	return next
}

// OpenLogs opens the details of the listed logs still in the store, and with
// expand set unfolds their whole payload tree. Unknown IDs are skipped.
func (s *Store) OpenLogs(ctx context.Context, ids []uuid.UUID, expand bool) error {
	return s.do(ctx, "open_logs", func(cur *Snapshot) (*Snapshot, error) {
		want := make(map[uuid.UUID]bool, len(ids))
		for _, id := range ids {
			want[id] = true
		}
		var logs []*models.Log
		for _, l := range cur.Logs {
			if want[l.ID] {
				logs = append(logs, l)
			}
		}
		if len(logs) == 0 {
			return nil, fmt.Errorf("open logs: %w", ErrUnknownLog)
		}
		next := cur.clone()
		next.ui = cur.ui.withOpenedLogs(logs, expand)
		return next, nil
	})
}
