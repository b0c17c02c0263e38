// Package badger implements the transcript archive on an embedded Badger
// key-value store, for deployments without a PostgreSQL instance.
//
// Turns are msgpack-encoded under keys ordered by session and timestamp, so
// a transcript read is a single prefix scan. Search is a case-insensitive
// substring scan over all turns; there is no vector index in this backend.
package badger

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/voxloop/voxloop/internal/archive"
)

var _ archive.Store = (*Store)(nil)

// Key layout. Timestamps are fixed-width decimal so lexicographic order is
// chronological order.
const (
	turnPrefix    = "t/"
	summaryPrefix = "s/"
)

// Store is the Badger-backed archive. All methods are safe for concurrent
// use.
type Store struct {
	db *badgerdb.DB
}

// NewStore opens (or creates) the archive at path.
func NewStore(path string) (*Store, error) {
	opts := badgerdb.DefaultOptions(path).WithLogger(nil)
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("archive badger: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// NewInMemory opens a store that lives entirely in memory. Used by tests.
func NewInMemory() (*Store, error) {
	db, err := badgerdb.Open(badgerdb.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("archive badger: open in-memory: %w", err)
	}
	return &Store{db: db}, nil
}

func turnKey(sessionID string, ts int64, id string) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d/%s", turnPrefix, sessionID, ts, id))
}

// SaveTurn implements [archive.Store].
func (s *Store) SaveTurn(_ context.Context, rec archive.TurnRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	val, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("archive badger: encode turn: %w", err)
	}
	err = s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(turnKey(rec.SessionID, rec.TS, rec.ID), val)
	})
	if err != nil {
		return fmt.Errorf("archive badger: save turn: %w", err)
	}
	return nil
}

// SaveSummary implements [archive.Store].
func (s *Store) SaveSummary(_ context.Context, sessionID, agentID, summary string) error {
	val, err := msgpack.Marshal(map[string]string{
		"agent_id": agentID,
		"summary":  summary,
	})
	if err != nil {
		return fmt.Errorf("archive badger: encode summary: %w", err)
	}
	err = s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(summaryPrefix+sessionID), val)
	})
	if err != nil {
		return fmt.Errorf("archive badger: save summary: %w", err)
	}
	return nil
}

// Transcript implements [archive.Store].
func (s *Store) Transcript(_ context.Context, sessionID string) ([]archive.TurnRecord, error) {
	turns := []archive.TurnRecord{}
	prefix := []byte(turnPrefix + sessionID + "/")
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec archive.TurnRecord
				if err := msgpack.Unmarshal(val, &rec); err != nil {
					return err
				}
				turns = append(turns, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("archive badger: transcript: %w", err)
	}
	return turns, nil
}

// Search implements [archive.Store]. Hits are ordered newest first.
func (s *Store) Search(_ context.Context, query string, limit int) ([]archive.SearchHit, error) {
	if limit <= 0 {
		limit = 10
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return []archive.SearchHit{}, nil
	}

	hits := []archive.SearchHit{}
	prefix := []byte(turnPrefix)
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			if !bytes.HasPrefix(it.Item().Key(), prefix) {
				continue
			}
			err := it.Item().Value(func(val []byte) error {
				var rec archive.TurnRecord
				if err := msgpack.Unmarshal(val, &rec); err != nil {
					return err
				}
				if strings.Contains(strings.ToLower(rec.Text), needle) {
					hits = append(hits, archive.SearchHit{
						SessionID: rec.SessionID,
						Role:      rec.Role,
						Text:      rec.Text,
						TS:        rec.TS,
					})
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("archive badger: search: %w", err)
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].TS > hits[j].TS })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Close implements [archive.Store].
func (s *Store) Close() error {
	return s.db.Close()
}
