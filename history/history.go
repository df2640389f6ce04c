// Package history records console commands sent through the panel.
package history

import (
	"context"
	"fmt"
	"sort"
	"time"

	"mcpanel/db"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
	// MaxRecords is how many commands are kept; older ones are pruned.
	MaxRecords = 1000
)

// Record is one command and its outcome.
type Record struct {
	ID       string    `json:"id"`
	Command  string    `json:"command"`
	Response string    `json:"response"`
	Error    string    `json:"error,omitempty"`
	User     string    `json:"user,omitempty"`
	At       time.Time `json:"at"`
}

// Store keeps records in bbolt. Keys sort by time.
type Store struct {
	repo   *db.GenericRepository[*Record]
	logger *zap.Logger
	keep   int
	now    func() time.Time
}

// NewStore creates a history store on bucket.
func NewStore(database db.Database, bucket string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		repo:   db.NewGenericRepository[*Record](database, bucket, logger),
		logger: logger,
		keep:   MaxRecords,
		now:    time.Now,
	}
}

func recordKey(r *Record) string {
	return fmt.Sprintf("%020d-%s", r.At.UnixNano(), r.ID)
}

// Add stores the outcome of command. cmdErr may be nil.
func (s *Store) Add(ctx context.Context, user, command, response string, cmdErr error) (*Record, error) {
	rec := &Record{
		ID:       uuid.New().String(),
		Command:  command,
		Response: response,
		User:     user,
		At:       s.now().UTC(),
	}
	if cmdErr != nil {
		rec.Error = cmdErr.Error()
	}
	if err := s.repo.Save(ctx, recordKey(rec), rec); err != nil {
		return nil, err
	}
	if err := s.prune(ctx); err != nil {
		s.logger.Warn("Failed to prune command history", zap.Error(err))
	}
	return rec, nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	all, err := s.sorted(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *Store) sorted(ctx context.Context) ([]*Record, error) {
	byKey, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	records := make([]*Record, 0, len(keys))
	for _, k := range keys {
		records = append(records, byKey[k])
	}
	return records, nil
}

func (s *Store) prune(ctx context.Context) error {
	all, err := s.sorted(ctx)
	if err != nil {
		return err
	}
	for _, rec := range all[min(len(all), s.keep):] {
		if err := s.repo.Delete(ctx, recordKey(rec)); err != nil {
			return err
		}
	}
	return nil
}

// Clear removes every record.
func (s *Store) Clear(ctx context.Context) error {
	return s.repo.DeleteAll(ctx)
}
