package history

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"voiceclick/internal/domain"
)

const DefaultMaxEntries = 100

var keyPrefix = []byte("history/")

// Store keeps the most recent transcriptions in a Badger database, newest last
// in key order.
type Store struct {
	db         *badger.DB
	maxEntries int
	logger     *slog.Logger
}

// Options configure a Store. An empty Path opens an in-memory database.
type Options struct {
	Path       string
	MaxEntries int
	Logger     *slog.Logger
}

func Open(opts Options) (*Store, error) {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := opts.Logger.With("component", "history")

	badgerOpts := badger.DefaultOptions(opts.Path).WithLogger(badgerLogger{logger})
	if strings.TrimSpace(opts.Path) == "" {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true).WithLogger(badgerLogger{logger})
	}
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	return &Store{db: db, maxEntries: opts.MaxEntries, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Add saves record, assigning an ID when missing, and drops the oldest records
// beyond the configured maximum.
func (s *Store) Add(ctx context.Context, record domain.HistoryRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, err := uuid.Parse(record.ID)
	if err != nil {
		id = uuid.New()
		record.ID = id.String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode history record: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(recordKey(record.CreatedAt, id), value); err != nil {
			return err
		}
		return s.trim(txn)
	})
}

// Recent returns up to limit records, newest first. A non-positive limit
// returns everything kept.
func (s *Store) Recent(ctx context.Context, limit int) ([]domain.HistoryRecord, error) {
	var records []domain.HistoryRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, keyPrefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(keyPrefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if limit > 0 && len(records) >= limit {
				break
			}
			var record domain.HistoryRecord
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &record)
			})
			if err != nil {
				s.logger.Warn("skipping unreadable history record", "key", string(it.Item().Key()), "error", err)
				continue
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return records, nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.DropPrefix(keyPrefix); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

func (s *Store) trim(txn *badger.Txn) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = keyPrefix
	it := txn.NewIterator(opts)
	var keys [][]byte
	for it.Rewind(); it.ValidForPrefix(keyPrefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	excess := len(keys) - s.maxEntries
	for i := 0; i < excess; i++ {
		if err := txn.Delete(keys[i]); err != nil {
			return fmt.Errorf("trim history: %w", err)
		}
	}
	return nil
}

// recordKey orders records by creation time; the id keeps same-instant
// records distinct.
func recordKey(at time.Time, id uuid.UUID) []byte {
	key := make([]byte, 0, len(keyPrefix)+8+len(id))
	key = append(key, keyPrefix...)
	key = binary.BigEndian.AppendUint64(key, uint64(at.UnixNano()))
	return append(key, id[:]...)
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
