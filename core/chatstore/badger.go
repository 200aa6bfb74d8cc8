package chatstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"

	badger "github.com/dgraph-io/badger/v4"
)

const chatKeyPrefix = "chat:"

// Badger is a Store backed by BadgerDB v4.
type Badger struct {
	db *badger.DB
}

// BadgerOptions configures the BadgerDB store.
type BadgerOptions struct {
	// Dir is the directory for BadgerDB data files. Required unless
	// InMemory is set.
	Dir string

	// InMemory runs BadgerDB in memory-only mode (no disk persistence).
	// Useful for testing with a real badger engine.
	InMemory bool

	// Logger sets the badger logger. If nil, debug and info level badger
	// output is suppressed.
	Logger badger.Logger
}

// NewBadger opens a BadgerDB-backed chat store.
func NewBadger(opts BadgerOptions) (*Badger, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("chatstore: BadgerOptions.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	if opts.Logger != nil {
		dbOpts = dbOpts.WithLogger(opts.Logger)
	} else {
		dbOpts = dbOpts.WithLogger(quietLogger{})
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open chat database: %w", err)
	}
	return &Badger{db: db}, nil
}

func chatKey(id string) []byte {
	return []byte(chatKeyPrefix + id)
}

func (b *Badger) Load(_ context.Context, id string) (*Chat, error) {
	var raw []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(chatKey(id))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var chat Chat
	if err := json.Unmarshal(raw, &chat); err != nil {
		return nil, fmt.Errorf("failed to decode chat %q: %w", id, err)
	}
	return &chat, nil
}

func (b *Badger) Save(_ context.Context, chat *Chat) error {
	if chat.ID == "" {
		return errors.New("chatstore: chat ID is required")
	}
	chat.DeriveHeader()

	raw, err := json.Marshal(chat)
	if err != nil {
		return fmt.Errorf("failed to encode chat %q: %w", chat.ID, err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(chatKey(chat.ID), raw)
	})
}

func (b *Badger) Delete(_ context.Context, id string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(chatKey(id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (b *Badger) MostRecent(_ context.Context) (*Chat, error) {
	var mostRecent *Chat
	prefix := []byte(chatKeyPrefix)
	err := b.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var chat Chat
			if err := json.Unmarshal(raw, &chat); err != nil {
				// Skip undecodable records rather than failing the scan.
				log.Printf("[chatstore] skipping undecodable chat %q: %v", it.Item().Key(), err)
				continue
			}
			if mostRecent == nil || chat.StartedAt.After(mostRecent.StartedAt) {
				mostRecent = &chat
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if mostRecent == nil {
		return nil, ErrNotFound
	}
	return mostRecent, nil
}

func (b *Badger) List(_ context.Context) ([]ChatSummary, error) {
	var summaries []ChatSummary
	prefix := []byte(chatKeyPrefix)
	err := b.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var chat Chat
			if err := json.Unmarshal(raw, &chat); err != nil {
				log.Printf("[chatstore] skipping undecodable chat %q: %v", it.Item().Key(), err)
				continue
			}
			summaries = append(summaries, ChatSummary{
				ID:        chat.ID,
				StartedAt: chat.StartedAt,
				Header:    chat.Header,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].StartedAt.After(summaries[j].StartedAt)
	})
	return summaries, nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}

// quietLogger wraps the standard log package for badger, suppressing
// debug and info level messages.
type quietLogger struct{}

func (quietLogger) Errorf(f string, v ...interface{})   { log.Printf("[badger] ERROR: "+f, v...) }
func (quietLogger) Warningf(f string, v ...interface{}) { log.Printf("[badger] WARN: "+f, v...) }
func (quietLogger) Infof(string, ...interface{})        {}
func (quietLogger) Debugf(string, ...interface{})       {}
