package db

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"hoopsight/models"
)

const (
	sessionPrefix = "session:"
	usagePrefix   = "usage:"
)

type DB struct {
	badgerDB *badger.DB
}

func New(dbPath string) (*DB, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Disable badger logging for cleaner output

	badgerDB, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &DB{badgerDB: badgerDB}, nil
}

func (d *DB) Close() error {
	return d.badgerDB.Close()
}

func (d *DB) StoreSession(sess *models.ConversationSession) error {
	return d.badgerDB.Update(func(txn *badger.Txn) error {
		data, err := json.Marshal(sess)
		if err != nil {
			return err
		}
		key := []byte(sessionPrefix + sess.ID)
		return txn.Set(key, data)
	})
}

// GetSession loads one session. Returns (nil, nil) when the key is absent.
func (d *DB) GetSession(id string) (*models.ConversationSession, error) {
	var sess *models.ConversationSession

	err := d.badgerDB.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(sessionPrefix + id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var s models.ConversationSession
			if err := json.Unmarshal(val, &s); err != nil {
				return err
			}
			sess = &s
			return nil
		})
	})

	return sess, err
}

func (d *DB) DeleteSession(id string) error {
	return d.badgerDB.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(sessionPrefix + id))
	})
}

// ForEachSession calls fn for every stored session. Used by the pruner.
func (d *DB) ForEachSession(fn func(*models.ConversationSession) error) error {
	return d.badgerDB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(sessionPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var s models.ConversationSession
				if err := json.Unmarshal(val, &s); err != nil {
					return err
				}
				return fn(&s)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *DB) StoreUsageRecord(rec *models.UsageRecord) error {
	return d.badgerDB.Update(func(txn *badger.Txn) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		key := []byte(usagePrefix + rec.Identity)
		return txn.Set(key, data)
	})
}

// GetUsageRecords loads every persisted usage record, keyed by identity.
// Used to rehydrate the rate limiter across restarts.
func (d *DB) GetUsageRecords() (map[string]*models.UsageRecord, error) {
	records := make(map[string]*models.UsageRecord)

	err := d.badgerDB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(usagePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			identity := strings.TrimPrefix(string(item.Key()), usagePrefix)

			err := item.Value(func(val []byte) error {
				var rec models.UsageRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				records[identity] = &rec
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	return records, err
}
