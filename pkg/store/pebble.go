package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/models"
)

var (
	db     *pebble.DB
	dbPath string
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// identityPrefix keys local identity records: user:<provider id>.
const identityPrefix = "user:"

// Open opens (or creates) a Pebble database at the given path and keeps
// a global handle for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	dbPath = path
	logger.Info("pebble_opened", "path", path)
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

// SaveIdentity upserts an identity record keyed by its provider id.
// Writing an id that already exists overwrites the previous record;
// duplicate provider deliveries therefore converge on the last payload.
func SaveIdentity(rec models.IdentityRecord) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	if rec.ID == "" {
		return fmt.Errorf("identity record missing id")
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}
	return db.Set([]byte(identityPrefix+rec.ID), b, pebble.Sync)
}

// GetIdentity returns the identity record for id, or ErrNotFound.
func GetIdentity(id string) (*models.IdentityRecord, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	v, closer, err := db.Get([]byte(identityPrefix + id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()
	var rec models.IdentityRecord
	if err := json.Unmarshal(v, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal identity %s: %w", id, err)
	}
	return &rec, nil
}

// DeleteIdentity removes the record for id. Deleting an absent id is a
// no-op, not an error.
func DeleteIdentity(id string) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	return db.Delete([]byte(identityPrefix+id), pebble.Sync)
}

// ListIdentities returns all local identity records in key order.
func ListIdentities() ([]models.IdentityRecord, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	iter, err := db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(identityPrefix),
		UpperBound: []byte(identityPrefix + "\xff"),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.IdentityRecord
	for iter.First(); iter.Valid(); iter.Next() {
		var rec models.IdentityRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			logger.Warn("identity_record_corrupt", "key", string(iter.Key()))
			continue
		}
		out = append(out, rec)
	}
	return out, iter.Error()
}
