// Package statedb provides a persistent resume/verification cache backed
// by BoltDB, so that re-running a download against files already verified
// on disk is a cheap no-op (spec.md §8 idempotence). The teacher repo
// never persisted progress between runs; this is adapted from
// FraMan97-kairos's use of github.com/boltdb/bolt as an embedded KV store.
package statedb

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/boltdb/bolt"
)

var bucketVerified = []byte("verified_chunks")

// ChunkRecord is what gets stored once a chunk has been downloaded,
// decompressed and MD5-verified successfully.
type ChunkRecord struct {
	CompressedMD5 string    `json:"compressed_md5"`
	Size          int64     `json:"size"`
	VerifiedAt    time.Time `json:"verified_at"`
}

// DB wraps a BoltDB handle scoped to one archive/download session.
type DB struct {
	bolt *bolt.DB
}

// Open opens (creating if needed) the state database at path.
func Open(path string) (*DB, error) {
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("statedb: open %s: %w", path, err)
	}
	err = bdb.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketVerified)
		return err
	})
	if err != nil {
		bdb.Close()
		return nil, err
	}
	return &DB{bolt: bdb}, nil
}

func (db *DB) Close() error {
	return db.bolt.Close()
}

// IsVerified reports whether compressedMD5 was already recorded as
// successfully verified, so a downloader worker can skip re-downloading it.
func (db *DB) IsVerified(compressedMD5 string) (bool, error) {
	var found bool
	err := db.bolt.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketVerified)
		found = b.Get([]byte(compressedMD5)) != nil
		return nil
	})
	return found, err
}

// MarkVerified records that a chunk downloaded and passed MD5 verification.
func (db *DB) MarkVerified(rec ChunkRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return db.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketVerified)
		return b.Put([]byte(rec.CompressedMD5), data)
	})
}

// Forget removes a chunk's verified record, so the next run fetches and
// verifies that chunk again.
func (db *DB) Forget(compressedMD5 string) error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketVerified)
		return b.Delete([]byte(compressedMD5))
	})
}

// Count returns the number of chunks currently recorded as verified.
func (db *DB) Count() (int, error) {
	n := 0
	err := db.bolt.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketVerified)
		return b.ForEach(func(_, _ []byte) error {
			n++
			return nil
		})
	})
	return n, err
}
