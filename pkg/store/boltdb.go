package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var bucketRecords = []byte("records")

// BoltStore implements Store on a bbolt file. bbolt serializes writers
// through its single update transaction, which is exactly the single-writer
// discipline the record database needs.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if needed) a record database file.
func NewBoltStore(path string) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRecords)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// rowKey builds the primary key. uid and hashsum never contain the zero
// byte: uid is "{entity}:{record id}" and hashsum is hex.
func rowKey(uid, hashsum string) []byte {
	return []byte(uid + "\x00" + hashsum)
}

func uidPrefix(uid string) []byte {
	return []byte(uid + "\x00")
}

func (s *BoltStore) Store(row Row) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		data, err := json.Marshal(row)
		if err != nil {
			return err
		}
		return b.Put(rowKey(row.UID, row.Hashsum), data)
	})
}

func (s *BoltStore) Fetch(uid string, hashsum ...string) (*Row, error) {
	var found *Row
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		if len(hashsum) > 0 {
			data := b.Get(rowKey(uid, hashsum[0]))
			if data == nil {
				return nil
			}
			var row Row
			if err := json.Unmarshal(data, &row); err != nil {
				return err
			}
			found = &row
			return nil
		}
		prefix := uidPrefix(uid)
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var row Row
			if err := json.Unmarshal(v, &row); err != nil {
				return err
			}
			if found == nil || row.ParsedAt.After(found.ParsedAt) {
				r := row
				found = &r
			}
		}
		return nil
	})
	return found, err
}

func (s *BoltStore) Exists(uid string, hashsum ...string) (bool, error) {
	exists := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		if len(hashsum) > 0 {
			exists = b.Get(rowKey(uid, hashsum[0])) != nil
			return nil
		}
		prefix := uidPrefix(uid)
		c := b.Cursor()
		k, _ := c.Seek(prefix)
		exists = k != nil && bytes.HasPrefix(k, prefix)
		return nil
	})
	return exists, err
}

func (s *BoltStore) Size(feedName ...string) (int, error) {
	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		if len(feedName) == 0 {
			count = b.Stats().KeyN
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var row Row
			if err := json.Unmarshal(v, &row); err != nil {
				return err
			}
			if row.FeedName == feedName[0] {
				count++
			}
			return nil
		})
	})
	return count, err
}
