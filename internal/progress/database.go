package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const defaultCollection = "receipts"

// Store defines the interface for the document store progress updates are
// written into. The production system points this at a shared schemaless
// database; new fields merge into the existing document rather than
// replacing it.
type Store interface {
	// MergeFields merges the given fields into the document with the given
	// ID, creating the document if it does not exist. Fields not named are
	// left untouched; named fields are overwritten (last write wins).
	MergeFields(ctx context.Context, id string, fields map[string]any) error

	// Close closes the store
	Close() error
}

// BoltStore implements the Store interface using BoltDB, with one bucket
// per collection and JSON documents as values.
type BoltStore struct {
	db     *bbolt.DB
	bucket []byte
}

// NewBoltStore creates a new BoltStore instance
func NewBoltStore(path, collection string) (*BoltStore, error) {
	if collection == "" {
		collection = defaultCollection
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	bucket := []byte(collection)
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &BoltStore{db: db, bucket: bucket}, nil
}

// MergeFields merges fields into a document inside a single transaction
func (b *BoltStore) MergeFields(ctx context.Context, id string, fields map[string]any) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(b.bucket)

		doc := make(map[string]any)
		if data := bucket.Get([]byte(id)); data != nil {
			if err := json.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("unmarshaling document %s: %w", id, err)
			}
		}

		for key, value := range fields {
			doc[key] = value
		}

		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshaling document %s: %w", id, err)
		}
		return bucket.Put([]byte(id), data)
	})
}

// Document returns the current contents of a document
func (b *BoltStore) Document(id string) (map[string]any, error) {
	var doc map[string]any
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(b.bucket).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("document not found: %s", id)
		}
		return json.Unmarshal(data, &doc)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Close closes the database connection
func (b *BoltStore) Close() error {
	return b.db.Close()
}
