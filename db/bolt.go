package db

import (
	"context"
	"fmt"
	"time"

	"mcpanel/config"

	bolt "go.etcd.io/bbolt"
)

// Bucket suffixes appended to config.DB.Bucket.
const (
	ResourcePacksBucket = "_resourcepacks"
	SessionsBucket      = "_sessions"
	HistoryBucket       = "_history"
)

// BoltDB implements the Database interface
type BoltDB struct {
	*bolt.DB
	bucket string
}

// NewBoltDB opens (or creates) the database file named by cfg and makes
// sure every bucket the panel uses exists.
func NewBoltDB(cfg *config.Config) (*BoltDB, error) {
	db, err := bolt.Open(cfg.DatabasePath(), 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	boltDB := &BoltDB{
		DB:     db,
		bucket: cfg.DB.Bucket,
	}

	requiredBuckets := []string{
		cfg.DB.Bucket,
		cfg.DB.Bucket + ResourcePacksBucket,
		cfg.DB.Bucket + SessionsBucket,
		cfg.DB.Bucket + HistoryBucket,
	}

	for _, bucketName := range requiredBuckets {
		if err := boltDB.GetOrCreateBucket(context.Background(), bucketName); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create bucket %s: %w", bucketName, err)
		}
	}

	return boltDB, nil
}

// Bucket returns the full bucket name for a suffix such as SessionsBucket.
func (b *BoltDB) Bucket(suffix string) string {
	return b.bucket + suffix
}

// GetOrCreateBucket creates a bucket if it doesn't exist
func (b *BoltDB) GetOrCreateBucket(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	})
}

// GetKV retrieves a value by key from the specified bucket
func (b *BoltDB) GetKV(ctx context.Context, bucket string, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var value []byte
	err := b.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(bucket))
		if bkt == nil {
			return fmt.Errorf("bucket %q not found", bucket)
		}

		data := bkt.Get(key)
		if data != nil {
			// Copy the data since it's only valid during the transaction
			value = make([]byte, len(data))
			copy(value, data)
		}
		return nil
	})
	return value, err
}

// PutKV stores a key-value pair in the specified bucket
func (b *BoltDB) PutKV(ctx context.Context, bucket string, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		return bkt.Put(key, value)
	})
}

// UpdateKV runs a read-modify-write of one key inside a single write
// transaction. bbolt allows one writer at a time, so concurrent callers are
// serialised and never lose each other's updates.
func (b *BoltDB) UpdateKV(ctx context.Context, bucket string, key []byte, fn UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}

		var current []byte
		if data := bkt.Get(key); data != nil {
			current = make([]byte, len(data))
			copy(current, data)
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}
		return bkt.Put(key, next)
	})
}

// DeleteKV removes a key-value pair from the specified bucket
func (b *BoltDB) DeleteKV(ctx context.Context, bucket string, key []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(bucket))
		if bkt == nil {
			return fmt.Errorf("bucket %q not found", bucket)
		}
		return bkt.Delete(key)
	})
}

// GetAllKV retrieves all key-value pairs in the specified bucket
func (b *BoltDB) GetAllKV(ctx context.Context, bucket string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := make(map[string][]byte)
	err := b.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(bucket))
		if bkt == nil {
			// Return empty map if bucket doesn't exist
			return nil
		}

		return bkt.ForEach(func(k, v []byte) error {
			value := make([]byte, len(v))
			copy(value, v)
			result[string(k)] = value
			return nil
		})
	})
	return result, err
}

// DeleteAllKV removes all key-value pairs from the specified bucket
func (b *BoltDB) DeleteAllKV(ctx context.Context, bucket string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(bucket)) == nil {
			return fmt.Errorf("bucket %q not found", bucket)
		}
		// Deleting keys while iterating a cursor skips entries; recreate instead.
		if err := tx.DeleteBucket([]byte(bucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucket([]byte(bucket))
		return err
	})
}
