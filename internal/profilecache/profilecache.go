// Package profilecache remembers products whose company-profile fetches keep
// failing, so endpoint code can skip them for a cooldown period instead of
// burning rate-limit tokens on known-bad products.
package profilecache

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var bucketFailures = []byte("profile_failures")

// DefaultCooldown - период, в течение которого сбойный продукт пропускается
const DefaultCooldown = 6 * time.Hour

// record - запись о сбоях одного продукта
type record struct {
	Failures    int       `json:"failures"`
	LastError   string    `json:"last_error"`
	LastFailure time.Time `json:"last_failure"`
}

// Cache - bbolt-хранилище записей о сбойных продуктах
type Cache struct {
	db       *bbolt.DB
	cooldown time.Duration
}

// Open открывает кэш по указанному пути.
// cooldown <= 0 заменяется DefaultCooldown.
func Open(path string, cooldown time.Duration) (*Cache, error) {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}

	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open profile cache: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketFailures)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize profile cache bucket: %w", err)
	}

	return &Cache{db: db, cooldown: cooldown}, nil
}

// Close закрывает хранилище
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// ShouldSkip сообщает, находится ли продукт в cooldown после сбоя
func (c *Cache) ShouldSkip(productID string) (bool, error) {
	var skip bool
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketFailures).Get([]byte(productID))
		if data == nil {
			return nil
		}
		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal profile record: %w", err)
		}
		skip = time.Since(rec.LastFailure) < c.cooldown
		return nil
	})
	if err != nil {
		return false, err
	}
	return skip, nil
}

// RecordFailure фиксирует сбой загрузки профиля продукта
func (c *Cache) RecordFailure(productID string, cause error) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketFailures)

		var rec record
		if data := bucket.Get([]byte(productID)); data != nil {
			if err := json.Unmarshal(data, &rec); err != nil {
				// Нечитаемую запись перезаписываем заново
				rec = record{}
			}
		}
		rec.Failures++
		rec.LastError = cause.Error()
		rec.LastFailure = time.Now()

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal profile record: %w", err)
		}
		return bucket.Put([]byte(productID), data)
	})
}

// RecordSuccess снимает продукт с учета после успешной загрузки
func (c *Cache) RecordSuccess(productID string) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFailures).Delete([]byte(productID))
	})
}
