package roadpath

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"route-playback/internal/playback"
)

const pathsBucket = "road_paths"

// BoltCache wraps a Provider with a persistent bbolt cache keyed by segment
// endpoints. Entries older than ttl are refetched.
type BoltCache struct {
	db    *bolt.DB
	next  Provider
	ttl   time.Duration
	now   func() time.Time
	onHit func()
}

type cachedPath struct {
	Path     playback.RoadPath `json:"path"`
	StoredAt time.Time         `json:"stored_at"`
}

func OpenBoltCache(path string, ttl time.Duration, next Provider) (*BoltCache, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open road path cache: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(pathsBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket %s: %w", pathsBucket, err)
	}
	return &BoltCache{db: db, next: next, ttl: ttl, now: time.Now}, nil
}

// OnHit registers a callback invoked for every served cache entry.
func (c *BoltCache) OnHit(fn func()) { c.onHit = fn }

func (c *BoltCache) Close() error { return c.db.Close() }

func cacheKey(req Request) []byte {
	return []byte(endpoint(req.From) + "|" + endpoint(req.To))
}

func (c *BoltCache) RoadPath(ctx context.Context, req Request) (playback.RoadPath, error) {
	key := cacheKey(req)
	if path, ok := c.lookup(key); ok {
		if c.onHit != nil {
			c.onHit()
		}
		return path, nil
	}
	path, err := c.next.RoadPath(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(path) > 0 {
		if err := c.store(key, path); err != nil {
			log.WithError(err).Warn("road path cache store failed")
		}
	}
	return path, nil
}

func (c *BoltCache) lookup(key []byte) (playback.RoadPath, bool) {
	var entry cachedPath
	found := false
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(pathsBucket))
		if b == nil {
			return nil
		}
		data := b.Get(key)
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &entry); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		log.WithError(err).WithField("key", string(key)).Debug("road path cache entry unreadable, treating as miss")
		return nil, false
	}
	if !found || len(entry.Path) == 0 {
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(entry.StoredAt) > c.ttl {
		return nil, false
	}
	return entry.Path, true
}

func (c *BoltCache) store(key []byte, path playback.RoadPath) error {
	data, err := json.Marshal(cachedPath{Path: path, StoredAt: c.now()})
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(pathsBucket)).Put(key, data)
	})
}

// Purge removes expired entries and returns how many were dropped.
func (c *BoltCache) Purge() (int, error) {
	if c.ttl <= 0 {
		return 0, nil
	}
	removed := 0
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(pathsBucket))
		var stale [][]byte
		if err := b.ForEach(func(k, v []byte) error {
			var entry cachedPath
			if err := json.Unmarshal(v, &entry); err != nil || c.now().Sub(entry.StoredAt) > c.ttl {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}
