// Package netcache sits at the outbound-request boundary and decides, per
// request, whether to answer from a durable cache, the network, or a
// synthesized fallback. It is the piece that keeps the client usable with
// zero connectivity.
package netcache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Versioned cache identifiers. Bumping a version on deployment invalidates
// the whole set; there is no per-entry expiry.
const (
	ShellCacheName = "storyhive-shell-v4"
	APICacheName   = "storyhive-api-v1"
)

// Entry is a cached HTTP response.
type Entry struct {
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"stored_at"`
}

// Response materializes the entry as an *http.Response for req.
func (e *Entry) Response(req *http.Request) *http.Response {
	header := make(http.Header, len(e.Header))
	for k, v := range e.Header {
		header[k] = v
	}
	return &http.Response{
		StatusCode:    e.Status,
		Status:        fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status)),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

// Cache is durable response storage, one bbolt bucket per versioned cache
// identifier. It may share a database file with other components.
type Cache struct {
	db *bolt.DB
}

// Open opens (or creates) the cache database at path.
func Open(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// Put stores entry under key in the named cache, creating it if needed.
func (c *Cache) Put(cacheName, key string, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(cacheName))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

// Match returns the cached entry for key in the named cache, or nil.
func (c *Cache) Match(cacheName, key string) (*Entry, error) {
	var entry *Entry
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(cacheName))
		if b == nil {
			return nil
		}
		data := b.Get([]byte(key))
		if data == nil {
			return nil
		}
		entry = &Entry{}
		return json.Unmarshal(data, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// MatchPrefix returns the most recently stored entry whose key starts with
// prefix in the named cache, or nil.
func (c *Cache) MatchPrefix(cacheName, prefix string) (*Entry, error) {
	var newest *Entry
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(cacheName))
		if b == nil {
			return nil
		}
		cur := b.Cursor()
		p := []byte(prefix)
		for k, v := cur.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = cur.Next() {
			entry := &Entry{}
			if err := json.Unmarshal(v, entry); err != nil {
				continue
			}
			if newest == nil || entry.StoredAt.After(newest.StoredAt) {
				newest = entry
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newest, nil
}

// Names lists existing cache identifiers.
func (c *Cache) Names() ([]string, error) {
	var names []string
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	return names, err
}

// DeleteCachesExcept removes every cache whose identifier is not in keep.
// It is the activation step after a version bump.
func (c *Cache) DeleteCachesExcept(keep ...string) error {
	kept := make(map[string]struct{}, len(keep))
	for _, name := range keep {
		kept[name] = struct{}{}
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		var stale [][]byte
		if err := tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			if _, ok := kept[string(name)]; !ok {
				stale = append(stale, append([]byte(nil), name...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, name := range stale {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}
