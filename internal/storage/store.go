package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	favoritesBucket  = []byte("favorites")
	createdIdxBucket = []byte("idx_created")
	ownerIdxBucket   = []byte("idx_owner")
	syncedIdxBucket  = []byte("idx_synced")
)

var (
	// ErrDuplicateKey is returned by Put when a record with the same id
	// already exists. Put has insert semantics, not upsert.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrNotFound is returned when no record exists for the given id.
	ErrNotFound = errors.New("record not found")
)

// Sort and order values accepted by Filter.
const (
	SortByCreatedAt = "createdAt"
	SortByName      = "name"
	OrderAsc        = "asc"
	OrderDesc       = "desc"
)

// Filter narrows and orders the result of Query.
type Filter struct {
	// Search matches case-insensitively as a substring of name or description.
	Search string
	// Owner matches the owner display name exactly.
	Owner string
	// Sort is SortByCreatedAt (default) or SortByName.
	Sort string
	// Order is OrderDesc (default) or OrderAsc.
	Order string
}

// Store provides durable CRUD and query over favorite records. Mutations are
// atomic per record; no cross-record transactions are offered.
type Store struct {
	db *bolt.DB
}

func NewStore(dbPath string) (*Store, error) {
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{favoritesBucket, createdIdxBucket, ownerIdxBucket, syncedIdxBucket} {
			if _, createErr := tx.CreateBucketIfNotExists(bucket); createErr != nil {
				return createErr
			}
		}
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Put inserts a new record keyed by id. It fails with ErrDuplicateKey if the
// id is already present; the stored copy keeps its original fields.
func (s *Store) Put(record *FavoriteRecord) error {
	if record.ID == "" {
		return fmt.Errorf("record has no id")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(favoritesBucket)
		if b.Get([]byte(record.ID)) != nil {
			return fmt.Errorf("putting %s: %w", record.ID, ErrDuplicateKey)
		}

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		record.Seq = seq
		record.normalize()

		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(record.ID), data); err != nil {
			return err
		}
		return indexRecord(tx, record)
	})
}

// Get returns the record for id, or ErrNotFound.
func (s *Store) Get(id string) (*FavoriteRecord, error) {
	var record FavoriteRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(favoritesBucket).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("getting %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}
	record.normalize()
	return &record, nil
}

// Update reads the record for id, applies mutate, and writes it back under
// the same id in one transaction. Fails with ErrNotFound if absent.
func (s *Store) Update(id string, mutate func(*FavoriteRecord) error) (*FavoriteRecord, error) {
	var updated FavoriteRecord
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(favoritesBucket)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("updating %s: %w", id, ErrNotFound)
		}

		var record FavoriteRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return err
		}
		if err := deindexRecord(tx, &record); err != nil {
			return err
		}

		seq := record.Seq
		if err := mutate(&record); err != nil {
			return err
		}
		// The id and insertion order are immutable under Update.
		record.ID = id
		record.Seq = seq
		record.normalize()

		out, err := json.Marshal(&record)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(id), out); err != nil {
			return err
		}
		updated = record
		return indexRecord(tx, &record)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Remove deletes the record for id. Removing an absent id is not an error.
func (s *Store) Remove(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(favoritesBucket)
		data := b.Get([]byte(id))
		if data == nil {
			return nil
		}
		var record FavoriteRecord
		if err := json.Unmarshal(data, &record); err == nil {
			if err := deindexRecord(tx, &record); err != nil {
				return err
			}
		}
		return b.Delete([]byte(id))
	})
}

// IsFavorite reports whether id is present and marked as a favorite.
func (s *Store) IsFavorite(id string) (bool, error) {
	record, err := s.Get(id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return record.IsFav, nil
}

// Query returns favorited records matching filter, ordered per filter with a
// deterministic tie-break by insertion order.
func (s *Store) Query(filter Filter) ([]*FavoriteRecord, error) {
	records, err := s.scan(func(r *FavoriteRecord) bool {
		if !r.IsFav {
			return false
		}
		if filter.Owner != "" && r.OwnerName() != filter.Owner {
			return false
		}
		if filter.Search != "" {
			needle := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(r.Name), needle) &&
				!strings.Contains(strings.ToLower(r.Description), needle) {
				return false
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	sortRecords(records, filter.Sort, filter.Order)
	return records, nil
}

// ListPendingSync returns every record awaiting upload, in insertion order.
func (s *Store) ListPendingSync() ([]*FavoriteRecord, error) {
	records, err := s.scan(func(r *FavoriteRecord) bool {
		return r.PendingSync && !r.IsSynced
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Seq < records[j].Seq
	})
	return records, nil
}

// ListDistinctOwners returns the distinct owner names across favorited
// records, sorted, for filter population.
func (s *Store) ListDistinctOwners() ([]string, error) {
	seen := map[string]struct{}{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(ownerIdxBucket).ForEach(func(k, v []byte) error {
			if len(v) == 1 && v[0] == 1 {
				owner, _, ok := bytes.Cut(k, []byte{0})
				if ok {
					seen[string(owner)] = struct{}{}
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	owners := make([]string, 0, len(seen))
	for owner := range seen {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	return owners, nil
}

// Counts reports the number of favorited, pending, and total records.
func (s *Store) Counts() (favorites, pending, total int, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(favoritesBucket).ForEach(func(_ []byte, v []byte) error {
			var record FavoriteRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return nil
			}
			total++
			if record.IsFav {
				favorites++
			}
			if record.PendingSync && !record.IsSynced {
				pending++
			}
			return nil
		})
	})
	return favorites, pending, total, err
}

func (s *Store) scan(keep func(*FavoriteRecord) bool) ([]*FavoriteRecord, error) {
	var records []*FavoriteRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(favoritesBucket).ForEach(func(_ []byte, v []byte) error {
			var record FavoriteRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return nil
			}
			record.normalize()
			if keep(&record) {
				records = append(records, &record)
			}
			return nil
		})
	})
	return records, err
}

func sortRecords(records []*FavoriteRecord, sortBy, order string) {
	if sortBy == "" {
		sortBy = SortByCreatedAt
	}
	desc := order != OrderAsc

	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		var less bool
		switch sortBy {
		case SortByName:
			an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
			if an == bn {
				return a.Seq < b.Seq
			}
			less = an < bn
		default:
			if a.CreatedAt == b.CreatedAt {
				return a.Seq < b.Seq
			}
			// ISO-8601 timestamps order lexically.
			less = a.CreatedAt < b.CreatedAt
		}
		if desc {
			return !less
		}
		return less
	})
}

// ------------------------- secondary indexes -------------------------

func indexRecord(tx *bolt.Tx, record *FavoriteRecord) error {
	if err := tx.Bucket(createdIdxBucket).Put(createdKey(record), []byte(record.ID)); err != nil {
		return err
	}
	isFav := byte(0)
	if record.IsFav {
		isFav = 1
	}
	if err := tx.Bucket(ownerIdxBucket).Put(ownerKey(record), []byte{isFav}); err != nil {
		return err
	}
	return tx.Bucket(syncedIdxBucket).Put(syncedKey(record), []byte(record.ID))
}

func deindexRecord(tx *bolt.Tx, record *FavoriteRecord) error {
	if err := tx.Bucket(createdIdxBucket).Delete(createdKey(record)); err != nil {
		return err
	}
	if err := tx.Bucket(ownerIdxBucket).Delete(ownerKey(record)); err != nil {
		return err
	}
	return tx.Bucket(syncedIdxBucket).Delete(syncedKey(record))
}

func createdKey(record *FavoriteRecord) []byte {
	key := make([]byte, 0, len(record.CreatedAt)+9)
	key = append(key, record.CreatedAt...)
	key = append(key, 0)
	key = binary.BigEndian.AppendUint64(key, record.Seq)
	return key
}

func ownerKey(record *FavoriteRecord) []byte {
	key := make([]byte, 0, len(record.OwnerName())+len(record.ID)+1)
	key = append(key, record.OwnerName()...)
	key = append(key, 0)
	key = append(key, record.ID...)
	return key
}

func syncedKey(record *FavoriteRecord) []byte {
	state := byte('0')
	if record.IsSynced {
		state = '1'
	}
	key := make([]byte, 0, len(record.ID)+2)
	key = append(key, state, 0)
	key = append(key, record.ID...)
	return key
}
