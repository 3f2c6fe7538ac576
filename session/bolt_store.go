package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

var boltBucket = []byte("sessions")

// BoltStore implements [Store] on an embedded bbolt file for single-node
// deployments. Expiry is enforced on read from the record envelope; a
// background sweeper reclaims expired records.
type BoltStore struct {
	db     *bbolt.DB
	ownsDB bool
	now    func() time.Time

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

var _ Store = (*BoltStore)(nil)

// NewBoltStore wraps an open database. When sweepEvery is positive a
// goroutine removes expired records at that interval until [BoltStore.Close].
func NewBoltStore(db *bbolt.DB, sweepEvery time.Duration) (*BoltStore, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating session bucket: %w", err)
	}

	s := &BoltStore{
		db:   db,
		now:  time.Now,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	if sweepEvery > 0 {
		go s.sweepLoop(sweepEvery)
	} else {
		close(s.done)
	}
	return s, nil
}

// OpenBoltStore opens (or creates) the database at path. The returned store
// closes the database on [BoltStore.Close].
func OpenBoltStore(path string, sweepEvery time.Duration) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	s, err := NewBoltStore(db, sweepEvery)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// Save writes attrs under key unless a live record already holds it.
func (s *BoltStore) Save(ctx context.Context, key string, attrs Attributes, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return backendError(err)
	}
	if ttl <= 0 {
		return fmt.Errorf("session ttl must be positive, got %s", ttl)
	}
	now := s.now()
	data, err := Encode(newRecord(key, attrs, now, ttl))
	if err != nil {
		return err
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(boltBucket)
		if existing := b.Get([]byte(key)); existing != nil {
			if rec, decErr := Decode(existing); decErr == nil && !rec.Expired(now) {
				return ErrKeyExists
			}
		}
		return b.Put([]byte(key), data)
	})
	if errors.Is(err, ErrKeyExists) {
		return err
	}
	if err != nil {
		return backendError(err)
	}
	return nil
}

// Load reads the record under key.
func (s *BoltStore) Load(ctx context.Context, key string) (Attributes, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, backendError(err)
	}

	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(boltBucket).Get([]byte(key)); v != nil {
			// v is only valid for the life of the transaction
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, backendError(err)
	}
	if data == nil {
		return nil, false, nil
	}

	rec, err := Decode(data)
	if err != nil {
		return nil, false, err
	}
	if rec.Expired(s.now()) {
		return nil, false, nil
	}
	return rec.Attributes, true, nil
}

// Delete removes key.
func (s *BoltStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return backendError(err)
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucket).Delete([]byte(key))
	})
	if err != nil {
		return backendError(err)
	}
	return nil
}

// Sweep removes expired and undecodable records and returns how many were deleted.
func (s *BoltStore) Sweep() (int, error) {
	now := s.now()
	removed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(boltBucket)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			rec, err := Decode(v)
			if err != nil || rec.Expired(now) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
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
	if err != nil {
		return 0, backendError(err)
	}
	return removed, nil
}

func (s *BoltStore) sweepLoop(every time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			_, _ = s.Sweep()
		}
	}
}

// Close stops the sweeper and, for stores from [OpenBoltStore], closes the database.
func (s *BoltStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		<-s.done
		if s.ownsDB {
			err = s.db.Close()
		}
	})
	return err
}
