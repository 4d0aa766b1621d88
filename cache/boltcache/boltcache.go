// Package boltcache implements cache.Cache on top of a single bbolt
// database file, one mailbox's state per top-level bucket.
package boltcache

import (
	"encoding/binary"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/jharlan/imap-engine/cache"
)

var _ cache.Cache = (*Cache)(nil)

var (
	metaBucket     = []byte("meta")
	seqToUIDBucket = []byte("seqtouid")
	uidToSeqBucket = []byte("uidtoseq")

	keyUIDValidity = []byte("uidvalidity")
	keyUIDNext     = []byte("uidnext")
	keyExists      = []byte("exists")
)

// Store opens (creating if necessary) a bbolt database file and hands
// out a cache.Cache per mailbox via Mailbox.
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltcache: open: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Mailbox returns a Cache backed by the named mailbox's bucket,
// creating it if it doesn't already exist.
func (s *Store) Mailbox(name string) (*Cache, error) {
	bucketName := []byte(name)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		top, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		if _, err := top.CreateBucketIfNotExists(metaBucket); err != nil {
			return err
		}
		if _, err := top.CreateBucketIfNotExists(seqToUIDBucket); err != nil {
			return err
		}
		if _, err := top.CreateBucketIfNotExists(uidToSeqBucket); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("boltcache: create buckets for %q: %w", name, err)
	}
	return &Cache{db: s.db, bucket: bucketName}, nil
}

// Cache is a cache.Cache for a single mailbox, persisted in its own
// top-level bbolt bucket.
type Cache struct {
	db     *bbolt.DB
	bucket []byte
}

func putUint32(b *bbolt.Bucket, key []byte, v uint32) error {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return b.Put(key, buf)
}

func getUint32(b *bbolt.Bucket, key []byte) uint32 {
	v := b.Get(key)
	if len(v) != 4 {
		return 0
	}
	return binary.BigEndian.Uint32(v)
}

func (c *Cache) SetNewNumbers(uidValidity, uidNext, exists uint32) {
	c.db.Update(func(tx *bbolt.Tx) error {
		top := tx.Bucket(c.bucket)
		meta := top.Bucket(metaBucket)
		if getUint32(meta, keyUIDValidity) != uidValidity {
			resetSeqUIDBuckets(top)
		}
		if err := putUint32(meta, keyUIDValidity, uidValidity); err != nil {
			return err
		}
		if err := putUint32(meta, keyUIDNext, uidNext); err != nil {
			return err
		}
		return putUint32(meta, keyExists, exists)
	})
}

func (c *Cache) Forget() {
	c.db.Update(func(tx *bbolt.Tx) error {
		top := tx.Bucket(c.bucket)
		meta := top.Bucket(metaBucket)
		if err := putUint32(meta, keyUIDValidity, 0); err != nil {
			return err
		}
		if err := putUint32(meta, keyUIDNext, 0); err != nil {
			return err
		}
		if err := putUint32(meta, keyExists, 0); err != nil {
			return err
		}
		return resetSeqUIDBuckets(top)
	})
}

func (c *Cache) UIDNext() uint32 {
	var v uint32
	c.db.View(func(tx *bbolt.Tx) error {
		v = getUint32(tx.Bucket(c.bucket).Bucket(metaBucket), keyUIDNext)
		return nil
	})
	return v
}

func (c *Cache) Exists() uint32 {
	var v uint32
	c.db.View(func(tx *bbolt.Tx) error {
		v = getUint32(tx.Bucket(c.bucket).Bucket(metaBucket), keyExists)
		return nil
	})
	return v
}

func (c *Cache) UIDValidity() uint32 {
	var v uint32
	c.db.View(func(tx *bbolt.Tx) error {
		v = getUint32(tx.Bucket(c.bucket).Bucket(metaBucket), keyUIDValidity)
		return nil
	})
	return v
}

func (c *Cache) SeqToUID(seq uint32) (uint32, bool) {
	var uid uint32
	var ok bool
	c.db.View(func(tx *bbolt.Tx) error {
		key := make([]byte, 4)
		binary.BigEndian.PutUint32(key, seq)
		v := tx.Bucket(c.bucket).Bucket(seqToUIDBucket).Get(key)
		if len(v) == 4 {
			uid = binary.BigEndian.Uint32(v)
			ok = true
		}
		return nil
	})
	return uid, ok
}

func (c *Cache) UIDToSeq(uid uint32) (uint32, bool) {
	var seq uint32
	var ok bool
	c.db.View(func(tx *bbolt.Tx) error {
		key := make([]byte, 4)
		binary.BigEndian.PutUint32(key, uid)
		v := tx.Bucket(c.bucket).Bucket(uidToSeqBucket).Get(key)
		if len(v) == 4 {
			seq = binary.BigEndian.Uint32(v)
			ok = true
		}
		return nil
	})
	return seq, ok
}

func (c *Cache) AddSeqUID(seq, uid uint32) {
	c.db.Update(func(tx *bbolt.Tx) error {
		top := tx.Bucket(c.bucket)
		seqKey := make([]byte, 4)
		binary.BigEndian.PutUint32(seqKey, seq)
		uidKey := make([]byte, 4)
		binary.BigEndian.PutUint32(uidKey, uid)
		if err := putUint32(top.Bucket(seqToUIDBucket), seqKey, uid); err != nil {
			return err
		}
		return putUint32(top.Bucket(uidToSeqBucket), uidKey, seq)
	})
}

func (c *Cache) ForgetSeqUID() {
	c.db.Update(func(tx *bbolt.Tx) error {
		return resetSeqUIDBuckets(tx.Bucket(c.bucket))
	})
}

// resetSeqUIDBuckets drops and recreates the two mapping buckets; must
// run inside an Update transaction against top, the mailbox's bucket.
func resetSeqUIDBuckets(top *bbolt.Bucket) error {
	if err := top.DeleteBucket(seqToUIDBucket); err != nil && err != bbolt.ErrBucketNotFound {
		return err
	}
	if err := top.DeleteBucket(uidToSeqBucket); err != nil && err != bbolt.ErrBucketNotFound {
		return err
	}
	if _, err := top.CreateBucket(seqToUIDBucket); err != nil {
		return err
	}
	_, err := top.CreateBucket(uidToSeqBucket)
	return err
}
