// Package cache defines the storage contract a mailbox's message tree
// uses to remember UIDVALIDITY/UIDNEXT/EXISTS and the seq<->UID mapping
// across connections, plus a trivial in-memory implementation of it.
package cache

import "sync"

// Cache is implemented by anything that can persist one mailbox's
// numbering state between sessions: the values the server reports via
// SELECT/STATUS/EXISTS, and the sequence-number-to-UID correspondence
// built up as FETCH/SEARCH responses arrive.
type Cache interface {
	// SetNewNumbers records a fresh UIDVALIDITY/UIDNEXT/EXISTS triple,
	// as reported by a SELECT or STATUS response.
	SetNewNumbers(uidValidity, uidNext, exists uint32)

	// Forget discards everything cached for this mailbox, including
	// the seq<->UID mapping. Called when UIDVALIDITY changes.
	Forget()

	// UIDNext, Exists, and UIDValidity report the most recently stored
	// values, or zero if nothing has been cached yet.
	UIDNext() uint32
	Exists() uint32
	UIDValidity() uint32

	// SeqToUID and UIDToSeq look up the other half of a cached
	// sequence-number/UID pair. ok is false if seq/uid isn't known.
	SeqToUID(seq uint32) (uid uint32, ok bool)
	UIDToSeq(uid uint32) (seq uint32, ok bool)

	// AddSeqUID records a sequence-number/UID correspondence.
	AddSeqUID(seq, uid uint32)

	// ForgetSeqUID discards the seq<->UID mapping but keeps the
	// UIDVALIDITY/UIDNEXT/EXISTS triple, e.g. after an EXPUNGE
	// renumbers the mailbox.
	ForgetSeqUID()
}

// MemCache is a Cache that keeps everything in memory for the lifetime
// of the process; nothing survives a restart. It is the default when
// no persistent backend is configured.
type MemCache struct {
	mu sync.RWMutex

	uidValidity uint32
	uidNext     uint32
	exists      uint32

	seqToUID map[uint32]uint32
	uidToSeq map[uint32]uint32
}

// NewMemCache returns an empty MemCache.
func NewMemCache() *MemCache {
	return &MemCache{
		seqToUID: make(map[uint32]uint32),
		uidToSeq: make(map[uint32]uint32),
	}
}

func (c *MemCache) SetNewNumbers(uidValidity, uidNext, exists uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if uidValidity != c.uidValidity {
		c.forgetSeqUIDLocked()
	}
	c.uidValidity = uidValidity
	c.uidNext = uidNext
	c.exists = exists
}

func (c *MemCache) Forget() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uidValidity = 0
	c.uidNext = 0
	c.exists = 0
	c.forgetSeqUIDLocked()
}

func (c *MemCache) UIDNext() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.uidNext
}

func (c *MemCache) Exists() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.exists
}

func (c *MemCache) UIDValidity() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.uidValidity
}

func (c *MemCache) SeqToUID(seq uint32) (uint32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	uid, ok := c.seqToUID[seq]
	return uid, ok
}

func (c *MemCache) UIDToSeq(uid uint32) (uint32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seq, ok := c.uidToSeq[uid]
	return seq, ok
}

func (c *MemCache) AddSeqUID(seq, uid uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seqToUID[seq] = uid
	c.uidToSeq[uid] = seq
}

func (c *MemCache) ForgetSeqUID() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forgetSeqUIDLocked()
}

func (c *MemCache) forgetSeqUIDLocked() {
	c.seqToUID = make(map[uint32]uint32)
	c.uidToSeq = make(map[uint32]uint32)
}
