// Package mongocache implements cache.Cache on top of MongoDB, storing
// one document per mailbox for the UIDVALIDITY/UIDNEXT/EXISTS triple
// and one document per sequence-number/UID pair in a sibling
// collection.
package mongocache

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jharlan/imap-engine/cache"
)

var _ cache.Cache = (*Cache)(nil)

type stateDoc struct {
	Mailbox     string `bson:"mailbox"`
	UIDValidity uint32 `bson:"uidValidity"`
	UIDNext     uint32 `bson:"uidNext"`
	Exists      uint32 `bson:"exists"`
}

type seqUIDDoc struct {
	Mailbox string `bson:"mailbox"`
	Seq     uint32 `bson:"seq"`
	UID     uint32 `bson:"uid"`
}

// Store hands out a cache.Cache per mailbox backed by collections in a
// single MongoDB database.
type Store struct {
	state  *mongo.Collection
	seqUID *mongo.Collection
}

// NewStore wraps database's "mailbox_state" and "mailbox_seqmap"
// collections as a cache.Cache factory.
func NewStore(database *mongo.Database) *Store {
	return &Store{
		state:  database.Collection("mailbox_state"),
		seqUID: database.Collection("mailbox_seqmap"),
	}
}

// Mailbox returns a Cache scoped to the named mailbox.
func (s *Store) Mailbox(name string) *Cache {
	return &Cache{store: s, mailbox: name}
}

// Cache is a cache.Cache for a single mailbox, persisted in MongoDB.
// Every method runs its own short-lived context.Background() query:
// the Cache interface it satisfies is synchronous by design, used from
// code paths (mailbox tree bookkeeping) that have no cancellation
// signal of their own to thread through.
type Cache struct {
	store   *Store
	mailbox string
}

func (c *Cache) SetNewNumbers(uidValidity, uidNext, exists uint32) {
	ctx := context.Background()
	existing, _ := c.loadState(ctx)
	if existing != nil && existing.UIDValidity != uidValidity {
		c.ForgetSeqUID()
	}
	_, err := c.store.state.UpdateOne(ctx,
		bson.M{"mailbox": c.mailbox},
		bson.M{"$set": stateDoc{
			Mailbox:     c.mailbox,
			UIDValidity: uidValidity,
			UIDNext:     uidNext,
			Exists:      exists,
		}},
		options.Update().SetUpsert(true),
	)
	_ = err // best-effort cache write; a failed cache update never blocks protocol progress
}

func (c *Cache) Forget() {
	ctx := context.Background()
	c.store.state.DeleteOne(ctx, bson.M{"mailbox": c.mailbox})
	c.ForgetSeqUID()
}

func (c *Cache) loadState(ctx context.Context) (*stateDoc, error) {
	var doc stateDoc
	err := c.store.state.FindOne(ctx, bson.M{"mailbox": c.mailbox}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongocache: load state for %q: %w", c.mailbox, err)
	}
	return &doc, nil
}

func (c *Cache) UIDNext() uint32 {
	doc, _ := c.loadState(context.Background())
	if doc == nil {
		return 0
	}
	return doc.UIDNext
}

func (c *Cache) Exists() uint32 {
	doc, _ := c.loadState(context.Background())
	if doc == nil {
		return 0
	}
	return doc.Exists
}

func (c *Cache) UIDValidity() uint32 {
	doc, _ := c.loadState(context.Background())
	if doc == nil {
		return 0
	}
	return doc.UIDValidity
}

func (c *Cache) SeqToUID(seq uint32) (uint32, bool) {
	var doc seqUIDDoc
	err := c.store.seqUID.FindOne(context.Background(), bson.M{"mailbox": c.mailbox, "seq": seq}).Decode(&doc)
	if err != nil {
		return 0, false
	}
	return doc.UID, true
}

func (c *Cache) UIDToSeq(uid uint32) (uint32, bool) {
	var doc seqUIDDoc
	err := c.store.seqUID.FindOne(context.Background(), bson.M{"mailbox": c.mailbox, "uid": uid}).Decode(&doc)
	if err != nil {
		return 0, false
	}
	return doc.Seq, true
}

func (c *Cache) AddSeqUID(seq, uid uint32) {
	ctx := context.Background()
	c.store.seqUID.UpdateOne(ctx,
		bson.M{"mailbox": c.mailbox, "seq": seq},
		bson.M{"$set": seqUIDDoc{Mailbox: c.mailbox, Seq: seq, UID: uid}},
		options.Update().SetUpsert(true),
	)
}

func (c *Cache) ForgetSeqUID() {
	c.store.seqUID.DeleteMany(context.Background(), bson.M{"mailbox": c.mailbox})
}
