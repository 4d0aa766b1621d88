package client

import (
	"fmt"
	"strconv"
	"sync"

	imap "github.com/jharlan/imap-engine"
	"github.com/jharlan/imap-engine/cache"
	"github.com/jharlan/imap-engine/tree"
)

// Browser drives a tree.AccountRoot over a live connection: each
// "load" call issues the command that populates one node's children
// (LIST for mailboxes, SELECT plus a UID enumeration for a message
// list, FETCH for message fields and body parts) and applies the
// responses back into the tree, maintaining the loading/fetched bits
// along the way. One Browser owns one tree; the tree itself never
// talks to the connection.
type Browser struct {
	c    *Client
	root *tree.AccountRoot

	mu       sync.Mutex
	selected *tree.Mailbox
	caches   map[string]cache.Cache
	newCache func(mailbox string) cache.Cache
}

// BrowserOption configures a Browser.
type BrowserOption func(*Browser)

// WithCacheFactory sets the factory used to create the per-mailbox
// cache backend. The default keeps everything in memory.
func WithCacheFactory(f func(mailbox string) cache.Cache) BrowserOption {
	return func(b *Browser) { b.newCache = f }
}

// NewBrowser returns a Browser over c with an empty account root.
func NewBrowser(c *Client, opts ...BrowserOption) *Browser {
	b := &Browser{
		c:        c,
		root:     tree.NewAccountRoot(tree.WithLogger(c.options.Logger)),
		caches:   make(map[string]cache.Cache),
		newCache: func(string) cache.Cache { return cache.NewMemCache() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Root returns the account root the Browser populates.
func (b *Browser) Root() *tree.AccountRoot { return b.root }

// Model returns an index model over the Browser's tree.
func (b *Browser) Model() *tree.Model { return tree.NewModel(b.root) }

// Cache returns the cache backend for the named mailbox, creating it
// on first use.
func (b *Browser) Cache(mailbox string) cache.Cache {
	b.mu.Lock()
	defer b.mu.Unlock()
	cc, ok := b.caches[mailbox]
	if !ok {
		cc = b.newCache(mailbox)
		b.caches[mailbox] = cc
	}
	return cc
}

// LoadTopLevel populates the account root's top-level mailboxes via
// LIST "" "%".
func (b *Browser) LoadTopLevel() error {
	items, err := b.c.ListMailboxes("", "%")
	if err != nil {
		return err
	}
	b.root.SetChildren(items)
	return nil
}

// LoadChildren populates mb's child mailboxes. If mb's LIST attributes
// already say it has none, the child list is marked fetched without a
// round trip.
func (b *Browser) LoadChildren(mb *tree.Mailbox) error {
	if has, ok := mb.HasChildMailboxes(); ok && !has {
		mb.ApplyChildren(nil)
		return nil
	}
	sep := "/"
	if mb.Delim != 0 {
		sep = string(mb.Delim)
	}
	mb.BeginFetchChildren()
	items, err := b.c.ListMailboxes("", mb.Path()+sep+"%")
	if err != nil {
		mb.AbortFetchChildren()
		return err
	}
	mb.ApplyChildren(items)
	return nil
}

// Open selects mb, sizes its message list from the EXISTS count,
// records the mailbox's UIDVALIDITY/UIDNEXT/EXISTS triple in its
// cache, and establishes the sequence-to-UID correspondence with a
// FETCH 1:* (UID) enumeration.
func (b *Browser) Open(mb *tree.Mailbox) error {
	if mb.HasAttr(imap.MailboxAttrNoSelect) {
		return imap.NewInvalidArgument("cannot open a \\Noselect mailbox: " + mb.Path())
	}
	ml := mb.MessageList()
	ml.BeginFetch()

	data, err := b.c.Select(mb.Path(), nil)
	if err != nil {
		ml.AbortFetch()
		return err
	}

	ml.ApplyExists(data.NumMessages)

	cc := b.Cache(mb.Path())
	if cc.UIDValidity() != 0 && cc.UIDValidity() != data.UIDValidity {
		cc.Forget()
	}
	cc.SetNewNumbers(data.UIDValidity, uint32(data.UIDNext), data.NumMessages)

	if data.NumMessages > 0 {
		buffers, err := b.c.Fetch("1:*", "(UID)")
		if err != nil {
			ml.AbortFetch()
			return err
		}
		for _, fb := range buffers {
			if err := ml.ApplyFetch(fb.SeqNum, fb); err != nil {
				ml.AbortFetch()
				return err
			}
			cc.AddSeqUID(fb.SeqNum, uint32(fb.UID))
		}
	}
	ml.FinishFetch()

	b.mu.Lock()
	b.selected = mb
	b.mu.Unlock()
	return nil
}

// Selected returns the mailbox most recently opened via Open, or nil.
func (b *Browser) Selected() *tree.Mailbox {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.selected
}

func (b *Browser) selectedList() (*tree.Mailbox, *tree.MessageList, error) {
	b.mu.Lock()
	mb := b.selected
	b.mu.Unlock()
	if mb == nil {
		return nil, nil, imap.NewInvalidArgument("no mailbox is open")
	}
	return mb, mb.MessageList(), nil
}

// LoadMessage fetches the envelope/flags/size/internal-date group for
// the message at seq in the open mailbox and returns the updated slot.
func (b *Browser) LoadMessage(seq uint32) (*tree.Message, error) {
	_, ml, err := b.selectedList()
	if err != nil {
		return nil, err
	}
	buffers, err := b.c.Fetch(strconv.FormatUint(uint64(seq), 10), "(ENVELOPE FLAGS RFC822.SIZE INTERNALDATE)")
	if err != nil {
		return nil, err
	}
	for _, fb := range buffers {
		if err := ml.ApplyFetch(fb.SeqNum, fb); err != nil {
			return nil, err
		}
	}
	return ml.At(seq), nil
}

// LoadBodyStructure fetches the MIME structure for the message at seq,
// establishing its body-part tree.
func (b *Browser) LoadBodyStructure(seq uint32) (*tree.Message, error) {
	_, ml, err := b.selectedList()
	if err != nil {
		return nil, err
	}
	buffers, err := b.c.Fetch(strconv.FormatUint(uint64(seq), 10), "(BODYSTRUCTURE)")
	if err != nil {
		return nil, err
	}
	for _, fb := range buffers {
		if err := ml.ApplyFetch(fb.SeqNum, fb); err != nil {
			return nil, err
		}
	}
	return ml.At(seq), nil
}

// LoadBodyPart fetches the raw bytes of one body part of the message
// at seq, filling the part's Data in place and returning it.
func (b *Browser) LoadBodyPart(seq uint32, part *tree.BodyPart) ([]byte, error) {
	_, ml, err := b.selectedList()
	if err != nil {
		return nil, err
	}
	section := part.SectionName()
	buffers, err := b.c.Fetch(strconv.FormatUint(uint64(seq), 10), "("+section+")")
	if err != nil {
		return nil, err
	}
	for _, fb := range buffers {
		if err := ml.ApplyFetch(fb.SeqNum, fb); err != nil {
			return nil, err
		}
	}
	if !part.Fetched() {
		return nil, imap.NewUnexpectedResponseError(fmt.Sprintf("server answered FETCH %d %s without the requested section", seq, section))
	}
	return part.Data, nil
}

// UnilateralHandler returns a handler that keeps the open mailbox's
// message list in sync with unsolicited EXISTS/EXPUNGE/FETCH updates,
// for wiring into WithUnilateralDataHandler at client construction.
func (b *Browser) UnilateralHandler() *UnilateralDataHandler {
	return &UnilateralDataHandler{
		Exists: func(count uint32) {
			if _, ml, err := b.selectedList(); err == nil {
				ml.ApplyExists(count)
			}
		},
		Expunge: func(seqNum uint32) {
			mb, ml, err := b.selectedList()
			if err != nil {
				return
			}
			if err := ml.ApplyExpunge(seqNum, b.Cache(mb.Path())); err != nil {
				b.c.options.Logger.Warn("browse: dropping EXPUNGE", "seq", seqNum, "error", err)
			}
		},
		Fetch: func(seqNum uint32, flags []string) {
			_, ml, err := b.selectedList()
			if err != nil {
				return
			}
			fl := make([]imap.Flag, len(flags))
			for i, f := range flags {
				fl[i] = imap.Flag(f)
			}
			if err := ml.ApplyFetch(seqNum, &imap.FetchMessageBuffer{SeqNum: seqNum, Flags: fl}); err != nil {
				b.c.options.Logger.Warn("browse: dropping FETCH", "seq", seqNum, "error", err)
			}
		},
	}
}
