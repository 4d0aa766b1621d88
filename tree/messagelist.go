package tree

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	imap "github.com/jharlan/imap-engine"

	"github.com/jharlan/imap-engine/cache"
)

// ErrNotSized is returned by ApplyFetch and ApplyExpunge when the
// message list hasn't received an EXISTS count yet, so there is no slot
// array to apply the update to.
var ErrNotSized = errors.New("tree: message list has no EXISTS count yet")

// ErrSeqOutOfRange is returned when a FETCH or EXPUNGE response names a
// sequence number beyond the message list's current size.
var ErrSeqOutOfRange = errors.New("tree: sequence number out of range")

// MessageList is the ordered, 1-indexed-by-sequence-number set of
// messages in a selected mailbox. It starts unsized (nil Messages) until
// an EXISTS response (normally the one untagged EXISTS a SELECT/EXAMINE
// returns) establishes its length; every slot is created empty and
// unfetched, and is filled in lazily as FETCH responses arrive for it.
type MessageList struct {
	mu       sync.RWMutex
	messages []*Message
	sized    bool
	logger   *slog.Logger

	// loading is true while the SELECT/UID-enumeration pair that
	// populates the list is outstanding; fetched is true once it has
	// completed. The two are never both true. A list whose mailbox is
	// \Noselect is permanently fetched: no messages will ever load.
	loading   bool
	fetched   bool
	permanent bool
}

// Fetched reports whether the list's contents are current.
func (ml *MessageList) Fetched() bool {
	ml.mu.RLock()
	defer ml.mu.RUnlock()
	return ml.fetched
}

// Loading reports whether a populate request is in flight.
func (ml *MessageList) Loading() bool {
	ml.mu.RLock()
	defer ml.mu.RUnlock()
	return ml.loading
}

// BeginFetch marks the list as loading, before the SELECT that will
// populate it is issued. It is a no-op on a permanently fetched
// (\Noselect) list.
func (ml *MessageList) BeginFetch() {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	if ml.permanent {
		return
	}
	ml.loading = true
	ml.fetched = false
}

// AbortFetch clears the loading bit without marking the list fetched,
// for a populate request that failed.
func (ml *MessageList) AbortFetch() {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	ml.loading = false
}

// FinishFetch marks the populate request as complete.
func (ml *MessageList) FinishFetch() {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	ml.loading = false
	ml.fetched = true
}

// markPermanentlyFetched pins the list in the fetched state; used for
// \Noselect mailboxes, which can never be opened.
func (ml *MessageList) markPermanentlyFetched() {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	ml.permanent = true
	ml.fetched = true
	ml.loading = false
}

// Sized reports whether an EXISTS count has been applied yet.
func (ml *MessageList) Sized() bool {
	ml.mu.RLock()
	defer ml.mu.RUnlock()
	return ml.sized
}

// Len returns the current slot count.
func (ml *MessageList) Len() int {
	ml.mu.RLock()
	defer ml.mu.RUnlock()
	return len(ml.messages)
}

// At returns the message at the given sequence number (1-based), or nil
// if that slot hasn't been fetched yet. It panics if seq is out of
// range, mirroring a slice index.
func (ml *MessageList) At(seq uint32) *Message {
	ml.mu.RLock()
	defer ml.mu.RUnlock()
	return ml.messages[seq-1]
}

// Messages returns a snapshot of the current slots, some of which may
// be nil (not yet fetched).
func (ml *MessageList) Messages() []*Message {
	ml.mu.RLock()
	defer ml.mu.RUnlock()
	out := make([]*Message, len(ml.messages))
	copy(out, ml.messages)
	return out
}

// ApplyExists resizes the list to count slots in response to an EXISTS
// response, the way the server reports a mailbox's size on SELECT and
// whenever new messages arrive. Slots within the old length are kept as
// they were; new slots beyond it start out empty and unfetched.
func (ml *MessageList) ApplyExists(count uint32) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	n := int(count)
	switch {
	case n == len(ml.messages):
	case n > len(ml.messages):
		ml.messages = append(ml.messages, make([]*Message, n-len(ml.messages))...)
	default:
		ml.messages = ml.messages[:n]
	}
	ml.sized = true
	if ml.logger != nil {
		ml.logger.Debug("tree: message list resized", "exists", n)
	}
}

// ApplyExpunge removes the message at sequence number seq, shifting
// every following slot's sequence number down by one, and tells cache c
// to drop one from its cached EXISTS count. c may be nil, in which case
// only the in-memory list is updated.
func (ml *MessageList) ApplyExpunge(seq uint32, c cache.Cache) error {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	if !ml.sized {
		return ErrNotSized
	}
	idx := int(seq) - 1
	if idx < 0 || idx >= len(ml.messages) {
		return fmt.Errorf("%w: EXPUNGE %d, have %d messages", ErrSeqOutOfRange, seq, len(ml.messages))
	}
	ml.messages = append(ml.messages[:idx], ml.messages[idx+1:]...)
	for i := idx; i < len(ml.messages); i++ {
		if ml.messages[i] != nil {
			ml.messages[i].SeqNum--
		}
	}
	if c != nil {
		exists := c.Exists()
		if exists > 0 {
			exists--
		}
		c.SetNewNumbers(c.UIDValidity(), c.UIDNext(), exists)
	}
	if ml.logger != nil {
		ml.logger.Debug("tree: message expunged", "seq", seq, "remaining", len(ml.messages))
	}
	return nil
}

// ApplyFetch merges a FETCH response's attributes into the message at
// sequence number seq, creating that slot's Message on first touch. Each
// attribute kind present in fb is applied independently and marks only
// that kind as fetched; BODYSTRUCTURE additionally (re)builds the
// message's BodyPart tree.
func (ml *MessageList) ApplyFetch(seq uint32, fb *imap.FetchMessageBuffer) error {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	if !ml.sized {
		return ErrNotSized
	}
	idx := int(seq) - 1
	if idx < 0 || idx >= len(ml.messages) {
		return fmt.Errorf("%w: FETCH %d, have %d messages", ErrSeqOutOfRange, seq, len(ml.messages))
	}
	msg := ml.messages[idx]
	if msg == nil {
		msg = &Message{SeqNum: seq}
		ml.messages[idx] = msg
	}
	msg.applyFetch(fb)
	if ml.logger != nil {
		ml.logger.Debug("tree: fetch applied", "seq", seq)
	}
	return nil
}

// Message is one mailbox entry. Fields are filled in as FETCH responses
// name them; Fetched reports which groups have arrived so far.
type Message struct {
	mu sync.RWMutex

	SeqNum uint32
	UID    imap.UID
	ModSeq uint64

	Envelope     *imap.Envelope
	Flags        []imap.Flag
	RFC822Size   int64
	InternalDate time.Time

	BodyStructure *imap.BodyStructure
	Parts         *BodyPart

	fetchedEnvelope bool
	fetchedFlags    bool
	fetchedSize     bool
	fetchedDate     bool
	fetchedStruct   bool
}

func (msg *Message) applyFetch(fb *imap.FetchMessageBuffer) {
	if fb.UID != 0 {
		msg.UID = fb.UID
	}
	if fb.ModSeq != 0 {
		msg.ModSeq = fb.ModSeq
	}
	if fb.Envelope != nil {
		msg.Envelope = fb.Envelope
		msg.fetchedEnvelope = true
	}
	if fb.Flags != nil {
		msg.Flags = fb.Flags
		msg.fetchedFlags = true
	}
	if fb.RFC822Size != 0 {
		msg.RFC822Size = fb.RFC822Size
		msg.fetchedSize = true
	}
	if !fb.InternalDate.IsZero() {
		msg.InternalDate = fb.InternalDate
		msg.fetchedDate = true
	}
	if fb.BodyStructure != nil {
		msg.BodyStructure = fb.BodyStructure
		msg.Parts = buildBodyPartTree(fb.BodyStructure, "")
		msg.fetchedStruct = true
	}
	for section, data := range fb.BodySection {
		msg.applyBodySectionLocked(section, data)
	}
}

func (msg *Message) applyBodySectionLocked(section string, data []byte) {
	if msg.Parts == nil {
		return
	}
	if part := msg.Parts.findByBodySectionName(section); part != nil {
		part.mu.Lock()
		part.Data = data
		part.fetched = true
		part.mu.Unlock()
	}
}

// FetchedEnvelope reports whether ENVELOPE has been fetched.
func (msg *Message) FetchedEnvelope() bool {
	msg.mu.RLock()
	defer msg.mu.RUnlock()
	return msg.fetchedEnvelope
}

// FetchedFlags reports whether FLAGS has been fetched.
func (msg *Message) FetchedFlags() bool {
	msg.mu.RLock()
	defer msg.mu.RUnlock()
	return msg.fetchedFlags
}

// FetchedSize reports whether RFC822.SIZE has been fetched.
func (msg *Message) FetchedSize() bool {
	msg.mu.RLock()
	defer msg.mu.RUnlock()
	return msg.fetchedSize
}

// FetchedInternalDate reports whether INTERNALDATE has been fetched.
func (msg *Message) FetchedInternalDate() bool {
	msg.mu.RLock()
	defer msg.mu.RUnlock()
	return msg.fetchedDate
}

// FetchedBodyStructure reports whether BODYSTRUCTURE has been fetched.
func (msg *Message) FetchedBodyStructure() bool {
	msg.mu.RLock()
	defer msg.mu.RUnlock()
	return msg.fetchedStruct
}

// BodyPart is one node of a message's MIME structure, built from a
// BODYSTRUCTURE response. Leaf part bytes are filled in lazily by a
// BODY[path] fetch.
type BodyPart struct {
	mu sync.RWMutex

	// Path is the IMAP part-number path, e.g. "1.2"; empty for the
	// top-level part of a non-multipart message.
	Path string

	Type        string
	Subtype     string
	Params      map[string]string
	ID          string
	Description string
	Encoding    string
	Size        uint32

	Children []*BodyPart

	Data    []byte
	fetched bool
}

// Fetched reports whether this part's bytes have been retrieved.
func (p *BodyPart) Fetched() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fetched
}

// SectionName returns the BODY[path] section name used to fetch this
// part's bytes.
func (p *BodyPart) SectionName() string {
	if p.Path == "" {
		return "BODY[TEXT]"
	}
	return fmt.Sprintf("BODY[%s]", p.Path)
}

func buildBodyPartTree(bs *imap.BodyStructure, path string) *BodyPart {
	part := &BodyPart{
		Path:        path,
		Type:        bs.Type,
		Subtype:     bs.Subtype,
		Params:      bs.Params,
		ID:          bs.ID,
		Description: bs.Description,
		Encoding:    bs.Encoding,
		Size:        bs.Size,
	}
	for i := range bs.Children {
		childPath := fmt.Sprintf("%d", i+1)
		if path != "" {
			childPath = path + "." + childPath
		}
		part.Children = append(part.Children, buildBodyPartTree(&bs.Children[i], childPath))
	}
	return part
}

// findByBodySectionName walks the part tree looking for the part whose
// SectionName matches section; the top-level part also matches the
// aliases BODY[] and BODY. BODY[HEADER] matches no part.
func (p *BodyPart) findByBodySectionName(section string) *BodyPart {
	if p.SectionName() == section {
		return p
	}
	if p.Path == "" && (section == "BODY[]" || section == "BODY") {
		return p
	}
	for _, c := range p.Children {
		if found := c.findByBodySectionName(section); found != nil {
			return found
		}
	}
	return nil
}
