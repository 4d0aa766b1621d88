package tree

import (
	"fmt"
	"log/slog"
	"sync"

	imap "github.com/jharlan/imap-engine"
)

// AccountRoot is the root of the mailbox hierarchy: the implicit parent
// of every top-level mailbox a LIST "" "%" would return. It is never
// itself fetched from the server.
type AccountRoot struct {
	mu       sync.RWMutex
	children []*Mailbox
	logger   *slog.Logger
}

// NewAccountRoot returns an empty account root.
func NewAccountRoot(opts ...Option) *AccountRoot {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &AccountRoot{logger: o.Logger}
}

func (r *AccountRoot) row() int       { return -1 }
func (r *AccountRoot) parent() Node   { return nil }
func (r *AccountRoot) childCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.children)
}
func (r *AccountRoot) childAt(row int) Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.children[row]
}

// SetChildren replaces the top-level mailbox list, typically from a
// LIST "" "%" response. Existing *Mailbox values whose names match are
// reused so already-fetched state (children, message list) survives a
// re-list.
func (r *AccountRoot) SetChildren(items []*imap.ListData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.children = mergeMailboxes(r, r.children, items)
	if r.logger != nil {
		r.logger.Debug("tree: account root children fetched", "count", len(items))
	}
}

// Child returns the named top-level mailbox, if present.
func (r *AccountRoot) Child(name string) (*Mailbox, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.children {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Mailbox is one node of the hierarchy: a name, its attributes and
// hierarchy delimiter, its child mailboxes (fetched via LIST), and the
// message list SELECT/EXAMINE populates.
type Mailbox struct {
	mu sync.RWMutex

	Name  string
	Delim rune
	Attrs []imap.MailboxAttr

	parentNode Node
	rowIndex   int

	children []*Mailbox

	// childrenLoading is true while a LIST request for this mailbox's
	// children is outstanding.
	childrenLoading bool
	// childrenFetched is true once children has been populated at
	// least once.
	childrenFetched bool

	messageList *MessageList
}

func newMailbox(parent Node, row int, name string, delim rune, attrs []imap.MailboxAttr) *Mailbox {
	mb := &Mailbox{
		Name:       name,
		Delim:      delim,
		Attrs:      attrs,
		parentNode: parent,
		rowIndex:   row,
	}
	mb.messageList = &MessageList{logger: mb.rootLogger()}
	if imap.HasMailboxAttr(attrs, imap.MailboxAttrNoSelect) {
		mb.messageList.markPermanentlyFetched()
	}
	return mb
}

func (m *Mailbox) row() int     { return m.rowIndex }
func (m *Mailbox) parent() Node { return m.parentNode }
func (m *Mailbox) childCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.children)
}
func (m *Mailbox) childAt(row int) Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.children[row]
}

// HasAttr reports whether m's attribute list contains attr.
func (m *Mailbox) HasAttr(attr imap.MailboxAttr) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return imap.HasMailboxAttr(m.Attrs, attr)
}

// HasChildMailboxes reports, without issuing any command, whether m is
// known to have child mailboxes. ok is false when the LIST attributes
// don't say either way and a LIST of m's children is required to find
// out.
func (m *Mailbox) HasChildMailboxes() (has bool, ok bool) {
	switch {
	case m.HasAttr(imap.MailboxAttrNoInferiors), m.HasAttr(imap.MailboxAttrHasNoChildren):
		return false, true
	case m.HasAttr(imap.MailboxAttrHasChildren):
		return true, true
	default:
		return false, false
	}
}

// ChildrenFetched reports whether m.Children has been populated.
func (m *Mailbox) ChildrenFetched() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.childrenFetched
}

// ChildrenLoading reports whether a LIST for m's children is in flight.
func (m *Mailbox) ChildrenLoading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.childrenLoading
}

// BeginFetchChildren marks m's children as loading; call before issuing
// the LIST that will populate them.
func (m *Mailbox) BeginFetchChildren() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.childrenLoading = true
}

// AbortFetchChildren clears the loading bit without marking the
// children fetched, for a LIST that failed.
func (m *Mailbox) AbortFetchChildren() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.childrenLoading = false
}

// ApplyChildren populates m's children from a LIST response for
// m.Name+m.Delim+"%", clearing the loading bit and setting fetched.
func (m *Mailbox) ApplyChildren(items []*imap.ListData) {
	m.mu.Lock()
	m.children = mergeMailboxes(m, m.children, items)
	m.childrenLoading = false
	m.childrenFetched = true
	m.mu.Unlock()
	if logger := m.rootLogger(); logger != nil {
		logger.Debug("tree: mailbox children fetched", "mailbox", m.Name, "count", len(items))
	}
}

// rootLogger walks up to the AccountRoot to find the logger configured
// at construction time.
func (m *Mailbox) rootLogger() *slog.Logger {
	var n Node = m
	for {
		p := n.parent()
		if p == nil {
			if root, ok := n.(*AccountRoot); ok {
				return root.logger
			}
			return nil
		}
		n = p
	}
}

// Children returns m's child mailboxes. Call ChildrenFetched first to
// tell whether this list is authoritative.
func (m *Mailbox) Children() []*Mailbox {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Mailbox, len(m.children))
	copy(out, m.children)
	return out
}

// MessageList returns the message list bound to m, creating it if this
// is the first access.
func (m *Mailbox) MessageList() *MessageList {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.messageList == nil {
		m.messageList = &MessageList{logger: m.rootLogger()}
		if imap.HasMailboxAttr(m.Attrs, imap.MailboxAttrNoSelect) {
			m.messageList.markPermanentlyFetched()
		}
	}
	return m.messageList
}

// mergeMailboxes builds the new child slice for parent from a LIST
// response, reusing existing *Mailbox values for names already present
// so that prior fetches (children, message list) aren't discarded by a
// re-list.
func mergeMailboxes(parent Node, existing []*Mailbox, items []*imap.ListData) []*Mailbox {
	byName := make(map[string]*Mailbox, len(existing))
	for _, c := range existing {
		byName[c.Name] = c
	}
	out := make([]*Mailbox, 0, len(items))
	for i, it := range items {
		if mb, ok := byName[it.Mailbox]; ok {
			mb.mu.Lock()
			mb.Attrs = it.Attrs
			mb.Delim = it.Delim
			mb.rowIndex = i
			mb.parentNode = parent
			ml := mb.messageList
			mb.mu.Unlock()
			if ml != nil && imap.HasMailboxAttr(it.Attrs, imap.MailboxAttrNoSelect) {
				ml.markPermanentlyFetched()
			}
			out = append(out, mb)
			continue
		}
		out = append(out, newMailbox(parent, i, it.Mailbox, it.Delim, it.Attrs))
	}
	return out
}

// Path renders m's ancestor chain joined by its hierarchy delimiters,
// e.g. "INBOX/Archive/2024".
func (m *Mailbox) Path() string {
	m.mu.RLock()
	name, delim, parent := m.Name, m.Delim, m.parentNode
	m.mu.RUnlock()
	if pm, ok := parent.(*Mailbox); ok {
		sep := "/"
		if delim != 0 {
			sep = string(delim)
		}
		return fmt.Sprintf("%s%s%s", pm.Path(), sep, name)
	}
	return name
}
