package tree

import "sync"

// MessageListProxy is a flat view onto one mailbox's MessageList at a
// time. A mail client's message view binds a single proxy to whichever
// mailbox index is currently open; rebinding fires Reset so the view
// knows to drop everything it had cached and re-render from scratch,
// rather than trying to diff the old mailbox's messages against the
// new one's.
type MessageListProxy struct {
	mu      sync.Mutex
	bound   Index
	list    *MessageList
	onReset func()
}

// NewMessageListProxy returns a proxy bound to nothing.
func NewMessageListProxy() *MessageListProxy {
	return &MessageListProxy{}
}

// OnReset registers fn to be called whenever the proxy is rebound to a
// different mailbox. Only one handler is kept; a later call replaces
// the previous one.
func (p *MessageListProxy) OnReset(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onReset = fn
}

// Bind points the proxy at mailbox's message list. If the proxy was
// already bound to a different mailbox, the registered reset handler
// fires before Bind returns.
func (p *MessageListProxy) Bind(idx Index, mailbox *Mailbox) {
	p.mu.Lock()
	already := p.bound.node == idx.node
	p.bound = idx
	p.list = mailbox.MessageList()
	fn := p.onReset
	p.mu.Unlock()
	if !already && fn != nil {
		fn()
	}
}

// Unbind detaches the proxy from any mailbox, firing the reset handler
// if it was previously bound.
func (p *MessageListProxy) Unbind() {
	p.mu.Lock()
	wasBound := p.list != nil
	p.bound = Index{}
	p.list = nil
	fn := p.onReset
	p.mu.Unlock()
	if wasBound && fn != nil {
		fn()
	}
}

// Index returns the mailbox index the proxy is currently bound to.
func (p *MessageListProxy) Index() Index {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bound
}

// List returns the MessageList the proxy is currently bound to, or nil
// if unbound.
func (p *MessageListProxy) List() *MessageList {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.list
}
