package engine

import (
	imap "github.com/jharlan/imap-engine"
)

// PendingTag is a handle for a command registered with RegisterTag whose
// body isn't a single imap.Command -- such as AUTHENTICATE, whose
// continuation exchange is driven by a SASL mechanism rather than by
// literal framing.
type PendingTag struct {
	p *pendingCommand
}

// Done returns the channel the tag's tagged response arrives on.
func (t *PendingTag) Done() <-chan *imap.StatusResponse { return t.p.done }

// RegisterTag registers tag as awaiting a tagged response, the same way
// Execute and StartIdle do internally, for callers that need to drive
// the command's continuation exchange themselves.
func (e *Engine) RegisterTag(tag string) *PendingTag {
	return &PendingTag{p: e.register(tag)}
}

// Unregister drops tag from the pending table without waiting for its
// completion, e.g. after a write failure aborts the command.
func (e *Engine) Unregister(tag string) {
	e.mu.Lock()
	delete(e.pending, tag)
	e.mu.Unlock()
}

// WriteRaw writes b to the connection, serialized against writeCommand
// and StartIdle/StartTLS's own writes by the same outMu.
func (e *Engine) WriteRaw(b []byte) error {
	e.outMu.Lock()
	defer e.outMu.Unlock()
	e.connMu.RLock()
	conn := e.conn
	e.connMu.RUnlock()
	_, err := conn.Write(b)
	return err
}

// WaitContinuation blocks until a "+" continuation request arrives or
// LiteralContinuationTimeout elapses.
func (e *Engine) WaitContinuation() (string, error) {
	return e.waitContinuation()
}
