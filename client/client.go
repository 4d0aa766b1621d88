// Package client implements an IMAP client.
//
// The client supports pipelining (sending multiple commands before waiting
// for responses), automatic capability negotiation, and extensible
// response handling. It sits on top of the engine package, which owns the
// connection's read and write sides; Client itself only tracks
// session-level state (connection state, capabilities, the currently
// selected mailbox's counters) and turns that package's typed responses
// into the higher-level calls below.
package client

import (
	"bufio"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	imap "github.com/jharlan/imap-engine"
	"github.com/jharlan/imap-engine/engine"
	"github.com/jharlan/imap-engine/state"
)

// Client is an IMAP client.
type Client struct {
	conn    net.Conn
	options *Options
	eng     *engine.Engine

	mu                 sync.Mutex
	sm                 *state.Machine
	caps               *imap.CapSet
	mailboxName        string
	mailboxMessages    uint32
	mailboxRecent      uint32
	mailboxUIDValidity uint32
	mailboxUIDNext     uint32
	mailboxUnseen      uint32
	mailboxReadOnly    bool

	// untaggedData collects every untagged response seen since the last
	// collectUntagged, for the command in flight to filter by Kind.
	untaggedMu   sync.Mutex
	untaggedData []*imap.Response

	closed         bool
	disconnectOnce sync.Once
	disconnectCh   chan struct{}
	disconnectErr  error
}

// New creates a new Client from an existing connection, reading and
// parsing the server's greeting before handing the connection to the
// engine.
func New(conn net.Conn, opts ...Option) (*Client, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	c := &Client{
		conn:         conn,
		options:      options,
		disconnectCh: make(chan struct{}),
		sm:           state.New(imap.ConnStateNotAuthenticated),
		caps:         imap.NewCapSet(),
	}

	line, err := readGreetingLine(conn)
	if err != nil {
		return nil, fmt.Errorf("reading greeting: %w", err)
	}
	c.options.Logger.Debug("greeting", "line", line)

	parser := imap.NewParser()
	resp, err := parser.ParseResponse([]byte(line))
	if err != nil {
		return nil, fmt.Errorf("parsing greeting: %w", err)
	}
	if resp.Kind != imap.ResponseState || resp.State == nil {
		return nil, fmt.Errorf("unexpected greeting: %s", line)
	}
	switch resp.State.Type {
	case imap.StatusResponseTypeOK:
		c.sm.Force(imap.ConnStateNotAuthenticated)
	case imap.StatusResponseTypePREAUTH:
		c.sm.Force(imap.ConnStateAuthenticated)
	case imap.StatusResponseTypeBYE:
		return nil, fmt.Errorf("server rejected connection: %s", line)
	default:
		return nil, fmt.Errorf("unexpected greeting: %s", line)
	}
	if resp.State.Code == imap.ResponseCodeCapability {
		if caps, ok := resp.State.CodeArg.([]imap.Cap); ok {
			c.caps.Add(caps...)
		}
	}

	engOpts := []engine.Option{
		engine.WithLogger(options.Logger),
		engine.WithDebugWire(options.DebugLog),
	}
	if options.LiteralContinuationTimeout > 0 {
		engOpts = append(engOpts, engine.WithLiteralContinuationTimeout(options.LiteralContinuationTimeout))
	}
	if options.TagPrefix != "" {
		engOpts = append(engOpts, engine.WithTagPrefix(options.TagPrefix))
	}
	c.eng = engine.New(conn, c.onResponse, engOpts...)
	c.eng.SetLiteralCaps(c.caps.Has("LITERAL+"), c.caps.Has("LITERAL-"))

	go func() {
		<-c.eng.Done()
		c.handleDisconnect(c.eng.Err())
	}()

	return c, nil
}

// readGreetingLine reads exactly one CRLF-terminated line from conn
// without buffering ahead, so the engine's own buffered reader can take
// over the connection from the very next byte without losing any bytes
// already buffered by a larger reader.
func readGreetingLine(conn net.Conn) (string, error) {
	r := bufio.NewReaderSize(conn, 1)
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// onResponse is the engine's ResponseHandler. It runs on the engine's
// reader goroutine: it must not block, and updates to shared state go
// through c.mu the same as every other accessor.
func (c *Client) onResponse(resp *imap.Response) {
	switch resp.Kind {
	case imap.ResponseCapabilityKind:
		c.mu.Lock()
		c.caps = imap.NewCapSet(resp.Capability...)
		c.mu.Unlock()
	case imap.ResponseNumber:
		c.mu.Lock()
		switch resp.Number.NumKind {
		case imap.NumberExists:
			c.mailboxMessages = resp.Number.Num
		case imap.NumberRecent:
			c.mailboxRecent = resp.Number.Num
		}
		c.mu.Unlock()
	case imap.ResponseState:
		if resp.State != nil {
			c.applyStatusCode(resp.State)
		}
	}

	if h := c.options.UnilateralDataHandler; h != nil {
		c.dispatchUnilateral(h, resp)
	}

	c.untaggedMu.Lock()
	c.untaggedData = append(c.untaggedData, resp)
	c.untaggedMu.Unlock()
}

func (c *Client) applyStatusCode(sr *imap.StatusResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch sr.Code {
	case imap.ResponseCodeReadOnly:
		c.mailboxReadOnly = true
	case imap.ResponseCodeReadWrite:
		c.mailboxReadOnly = false
	case imap.ResponseCodeUIDValidity:
		if v, ok := sr.CodeArg.(uint32); ok {
			c.mailboxUIDValidity = v
		}
	case imap.ResponseCodeUIDNext:
		if v, ok := sr.CodeArg.(uint32); ok {
			c.mailboxUIDNext = v
		}
	case imap.ResponseCodeUnseen:
		if v, ok := sr.CodeArg.(uint32); ok {
			c.mailboxUnseen = v
		}
	}
}

func (c *Client) dispatchUnilateral(h *UnilateralDataHandler, resp *imap.Response) {
	switch resp.Kind {
	case imap.ResponseNumber:
		switch resp.Number.NumKind {
		case imap.NumberExists:
			if h.Exists != nil {
				h.Exists(resp.Number.Num)
			}
		case imap.NumberRecent:
			if h.Recent != nil {
				h.Recent(resp.Number.Num)
			}
		case imap.NumberExpunge:
			if h.Expunge != nil {
				h.Expunge(resp.Number.Num)
			}
		}
	case imap.ResponseFetch:
		if h.Fetch != nil && resp.Fetch != nil {
			flags := make([]string, len(resp.Fetch.Flags))
			for i, f := range resp.Fetch.Flags {
				flags[i] = string(f)
			}
			h.Fetch(resp.Fetch.SeqNum, flags)
		}
	}
}

// Dial connects to an IMAP server at the given address.
func Dial(addr string, opts ...Option) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return New(conn, opts...)
}

// DialTLS connects to an IMAP server using TLS.
func DialTLS(addr string, config *tls.Config, opts ...Option) (*Client, error) {
	conn, err := tls.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("dial TLS: %w", err)
	}
	return New(conn, opts...)
}

// State returns the current connection state.
func (c *Client) State() imap.ConnState {
	return c.sm.State()
}

// Caps returns the server's capabilities.
func (c *Client) Caps() []string {
	c.mu.Lock()
	cs := c.caps
	c.mu.Unlock()
	all := cs.All()
	result := make([]string, len(all))
	for i, cp := range all {
		result[i] = string(cp)
	}
	return result
}

// HasCap returns true if the server advertises the given capability.
func (c *Client) HasCap(cap string) bool {
	c.mu.Lock()
	cs := c.caps
	c.mu.Unlock()
	return cs.Has(imap.Cap(cap))
}

// Close closes the client connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.eng.Close()
	c.handleDisconnect(errors.New("connection closed"))
	return err
}

// execute builds a command from name and args, sends it through the
// engine, and returns its tagged status response.
func (c *Client) execute(name string, args ...string) (*imap.StatusResponse, error) {
	if allowed := state.CommandAllowedStates(name); allowed != nil {
		if err := c.sm.RequireState(allowed...); err != nil {
			return nil, err
		}
	}

	builder := imap.NewCommand(c.eng.NextTag(), name)
	for _, a := range args {
		builder.Atom(a)
	}
	return c.eng.Execute(builder.Build())
}

// executeCheck executes a command and returns an error if the response is not OK.
func (c *Client) executeCheck(name string, args ...string) error {
	_, err := c.execute(name, args...)
	return err
}

// collectUntagged returns and clears collected untagged responses.
func (c *Client) collectUntagged() []*imap.Response {
	c.untaggedMu.Lock()
	defer c.untaggedMu.Unlock()
	data := c.untaggedData
	c.untaggedData = nil
	return data
}

func (c *Client) handleDisconnect(err error) {
	if err == nil {
		err = errors.New("connection closed")
	}

	c.disconnectOnce.Do(func() {
		c.mu.Lock()
		c.disconnectErr = err
		c.mu.Unlock()
		close(c.disconnectCh)
	})
}

// Done returns a channel that is closed when the client disconnects.
func (c *Client) Done() <-chan struct{} {
	return c.disconnectCh
}

// DisconnectErr returns the disconnect cause after Done is closed.
func (c *Client) DisconnectErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnectErr
}

// Writer returns the underlying connection for advanced use.
func (c *Client) Writer() io.Writer {
	return c.conn
}

// quoteArg quotes a string for use as an IMAP argument.
func quoteArg(s string) string {
	if s == "" {
		return `""`
	}
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b == ' ' || b == '"' || b == '\\' || b == '(' || b == ')' || b == '{' || b < 0x20 || b > 0x7e {
			var buf strings.Builder
			buf.WriteByte('"')
			for j := 0; j < len(s); j++ {
				if s[j] == '"' || s[j] == '\\' {
					buf.WriteByte('\\')
				}
				buf.WriteByte(s[j])
			}
			buf.WriteByte('"')
			return buf.String()
		}
	}
	return s
}
