// Package engine implements the line-framer and command scheduler that
// sits between a raw connection and the typed IMAP protocol model: it
// assembles literal-bearing responses into single buffers for the
// parser, serializes outgoing commands one part at a time (suspending
// for a continuation request when a literal requires one), and tracks
// IDLE/STARTTLS state transitions that affect how subsequent bytes on
// the wire must be read.
package engine

import (
	"bufio"
	"compress/flate"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	imap "github.com/jharlan/imap-engine"
)

// ResponseHandler is invoked, in order, for every untagged response the
// engine parses. It runs on the engine's single reader goroutine and
// must not block.
type ResponseHandler func(*imap.Response)

type pendingCommand struct {
	tag  string
	done chan *imap.StatusResponse
}

// Engine owns a connection's read and write sides: a single background
// goroutine parses responses and completes pending commands, while
// Execute/StartIdle calls serialize writes from arbitrary goroutines
// under outMu.
type Engine struct {
	opts *Options

	connMu sync.RWMutex // guards swapping conn/r during STARTTLS
	conn   net.Conn
	r      *bufio.Reader

	parser *imap.Parser

	tagCounter atomic.Int64

	mu      sync.Mutex
	pending map[string]*pendingCommand

	literalPlus  bool
	literalMinus bool

	outMu sync.Mutex

	idleMu sync.Mutex
	idling bool

	contMu sync.Mutex
	contCh chan contSignal
	// contExpected counts continuation requests the scheduler is
	// entitled to receive (one per in-flight synchronizing literal or
	// IDLE start); contStanding allows any number while a SASL
	// exchange is in progress. A "+" arriving with neither is a
	// protocol error.
	contExpected int
	contStanding bool

	starttlsMu     sync.Mutex
	starttlsTag    string
	starttlsResume chan struct{}

	handler ResponseHandler

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

type contSignal struct {
	text string
	err  error
}

// New wraps conn with an Engine. The caller must have already consumed
// the server's greeting line (and fed its capabilities, if any, to
// SetLiteralCaps) before issuing commands.
func New(conn net.Conn, handler ResponseHandler, opts ...Option) *Engine {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	e := &Engine{
		opts:    o,
		conn:    conn,
		r:       bufio.NewReaderSize(conn, 4096),
		parser:  imap.NewParser(),
		pending: make(map[string]*pendingCommand),
		contCh:  make(chan contSignal, 1),
		handler: handler,
		closed:  make(chan struct{}),
	}
	go e.readLoop()
	return e
}

// SetLiteralCaps records whether the server advertises LITERAL+ /
// LITERAL-, so writeCommand knows when a synchronizing literal can be
// sent without waiting for a continuation.
func (e *Engine) SetLiteralCaps(plus, minus bool) {
	e.mu.Lock()
	e.literalPlus = plus
	e.literalMinus = minus
	e.mu.Unlock()
}

// NextTag returns a freshly allocated command tag.
func (e *Engine) NextTag() string {
	n := e.tagCounter.Add(1)
	return e.opts.TagPrefix + strconv.FormatInt(n, 10)
}

// Done returns a channel closed once the engine's connection has
// failed or been closed.
func (e *Engine) Done() <-chan struct{} { return e.closed }

// Err returns the error that caused the engine to stop, if any.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeErr
}

// Close closes the underlying connection and fails every pending
// command.
func (e *Engine) Close() error {
	e.connMu.RLock()
	conn := e.conn
	e.connMu.RUnlock()
	err := conn.Close()
	e.fail(errors.New("engine closed"))
	return err
}

func (e *Engine) fail(err error) {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closeErr = err
		pending := e.pending
		e.pending = nil
		e.mu.Unlock()

		for _, p := range pending {
			p.done <- &imap.StatusResponse{Type: imap.StatusResponseTypeBAD, Text: err.Error()}
		}
		select {
		case e.contCh <- contSignal{err: err}:
		default:
		}
		close(e.closed)
	})
}

// readLoop is the sole goroutine that ever touches e.r for reading.
// StartTLS relies on this: it only swaps e.conn/e.r while this
// goroutine is parked inside completeTagged waiting on
// starttlsResume, so there is never a concurrent Read on the old and
// new connections.
func (e *Engine) readLoop() {
	for {
		e.connMu.RLock()
		r := e.r
		e.connMu.RUnlock()

		buf, err := e.readResponseUsing(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			e.fail(err)
			return
		}
		if buf == nil {
			continue
		}
		if err := e.dispatch(buf); err != nil {
			e.connMu.RLock()
			conn := e.conn
			e.connMu.RUnlock()
			_ = conn.Close()
			e.fail(err)
			return
		}
	}
}

// dispatch parses and routes one response buffer. An unrecognized
// response kind is dropped with a warning; any other parse failure is
// fatal to the connection, since there is no way to resynchronize
// mid-stream once the framing assumptions are in doubt.
func (e *Engine) dispatch(buf []byte) error {
	if e.opts.DebugWire {
		e.opts.Logger.Debug("engine: read", "line", string(buf))
	}
	resp, err := e.parser.ParseResponse(buf)
	if err != nil {
		if _, ok := err.(*imap.UnrecognizedResponseKind); ok {
			e.opts.Logger.Warn("engine: dropping unrecognized response", "error", err)
			return nil
		}
		e.opts.Logger.Error("engine: parse error", "error", err, "line", string(buf))
		return err
	}
	if resp.Kind == imap.ResponseState && resp.Tag != "" {
		e.completeTagged(resp.Tag, resp.State)
		return nil
	}
	if resp.Kind == imap.ResponseCapabilityKind {
		e.applyCapabilities(resp.Capability)
	}
	if resp.Kind == imap.ResponseState && resp.State != nil && resp.State.Code == imap.ResponseCodeCapability {
		if caps, ok := resp.State.CodeArg.([]imap.Cap); ok {
			e.applyCapabilities(caps)
		}
	}
	if e.handler != nil {
		e.handler(resp)
	}
	return nil
}

func (e *Engine) applyCapabilities(caps []imap.Cap) {
	var plus, minus bool
	for _, c := range caps {
		switch strings.ToUpper(string(c)) {
		case "LITERAL+":
			plus = true
		case "LITERAL-":
			minus = true
		}
	}
	if plus || minus {
		e.SetLiteralCaps(plus, minus)
	}
}

func (e *Engine) expectContinuation() {
	e.contMu.Lock()
	e.contExpected++
	e.contMu.Unlock()
}

func (e *Engine) cancelContinuation() {
	e.contMu.Lock()
	if e.contExpected > 0 {
		e.contExpected--
	}
	e.contMu.Unlock()
}

// BeginContinuationExchange allows any number of continuation requests
// until EndContinuationExchange, for command flows like AUTHENTICATE
// whose challenge/response round count is decided by the server.
func (e *Engine) BeginContinuationExchange() {
	e.contMu.Lock()
	e.contStanding = true
	e.contMu.Unlock()
}

// EndContinuationExchange closes the allowance opened by
// BeginContinuationExchange.
func (e *Engine) EndContinuationExchange() {
	e.contMu.Lock()
	e.contStanding = false
	e.contMu.Unlock()
}

func (e *Engine) handleContinuationLine(trimmed []byte) error {
	e.contMu.Lock()
	allowed := e.contStanding || e.contExpected > 0
	if !e.contStanding && e.contExpected > 0 {
		e.contExpected--
	}
	e.contMu.Unlock()
	if !allowed {
		return imap.NewContinuationRequest(trimmed, 0)
	}
	text := ""
	if len(trimmed) > 2 {
		text = string(trimmed[2:])
	}
	select {
	case e.contCh <- contSignal{text: text}:
	default:
	}
	return nil
}

// completeTagged runs on the readLoop goroutine. When the tagged
// response belongs to a pending STARTTLS or COMPRESS, it blocks here --
// before readLoop can issue another Read -- until StartTLS or Compress
// has finished swapping the connection, so the swap never races a
// concurrent read on the old socket.
func (e *Engine) completeTagged(tag string, sr *imap.StatusResponse) {
	e.mu.Lock()
	p, ok := e.pending[tag]
	if ok {
		delete(e.pending, tag)
	}
	e.mu.Unlock()
	if ok {
		p.done <- sr
	}

	e.starttlsMu.Lock()
	resume := e.starttlsResume
	isSTARTTLS := resume != nil && tag == e.starttlsTag
	e.starttlsMu.Unlock()
	if isSTARTTLS {
		<-resume
	}
}

func (e *Engine) register(tag string) *pendingCommand {
	p := &pendingCommand{tag: tag, done: make(chan *imap.StatusResponse, 1)}
	e.mu.Lock()
	e.pending[tag] = p
	e.mu.Unlock()
	return p
}

// Execute writes cmd and blocks until its tagged response arrives.
func (e *Engine) Execute(cmd *imap.Command) (*imap.StatusResponse, error) {
	p := e.register(cmd.Tag)
	sr, err := e.writeCommandAborting(cmd, p.done)
	if err != nil {
		e.mu.Lock()
		delete(e.pending, cmd.Tag)
		e.mu.Unlock()
		return nil, err
	}
	if sr == nil {
		sr = <-p.done
	}
	if sr == nil {
		return nil, e.Err()
	}
	if sr.IsOK() {
		return sr, nil
	}
	return sr, &imap.IMAPError{StatusResponse: sr}
}

// writeCommand is writeCommandAborting without a tagged channel, for
// commands that cannot carry a synchronizing literal.
func (e *Engine) writeCommand(cmd *imap.Command) error {
	_, err := e.writeCommandAborting(cmd, nil)
	return err
}

// writeCommandAborting serializes cmd part by part, suspending for a
// "+" continuation before writing a literal's payload unless the part
// is already marked NonSync or the connection has negotiated LITERAL+.
// If the server answers a continuation wait with the command's tagged
// response instead (a NO/BAD refusing the literal), emission is
// aborted and that response is returned with no error.
func (e *Engine) writeCommandAborting(cmd *imap.Command, tagged <-chan *imap.StatusResponse) (*imap.StatusResponse, error) {
	e.outMu.Lock()
	defer e.outMu.Unlock()

	e.mu.Lock()
	literalPlus := e.literalPlus
	e.mu.Unlock()

	e.connMu.RLock()
	conn := e.conn
	e.connMu.RUnlock()

	// A command arriving while the connection is idling implicitly
	// terminates the IDLE: DONE goes out first, then the new command.
	e.idleMu.Lock()
	if e.idling {
		if _, err := conn.Write([]byte("DONE\r\n")); err != nil {
			e.idleMu.Unlock()
			return nil, err
		}
		e.idling = false
	}
	e.idleMu.Unlock()

	w := bufio.NewWriterSize(conn, 4096)
	write := func(b []byte) error {
		_, err := w.Write(b)
		return err
	}

	if err := write([]byte(cmd.Tag)); err != nil {
		return nil, err
	}
	if err := write([]byte(" " + cmd.Name)); err != nil {
		return nil, err
	}

	for i := range cmd.Parts {
		p := &cmd.Parts[i]
		switch p.Kind {
		case imap.PartIdleMarker, imap.PartStartTLSMarker:
			continue
		}
		if err := write([]byte{' '}); err != nil {
			return nil, err
		}
		switch p.Kind {
		case imap.PartAtom:
			if err := write(p.Data); err != nil {
				return nil, err
			}
		case imap.PartQuotedString:
			if err := write(renderQuoted(p.Data)); err != nil {
				return nil, err
			}
		case imap.PartLiteral:
			nonSync := p.NonSync || literalPlus
			header := literalHeader(len(p.Data), nonSync, p.Binary)
			if err := write(header); err != nil {
				return nil, err
			}
			if !nonSync {
				// Registered before the flush: the server's "+" may
				// race the return of Flush itself.
				e.expectContinuation()
			}
			if err := w.Flush(); err != nil {
				if !nonSync {
					e.cancelContinuation()
				}
				return nil, err
			}
			if !nonSync {
				select {
				case sig := <-e.contCh:
					if sig.err != nil {
						return nil, sig.err
					}
				case sr := <-tagged:
					// nil channel when no tagged abort is possible;
					// receiving means the server refused the literal.
					e.cancelContinuation()
					return sr, nil
				case <-time.After(e.opts.LiteralContinuationTimeout):
					e.cancelContinuation()
					return nil, imap.NewSocketTimeout("timed out waiting for literal continuation")
				}
			}
			if err := write(p.Data); err != nil {
				return nil, err
			}
		}
	}
	if err := write([]byte("\r\n")); err != nil {
		return nil, err
	}
	return nil, w.Flush()
}

func (e *Engine) waitContinuation() (string, error) {
	select {
	case sig := <-e.contCh:
		return sig.text, sig.err
	case <-time.After(e.opts.LiteralContinuationTimeout):
		e.cancelContinuation()
		return "", imap.NewSocketTimeout("timed out waiting for literal continuation")
	}
}

func renderQuoted(data []byte) []byte {
	out := make([]byte, 0, len(data)+2)
	out = append(out, '"')
	for _, b := range data {
		if b == '"' || b == '\\' {
			out = append(out, '\\')
		}
		out = append(out, b)
	}
	out = append(out, '"')
	return out
}

func literalHeader(n int, nonSync, binary bool) []byte {
	var out []byte
	if binary {
		out = append(out, '~')
	}
	out = append(out, '{')
	out = append(out, strconv.Itoa(n)...)
	if nonSync {
		out = append(out, '+')
	}
	out = append(out, '}', '\r', '\n')
	return out
}

// IdleSession represents an in-progress IDLE command.
type IdleSession struct {
	e *Engine
	p *pendingCommand
}

// StartIdle sends the IDLE command and waits for the server's "+"
// continuation that marks idling as active. From that point until Stop
// (or until another command implicitly terminates the IDLE, see
// writeCommand) the server may push untagged updates at any time.
func (e *Engine) StartIdle(tag string) (*IdleSession, error) {
	p := e.register(tag)

	cmd := &imap.Command{Tag: tag, Name: "IDLE"}
	e.expectContinuation()
	if err := e.writeCommand(cmd); err != nil {
		e.cancelContinuation()
		return nil, err
	}

	// A server that refuses IDLE answers with the tagged NO/BAD
	// instead of a continuation; racing the two keeps a rejection from
	// stalling until the continuation timeout.
	select {
	case sig := <-e.contCh:
		if sig.err != nil {
			return nil, sig.err
		}
	case sr := <-p.done:
		e.cancelContinuation()
		if sr == nil {
			return nil, e.Err()
		}
		return nil, &imap.IMAPError{StatusResponse: sr}
	case <-time.After(e.opts.LiteralContinuationTimeout):
		e.cancelContinuation()
		return nil, imap.NewSocketTimeout("timed out waiting for IDLE continuation")
	}

	e.idleMu.Lock()
	e.idling = true
	e.idleMu.Unlock()
	return &IdleSession{e: e, p: p}, nil
}

// Stop sends DONE (unless a later command already did) and waits for
// IDLE's tagged completion.
func (s *IdleSession) Stop() (*imap.StatusResponse, error) {
	e := s.e
	e.outMu.Lock()
	e.idleMu.Lock()
	stillIdling := e.idling
	e.idling = false
	e.idleMu.Unlock()
	var err error
	if stillIdling {
		e.connMu.RLock()
		conn := e.conn
		e.connMu.RUnlock()
		_, err = conn.Write([]byte("DONE\r\n"))
	}
	e.outMu.Unlock()
	if err != nil {
		return nil, err
	}

	sr := <-s.p.done
	if sr == nil {
		return nil, s.e.Err()
	}
	if sr.IsOK() {
		return sr, nil
	}
	return sr, &imap.IMAPError{StatusResponse: sr}
}

// StartTLS sends a STARTTLS command and, if the server accepts it,
// upgrades the connection in place. The reader goroutine is parked
// (see completeTagged) from the moment the tagged OK is dispatched
// until the handshake finishes, so the handshake never races a
// concurrent Read on the plaintext socket, and whatever the old
// bufio.Reader had already buffered is fed into the handshake before
// falling back to the raw connection.
func (e *Engine) StartTLS(tag string, config *tls.Config) (*imap.StatusResponse, error) {
	e.starttlsMu.Lock()
	e.starttlsTag = tag
	e.starttlsResume = make(chan struct{})
	e.starttlsMu.Unlock()

	resumeOnce := func() {
		e.starttlsMu.Lock()
		if e.starttlsResume != nil {
			close(e.starttlsResume)
			e.starttlsResume = nil
		}
		e.starttlsTag = ""
		e.starttlsMu.Unlock()
	}

	cmd := &imap.Command{Tag: tag, Name: "STARTTLS"}
	sr, err := e.Execute(cmd)
	if err != nil {
		resumeOnce()
		return sr, err
	}

	e.connMu.Lock()
	tlsConn := tls.Client(&bufferedConn{Conn: e.conn, br: e.r}, config)
	hsErr := tlsConn.Handshake()
	if hsErr == nil {
		e.conn = tlsConn
		e.r = bufio.NewReaderSize(tlsConn, 4096)
	}
	e.connMu.Unlock()
	resumeOnce()

	if hsErr != nil {
		return sr, fmt.Errorf("engine: tls handshake: %w", hsErr)
	}
	return sr, nil
}

// bufferedConn lets a TLS handshake drain bytes already buffered by
// bufio.Reader before reading further from the raw connection.
type bufferedConn struct {
	net.Conn
	br *bufio.Reader
}

func (b *bufferedConn) Read(p []byte) (int, error) {
	if b.br.Buffered() > 0 {
		return b.br.Read(p)
	}
	return b.Conn.Read(p)
}

// Compress sends "COMPRESS DEFLATE" (RFC 4978) and, once the server
// accepts it, wraps the connection in a DEFLATE compressor/decompressor
// for every byte from that point on. It reuses StartTLS's pattern of
// swapping e.conn/e.r under connMu once the tagged OK has already been
// dispatched, so the readLoop goroutine never races the swap.
func (e *Engine) Compress(tag string) (*imap.StatusResponse, error) {
	e.starttlsMu.Lock()
	e.starttlsTag = tag
	e.starttlsResume = make(chan struct{})
	e.starttlsMu.Unlock()
	// Registered first so it runs last, after connMu is released below.
	defer func() {
		e.starttlsMu.Lock()
		if e.starttlsResume != nil {
			close(e.starttlsResume)
			e.starttlsResume = nil
		}
		e.starttlsTag = ""
		e.starttlsMu.Unlock()
	}()

	cmd := imap.NewCommand(tag, imap.CommandCompress).Atom("DEFLATE").Build()
	sr, err := e.Execute(cmd)
	if err != nil {
		return sr, err
	}

	e.connMu.Lock()
	defer e.connMu.Unlock()

	drained := &bufferedConn{Conn: e.conn, br: e.r}
	zw, zerr := flate.NewWriter(e.conn, flate.DefaultCompression)
	if zerr != nil {
		return sr, fmt.Errorf("engine: starting deflate writer: %w", zerr)
	}
	e.conn = &deflateConn{Conn: e.conn, zr: flate.NewReader(drained), zw: zw}
	e.r = bufio.NewReaderSize(e.conn, 4096)
	return sr, nil
}

// deflateConn wraps a net.Conn so every Read passes through a flate
// decompressor and every Write is compressed and flushed immediately,
// since IMAP commands/responses are not otherwise buffered by the
// connection itself.
type deflateConn struct {
	net.Conn
	zr io.ReadCloser
	zw *flate.Writer
}

func (d *deflateConn) Read(p []byte) (int, error) {
	return d.zr.Read(p)
}

func (d *deflateConn) Write(p []byte) (int, error) {
	n, err := d.zw.Write(p)
	if err != nil {
		return n, err
	}
	if err := d.zw.Flush(); err != nil {
		return n, err
	}
	return n, nil
}

func (d *deflateConn) Close() error {
	_ = d.zw.Close()
	_ = d.zr.Close()
	return d.Conn.Close()
}
