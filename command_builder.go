package imap

import (
	"strconv"
	"strings"

	"github.com/jharlan/imap-engine/wire"
)

// PartKind identifies the wire shape of a single Part within a Command.
type PartKind int

const (
	PartAtom PartKind = iota
	PartQuotedString
	PartLiteral
	PartIdleMarker
	PartStartTLSMarker
)

// Part is one word of a command line. Atom and QuotedString parts are
// self-contained and can always be written immediately; a Literal part
// may require the scheduler to suspend the command mid-flight and wait
// for a "+" continuation before writing Data, unless the connection has
// negotiated LITERAL+ (or the caller marked it NonSync directly).
type Part struct {
	Kind    PartKind
	Data    []byte
	NonSync bool // true if this literal may be written without awaiting "+"
	Binary  bool // true for a LITERAL8 (~{N}) part

	// headerSent tracks whether `{N[+]}\r\n` has already been written
	// for this literal. It is engine-private bookkeeping, not part of
	// the logical command.
	headerSent bool
}

// HeaderSent reports whether this literal's length header has already
// been written to the connection.
func (p *Part) HeaderSent() bool { return p.headerSent }

// MarkHeaderSent records that this literal's length header has been
// written, so the scheduler knows only the payload remains.
func (p *Part) MarkHeaderSent() { p.headerSent = true }

// Command is a fully-built IMAP command line, broken into Parts so the
// scheduler can pause between them when a synchronizing literal
// requires a continuation response.
type Command struct {
	Tag  string
	Name string
	Parts []Part
}

// CommandBuilder assembles a Command one word at a time, fluent-chaining
// each appended part the way the rest of this package's builders do.
type CommandBuilder struct {
	cmd *Command
}

// NewCommand starts building a command with the given tag and name
// (e.g. "a1", "FETCH"). Call Build to obtain the finished Command.
func NewCommand(tag, name string) *CommandBuilder {
	return &CommandBuilder{cmd: &Command{Tag: tag, Name: name}}
}

func (b *CommandBuilder) append(p Part) *CommandBuilder {
	b.cmd.Parts = append(b.cmd.Parts, p)
	return b
}

// Atom appends a bare atom, unquoted and unescaped.
func (b *CommandBuilder) Atom(s string) *CommandBuilder {
	return b.append(Part{Kind: PartAtom, Data: []byte(s)})
}

// Number appends an unsigned decimal number as an atom.
func (b *CommandBuilder) Number(n uint32) *CommandBuilder {
	return b.Atom(strconv.FormatUint(uint64(n), 10))
}

// Number64 appends an unsigned 64-bit decimal number as an atom.
func (b *CommandBuilder) Number64(n uint64) *CommandBuilder {
	return b.Atom(strconv.FormatUint(n, 10))
}

// Str appends s using whichever encoding the astring grammar allows
// most cheaply: a bare atom if possible, else a quoted string, else a
// literal (for strings with CR, LF, NUL, or non-ASCII bytes).
func (b *CommandBuilder) Str(s string) *CommandBuilder {
	switch {
	case wire.NeedsLiteral(s):
		return b.append(Part{Kind: PartLiteral, Data: []byte(s)})
	case wire.NeedsQuoting(s):
		return b.append(Part{Kind: PartQuotedString, Data: []byte(s)})
	default:
		return b.append(Part{Kind: PartAtom, Data: []byte(s)})
	}
}

// Literal appends data as an explicit literal, regardless of whether a
// cheaper encoding would fit. Used for message bodies and anywhere the
// caller wants to force literal framing.
func (b *CommandBuilder) Literal(data []byte) *CommandBuilder {
	return b.append(Part{Kind: PartLiteral, Data: data})
}

// LiteralNonSync appends data as a non-synchronizing literal ({N+}).
// The caller is responsible for only using this when LITERAL+ (or
// LITERAL-) has been negotiated via CAPABILITY.
func (b *CommandBuilder) LiteralNonSync(data []byte) *CommandBuilder {
	return b.append(Part{Kind: PartLiteral, Data: data, NonSync: true})
}

// Binary appends data as a LITERAL8 (~{N}) part, for BINARY append
// payloads that may contain NUL bytes (RFC 3516/4466).
func (b *CommandBuilder) Binary(data []byte, nonSync bool) *CommandBuilder {
	return b.append(Part{Kind: PartLiteral, Data: data, Binary: true, NonSync: nonSync})
}

// Mailbox appends a mailbox name, leaving INBOX unquoted per its
// special-cased atom status.
func (b *CommandBuilder) Mailbox(name string) *CommandBuilder {
	if strings.EqualFold(name, "INBOX") {
		return b.Atom("INBOX")
	}
	return b.Str(name)
}

// AtomList appends a parenthesized list of bare atoms as a single
// part, e.g. "(\\Seen \\Answered)". None of flags/attributes/sequence
// sets ever require literal or quoted encoding, so this never needs to
// split across parts.
func (b *CommandBuilder) AtomList(items []string) *CommandBuilder {
	return b.Atom("(" + strings.Join(items, " ") + ")")
}

// NumSet appends a sequence-set or UID-set atom.
func (b *CommandBuilder) NumSet(set NumSet) *CommandBuilder {
	return b.Atom(set.String())
}

// Idle appends the IDLE command-start marker. The scheduler writes
// "IDLE\r\n" and then waits for a continuation before treating further
// lines as untagged responses rather than a new command's tagged
// completion.
func (b *CommandBuilder) Idle() *CommandBuilder {
	return b.append(Part{Kind: PartIdleMarker})
}

// StartTLS appends the STARTTLS marker. The scheduler suspends further
// command writes after this part until the tagged OK arrives, then
// invokes the transport's TLS handshake before resuming.
func (b *CommandBuilder) StartTLS() *CommandBuilder {
	return b.append(Part{Kind: PartStartTLSMarker})
}

// Build finalizes the command.
func (b *CommandBuilder) Build() *Command { return b.cmd }

// Render serializes the command into a single byte slice, writing
// every literal's header and payload inline regardless of
// synchronization. This is only valid when no part requires waiting
// for a server continuation -- i.e. every literal is NonSync or the
// caller already knows LITERAL+ is in effect -- and is mainly useful
// for tests and for commands with no literal parts at all.
func (c *Command) Render() []byte {
	var buf []byte
	buf = append(buf, c.Tag...)
	buf = append(buf, ' ')
	buf = append(buf, c.Name...)
	for _, p := range c.Parts {
		buf = append(buf, ' ')
		switch p.Kind {
		case PartAtom:
			buf = append(buf, p.Data...)
		case PartQuotedString:
			buf = append(buf, renderQuoted(p.Data)...)
		case PartLiteral:
			buf = append(buf, renderLiteralHeader(p)...)
			buf = append(buf, p.Data...)
		case PartIdleMarker:
			buf = buf[:len(buf)-1] // IDLE takes no argument after the command name
		case PartStartTLSMarker:
			buf = buf[:len(buf)-1]
		}
	}
	buf = append(buf, '\r', '\n')
	return buf
}

func renderQuoted(data []byte) []byte {
	out := make([]byte, 0, len(data)+2)
	out = append(out, '"')
	for _, b := range data {
		if wire.IsQuotedSpecial(b) {
			out = append(out, '\\')
		}
		out = append(out, b)
	}
	out = append(out, '"')
	return out
}

func renderLiteralHeader(p Part) []byte {
	var out []byte
	if p.Binary {
		out = append(out, '~')
	}
	out = append(out, '{')
	out = append(out, strconv.Itoa(len(p.Data))...)
	if p.NonSync {
		out = append(out, '+')
	}
	out = append(out, '}', '\r', '\n')
	return out
}
