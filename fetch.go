package imap

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// FetchOptions specifies what message data items to fetch.
type FetchOptions struct {
	// BodySection specifies BODY[] sections to fetch.
	BodySection []*FetchItemBodySection
	// BodyStructure fetches the MIME body structure (BODYSTRUCTURE).
	BodyStructure bool
	// Envelope fetches the message envelope.
	Envelope bool
	// Flags fetches message flags.
	Flags bool
	// InternalDate fetches the internal date.
	InternalDate bool
	// RFC822Size fetches the RFC822 size.
	RFC822Size bool
	// UID fetches the UID.
	UID bool
	// ModSeq fetches the modification sequence (CONDSTORE).
	ModSeq bool
	// Preview fetches the message preview (RFC 8970).
	Preview bool
	// PreviewLazy indicates the PREVIEW (LAZY) modifier was used (RFC 8970).
	PreviewLazy bool
	// SaveDate fetches the save date (RFC 8514).
	SaveDate bool
	// EmailID fetches the email ID (RFC 8474).
	EmailID bool
	// ThreadID fetches the thread ID (RFC 8474).
	ThreadID bool

	// BinarySection specifies BINARY[] and BINARY.PEEK[] sections to fetch (RFC 3516).
	BinarySection []*FetchItemBinarySection
	// BinarySizeSection specifies BINARY.SIZE[] sections to fetch (RFC 3516).
	// Each entry is a MIME part number list (e.g., []int{1, 2} for part "1.2").
	BinarySizeSection [][]int

	// ChangedSince only fetches messages with a mod-sequence greater than this value.
	ChangedSince uint64
	// Vanished requests VANISHED responses instead of EXPUNGE (QRESYNC).
	Vanished bool
}

// Items renders the requested data items as the parenthesized FETCH
// argument list's members, e.g. ["FLAGS", "UID", "BODY[TEXT]"]. The
// caller joins them with spaces and wraps them in "(...)".
func (o *FetchOptions) Items() []string {
	var items []string
	if o.Envelope {
		items = append(items, "ENVELOPE")
	}
	if o.BodyStructure {
		items = append(items, "BODYSTRUCTURE")
	}
	if o.Flags {
		items = append(items, "FLAGS")
	}
	if o.InternalDate {
		items = append(items, "INTERNALDATE")
	}
	if o.RFC822Size {
		items = append(items, "RFC822.SIZE")
	}
	if o.UID {
		items = append(items, "UID")
	}
	if o.ModSeq {
		items = append(items, "MODSEQ")
	}
	if o.Preview {
		if o.PreviewLazy {
			items = append(items, "PREVIEW (LAZY)")
		} else {
			items = append(items, "PREVIEW")
		}
	}
	if o.SaveDate {
		items = append(items, "SAVEDATE")
	}
	if o.EmailID {
		items = append(items, "EMAILID")
	}
	if o.ThreadID {
		items = append(items, "THREADID")
	}
	for _, s := range o.BodySection {
		items = append(items, s.String())
	}
	for _, s := range o.BinarySection {
		items = append(items, s.String())
	}
	for _, part := range o.BinarySizeSection {
		strs := make([]string, len(part))
		for i, p := range part {
			strs[i] = strconv.Itoa(p)
		}
		items = append(items, fmt.Sprintf("BINARY.SIZE[%s]", strings.Join(strs, ".")))
	}
	if len(items) == 0 {
		items = []string{"UID", "FLAGS"}
	}
	return items
}

// Modifiers renders the FETCH command modifiers that follow the item
// list, e.g. ["CHANGEDSINCE 42", "VANISHED"]. These are appended after
// the closing paren of the item list rather than inside it.
func (o *FetchOptions) Modifiers() []string {
	var mods []string
	if o.ChangedSince > 0 {
		mods = append(mods, fmt.Sprintf("CHANGEDSINCE %d", o.ChangedSince))
	}
	if o.Vanished {
		mods = append(mods, "VANISHED")
	}
	return mods
}

// FetchItemBodySection represents a BODY[section] fetch item. It embeds
// BodySectionName, whose String method renders the wire item name this
// type requests.
type FetchItemBodySection struct {
	BodySectionName
}

// FetchItemBinarySection represents a BINARY[] or BINARY.PEEK[] fetch item (RFC 3516).
type FetchItemBinarySection struct {
	// Part is the MIME part number (e.g., []int{1, 2} for "1.2").
	Part []int
	// Peek prevents setting the \Seen flag (BINARY.PEEK).
	Peek bool
	// Partial is the partial byte range.
	Partial *SectionPartial
}

// String renders the section as a FETCH item name, e.g. "BINARY[1.2]" or
// "BINARY.PEEK[1]<0.100>".
func (s *FetchItemBinarySection) String() string {
	var sb strings.Builder
	sb.WriteString("BINARY")
	if s.Peek {
		sb.WriteString(".PEEK")
	}
	sb.WriteByte('[')
	parts := make([]string, len(s.Part))
	for i, p := range s.Part {
		parts[i] = strconv.Itoa(p)
	}
	sb.WriteString(strings.Join(parts, "."))
	sb.WriteByte(']')
	if s.Partial != nil {
		sb.WriteString(s.Partial.String())
	}
	return sb.String()
}

// BinarySizeData represents a BINARY.SIZE response item (RFC 3516).
type BinarySizeData struct {
	Part []int
	Size uint32
}

// FetchMessageData represents the data returned for a single message in FETCH.
type FetchMessageData struct {
	// SeqNum is the message sequence number.
	SeqNum uint32

	// Items contains the fetched data items.
	Envelope      *Envelope
	BodyStructure *BodyStructure
	Flags         []Flag
	InternalDate  time.Time
	RFC822Size    int64
	UID           UID
	ModSeq        uint64
	Preview    string
	PreviewNIL bool
	SaveDate   *time.Time
	EmailID    string
	ThreadID   string

	// BodySection contains the fetched body sections.
	BodySection map[*FetchItemBodySection]SectionReader

	// BinarySection contains the fetched binary sections (RFC 3516).
	BinarySection map[*FetchItemBinarySection]SectionReader
	// BinarySizeSection contains the sizes for BINARY.SIZE requests (RFC 3516).
	BinarySizeSection []BinarySizeData
}

// SectionReader is a reader for a FETCH body section.
type SectionReader struct {
	io.Reader
	Size int64
}

// FetchMessageBuffer is a FetchMessageData that stores body sections in memory.
type FetchMessageBuffer struct {
	SeqNum        uint32
	Envelope      *Envelope
	BodyStructure *BodyStructure
	Flags         []Flag
	InternalDate  time.Time
	RFC822Size    int64
	UID           UID
	ModSeq        uint64
	Preview    string
	PreviewNIL bool
	SaveDate   *time.Time
	EmailID    string
	ThreadID   string

	// BodySection maps section names to their content.
	BodySection map[string][]byte

	// BinarySection maps part strings (e.g., "1.2") to decoded binary content.
	BinarySection map[string][]byte
	// BinarySizeSection maps part strings to decoded sizes.
	BinarySizeSection map[string]uint32
}
