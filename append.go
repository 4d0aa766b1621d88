package imap

import (
	"strings"
	"time"
)

// AppendOptions specifies options for the APPEND command.
type AppendOptions struct {
	// Flags is the list of flags to set on the message.
	Flags []Flag
	// InternalDate is the internal date to set on the message.
	InternalDate time.Time
	// Binary indicates the message was sent using binary literal (~{N}) notation (RFC 3516).
	Binary bool
	// UTF8 indicates the message was sent using UTF8 literal notation (RFC 6855).
	UTF8 bool
}

// FlagList renders o.Flags as the parenthesized atom list that follows
// the mailbox name in an APPEND command, e.g. "(\\Seen \\Draft)". It
// returns "" when there are no flags, so callers can omit the list
// entirely rather than sending "()".
func (o *AppendOptions) FlagList() string {
	if len(o.Flags) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteByte('(')
	for i, f := range o.Flags {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(string(f))
	}
	sb.WriteByte(')')
	return sb.String()
}

// AppendData represents the result of an APPEND command.
type AppendData struct {
	// UIDValidity is the UID validity of the destination mailbox.
	UIDValidity uint32
	// UID is the UID assigned to the appended message (UIDPLUS).
	UID UID
}
