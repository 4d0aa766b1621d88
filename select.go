package imap

import (
	"fmt"
	"strconv"
	"strings"
)

// SelectOptions specifies options for the SELECT/EXAMINE command.
type SelectOptions struct {
	// ReadOnly opens the mailbox in read-only mode (EXAMINE).
	ReadOnly bool
	// CondStore enables CONDSTORE for this mailbox (RFC 7162).
	CondStore bool
	// QResync enables quick resync (RFC 7162).
	QResync *SelectQResync
}

// Modifiers renders the select-params that follow the mailbox name,
// e.g. ["CONDSTORE"] or ["QRESYNC (67890007 90060115194045000 1:29997,30000,30002:*)"].
// A nil receiver (no options given) yields no modifiers.
func (o *SelectOptions) Modifiers() []string {
	if o == nil {
		return nil
	}
	var mods []string
	if o.CondStore {
		mods = append(mods, "CONDSTORE")
	}
	if o.QResync != nil {
		mods = append(mods, o.QResync.String())
	}
	return mods
}

// SelectQResync contains QRESYNC parameters.
type SelectQResync struct {
	UIDValidity uint32
	ModSeq      uint64
	KnownUIDs   *UIDSet
	SeqMatch    *QResyncSeqMatch
}

// String renders the QRESYNC select-param, e.g.
// "QRESYNC (67890007 90060115194045000 1:29997,30000,30002:* (5,7:9 101,110:113))".
func (q *SelectQResync) String() string {
	parts := []string{
		strconv.FormatUint(uint64(q.UIDValidity), 10),
		strconv.FormatUint(q.ModSeq, 10),
	}
	if q.KnownUIDs != nil {
		parts = append(parts, q.KnownUIDs.String())
	}
	if q.SeqMatch != nil {
		parts = append(parts, fmt.Sprintf("(%s %s)", q.SeqMatch.SeqNums.String(), q.SeqMatch.UIDs.String()))
	}
	return "QRESYNC (" + strings.Join(parts, " ") + ")"
}

// QResyncSeqMatch contains known sequence number to UID mappings for QRESYNC.
type QResyncSeqMatch struct {
	SeqNums *SeqSet
	UIDs    *UIDSet
}

// SelectData represents the data returned by SELECT/EXAMINE.
type SelectData struct {
	// Flags is the list of defined flags in the mailbox.
	Flags []Flag
	// PermanentFlags is the list of flags that can be changed permanently.
	PermanentFlags []Flag
	// NumMessages is the number of messages in the mailbox.
	NumMessages uint32
	// NumRecent is the number of recent messages (IMAP4rev1 only).
	NumRecent uint32
	// UIDNext is the predicted next UID.
	UIDNext UID
	// UIDValidity is the UID validity value.
	UIDValidity uint32
	// FirstUnseen is the sequence number of the first unseen message.
	FirstUnseen uint32
	// HighestModSeq is the highest modification sequence (CONDSTORE).
	HighestModSeq uint64
	// ReadOnly is true if the mailbox was opened read-only.
	ReadOnly bool

	// MailboxID is the mailbox ID (RFC 8474).
	MailboxID string
}
