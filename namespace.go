package imap

import "strings"

// NamespaceData represents the result of a NAMESPACE command.
type NamespaceData struct {
	Personal []NamespaceDescriptor
	Other    []NamespaceDescriptor
	Shared   []NamespaceDescriptor
}

// Find returns the namespace descriptor, across all three categories,
// whose prefix is the longest match for mailbox, and ok is false if
// none applies.
func (d *NamespaceData) Find(mailbox string) (desc NamespaceDescriptor, ok bool) {
	best := -1
	consider := func(descs []NamespaceDescriptor) {
		for _, nd := range descs {
			if nd.Prefix != "" && !strings.HasPrefix(mailbox, nd.Prefix) {
				continue
			}
			if len(nd.Prefix) > best {
				best = len(nd.Prefix)
				desc = nd
				ok = true
			}
		}
	}
	consider(d.Personal)
	consider(d.Other)
	consider(d.Shared)
	return desc, ok
}

// NamespaceDescriptor describes a single namespace.
type NamespaceDescriptor struct {
	// Prefix is the namespace prefix.
	Prefix string
	// Delim is the hierarchy delimiter character (0 if none).
	Delim rune
}

// String renders the descriptor as a NAMESPACE response element, e.g.
// (\"INBOX.\" \".\").
func (nd NamespaceDescriptor) String() string {
	delim := ""
	if nd.Delim != 0 {
		delim = string(nd.Delim)
	}
	return "(\"" + nd.Prefix + "\" \"" + delim + "\")"
}
