package client

import (
	"fmt"
	"strings"

	imap "github.com/jharlan/imap-engine"
)

// Select selects a mailbox.
func (c *Client) Select(mailbox string, opts *imap.SelectOptions) (*imap.SelectData, error) {
	cmd := "SELECT"
	if opts != nil && opts.ReadOnly {
		cmd = "EXAMINE"
	}

	c.collectUntagged()

	args := []string{quoteArg(mailbox)}
	if opts != nil {
		if mods := opts.Modifiers(); len(mods) > 0 {
			args = append(args, "("+strings.Join(mods, " ")+")")
		}
	}

	if _, err := c.execute(cmd, args...); err != nil {
		return nil, err
	}

	if err := c.sm.Transition(imap.ConnStateSelected); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.mailboxName = mailbox
	c.mailboxReadOnly = opts != nil && opts.ReadOnly
	data := &imap.SelectData{
		NumMessages: c.mailboxMessages,
		NumRecent:   c.mailboxRecent,
		UIDNext:     imap.UID(c.mailboxUIDNext),
		UIDValidity: c.mailboxUIDValidity,
		FirstUnseen: c.mailboxUnseen,
		ReadOnly:    c.mailboxReadOnly,
	}
	c.mu.Unlock()

	return data, nil
}

// Examine opens a mailbox in read-only mode.
func (c *Client) Examine(mailbox string) (*imap.SelectData, error) {
	return c.Select(mailbox, &imap.SelectOptions{ReadOnly: true})
}

// Create creates a new mailbox.
func (c *Client) Create(mailbox string) error {
	return c.executeCheck("CREATE", quoteArg(mailbox))
}

// CreateWithOptions creates a new mailbox with options.
// If options includes a SpecialUse attribute, the USE parameter is sent
// per RFC 6154: CREATE mailbox (USE (\Sent))
func (c *Client) CreateWithOptions(mailbox string, options *imap.CreateOptions) error {
	args := []string{quoteArg(mailbox)}
	if options != nil && options.SpecialUse != "" {
		args = append(args, "(USE ("+string(options.SpecialUse)+"))")
	}
	return c.executeCheck("CREATE", args...)
}

// Delete deletes a mailbox.
func (c *Client) Delete(mailbox string) error {
	return c.executeCheck("DELETE", quoteArg(mailbox))
}

// Rename renames a mailbox.
func (c *Client) Rename(oldName, newName string) error {
	return c.executeCheck("RENAME", quoteArg(oldName), quoteArg(newName))
}

// Subscribe subscribes to a mailbox.
func (c *Client) Subscribe(mailbox string) error {
	return c.executeCheck("SUBSCRIBE", quoteArg(mailbox))
}

// Unsubscribe unsubscribes from a mailbox.
func (c *Client) Unsubscribe(mailbox string) error {
	return c.executeCheck("UNSUBSCRIBE", quoteArg(mailbox))
}

// ListMailboxes lists mailboxes matching the given reference and pattern.
func (c *Client) ListMailboxes(ref, pattern string) ([]*imap.ListData, error) {
	c.collectUntagged()

	if _, err := c.execute("LIST", quoteArg(ref), quoteArg(pattern)); err != nil {
		return nil, err
	}

	return collectListData(c.collectUntagged()), nil
}

// Lsub lists subscribed mailboxes matching the given reference and
// pattern, the way legacy IMAP4rev1 clients enumerate subscriptions
// before LIST-EXTENDED's (SUBSCRIBED) selection option existed.
func (c *Client) Lsub(ref, pattern string) ([]*imap.ListData, error) {
	c.collectUntagged()

	if _, err := c.execute("LSUB", quoteArg(ref), quoteArg(pattern)); err != nil {
		return nil, err
	}

	var out []*imap.ListData
	for _, r := range c.collectUntagged() {
		if r.Kind == imap.ResponseLSub && r.List != nil {
			out = append(out, r.List)
		}
	}
	return out, nil
}

// ListMailboxesExtended lists mailboxes with extended LIST options (RFC 5258).
func (c *Client) ListMailboxesExtended(ref string, patterns []string, options *imap.ListOptions) ([]*imap.ListData, error) {
	c.collectUntagged()

	var args []string

	if options != nil && hasSelectionOpts(options) {
		var selOpts []string
		if options.SelectSubscribed {
			selOpts = append(selOpts, "SUBSCRIBED")
		}
		if options.SelectRemote {
			selOpts = append(selOpts, "REMOTE")
		}
		if options.SelectRecursiveMatch {
			selOpts = append(selOpts, "RECURSIVEMATCH")
		}
		if options.SelectSpecialUse {
			selOpts = append(selOpts, "SPECIAL-USE")
		}
		args = append(args, "("+strings.Join(selOpts, " ")+")")
	}

	args = append(args, quoteArg(ref))

	if len(patterns) == 1 {
		args = append(args, quoteArg(patterns[0]))
	} else {
		var patternParts []string
		for _, p := range patterns {
			patternParts = append(patternParts, quoteArg(p))
		}
		args = append(args, "("+strings.Join(patternParts, " ")+")")
	}

	if options != nil && hasReturnOpts(options) {
		var retOpts []string
		if options.ReturnSubscribed {
			retOpts = append(retOpts, "SUBSCRIBED")
		}
		if options.ReturnChildren {
			retOpts = append(retOpts, "CHILDREN")
		}
		if options.ReturnSpecialUse {
			retOpts = append(retOpts, "SPECIAL-USE")
		}
		if options.ReturnMyRights {
			retOpts = append(retOpts, "MYRIGHTS")
		}
		if options.ReturnStatus != nil {
			retOpts = append(retOpts, "STATUS ("+strings.Join(options.ReturnStatus.Items(), " ")+")")
		}
		if options.ReturnMetadata != nil {
			var metaParts []string
			for _, opt := range options.ReturnMetadata.Options {
				metaParts = append(metaParts, quoteArg(opt))
			}
			if options.ReturnMetadata.MaxSize > 0 {
				metaParts = append(metaParts, fmt.Sprintf("MAXSIZE %d", options.ReturnMetadata.MaxSize))
			}
			if options.ReturnMetadata.Depth != "" {
				metaParts = append(metaParts, "DEPTH "+options.ReturnMetadata.Depth)
			}
			retOpts = append(retOpts, "METADATA ("+strings.Join(metaParts, " ")+")")
		}
		args = append(args, "RETURN", "("+strings.Join(retOpts, " ")+")")
	}

	if _, err := c.execute("LIST", args...); err != nil {
		return nil, err
	}

	untagged := c.collectUntagged()
	mailboxes := collectListData(untagged)

	mailboxMap := make(map[string]*imap.ListData, len(mailboxes))
	for _, ld := range mailboxes {
		mailboxMap[ld.Mailbox] = ld
	}
	for _, r := range untagged {
		if r.Kind == imap.ResponseStatusKind && r.Status != nil {
			if ld, ok := mailboxMap[r.Status.Mailbox]; ok {
				ld.Status = r.Status
			}
		}
	}

	return mailboxes, nil
}

func collectListData(resps []*imap.Response) []*imap.ListData {
	var out []*imap.ListData
	for _, r := range resps {
		if r.Kind == imap.ResponseList && r.List != nil {
			out = append(out, r.List)
		}
	}
	return out
}

func hasSelectionOpts(opts *imap.ListOptions) bool {
	return opts.SelectSubscribed || opts.SelectRemote || opts.SelectRecursiveMatch || opts.SelectSpecialUse
}

func hasReturnOpts(opts *imap.ListOptions) bool {
	return opts.ReturnSubscribed || opts.ReturnChildren || opts.ReturnSpecialUse ||
		opts.ReturnMyRights || opts.ReturnStatus != nil || opts.ReturnMetadata != nil
}

// Status returns the status of a mailbox.
func (c *Client) Status(mailbox string, opts *imap.StatusOptions) (*imap.StatusData, error) {
	c.collectUntagged()

	if _, err := c.execute("STATUS", quoteArg(mailbox), "("+strings.Join(opts.Items(), " ")+")"); err != nil {
		return nil, err
	}

	for _, r := range c.collectUntagged() {
		if r.Kind == imap.ResponseStatusKind && r.Status != nil {
			return r.Status, nil
		}
	}

	return &imap.StatusData{Mailbox: mailbox}, nil
}

// Check requests a checkpoint of the selected mailbox.
func (c *Client) Check() error {
	return c.executeCheck("CHECK")
}

// Unselect closes the current mailbox without expunging.
func (c *Client) Unselect() error {
	err := c.executeCheck("UNSELECT")
	if err == nil {
		_ = c.sm.Transition(imap.ConnStateAuthenticated)
		c.mu.Lock()
		c.mailboxName = ""
		c.mu.Unlock()
	}
	return err
}

// CloseMailbox closes the current mailbox and expunges deleted messages.
func (c *Client) CloseMailbox() error {
	err := c.executeCheck("CLOSE")
	if err == nil {
		_ = c.sm.Transition(imap.ConnStateAuthenticated)
		c.mu.Lock()
		c.mailboxName = ""
		c.mu.Unlock()
	}
	return err
}

// Namespace requests the server's personal, shared, and other namespaces (RFC 2342).
func (c *Client) Namespace() (*imap.NamespaceData, error) {
	c.collectUntagged()
	if err := c.executeCheck("NAMESPACE"); err != nil {
		return nil, err
	}
	for _, r := range c.collectUntagged() {
		if r.Kind == imap.ResponseNamespaceKind && r.Namespace != nil {
			return r.Namespace, nil
		}
	}
	return &imap.NamespaceData{}, nil
}

// Noop sends a NOOP command.
func (c *Client) Noop() error {
	return c.executeCheck("NOOP")
}

// Capability requests the server's capabilities.
func (c *Client) Capability() ([]string, error) {
	c.collectUntagged()
	if err := c.executeCheck("CAPABILITY"); err != nil {
		return nil, err
	}
	return c.Caps(), nil
}

// Enable enables capabilities.
func (c *Client) Enable(caps ...string) error {
	if len(caps) == 0 {
		return nil
	}
	return c.executeCheck("ENABLE", strings.Join(caps, " "))
}

// Append appends a message to a mailbox.
func (c *Client) Append(mailbox string, flags []imap.Flag, literal []byte) (*imap.AppendData, error) {
	return c.AppendWithOptions(mailbox, &imap.AppendOptions{Flags: flags}, literal)
}

// AppendWithOptions appends a message to a mailbox, additionally
// setting the message's internal date and choosing LITERAL8/UTF8
// framing per opts.
func (c *Client) AppendWithOptions(mailbox string, opts *imap.AppendOptions, literal []byte) (*imap.AppendData, error) {
	if opts == nil {
		opts = &imap.AppendOptions{}
	}

	builder := imap.NewCommand(c.eng.NextTag(), "APPEND").Mailbox(mailbox)
	if fl := opts.FlagList(); fl != "" {
		builder.Atom(fl)
	}
	if !opts.InternalDate.IsZero() {
		builder.Str(imap.InternalDate(opts.InternalDate).String())
	}

	switch {
	case opts.UTF8:
		// RFC 6855 utf8-append wraps the literal in "UTF8 (...)".
		builder.Atom("UTF8 (")
		if opts.Binary {
			builder.Binary(literal, false)
		} else {
			builder.Literal(literal)
		}
		builder.Atom(")")
	case opts.Binary:
		builder.Binary(literal, false)
	default:
		builder.Literal(literal)
	}

	sr, err := c.eng.Execute(builder.Build())
	if err != nil {
		return nil, err
	}

	data := &imap.AppendData{}
	if sr.Code == imap.ResponseCodeAppendUID {
		if arg, ok := sr.CodeArg.(imap.AppendUIDCodeArg); ok {
			data.UIDValidity = arg.UIDValidity
			if arg.UIDs != nil && len(arg.UIDs.Ranges()) > 0 {
				data.UID = imap.UID(arg.UIDs.Ranges()[0].Start)
			}
		}
	}

	return data, nil
}
