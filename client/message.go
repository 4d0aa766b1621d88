package client

import (
	"fmt"
	"strings"

	imap "github.com/jharlan/imap-engine"
)

// Fetch retrieves message data for the given sequence set.
func (c *Client) Fetch(seqSet string, items string) ([]*imap.FetchMessageBuffer, error) {
	c.collectUntagged()
	if _, err := c.execute("FETCH", seqSet, items); err != nil {
		return nil, err
	}
	return collectFetch(c.collectUntagged()), nil
}

// UIDFetch retrieves message data using UIDs.
func (c *Client) UIDFetch(uidSet string, items string) ([]*imap.FetchMessageBuffer, error) {
	c.collectUntagged()
	if _, err := c.execute("UID FETCH", uidSet, items); err != nil {
		return nil, err
	}
	return collectFetch(c.collectUntagged()), nil
}

// FetchWithOptions retrieves message data for the given sequence set,
// building the FETCH item list and CONDSTORE/QRESYNC modifiers from
// opts instead of requiring the caller to assemble the raw item string.
func (c *Client) FetchWithOptions(seqSet string, opts *imap.FetchOptions) ([]*imap.FetchMessageBuffer, error) {
	return c.fetchWithOptions("FETCH", seqSet, opts)
}

// UIDFetchWithOptions is FetchWithOptions using UIDs instead of sequence numbers.
func (c *Client) UIDFetchWithOptions(uidSet string, opts *imap.FetchOptions) ([]*imap.FetchMessageBuffer, error) {
	return c.fetchWithOptions("UID FETCH", uidSet, opts)
}

func (c *Client) fetchWithOptions(cmd, numSet string, opts *imap.FetchOptions) ([]*imap.FetchMessageBuffer, error) {
	if opts == nil {
		opts = &imap.FetchOptions{}
	}
	args := []string{numSet, "(" + strings.Join(opts.Items(), " ") + ")"}
	if mods := opts.Modifiers(); len(mods) > 0 {
		args = append(args, "("+strings.Join(mods, " ")+")")
	}

	c.collectUntagged()
	if _, err := c.execute(cmd, args...); err != nil {
		return nil, err
	}
	return collectFetch(c.collectUntagged()), nil
}

func collectFetch(resps []*imap.Response) []*imap.FetchMessageBuffer {
	var out []*imap.FetchMessageBuffer
	for _, r := range resps {
		if r.Kind == imap.ResponseFetch && r.Fetch != nil {
			out = append(out, r.Fetch)
		}
	}
	return out
}

// Store modifies message flags.
func (c *Client) Store(seqSet string, action imap.StoreAction, flags []imap.Flag, silent bool) error {
	return c.StoreWithOptions(seqSet, &imap.StoreFlags{Action: action, Silent: silent, Flags: flags}, nil)
}

// UIDStore modifies message flags using UIDs.
func (c *Client) UIDStore(uidSet string, action imap.StoreAction, flags []imap.Flag, silent bool) error {
	return c.UIDStoreWithOptions(uidSet, &imap.StoreFlags{Action: action, Silent: silent, Flags: flags}, nil)
}

// StoreWithOptions modifies message flags, additionally allowing a
// CONDSTORE UNCHANGEDSINCE guard via opts.
func (c *Client) StoreWithOptions(seqSet string, sf *imap.StoreFlags, opts *imap.StoreOptions) error {
	return c.storeWithOptions("STORE", seqSet, sf, opts)
}

// UIDStoreWithOptions is StoreWithOptions using UIDs instead of sequence numbers.
func (c *Client) UIDStoreWithOptions(uidSet string, sf *imap.StoreFlags, opts *imap.StoreOptions) error {
	return c.storeWithOptions("UID STORE", uidSet, sf, opts)
}

func (c *Client) storeWithOptions(cmd, numSet string, sf *imap.StoreFlags, opts *imap.StoreOptions) error {
	args := []string{numSet}
	if mods := opts.Modifiers(); len(mods) > 0 {
		args = append(args, "("+strings.Join(mods, " ")+")")
	}
	args = append(args, storeItem(sf.Action, sf.Silent), flagList(sf.Flags))
	return c.executeCheck(cmd, args...)
}

func storeItem(action imap.StoreAction, silent bool) string {
	item := action.String()
	if silent {
		item += ".SILENT"
	}
	return item
}

func flagList(flags []imap.Flag) string {
	strs := make([]string, len(flags))
	for i, f := range flags {
		strs[i] = string(f)
	}
	return "(" + strings.Join(strs, " ") + ")"
}

// Copy copies messages to another mailbox.
func (c *Client) Copy(seqSet, dest string) (*imap.CopyData, error) {
	sr, err := c.execute("COPY", seqSet, quoteArg(dest))
	return copyDataFromStatus(sr, err)
}

// UIDCopy copies messages using UIDs.
func (c *Client) UIDCopy(uidSet, dest string) (*imap.CopyData, error) {
	sr, err := c.execute("UID COPY", uidSet, quoteArg(dest))
	return copyDataFromStatus(sr, err)
}

// Move moves messages to another mailbox (MOVE extension).
func (c *Client) Move(seqSet, dest string) (*imap.CopyData, error) {
	sr, err := c.execute("MOVE", seqSet, quoteArg(dest))
	return copyDataFromStatus(sr, err)
}

func copyDataFromStatus(sr *imap.StatusResponse, err error) (*imap.CopyData, error) {
	if err != nil {
		return nil, err
	}
	data := &imap.CopyData{}
	if sr.Code == imap.ResponseCodeCopyUID {
		if arg, ok := sr.CodeArg.(imap.CopyUIDCodeArg); ok {
			data.UIDValidity = arg.UIDValidity
			if arg.SourceUIDs != nil {
				data.SourceUIDs = *arg.SourceUIDs
			}
			if arg.DestUIDs != nil {
				data.DestUIDs = *arg.DestUIDs
			}
		}
	}
	return data, nil
}

// Expunge permanently removes deleted messages.
func (c *Client) Expunge() error {
	return c.executeCheck("EXPUNGE")
}

// UIDExpunge permanently removes specified UIDs (UIDPLUS).
func (c *Client) UIDExpunge(uidSet string) error {
	return c.executeCheck("UID EXPUNGE", uidSet)
}

// Search searches for messages matching criteria.
func (c *Client) Search(criteria string) ([]uint32, error) {
	c.collectUntagged()
	if _, err := c.execute("SEARCH", criteria); err != nil {
		return nil, err
	}
	return collectSearch(c.collectUntagged()), nil
}

// UIDSearch searches using UIDs.
func (c *Client) UIDSearch(criteria string) ([]uint32, error) {
	c.collectUntagged()
	if _, err := c.execute("UID SEARCH", criteria); err != nil {
		return nil, err
	}
	return collectSearch(c.collectUntagged()), nil
}

// SearchWithCriteria searches for messages matching sc, rendering the
// request from typed criteria/options instead of a raw SEARCH string.
// If opts requests any RETURN item, the result is an ESEARCH response;
// otherwise it comes back as plain sequence numbers in AllSeqNums.
func (c *Client) SearchWithCriteria(sc *imap.SearchCriteria, opts *imap.SearchOptions) (*imap.SearchData, error) {
	return c.searchWithCriteria("SEARCH", sc, opts)
}

// UIDSearchWithCriteria is SearchWithCriteria returning UIDs.
func (c *Client) UIDSearchWithCriteria(sc *imap.SearchCriteria, opts *imap.SearchOptions) (*imap.SearchData, error) {
	return c.searchWithCriteria("UID SEARCH", sc, opts)
}

func (c *Client) searchWithCriteria(cmd string, sc *imap.SearchCriteria, opts *imap.SearchOptions) (*imap.SearchData, error) {
	if sc == nil {
		sc = &imap.SearchCriteria{}
	}
	var args []string
	if items := opts.ReturnItems(); len(items) > 0 {
		args = append(args, "RETURN", "("+strings.Join(items, " ")+")")
	}
	args = append(args, sc.String())

	c.collectUntagged()
	if _, err := c.execute(cmd, args...); err != nil {
		return nil, err
	}

	data := &imap.SearchData{}
	for _, r := range c.collectUntagged() {
		switch {
		case r.Kind == imap.ResponseSearch:
			data.AllSeqNums = append(data.AllSeqNums, r.Search...)
		case r.Kind == imap.ResponseESearch && r.ESearch != nil:
			data = r.ESearch
		}
	}
	return data, nil
}

func collectSearch(resps []*imap.Response) []uint32 {
	var out []uint32
	for _, r := range resps {
		if r.Kind == imap.ResponseSearch {
			out = append(out, r.Search...)
		}
	}
	return out
}

// Sort sorts messages (SORT extension).
func (c *Client) Sort(criteria string) ([]uint32, error) {
	c.collectUntagged()
	if _, err := c.execute("SORT", criteria); err != nil {
		return nil, err
	}
	var out []uint32
	for _, r := range c.collectUntagged() {
		if r.Kind == imap.ResponseSort && r.Sort != nil {
			out = append(out, r.Sort.AllNums...)
		}
	}
	return out, nil
}

// SortWithOptions sorts messages, rendering the sort/search criteria
// and charset from opts instead of a raw SORT criteria string.
func (c *Client) SortWithOptions(opts *imap.SortOptions) ([]uint32, error) {
	return c.sortWithOptions("SORT", opts)
}

// UIDSortWithOptions is SortWithOptions returning UIDs.
func (c *Client) UIDSortWithOptions(opts *imap.SortOptions) ([]uint32, error) {
	return c.sortWithOptions("UID SORT", opts)
}

func (c *Client) sortWithOptions(cmd string, opts *imap.SortOptions) ([]uint32, error) {
	if opts == nil {
		opts = &imap.SortOptions{}
	}
	charset := opts.Charset
	if charset == "" {
		charset = "UTF-8"
	}
	sc := opts.SearchCriteria
	if sc == nil {
		sc = &imap.SearchCriteria{}
	}
	args := []string{"(" + strings.Join(opts.CriteriaItems(), " ") + ")", charset, sc.String()}

	c.collectUntagged()
	if _, err := c.execute(cmd, args...); err != nil {
		return nil, err
	}
	var out []uint32
	for _, r := range c.collectUntagged() {
		if r.Kind == imap.ResponseSort && r.Sort != nil {
			out = append(out, r.Sort.AllNums...)
		}
	}
	return out, nil
}

// Thread retrieves threading information (THREAD extension). algorithm
// must be one of the ThreadAlgorithm constants the server advertised
// via CAPABILITY (e.g. THREAD=REFERENCES).
func (c *Client) Thread(algorithm imap.ThreadAlgorithm, criteria string) ([]imap.Thread, error) {
	c.collectUntagged()
	if _, err := c.execute("THREAD", string(algorithm), criteria); err != nil {
		return nil, err
	}
	var out []imap.Thread
	for _, r := range c.collectUntagged() {
		if r.Kind == imap.ResponseThreadKind && r.Thread != nil {
			out = append(out, r.Thread.Threads...)
		}
	}
	return out, nil
}

// ID sends an ID command (RFC 2971).
func (c *Client) ID(clientID map[string]string) (imap.IDData, error) {
	c.collectUntagged()

	var args string
	if clientID == nil {
		args = "NIL"
	} else {
		var parts []string
		for k, v := range clientID {
			parts = append(parts, fmt.Sprintf("%q %q", k, v))
		}
		args = "(" + strings.Join(parts, " ") + ")"
	}

	if _, err := c.execute("ID", args); err != nil {
		return nil, err
	}

	for _, r := range c.collectUntagged() {
		if r.Kind == imap.ResponseID {
			return r.ID, nil
		}
	}
	return nil, nil
}
