package client

import (
	"strings"

	imap "github.com/jharlan/imap-engine"
)

// XAtom sends an experimental or otherwise unmodelled command verbatim:
// name becomes the command atom and each arg one further atom on the
// line. The untagged responses received between issue and tagged
// completion are returned for the caller to interpret, since by
// definition this client has no typed accessor for them.
func (c *Client) XAtom(name string, args ...string) ([]*imap.Response, error) {
	c.collectUntagged()
	_, err := c.execute(strings.ToUpper(name), args...)
	untagged := c.collectUntagged()
	if err != nil {
		return untagged, err
	}
	return untagged, nil
}

// GenURLAuth asks the server to sign url with an URLAUTH access token
// (RFC 4467), returning the authorized URL. mechanism is normally
// "INTERNAL".
func (c *Client) GenURLAuth(url, mechanism string) (string, error) {
	c.collectUntagged()
	if _, err := c.execute("GENURLAUTH", quoteArg(url), mechanism); err != nil {
		return "", err
	}
	for _, r := range c.collectUntagged() {
		if r.Kind == imap.ResponseGenURLAuth {
			return r.GenURLAuth, nil
		}
	}
	return "", imap.NewUnexpectedResponseError("GENURLAUTH completed without a GENURLAUTH response")
}
