package client

// Compress negotiates RFC 4978 DEFLATE compression on the connection.
// It must be called before any command that the caller cares about
// being compressed, and the server must have advertised
// COMPRESS=DEFLATE; callers should check SupportsCompress first.
func (c *Client) Compress() error {
	_, err := c.eng.Compress(c.eng.NextTag())
	return err
}
