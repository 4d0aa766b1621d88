package client

import (
	"crypto/tls"
	"fmt"
)

// StartTLS upgrades the connection to TLS.
func (c *Client) StartTLS(config *tls.Config) error {
	if config == nil {
		config = c.options.TLSConfig
	}
	if config == nil {
		return fmt.Errorf("TLS config required")
	}

	_, err := c.eng.StartTLS(c.eng.NextTag(), config)
	return err
}
