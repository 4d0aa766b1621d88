package client

import (
	"encoding/base64"
	"fmt"
	"strings"

	imap "github.com/jharlan/imap-engine"
	imapauth "github.com/jharlan/imap-engine/auth"
)

// Login authenticates the user with a username and password.
func (c *Client) Login(username, password string) error {
	err := c.executeCheck("LOGIN", quoteArg(username), quoteArg(password))
	if err != nil {
		return err
	}

	if err := c.sm.Transition(imap.ConnStateAuthenticated); err != nil {
		return err
	}

	return nil
}

// Authenticate authenticates using a SASL mechanism.
func (c *Client) Authenticate(mechanism imapauth.ClientMechanism) error {
	tag := c.eng.NextTag()
	pt := c.eng.RegisterTag(tag)

	// The server chooses how many challenge rounds the mechanism gets,
	// so continuation requests are fair game until the tagged result.
	c.eng.BeginContinuationExchange()
	defer c.eng.EndContinuationExchange()

	ir, err := mechanism.Start()
	if err != nil {
		c.eng.Unregister(tag)
		return fmt.Errorf("SASL start: %w", err)
	}
	hasIR := ir != nil && c.HasCap("SASL-IR")

	var line strings.Builder
	line.WriteString(tag)
	line.WriteString(" AUTHENTICATE ")
	line.WriteString(mechanism.Name())
	if hasIR {
		line.WriteByte(' ')
		line.WriteString(base64.StdEncoding.EncodeToString(ir))
	}
	line.WriteString("\r\n")

	if err := c.eng.WriteRaw([]byte(line.String())); err != nil {
		c.eng.Unregister(tag)
		return err
	}

	if ir != nil && !hasIR {
		if _, err := c.eng.WaitContinuation(); err != nil {
			return err
		}
		encoded := base64.StdEncoding.EncodeToString(ir) + "\r\n"
		if err := c.eng.WriteRaw([]byte(encoded)); err != nil {
			return err
		}
	}

	type contResult struct {
		text string
		err  error
	}

	for {
		contCh := make(chan contResult, 1)
		go func() {
			text, err := c.eng.WaitContinuation()
			contCh <- contResult{text, err}
		}()

		select {
		case cr := <-contCh:
			if cr.err != nil {
				return cr.err
			}
			challenge, err := base64.StdEncoding.DecodeString(cr.text)
			if err != nil {
				_ = c.eng.WriteRaw([]byte("*\r\n"))
				return fmt.Errorf("decoding challenge: %w", err)
			}
			response, err := mechanism.Next(challenge)
			if err != nil {
				_ = c.eng.WriteRaw([]byte("*\r\n"))
				return fmt.Errorf("SASL response: %w", err)
			}
			encoded := base64.StdEncoding.EncodeToString(response) + "\r\n"
			if err := c.eng.WriteRaw([]byte(encoded)); err != nil {
				return err
			}

		case sr := <-pt.Done():
			if sr == nil {
				return fmt.Errorf("connection closed during authentication")
			}
			if !sr.IsOK() {
				return &imap.IMAPError{StatusResponse: sr}
			}
			if err := c.sm.Transition(imap.ConnStateAuthenticated); err != nil {
				return err
			}
			return nil
		}
	}
}

// Logout sends the LOGOUT command and closes the connection.
func (c *Client) Logout() error {
	err := c.executeCheck("LOGOUT")
	_ = c.sm.Transition(imap.ConnStateLogout)
	_ = c.Close()
	return err
}
