package client

import "github.com/jharlan/imap-engine/engine"

// IdleCommand represents an in-progress IDLE command.
type IdleCommand struct {
	session *engine.IdleSession
}

// Idle starts an IDLE command, blocking until the server's continuation
// request confirms idling is active. Call Done to stop it.
func (c *Client) Idle() (*IdleCommand, error) {
	session, err := c.eng.StartIdle(c.eng.NextTag())
	if err != nil {
		return nil, err
	}
	return &IdleCommand{session: session}, nil
}

// Done sends DONE and waits for IDLE's tagged completion. Untagged
// updates received while idling arrive through the client's
// UnilateralDataHandler, not through this call.
func (ic *IdleCommand) Done() error {
	_, err := ic.session.Stop()
	return err
}
