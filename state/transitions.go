package state

import (
	imap "github.com/jharlan/imap-engine"
)

// DefaultTransitions returns the default RFC 9051 state transition rules.
//
// The allowed transitions are:
//   - NotAuthenticated -> Authenticated (via LOGIN/AUTHENTICATE)
//   - NotAuthenticated -> Logout (via LOGOUT)
//   - Authenticated -> Selected (via SELECT/EXAMINE)
//   - Authenticated -> Logout (via LOGOUT)
//   - Authenticated -> NotAuthenticated (via UNAUTHENTICATE)
//   - Selected -> Authenticated (via CLOSE/UNSELECT)
//   - Selected -> Selected (via SELECT/EXAMINE of another mailbox)
//   - Selected -> Logout (via LOGOUT)
func DefaultTransitions() map[imap.ConnState][]imap.ConnState {
	return map[imap.ConnState][]imap.ConnState{
		imap.ConnStateNotAuthenticated: {
			imap.ConnStateAuthenticated,
			imap.ConnStateLogout,
		},
		imap.ConnStateAuthenticated: {
			imap.ConnStateSelected,
			imap.ConnStateLogout,
			imap.ConnStateNotAuthenticated, // UNAUTHENTICATE
		},
		imap.ConnStateSelected: {
			imap.ConnStateAuthenticated,
			imap.ConnStateSelected, // re-select
			imap.ConnStateLogout,
		},
	}
}

// CommandAllowedStates returns the states in which a command is allowed
// according to RFC 9051 (plus RFC 4978 for COMPRESS). cmd is one of the
// imap.Command* constants.
func CommandAllowedStates(cmd string) []imap.ConnState {
	switch cmd {
	// Any state
	case imap.CommandCapability, imap.CommandNoop, imap.CommandLogout:
		return []imap.ConnState{
			imap.ConnStateNotAuthenticated,
			imap.ConnStateAuthenticated,
			imap.ConnStateSelected,
		}

	// Not authenticated state
	case imap.CommandStartTLS, imap.CommandAuthenticate, imap.CommandLogin:
		return []imap.ConnState{
			imap.ConnStateNotAuthenticated,
		}

	// Authenticated state
	case imap.CommandEnable, imap.CommandSelect, imap.CommandExamine,
		imap.CommandCreate, imap.CommandDelete, imap.CommandRename,
		imap.CommandSubscribe, imap.CommandUnsubscribe, imap.CommandList,
		imap.CommandLsub, imap.CommandNamespace, imap.CommandStatus,
		imap.CommandAppend, imap.CommandIdle, imap.CommandCompress,
		imap.CommandGenURLAuth:
		return []imap.ConnState{
			imap.ConnStateAuthenticated,
			imap.ConnStateSelected,
		}

	// Selected state
	case imap.CommandCheck, imap.CommandClose, imap.CommandUnselect, imap.CommandExpunge,
		imap.CommandSearch, imap.CommandFetch, imap.CommandStore,
		imap.CommandCopy, imap.CommandMove, imap.CommandSort,
		imap.CommandThread, imap.CommandUID:
		return []imap.ConnState{
			imap.ConnStateSelected,
		}

	default:
		return nil
	}
}
