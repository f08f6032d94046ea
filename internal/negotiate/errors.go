// Package negotiate implements the two opposed fetch/upload state
// machines that exchange wants, haves, acks, and a pack over the
// packet framing.
package negotiate

import (
	"errors"
	"fmt"
)

// Capability is the single capability string the negotiation
// exchanges.
const Capability = "multi_ack"

// maxHaves bounds the number of distinct have ids the server will
// expand into a theyHave closure.
const maxHaves = 256

// ErrProtocol is returned (wrapped) for any out-of-state message or
// malformed frame encountered during negotiation.
var ErrProtocol = errors.New("negotiate: protocol error")

// ErrNotOurRef is returned by the server when a client wants an id
// that was never advertised.
var ErrNotOurRef = errors.New("negotiate: not our ref")

func protocolf(format string, a ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrProtocol}, a...)...)
}
