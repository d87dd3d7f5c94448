// Package session implements the Session Registry (C3): the map that
// correlates inbound packets — which, for UDP protocols, carry no request
// id — back to the outstanding Record that is waiting for them.
package session

import (
	"fmt"

	"github.com/kongor-net/agql/internal/core"
)

// Key is the composite identifier used to match a response to the request
// that is expecting it. For UDP families without an in-payload id, RequestID
// is always zero and the key degrades to (Addr, Family) as required by
// spec §3. RCON sessions additionally key on the server-assigned request id.
type Key struct {
	Addr      string
	Family    core.Family
	RequestID int32
}

// String renders the key for log fields and error messages.
func (k Key) String() string {
	if k.RequestID == 0 {
		return fmt.Sprintf("%s/%s", k.Addr, k.Family)
	}
	return fmt.Sprintf("%s/%s#%d", k.Addr, k.Family, k.RequestID)
}
