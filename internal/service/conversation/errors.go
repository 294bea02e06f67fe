package conversation

import (
	"fmt"

	"github.com/zhouzirui/tagbot/backend/internal/model/chat"
)

// ProtocolViolation is returned when a payload does not fit the current
// state. The session is left as it was and the user was re-prompted.
type ProtocolViolation struct {
	State chat.State
	Got   chat.PayloadKind
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("unexpected %s payload in state %s", e.Got, e.State)
}
