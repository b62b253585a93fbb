package telegram

import (
	"fmt"
	"strings"
	"time"

	"github.com/sunil55999/Zorox/internal/senderpool"
)

// permanentMarkers are error fragments that no retry will fix.
var permanentMarkers = []string{
	"CHAT_WRITE_FORBIDDEN",
	"CHANNEL_PRIVATE",
	"CHANNEL_INVALID",
	"USER_BANNED_IN_CHANNEL",
	"PEER_ID_INVALID",
	"AUTH_KEY_UNREGISTERED",
	"SESSION_REVOKED",
	"USER_DEACTIVATED",
	"MESSAGE_ID_INVALID",
	"INPUT_USER_DEACTIVATED",
	"MESSAGE_DELETE_FORBIDDEN",
}

// classifySendError tags a Telegram API error for the dispatcher's retry
// policy.
func classifySendError(err error) error {
	if err == nil {
		return nil
	}

	if wait := floodWaitSeconds(err); wait > 0 {
		return senderpool.RateLimited(err, time.Duration(wait)*time.Second)
	}

	str := err.Error()
	for _, marker := range permanentMarkers {
		if strings.Contains(str, marker) {
			return senderpool.Permanent(err, marker)
		}
	}
	return senderpool.Transient(err)
}

// floodWaitSeconds extracts the wait from a FLOOD_WAIT error, 0 otherwise.
// gotgproto/gotd errors are usually wrapped; the error string is the most
// reliable signal without deep coupling to gotd error types.
func floodWaitSeconds(err error) int {
	str := err.Error()
	if !strings.Contains(str, "FLOOD_WAIT_") {
		return 0
	}
	// format is usually FLOOD_WAIT_X where X is seconds
	parts := strings.Split(str, "FLOOD_WAIT_")
	if len(parts) < 2 {
		return 0
	}
	var seconds int
	_, _ = fmt.Sscanf(strings.TrimSpace(parts[1]), "%d", &seconds)
	return seconds
}
