package telegram

import (
	"encoding/json"
	"fmt"

	"github.com/celestix/gotgproto/functions"
	"github.com/celestix/gotgproto/storage"
	"github.com/gotd/td/session"
)

// EncodeSessionString converts raw gotd session data into the exported
// string form the sender and listener accounts are configured with.
// gotgproto expects the raw JSON bytes of session.Data in its
// storage.Session.Data field.
func EncodeSessionString(data *session.Data) (string, error) {
	if data == nil {
		return "", fmt.Errorf("session data is nil")
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal session data: %w", err)
	}

	return functions.EncodeSessionToString(&storage.Session{
		Version: storage.LatestVersion,
		Data:    dataJSON,
	})
}
