// Package telegram adapts the MTProto platform to the replication core:
// the source listener on one account and the sender implementations on the
// pool accounts.
package telegram

import (
	"context"
	"fmt"

	"github.com/celestix/gotgproto"
	"github.com/celestix/gotgproto/sessionMaker"
	"github.com/gotd/td/tg"

	"github.com/sunil55999/Zorox/internal/logger"
)

// Account wraps one authorized MTProto client. Request pacing and
// flood-wait parking live in the sender pool; the account itself only
// classifies platform errors so the pool can react.
type Account struct {
	proto *gotgproto.Client
	log   *logger.Logger
}

// NewAccount starts a client from an exported session string. The session
// stays in memory; durable session storage belongs to the listener account
// only.
func NewAccount(apiID int, apiHash, sessionString string, log *logger.Logger) (*Account, error) {
	if sessionString == "" {
		return nil, fmt.Errorf("empty session string")
	}
	proto, err := gotgproto.NewClient(
		apiID,
		apiHash,
		gotgproto.ClientTypePhone(""), // empty = use session
		&gotgproto.ClientOpts{
			Session:          sessionMaker.StringSession(sessionString),
			DisableCopyright: true,
			InMemory:         true,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("create telegram client: %w", err)
	}
	return &Account{proto: proto, log: log}, nil
}

// API returns the raw tg.Client for direct API calls.
func (a *Account) API() *tg.Client {
	return a.proto.API()
}

// Proto returns the underlying gotgproto client.
func (a *Account) Proto() *gotgproto.Client {
	return a.proto
}

// Self returns the account's own user id.
func (a *Account) Self() int64 {
	if a.proto.Self == nil {
		return 0
	}
	return a.proto.Self.ID
}

// Handle returns the account's username, or its id when unset.
func (a *Account) Handle() string {
	if a.proto.Self != nil && a.proto.Self.Username != "" {
		return "@" + a.proto.Self.Username
	}
	return fmt.Sprintf("id:%d", a.Self())
}

// Stop shuts the client down.
func (a *Account) Stop() {
	a.proto.Stop()
}

// inputPeer resolves a chat id through the client's peer storage.
func (a *Account) inputPeer(chatID int64) (tg.InputPeerClass, error) {
	peer := a.proto.PeerStorage.GetInputPeerById(chatID)
	if _, empty := peer.(*tg.InputPeerEmpty); empty || peer == nil {
		return nil, fmt.Errorf("peer %d not in storage", chatID)
	}
	return peer, nil
}

// inputChannel converts a resolved peer to an input channel for channel-only
// API calls.
func (a *Account) inputChannel(chatID int64) (*tg.InputChannel, error) {
	peer, err := a.inputPeer(chatID)
	if err != nil {
		return nil, err
	}
	ch, ok := peer.(*tg.InputPeerChannel)
	if !ok {
		return nil, fmt.Errorf("peer %d is not a channel", chatID)
	}
	return &tg.InputChannel{ChannelID: ch.ChannelID, AccessHash: ch.AccessHash}, nil
}

// noteFloodWait logs a FLOOD_WAIT; the classified RateLimited error parks
// the sender in the pool until the quoted delay passes.
func (a *Account) noteFloodWait(err error) {
	if wait := floodWaitSeconds(err); wait > 0 {
		a.log.Warn().Int("wait_seconds", wait).Msg("telegram: FLOOD_WAIT, sender parked")
	}
}

// Ping verifies the account still reaches the platform.
func (a *Account) Ping(ctx context.Context) error {
	_, err := a.API().UsersGetUsers(ctx, []tg.InputUserClass{&tg.InputUserSelf{}})
	return err
}
