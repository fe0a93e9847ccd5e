package types

import "encoding/json"

// Envelope is one inbound command as published by the transport on the
// command channel. Payload stays raw until the handler for Type decodes it.
type Envelope struct {
	Type         string          `json:"type"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	UserID       string          `json:"userId"`
	Username     string          `json:"username,omitempty"`
	ConnectionID string          `json:"connectionId"`
	Timestamp    int64           `json:"timestamp"`
}

// Message is the unit the transport relays to clients.
type Message struct {
	Type      string `json:"type"`
	Payload   any    `json:"payload,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Broadcast wraps a Message with its target set. With no TargetUserID and no
// UserIDs the message is lobby-wide and the transport fans it out to everyone.
type Broadcast struct {
	TargetUserID string   `json:"targetUserId,omitempty"`
	UserIDs      []string `json:"userIds,omitempty"`
	Message      Message  `json:"message"`
}

// Inbound command types recognized by the subscriber.
const (
	CmdLobbyCreate = "lobby:create"
	CmdLobbyJoin   = "lobby:join"
	CmdLobbyLeave  = "lobby:leave"
	CmdLobbyKick   = "lobby:kick"
	CmdLobbyReady  = "lobby:ready"
	CmdLobbyStart  = "lobby:start"
	CmdLobbyChat   = "lobby:chat"
	CmdGameInput   = "game:input"
	CmdGameReady   = "game:ready"
)
