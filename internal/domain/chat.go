package domain

import (
	"encoding/json"
	"time"
)

// User is the resolved identity behind a connection. It is passed into the
// connection handler explicitly; nothing in the core looks identity up from
// ambient state.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"full_name,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// Message is the canonical persisted record of a chat message. ID and
// CreatedAt are assigned by the message store, never by the broker, so every
// peer (sender included) observes identical values.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Sender    User      `json:"sender"`
	CreatedAt time.Time `json:"created_at"`
	IsEdited  bool      `json:"is_edited"`
}

// Event is the tagged union of everything a room can broadcast.
type Event interface {
	frame() frame
}

type MessageEvent struct {
	Message Message
}

type TypingEvent struct {
	User     User
	IsTyping bool
}

type PresenceEvent struct {
	User   User
	Online bool
}

const (
	FrameMessage    = "message"
	FrameUserStatus = "user_status"
	FrameTyping     = "typing"
	FrameError      = "error"

	StatusOnline  = "online"
	StatusOffline = "offline"
)

// frame is the outbound wire shape shared by all event kinds.
type frame struct {
	Type     string   `json:"type"`
	Message  *Message `json:"message,omitempty"`
	UserID   string   `json:"user_id,omitempty"`
	Username string   `json:"username,omitempty"`
	Status   string   `json:"status,omitempty"`
	IsTyping *bool    `json:"is_typing,omitempty"`
	Detail   string   `json:"detail,omitempty"`
}

func (e MessageEvent) frame() frame {
	msg := e.Message
	return frame{Type: FrameMessage, Message: &msg}
}

func (e TypingEvent) frame() frame {
	typing := e.IsTyping
	return frame{
		Type:     FrameTyping,
		UserID:   e.User.ID,
		Username: e.User.Username,
		IsTyping: &typing,
	}
}

func (e PresenceEvent) frame() frame {
	status := StatusOffline
	if e.Online {
		status = StatusOnline
	}
	return frame{
		Type:     FrameUserStatus,
		UserID:   e.User.ID,
		Username: e.User.Username,
		Status:   status,
	}
}

// Encode serializes an event into its outbound wire frame.
func Encode(e Event) ([]byte, error) {
	return json.Marshal(e.frame())
}

// EncodeError builds the error frame sent to a single connection, e.g. when
// its own message could not be persisted. Error frames are never broadcast.
func EncodeError(detail string) []byte {
	data, _ := json.Marshal(frame{Type: FrameError, Detail: detail})
	return data
}

const (
	InboundMessage = "message"
	InboundTyping  = "typing"
)

// Inbound is a client frame. Unknown Type values are ignored by the handler.
type Inbound struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	IsTyping bool   `json:"is_typing"`
}

func DecodeInbound(data []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Inbound{}, err
	}
	return in, nil
}
