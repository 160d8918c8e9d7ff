package ws

// Frame is the client-to-server message envelope.
//
// Types: auth {token}, subscribe {roomId}, unsubscribe {roomId},
// send {roomId, content}, read {roomId, lastMessageId}.
type Frame struct {
	Type          string  `json:"type"`
	Token         string  `json:"token,omitempty"`
	RoomID        uint64  `json:"roomId,omitempty"`
	Content       string  `json:"content,omitempty"`
	LastMessageID *uint64 `json:"lastMessageId,omitempty"`
}

// ServerFrame is the server-to-client envelope. For type "message", Data
// carries the enriched message; clients reconcile ordering by message id,
// not arrival order.
type ServerFrame struct {
	Type    string      `json:"type"`
	RoomID  uint64      `json:"roomId,omitempty"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

const (
	frameAuth        = "auth"
	frameSubscribe   = "subscribe"
	frameUnsubscribe = "unsubscribe"
	frameSend        = "send"
	frameRead        = "read"

	frameMessage    = "message"
	frameSubscribed = "subscribed"
	frameError      = "error"
)
