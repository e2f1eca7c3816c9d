package eventbus

// Event types published by the broadcast engine.
const (
	TypeDelivered     = "broadcast.delivered"
	TypeUncontactable = "broadcast.uncontactable"
	TypeClaimed       = "reply.claimed"
	TypeTimeout       = "reply.timeout"
	TypeOrphaned      = "reply.orphaned"
)

// RecipientEvent is the payload of the broadcast.* and reply.claimed/reply.timeout events.
type RecipientEvent struct {
	RequestID string `json:"request_id,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	ChatID    int64  `json:"chat_id,omitempty"`
	MessageID int    `json:"message_id,omitempty"`
	Option    string `json:"option,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Publish is a nil-safe shorthand for b.Publish(Event{Type: typ, Data: data}).
func Publish(b Bus, typ string, data any) {
	if b == nil {
		return
	}
	b.Publish(Event{Type: typ, Data: data})
}
