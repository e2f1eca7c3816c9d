package transport

import "context"

type UpdateKind string

const (
	// UpdateCommand is a text message starting with "/".
	UpdateCommand UpdateKind = "command"
	// UpdateReply is a press on one of the options attached to a delivered message.
	UpdateReply UpdateKind = "reply"
	// UpdateMessage is any other text message.
	UpdateMessage UpdateKind = "message"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
	Reply   *Reply
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
}

// Reply reports which option a recipient chose on a delivered message.
// ChatID and MessageID identify the delivered message, not the press.
type Reply struct {
	CallbackID string
	ChatID     int64
	MessageID  int
	FromID     int64
	Option     string
}

// Adapter is the messaging gateway: it delivers messages, renders and retracts
// reply options and streams inbound updates.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	// Deliver sends text to chatID. A non-empty options grid is rendered as
	// selectable buttons whose reply value is the button label.
	Deliver(ctx context.Context, chatID int64, text string, options [][]string) (messageID int, err error)
	// RetractOptions removes the options from a delivered message.
	RetractOptions(ctx context.Context, chatID int64, messageID int) error
	// Notify sends text to chatID as a reply to messageID.
	Notify(ctx context.Context, chatID int64, messageID int, text string) error
	// SendText sends plain text without options.
	SendText(ctx context.Context, chatID int64, text string) (messageID int, err error)
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
