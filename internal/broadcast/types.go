package broadcast

import (
	"context"
	"time"
)

// Reason is why a recipient produced no option.
type Reason string

const (
	Uncontactable Reason = "Uncontactable"
	Timeout       Reason = "Timeout"
)

// Outcome is a recipient's result: the chosen option, or a failure reason.
type Outcome struct {
	Option string
	Err    Reason
}

func Ok(option string) Outcome { return Outcome{Option: option} }
func Fail(r Reason) Outcome    { return Outcome{Err: r} }

func (o Outcome) IsOk() bool { return o.Err == "" }

// PendingResponse is emitted once per recipient that solicited a reply, and for
// any recipient that could not be reached.
type PendingResponse struct {
	Recipient string
	Outcome   Outcome
}

type Recipient struct {
	Name       string
	WantsReply bool
}

// Prompt is a multiple-choice question attached to a broadcast.
type Prompt struct {
	// Timeout is how long to wait for a reply. Zero uses the dispatcher default.
	Timeout time.Duration
	// Options is a grid of button labels; each button replies with its label.
	Options [][]string
}

// Empty reports whether the prompt offers no option at all.
func (p *Prompt) Empty() bool {
	if p == nil {
		return true
	}
	for _, row := range p.Options {
		if len(row) > 0 {
			return false
		}
	}
	return true
}

type Request struct {
	// ID correlates log lines and events. Dispatch fills it when empty.
	ID         string
	Sender     string
	Recipients []Recipient
	Text       string
	Prompt     *Prompt
}

// Directory resolves a recipient name to a chat address.
type Directory interface {
	Resolve(ctx context.Context, name string) (chatID int64, ok bool)
}

// Gateway is the outbound half of the chat adapter used by the engine.
type Gateway interface {
	Deliver(ctx context.Context, chatID int64, text string, options [][]string) (messageID int, err error)
	RetractOptions(ctx context.Context, chatID int64, messageID int) error
	Notify(ctx context.Context, chatID int64, messageID int, text string) error
}

// DirectoryFunc adapts a function to Directory.
type DirectoryFunc func(ctx context.Context, name string) (int64, bool)

func (f DirectoryFunc) Resolve(ctx context.Context, name string) (int64, bool) { return f(ctx, name) }
