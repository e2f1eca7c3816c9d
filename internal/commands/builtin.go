package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"baubot/internal/storage"
	logx "baubot/pkg/logx"
	"baubot/pkg/tgui"
)

const (
	textWelcome    = "🤗 Welcome to baubot's notification system."
	textNoUsername = "No username supplied."
	textBadElf     = "Baubot does not know how to respond to your input. <b>Baubot is a bad elf!</b>"
)

func (m *Manager) registerBuiltins() {
	m.register(Command{Name: "start", Description: "Registers you as a user of the baubot service", Handle: m.handleStart})
	m.register(Command{Name: "unregister", Description: "Unregister you as a user of the baubot service", Handle: m.handleUnregister})
	m.register(Command{Name: "help", Description: "Get list of available commands", Handle: m.handleHelp})
	m.fallback = Command{Name: "unknown", Handle: m.handleUnknown}
}

func (m *Manager) reply(ctx context.Context, req *Request, text tgui.H) error {
	return m.gw.Notify(ctx, req.ChatID, req.MessageID, text.String())
}

// replyErr reports a failed command to the user and returns err for logging.
func (m *Manager) replyErr(ctx context.Context, req *Request, msg tgui.H, err error) error {
	if nerr := m.reply(ctx, req, tgui.Raw("ERROR: ")+msg); nerr != nil {
		return errors.Join(err, nerr)
	}
	return err
}

var errNoUsername = errors.New("sender has no username")

func (m *Manager) handleStart(ctx context.Context, req *Request) error {
	if req.Username == "" {
		return m.replyErr(ctx, req, textNoUsername, errNoUsername)
	}
	prev, replaced, err := m.store.Register(ctx, req.Username, req.ChatID)
	if err != nil {
		return m.replyErr(ctx, req, tgui.Esc(err.Error()), err)
	}
	req.Log.Info("recipient registered", logx.String("username", req.Username))

	head := tgui.Raw("Registered!")
	if replaced {
		head += tgui.Raw(fmt.Sprintf(" Your old registration of %s has been updated.", tgui.Code(fmt.Sprint(prev))))
	}
	return m.reply(ctx, req, tgui.JoinH("\n\n", tgui.Pass(head), textWelcome))
}

func (m *Manager) handleUnregister(ctx context.Context, req *Request) error {
	if req.Username == "" {
		return m.replyErr(ctx, req, textNoUsername, errNoUsername)
	}
	id, err := m.store.Unregister(ctx, req.Username)
	if errors.Is(err, storage.ErrNotFound) {
		msg := tgui.Raw(fmt.Sprintf("Username %s was not registered.", tgui.Code(storage.NormalizeName(req.Username))))
		return m.replyErr(ctx, req, msg, nil)
	}
	if err != nil {
		return m.replyErr(ctx, req, tgui.Esc(err.Error()), err)
	}
	req.Log.Info("recipient unregistered", logx.String("username", req.Username))
	return m.reply(ctx, req, tgui.Fail(tgui.Raw(fmt.Sprintf("Your chat_id %s has been deleted", tgui.Code(fmt.Sprint(id))))))
}

func (m *Manager) handleHelp(ctx context.Context, req *Request) error {
	var b strings.Builder
	for i, c := range m.Menu() {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("/" + c.Command + " - " + c.Description)
	}
	return m.reply(ctx, req, tgui.Esc(b.String()))
}

func (m *Manager) handleUnknown(ctx context.Context, req *Request) error {
	return m.reply(ctx, req, tgui.Fail(textBadElf))
}
