package broadcast

import (
	"context"
	"errors"
	"fmt"

	"baubot/internal/eventbus"
	logx "baubot/pkg/logx"
)

// Router handles option presses coming back from the gateway.
type Router struct {
	store *Store
	gw    Gateway
	bus   eventbus.Bus
	log   logx.Logger
}

// HandleInbound claims the reply for (chatID, messageID) and hands option to
// the waiting dispatch. Options are retracted and the chat is told the
// outcome. A press for a key that is not outstanding (already timed out,
// already answered, or never prompted) only produces a notice; the
// keyboard is left alone because the press may race the key's insert.
func (r *Router) HandleInbound(ctx context.Context, option string, chatID int64, messageID int) error {
	key := MakeKey(chatID, messageID)
	log := r.log.With(logx.String("key", key.String()))

	sl, ok := r.store.Remove(key)
	if !ok {
		log.Debug("reply for unknown key", logx.String("option", option))
		eventbus.Publish(r.bus, eventbus.TypeOrphaned, eventbus.RecipientEvent{ChatID: chatID, MessageID: messageID, Option: option})
		if err := r.gw.Notify(ctx, chatID, messageID, orphanedNotice); err != nil {
			return fmt.Errorf("notify: %w", err)
		}
		return nil
	}

	sl.resolve(Ok(option))
	log.Debug("reply claimed", logx.String("option", option))
	eventbus.Publish(r.bus, eventbus.TypeClaimed, eventbus.RecipientEvent{ChatID: chatID, MessageID: messageID, Option: option})

	var errs []error
	if err := r.gw.RetractOptions(ctx, chatID, messageID); err != nil {
		errs = append(errs, fmt.Errorf("retract options: %w", err))
	}
	if err := r.gw.Notify(ctx, chatID, messageID, claimedNotice(option)); err != nil {
		errs = append(errs, fmt.Errorf("notify: %w", err))
	}
	return errors.Join(errs...)
}
