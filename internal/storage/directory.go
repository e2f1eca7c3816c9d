package storage

import (
	"context"

	logx "baubot/pkg/logx"
)

// Directory exposes a Store as a name lookup. Lookup errors are logged and
// reported as absent, so the recipient counts as unreachable.
type Directory struct {
	store Store
	log   logx.Logger
}

func NewDirectory(store Store, log logx.Logger) *Directory {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Directory{store: store, log: log}
}

func (d *Directory) Resolve(ctx context.Context, name string) (int64, bool) {
	id, ok, err := d.store.Resolve(ctx, name)
	if err != nil {
		d.log.Warn("recipient lookup failed", logx.String("recipient", name), logx.Err(err))
		return 0, false
	}
	return id, ok
}
