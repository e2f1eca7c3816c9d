package tgui

import "errors"

// MaxCallbackDataLen is Telegram's callback_data size limit in bytes.
// Option labels double as callback data, so a label may not exceed it.
const MaxCallbackDataLen = 64

var (
	ErrCallbackDataTooLong = errors.New("tgui: option label exceeds callback_data limit")
	ErrEmptyOption         = errors.New("tgui: empty option label")
)
