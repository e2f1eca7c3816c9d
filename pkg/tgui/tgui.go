package tgui

import (
	tele "gopkg.in/telebot.v4"
)

// Btn creates a callback button whose callback_data is the raw label.
func Btn(text, data string) tele.Btn {
	return tele.Btn{Text: text, Data: data}
}

// Keyboard renders a grid of option labels as an inline keyboard. Row and
// column order is preserved, and each button replies with its own label.
// Empty rows are skipped. A grid with no buttons yields nil.
func Keyboard(grid [][]string) (*tele.ReplyMarkup, error) {
	rm := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(grid))
	for _, labels := range grid {
		if len(labels) == 0 {
			continue
		}
		btns := make([]tele.Btn, 0, len(labels))
		for _, label := range labels {
			if err := ValidOption(label); err != nil {
				return nil, err
			}
			btns = append(btns, Btn(label, label))
		}
		rows = append(rows, rm.Row(btns...))
	}
	if len(rows) == 0 {
		return nil, nil
	}
	rm.Inline(rows...)
	return rm, nil
}

// ValidOption reports whether label can be carried as callback data.
func ValidOption(label string) error {
	if label == "" {
		return ErrEmptyOption
	}
	if len(label) > MaxCallbackDataLen {
		return ErrCallbackDataTooLong
	}
	return nil
}
