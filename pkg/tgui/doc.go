// Package tgui holds the small Telegram rendering helpers used by the gateway:
// option keyboards built from a label grid and HTML-safe text fragments for
// ParseMode="HTML" notices.
package tgui
