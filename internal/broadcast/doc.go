// Package broadcast delivers a message to named recipients through the chat
// gateway and, when a prompt is attached, waits for each recipient to pick
// one of the offered options or for the prompt to time out.
//
// Outstanding prompts live in a correlation store keyed by (chat, message).
// The timeout timer and the reply router both try to claim the key with an
// atomic remove; whichever wins resolves the recipient's outcome and the
// loser does nothing.
package broadcast
