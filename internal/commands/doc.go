// Package commands consumes the gateway's inbound updates: it answers the
// registration commands and forwards option presses to the reply router.
package commands
