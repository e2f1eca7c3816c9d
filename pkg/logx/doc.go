// Package logx configures baubot's structured logging.
//
// It wraps zerolog in a small Logger value type to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - An optional chat sink that forwards warnings to an operator chat (min-level + rate limit)
package logx
