// Package logx configures remindbot's structured logging.
//
// It wraps zerolog with a small Logger value type so components can carry
// fixed fields (component name, owner id, ...) without importing zerolog:
//   - Console output stays readable (short timestamp + short caller)
//   - File output stays JSON-structured
//   - An optional chat sink forwards warnings to an ops chat (min-level + rate limiting)
package logx
