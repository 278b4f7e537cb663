// Package logx configures petreminder's structured logging.
//
// The daemon uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Sinks swappable at runtime when the config file changes
package logx
