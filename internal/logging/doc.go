// Package logging configures structured slog output for AmanKB.
//
// Without --debug the CLI logs warnings to stderr only. With --debug, or when
// serving MCP over stdio, JSON logs go to a size-rotated file under
// ~/.amankb/logs/ so that stdout stays reserved for the protocol stream.
package logging
