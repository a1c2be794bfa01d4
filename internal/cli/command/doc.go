// Package command provides the clipshare CLI commands.
//
// Commands are defined with urfave/cli/v2:
//
//   - server: run a clipshare server
//   - discover: list servers announcing themselves on the LAN
//   - entries: list, show and delete stored entries
//   - push: store a new entry from arguments or stdin
//   - status: show server health
//   - version: print build information
//
// Client commands write results through the output package so every
// command honors --output and --wide.
package command
