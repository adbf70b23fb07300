package cmd

import (
	"io"
	"os"

	"bjoernblessin.de/groupstack/connection"
	"bjoernblessin.de/groupstack/sock"
	"bjoernblessin.de/groupstack/stack"
)

var socket sock.Socket
var channel *stack.Channel
var directory *connection.Directory

// out receives everything the commands print for the user.
var out io.Writer = os.Stdout

// SetGlobalVars sets the objects the REPL commands work on.
func SetGlobalVars(s sock.Socket, c *stack.Channel, d *connection.Directory) {
	socket = s
	channel = c
	directory = d
}
