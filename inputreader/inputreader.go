package inputreader

import (
	"bufio"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
)

type Command string

type CommandHandler func(args []string)

type InputReader struct {
	scanner  *bufio.Scanner
	out      io.Writer
	prompt   func() string
	handlers map[Command][]CommandHandler
}

// NewInputReader reads commands from in. prompt is called before every line, it may be nil.
func NewInputReader(in io.Reader, out io.Writer, prompt func() string) *InputReader {
	return &InputReader{
		scanner:  bufio.NewScanner(in),
		out:      out,
		prompt:   prompt,
		handlers: make(map[Command][]CommandHandler),
	}
}

func (ir *InputReader) AddHandler(cmd Command, handler CommandHandler) {
	ir.handlers[cmd] = append(ir.handlers[cmd], handler)
}

// InputLoop continuously reads lines and notifies registered handlers about commands.
// This method will block until an "exit" command is processed, the input ends or an error in input scanning occurs.
func (ir *InputReader) InputLoop() error {
	fmt.Fprintln(ir.out, "Ready for commands. Type 'exit' to stop, 'help' for a list of commands.")

	for {
		if ir.prompt != nil {
			fmt.Fprintf(ir.out, "%s > ", ir.prompt())
		}

		if !ir.scanner.Scan() {
			return ir.scanner.Err()
		}

		parts := strings.Fields(ir.scanner.Text())
		if len(parts) == 0 {
			continue
		}

		command := Command(strings.ToLower(parts[0]))
		args := parts[1:]

		switch command {
		case "exit":
			for _, handler := range ir.handlers[command] {
				handler(args)
			}
			return nil
		case "help":
			fmt.Fprintln(ir.out, "Available commands:")
			for _, cmd := range slices.Sorted(maps.Keys(ir.handlers)) {
				fmt.Fprintf(ir.out, "- %s\n", cmd)
			}
		default:
			handlers, exists := ir.handlers[command]
			if !exists {
				fmt.Fprintf(ir.out, "No handlers registered for command: '%s'\n", command)
				continue
			}
			for _, handler := range handlers {
				handler(args)
			}
		}
	}
}
