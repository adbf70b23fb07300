package cmd

import (
	"fmt"
	"net/netip"
	"strings"

	"bjoernblessin.de/groupstack/connection"
)

// HandleGroup manages named groups.
// Usage: group add <name> <addr:port>... | group rm <name> [addr:port...] | group ls
func HandleGroup(args []string) {
	if len(args) == 0 {
		printGroupUsage()
		return
	}

	switch args[0] {
	case "ls":
		names := directory.Names()
		if len(names) == 0 {
			fmt.Fprintln(out, "No groups.")
			return
		}
		for _, name := range names {
			members, _ := directory.Members(name)
			fmt.Fprintf(out, "  %s: %v\n", name, members)
		}
	case "add", "rm":
		if len(args) < 2 {
			printGroupUsage()
			return
		}

		var members []netip.AddrPort
		if len(args) > 2 {
			dest, err := connection.ParseAddrList(joinArgs(args[2:]))
			if err != nil {
				fmt.Fprintln(out, err)
				return
			}
			members = dest
		}

		var err error
		if args[0] == "add" {
			err = directory.Add(args[1], members...)
		} else {
			err = directory.Remove(args[1], members...)
		}
		if err != nil {
			fmt.Fprintln(out, err)
		}
	default:
		printGroupUsage()
	}
}

func printGroupUsage() {
	fmt.Fprintln(out, "Usage: group add <name> <addr:port>... | group rm <name> [addr:port...] | group ls")
}

// joinArgs accepts members separated by spaces, commas or both.
func joinArgs(args []string) string {
	parts := strings.FieldsFunc(strings.Join(args, ","), func(r rune) bool { return r == ',' })
	return strings.Join(parts, ",")
}
