package cmd

import (
	"fmt"
	"net/netip"

	"bjoernblessin.de/groupstack/sock"
)

// HandleJoin subscribes the socket to an IPv4 multicast group.
// Usage: join <group address> [interface]
func HandleJoin(args []string) {
	if len(args) < 1 || len(args) > 2 {
		fmt.Fprintln(out, "Usage: join <group address> [interface]")
		return
	}

	ifname := multicastIface
	if len(args) == 2 {
		ifname = args[1]
	}

	if err := joinGroup(socket, args[0], ifname); err != nil {
		fmt.Fprintln(out, err)
		return
	}
	fmt.Fprintf(out, "Joined %s\n", args[0])
}

func joinGroup(s sock.Socket, group string, ifname string) error {
	addr, err := netip.ParseAddr(group)
	if err != nil {
		return fmt.Errorf("invalid multicast group %q: %w", group, err)
	}
	return s.JoinGroup(addr, ifname)
}
