package cmd

import (
	"fmt"
	"strings"

	"bjoernblessin.de/groupstack/common"
	"bjoernblessin.de/groupstack/connection"
	"bjoernblessin.de/groupstack/sequencing"
	"bjoernblessin.de/groupstack/util/logger"
)

// HandleSend sends a text message to one peer.
// Usage: msg <IPv4 address:port> <message>
func HandleSend(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(out, "Usage: msg <IPv4 address:port> <message>")
		return
	}

	dest, err := connection.ParseAddrList(args[0])
	if err != nil || len(dest) != 1 {
		fmt.Fprintln(out, "Invalid peer address:", args[0])
		return
	}

	sendChunks([]byte(strings.Join(args[1:], " ")), dest)
}

// HandleMulticast sends a text message to a group, an address list or a raw IP multicast address.
// Usage: mcast <group | addr,addr,... | multicast addr:port> <message>
func HandleMulticast(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(out, "Usage: mcast <group | addr:port,addr:port,...> <message>")
		return
	}

	dest, err := directory.Resolve(args[0])
	if err != nil {
		fmt.Fprintln(out, err)
		return
	}

	sendChunks([]byte(strings.Join(args[1:], " ")), dest)
}

// sendChunks splits msg into payloads of at most MAX_PAYLOAD_SIZE_BYTES.
// It returns the number of chunks handed to the channel.
func sendChunks(msg []byte, dest sequencing.Destination) int {
	sent := 0
	for start := 0; start < len(msg); start += common.MAX_PAYLOAD_SIZE_BYTES {
		end := min(start+common.MAX_PAYLOAD_SIZE_BYTES, len(msg))

		if err := channel.Send(msg[start:end], dest); err != nil {
			logger.Warnf("Failed to send message to %v: %v", dest, err)
			fmt.Fprintf(out, "Can't send message: %v\n", err)
			return sent
		}
		sent++
	}
	return sent
}
