package cmd

import (
	"fmt"
	"io"
	"net/netip"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"bjoernblessin.de/groupstack/common"
	"bjoernblessin.de/groupstack/connection"
	"bjoernblessin.de/groupstack/util/logger"
)

// HandleBulk sends a file to one peer in chunks and shows how much of it the peer confirmed.
// Usage: bulk <IPv4 address:port> <file path>
func HandleBulk(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(out, "Usage: bulk <IPv4 address:port> <file path>")
		return
	}

	dest, err := connection.ParseAddrList(args[0])
	if err != nil || len(dest) != 1 {
		fmt.Fprintln(out, "Invalid peer address:", args[0])
		return
	}

	file, err := os.Open(args[1])
	if err != nil {
		fmt.Fprintf(out, "Failed to open file %s: %v\n", args[1], err)
		return
	}
	defer file.Close()

	fileInfo, err := file.Stat()
	if err != nil {
		fmt.Fprintf(out, "Failed to get file info for %s: %v\n", args[1], err)
		return
	}
	if fileInfo.IsDir() {
		fmt.Fprintf(out, "The specified path %s is a directory, not a file.\n", args[1])
		return
	}

	chunks := 0
	buffer := make([]byte, common.MAX_PAYLOAD_SIZE_BYTES)
	for {
		n, err := file.Read(buffer)
		if n > 0 {
			// The channel keeps the payload until it is confirmed
			chunk := make([]byte, n)
			copy(chunk, buffer[:n])
			if err := channel.Send(chunk, dest); err != nil {
				fmt.Fprintf(out, "Stopped after %d chunks: %v\n", chunks, err)
				return
			}
			chunks++
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Fprintf(out, "Failed to read file %s: %v\n", args[1], err)
			return
		}
	}

	if chunks == 0 {
		fmt.Fprintln(out, "Nothing to send, the file is empty.")
		return
	}

	go trackConfirmations(dest[0], chunks, fileInfo.Name())
}

// trackConfirmations polls the peer's state until the last chunk is confirmed or the peer is gone.
func trackConfirmations(peer netip.AddrPort, chunks int, name string) {
	snap, err := channel.Snapshot()
	if err != nil {
		return
	}
	ps, ok := snap.Find(peer)
	if !ok {
		logger.Warnf("Peer %s vanished before %s was confirmed", peer, name)
		return
	}

	target := ps.LastSent
	start := target - uint64(chunks)

	bar := progressbar.NewOptions(chunks,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(fmt.Sprintf("%s -> %s", name, peer)),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(out) }),
	)

	ticker := time.NewTicker(cfg.RoundPeriod)
	defer ticker.Stop()

	for range ticker.C {
		snap, err := channel.Snapshot()
		if err != nil {
			return
		}
		ps, ok := snap.Find(peer)
		if !ok {
			// Eviction already reported the unconfirmed chunks as failures
			fmt.Fprintf(out, "\nTransfer of %s to %s aborted\n", name, peer)
			return
		}

		if ps.LastConfirmed > start {
			_ = bar.Set(int(min(ps.LastConfirmed, target) - start))
		}
		if ps.LastConfirmed >= target {
			_ = bar.Finish()
			return
		}
	}
}
