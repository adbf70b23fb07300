package cmd

import (
	"encoding/json"
	"fmt"
)

// HandleStats prints the channel's counters, or writes them to a file.
// Usage: stats [file]
func HandleStats(args []string) {
	if len(args) > 1 {
		fmt.Fprintln(out, "Usage: stats [file]")
		return
	}

	m := channel.Metrics()

	if len(args) == 1 {
		if err := m.WriteSnapshot(args[0]); err != nil {
			fmt.Fprintf(out, "Failed to write metrics: %v\n", err)
			return
		}
		fmt.Fprintf(out, "Metrics written to %s\n", args[0])
		return
	}

	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		fmt.Fprintf(out, "Failed to encode metrics: %v\n", err)
		return
	}
	fmt.Fprintln(out, string(data))
}
