package cmd

import (
	"bjoernblessin.de/groupstack/util/logger"
)

// HandleExit stops the channel and stores the final metrics if --metrics was given.
// Unconfirmed messages are not waited for.
func HandleExit(args []string) {
	if channel == nil {
		return
	}

	if err := channel.Metrics().WriteSnapshot(metricsPath); err != nil {
		logger.Warnf("Failed to write metrics to %s: %v", metricsPath, err)
	}

	channel.Close()
}
