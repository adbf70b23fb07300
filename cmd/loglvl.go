package cmd

import (
	"fmt"

	"bjoernblessin.de/groupstack/util/logger"
)

// HandleLogLevel displays or sets the current log level.
// Usage: loglvl [NONE|WARN|INFO|DEBUG|TRACE]
func HandleLogLevel(args []string) {
	if len(args) > 1 {
		fmt.Fprintln(out, "Usage: loglvl [NONE|WARN|INFO|DEBUG|TRACE]")
		return
	}

	if len(args) == 1 {
		level, ok := logger.ParseLogLevel(args[0])
		if !ok {
			fmt.Fprintf(out, "Invalid log level: %s\n", args[0])
			return
		}
		logger.SetLogLevel(level)
		fmt.Fprintf(out, "Log level set to %s\n", level)
		return
	}

	fmt.Fprintf(out, "Current log level: %s\n", logger.GetLogLevel())
}
