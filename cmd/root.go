package cmd

import (
	"fmt"
	"net"
	"net/netip"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"bjoernblessin.de/groupstack/common"
	"bjoernblessin.de/groupstack/connection"
	"bjoernblessin.de/groupstack/handler"
	"bjoernblessin.de/groupstack/inputreader"
	"bjoernblessin.de/groupstack/sock"
	"bjoernblessin.de/groupstack/stack"
	"bjoernblessin.de/groupstack/util/logger"
)

var (
	bindAddress    string
	mode           string
	joinGroups     []string
	multicastIface string
	metricsPath    string
	logLevel       string
	cfg            = common.DefaultConfig()
)

var rootCmd = &cobra.Command{
	Use:   "groupstack",
	Short: "Reliable FIFO messaging over UDP",
	Long: `Sends messages over UDP to single peers or groups of peers. Every peer receives
the messages of each sender complete and in order. Losses are repaired with NACKs.

Examples:
  # Unicast peer on a fixed port
  groupstack --addr 127.0.0.1:4000

  # Multicast peer that also listens on a raw IP multicast group
  groupstack --addr 0.0.0.0:4001 --mode multicast --join 239.1.1.1`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         run,
}

// Execute runs the root command and exits on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.Flags()

	flags.StringVarP(&bindAddress, "addr", "a", "127.0.0.1:0", "Local address to bind the UDP socket to, port 0 picks a random port")
	flags.StringVarP(&mode, "mode", "m", "unicast", "Session mode: unicast or multicast")
	flags.StringSliceVarP(&joinGroups, "join", "j", nil, "IPv4 multicast groups to join (comma-separated)")
	flags.StringVar(&multicastIface, "iface", "", "Network interface for multicast groups, empty lets the system choose")
	flags.StringVar(&metricsPath, "metrics", "", "Write a JSON metrics snapshot to this file on exit")
	flags.StringVar(&logLevel, "log-level", "", "Log level NONE|WARN|INFO|DEBUG|TRACE, overrides $"+logger.LOG_LEVEL_ENV)

	flags.DurationVar(&cfg.RoundPeriod, "round", cfg.RoundPeriod, "Duration of one housekeeping round")
	flags.IntVar(&cfg.ResendThresholdRounds, "resend", cfg.ResendThresholdRounds, "Rounds before an unanswered NACK is sent again")
	flags.IntVar(&cfg.MaxNoTrafficRounds, "max-no-traffic", cfg.MaxNoTrafficRounds, "Rounds without application data before a peer is forgotten")
	flags.IntVar(&cfg.MaxNoReceiveRounds, "max-no-receive", cfg.MaxNoReceiveRounds, "Rounds without hearing from a peer before it is declared unresponsive")
	flags.IntVar(&cfg.MaxNoSendRounds, "max-no-send", cfg.MaxNoSendRounds, "Rounds without sending to a peer before a keepalive is sent")
	flags.IntVar(&cfg.ConfirmIntervalRounds, "confirm-interval", cfg.ConfirmIntervalRounds, "Multicast: rounds between standalone confirmations")
}

func run(cmd *cobra.Command, args []string) error {
	if logLevel != "" {
		level, ok := logger.ParseLogLevel(logLevel)
		if !ok {
			return fmt.Errorf("invalid log level %q", logLevel)
		}
		logger.SetLogLevel(level)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	multicast, err := parseMode(mode)
	if err != nil {
		return err
	}

	bind, err := netip.ParseAddrPort(bindAddress)
	if err != nil {
		return fmt.Errorf("invalid --addr: %w", err)
	}

	udpSocket := sock.NewUDPSocket()
	localAddr, err := udpSocket.Open(bind)
	if err != nil {
		return fmt.Errorf("failed to open UDP socket: %w", err)
	}
	defer udpSocket.Close()

	for _, group := range joinGroups {
		if err := joinGroup(udpSocket, group, multicastIface); err != nil {
			return err
		}
	}

	ch := stack.New(cfg, udpSocket, stack.Options{Multicast: multicast})
	defer ch.Close()

	SetGlobalVars(udpSocket, ch, connection.NewDirectory())
	handler.NewPrinter(os.Stdout).Listen(ch.Deliveries(), ch.Failures())

	fmt.Printf("Listening on %s (%s, channel %s)\n", localAddr, ch.Mode(), ch.ID())
	printAvailableNetworkAddresses()

	reader := inputreader.NewInputReader(os.Stdin, os.Stdout, func() string {
		return udpSocket.MustGetLocalAddress().String()
	})
	reader.AddHandler("msg", HandleSend)
	reader.AddHandler("mcast", HandleMulticast)
	reader.AddHandler("group", HandleGroup)
	reader.AddHandler("peers", HandleListPeers)
	reader.AddHandler("stats", HandleStats)
	reader.AddHandler("bulk", HandleBulk)
	reader.AddHandler("join", HandleJoin)
	reader.AddHandler("loglvl", HandleLogLevel)
	reader.AddHandler("exit", HandleExit)

	inputDone := make(chan error, 1)
	go func() {
		inputDone <- reader.InputLoop()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err = <-inputDone:
	case <-sigChan:
		logger.Infof("Shutting down...")
		HandleExit(nil)
	}
	return err
}

func parseMode(s string) (multicast bool, err error) {
	switch s {
	case "unicast":
		return false, nil
	case "multicast":
		return true, nil
	}
	return false, fmt.Errorf("invalid --mode %q, expected unicast or multicast", s)
}

func printAvailableNetworkAddresses() {
	inter, err := net.Interfaces()
	if err != nil {
		logger.Warnf("Failed to get network interfaces: %v", err)
		return
	}

	fmt.Println("Available network interfaces:")

	for _, iface := range inter {
		if iface.Flags&net.FlagUp == 0 {
			continue // Skip down interfaces
		}
		addrs, err2 := iface.Addrs()
		if err2 != nil {
			logger.Warnf("Failed to get addresses for interface %s: %v", iface.Name, err2)
			continue
		}

		for _, addr := range addrs {
			ip, ok := addr.(*net.IPNet)
			if !ok || ip.IP.To4() == nil {
				continue
			}

			multicast := ""
			if iface.Flags&net.FlagMulticast != 0 {
				multicast = ", multicast"
			}
			fmt.Printf("  Interface: %s, Address: %s%s\n", iface.Name, ip.IP, multicast)
		}
	}
}
