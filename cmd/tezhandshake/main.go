// Package main is the tezhandshake command: it performs the P2P handshake
// with one peer out of a static list or the DNS bootstrap names and reports
// the outcome.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/tezhandshake/bootstrap"
	"github.com/opd-ai/tezhandshake/crypto"
	"github.com/opd-ai/tezhandshake/discovery"
	"github.com/opd-ai/tezhandshake/handshake"
	"github.com/opd-ai/tezhandshake/identity"
	"github.com/opd-ai/tezhandshake/limits"
	"github.com/opd-ai/tezhandshake/metrics"
	"github.com/opd-ai/tezhandshake/peerbook"
	"github.com/opd-ai/tezhandshake/wire"
)

const (
	exitOK        = 0
	exitConfig    = 1
	exitHandshake = 2
)

// CLI configuration
type CLIConfig struct {
	peers            string
	identityFile     string
	generateIdentity bool
	chainName        string
	port             uint
	peerPort         uint
	bootstrapNames   string
	dnsServers       string
	powTarget        int
	connectTimeout   time.Duration
	ioTimeout        time.Duration
	followNack       bool
	peerBook         string
	message          string
	logLevel         string
	logFormat        string
	logFile          string
	metricsAddr      string
	help             bool
}

// parseCLIFlags parses args into a configuration.
func parseCLIFlags(fs *flag.FlagSet, args []string) (*CLIConfig, error) {
	config := &CLIConfig{}

	// Peers
	fs.StringVar(&config.peers, "peer", "", "Comma-separated peer addresses (host[:port]); skips DNS bootstrap")
	fs.UintVar(&config.peerPort, "peer-port", uint(discovery.DefaultPort), "Port dialed for bootstrap peers and -peer entries without one")
	fs.StringVar(&config.bootstrapNames, "bootstrap", strings.Join(discovery.DefaultBootstrapNames, ","), "Comma-separated DNS bootstrap names")
	fs.StringVar(&config.dnsServers, "dns-server", "", "Comma-separated DNS servers (default: system resolvers)")
	fs.BoolVar(&config.followNack, "follow-nack", false, "Try alternate peers offered by a rejecting peer")
	fs.StringVar(&config.peerBook, "peerbook", "", "Peer book directory (disabled when empty)")

	// Identity and advertised version
	fs.StringVar(&config.identityFile, "identity", "", "Identity JSON file (default: built-in identity)")
	fs.BoolVar(&config.generateIdentity, "generate-identity", false, "Generate a new identity into -identity and exit")
	fs.StringVar(&config.chainName, "chain-name", wire.DefaultChainName, "Chain name advertised to peers")
	fs.UintVar(&config.port, "port", handshake.DefaultPort, "Listening port advertised to peers")
	fs.IntVar(&config.powTarget, "pow-target", crypto.DefaultProofOfWorkTarget, "Required proof-of-work difficulty in leading zero bits")

	// Timeouts
	fs.DurationVar(&config.connectTimeout, "connect-timeout", 10*time.Second, "TCP connect timeout")
	fs.DurationVar(&config.ioTimeout, "io-timeout", 10*time.Second, "Per-frame read/write timeout")

	fs.StringVar(&config.message, "message", "", "Application message to send over the session after a successful handshake")

	// Logging and metrics
	fs.StringVar(&config.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.StringVar(&config.logFormat, "log-format", "text", "Log format (text, json)")
	fs.StringVar(&config.logFile, "log-file", "", "Log file path (default: stderr)")
	fs.StringVar(&config.metricsAddr, "metrics", "", "Serve Prometheus metrics on this address, e.g. :9090")

	fs.BoolVar(&config.help, "help", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	config.chainName = strings.ToUpper(strings.TrimSpace(config.chainName))
	return config, nil
}

// printUsage prints the usage information.
func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "Tezos P2P Handshake Client")
	fmt.Fprintln(w, "==========================")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Connects to a peer, exchanges connection messages, derives session keys,")
	fmt.Fprintln(w, "exchanges metadata and acks over the encrypted channel and reports the result.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintf(w, "  %s [options]\n", fs.Name())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fs.SetOutput(w)
	fs.PrintDefaults()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  # Handshake with a mainnet bootstrap peer")
	fmt.Fprintf(w, "  %s\n", fs.Name())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  # Handshake with a specific peer using a saved identity")
	fmt.Fprintf(w, "  %s -peer 203.0.113.7:9732 -identity identity.json\n", fs.Name())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  # Generate an identity")
	fmt.Fprintf(w, "  %s -generate-identity -identity identity.json\n", fs.Name())
}

// validateCLIConfig validates the CLI configuration.
func validateCLIConfig(config *CLIConfig) error {
	if config.port == 0 || config.port > 65535 {
		return fmt.Errorf("invalid port: must be between 1 and 65535")
	}

	if config.peerPort == 0 || config.peerPort > 65535 {
		return fmt.Errorf("invalid peer port: must be between 1 and 65535")
	}

	if err := limits.ValidateChainName(config.chainName); err != nil {
		return fmt.Errorf("invalid chain name: %w", err)
	}

	if config.generateIdentity && config.identityFile == "" {
		return fmt.Errorf("-generate-identity requires -identity")
	}

	if config.powTarget < 0 || config.powTarget > crypto.MaxProofOfWorkTarget {
		return fmt.Errorf("pow target must be between 0 and %d", crypto.MaxProofOfWorkTarget)
	}

	if config.connectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive")
	}

	if config.ioTimeout <= 0 {
		return fmt.Errorf("io timeout must be positive")
	}

	if config.peers == "" && strings.TrimSpace(config.bootstrapNames) == "" {
		return fmt.Errorf("no peers: set -peer or -bootstrap")
	}

	if _, err := discovery.ParseList(config.peers, uint16(config.peerPort)); err != nil {
		return err
	}

	if _, err := logrus.ParseLevel(config.logLevel); err != nil {
		return fmt.Errorf("invalid log level %q", config.logLevel)
	}

	if config.logFormat != "text" && config.logFormat != "json" {
		return fmt.Errorf("invalid log format %q: must be text or json", config.logFormat)
	}

	if config.message != "" {
		if err := limits.ValidateCleartext([]byte(config.message)); err != nil {
			return fmt.Errorf("invalid message: %w", err)
		}
	}

	return nil
}

// warnWeakIdentity logs a warning when the local stamp is below the target
// this node demands of peers. Peers with an equal or stricter target will
// refuse the connection.
func warnWeakIdentity(id *identity.Identity, target int) error {
	err := id.CheckProofOfWork(target)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "warnWeakIdentity",
			"pow_target": target,
		}).WithError(err).Warn("Local identity does not meet the proof-of-work target")
	}
	return err
}

// setupLogging applies the logging flags to the standard logrus logger. The
// returned closer releases the log file, if any.
func setupLogging(config *CLIConfig) (io.Closer, error) {
	level, err := logrus.ParseLevel(config.logLevel)
	if err != nil {
		return nil, err
	}
	logrus.SetLevel(level)

	if config.logFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if config.logFile == "" {
		logrus.SetOutput(os.Stderr)
		return nopCloser{}, nil
	}
	f, err := os.OpenFile(config.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	logrus.SetOutput(f)
	return f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// splitList splits a comma-separated flag value, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// loadIdentity returns the identity selected by the flags.
func loadIdentity(config *CLIConfig) (*identity.Identity, error) {
	if config.identityFile == "" {
		return identity.Default(), nil
	}
	return identity.Load(config.identityFile)
}

// createBootstrapConfig converts the CLI configuration into the attempt
// loop configuration.
func createBootstrapConfig(config *CLIConfig, id *identity.Identity, observer *metrics.Collector, book *peerbook.Book) bootstrap.Config {
	hs := handshake.DefaultConfig(id)
	hs.Port = uint16(config.port)
	hs.Version = wire.NewNetworkVersion(config.chainName)
	hs.PowTarget = config.powTarget
	hs.DialTimeout = config.connectTimeout
	hs.ReadTimeout = config.ioTimeout
	hs.WriteTimeout = config.ioTimeout

	bc := bootstrap.Config{
		Handshake:  hs,
		FollowNack: config.followNack,
		PeerBook:   book,
	}
	if observer != nil {
		bc.Handshake.Observer = observer
		bc.Reporter = observer
	}
	return bc
}

// createDiscoveryConfig converts the CLI configuration into resolver
// configuration.
func createDiscoveryConfig(config *CLIConfig) discovery.Config {
	dc := discovery.DefaultConfig()
	dc.Names = splitList(config.bootstrapNames)
	dc.DefaultPort = uint16(config.peerPort)
	dc.Timeout = config.ioTimeout
	for _, s := range splitList(config.dnsServers) {
		if _, _, err := net.SplitHostPort(s); err != nil {
			s = net.JoinHostPort(s, "53")
		}
		dc.Servers = append(dc.Servers, s)
	}
	return dc
}

// setupSignalHandling cancels the run on interrupt or termination.
func setupSignalHandling(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		fmt.Fprintf(os.Stderr, "\n🛑 Received signal %v, abandoning handshake...\n", sig)
		cancel()
	}()
}

// serveMetrics exposes the collector until the process exits.
func serveMetrics(addr string, collector *metrics.Collector) error {
	reg := prometheus.NewRegistry()
	if err := collector.Register(reg); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	srv := &http.Server{Handler: metrics.Handler(reg), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithField("function", "serveMetrics").WithError(err).Error("Metrics server stopped")
		}
	}()
	return nil
}

// exchangeMessage sends one application message and waits for one reply.
func exchangeMessage(res *handshake.Result, message string) error {
	if err := res.Channel.Send([]byte(message)); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	reply, err := res.Channel.Receive()
	if err != nil {
		return fmt.Errorf("receive: %w", err)
	}
	fmt.Fprintf(os.Stderr, "📨 Reply: %d bytes\n", len(reply))
	return nil
}

func generateIdentity(ctx context.Context, config *CLIConfig) int {
	fmt.Fprintf(os.Stderr, "⛏️  Generating identity with proof of work %d...\n", config.powTarget)
	id, err := identity.Generate(ctx, config.powTarget)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Identity generation failed: %v\n", err)
		return exitConfig
	}
	defer id.Wipe()
	if err := id.Save(config.identityFile); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to save identity: %v\n", err)
		return exitConfig
	}
	fmt.Fprintf(os.Stderr, "✅ Identity %s saved to %s\n", id.PeerID, config.identityFile)
	return exitOK
}

func run(ctx context.Context, config *CLIConfig) int {
	if config.generateIdentity {
		return generateIdentity(ctx, config)
	}

	id, err := loadIdentity(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to load identity: %v\n", err)
		return exitConfig
	}
	defer id.Wipe()
	_ = warnWeakIdentity(id, config.powTarget)

	var collector *metrics.Collector
	if config.metricsAddr != "" {
		collector = metrics.NewCollector("tezhandshake", nil)
		if err := serveMetrics(config.metricsAddr, collector); err != nil {
			fmt.Fprintf(os.Stderr, "❌ Failed to start metrics: %v\n", err)
			return exitConfig
		}
	}

	var book *peerbook.Book
	if config.peerBook != "" {
		book, err = peerbook.Open(config.peerBook, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
			return exitConfig
		}
		defer book.Close()
	}

	b, err := bootstrap.New(createBootstrapConfig(config, id, collector, book))
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Invalid configuration: %v\n", err)
		return exitConfig
	}

	static, _ := discovery.ParseList(config.peers, uint16(config.peerPort))
	var resolver *discovery.Resolver
	if len(static) == 0 {
		resolver, err = discovery.NewResolver(createDiscoveryConfig(config))
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ DNS bootstrap unavailable: %v\n", err)
			return exitConfig
		}
	}

	addrs, err := b.Addresses(ctx, static, resolver)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ No peers to try: %v\n", err)
		return exitHandshake
	}

	fmt.Fprintf(os.Stderr, "🚀 Handshaking as %s with up to %d peers...\n", id.PeerID, len(addrs))
	res, err := b.Run(ctx, addrs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\n❌ Handshake failed: %v\n", err)
		return exitHandshake
	}
	defer res.Close()

	fmt.Fprintf(os.Stderr, "\n🎉 Handshake with %s succeeded in %v\n", res.Addr, res.Elapsed)
	fmt.Fprintf(os.Stderr, "📊 Peer %s, chain %s, port %d, private=%t\n",
		res.PeerID, res.PeerVersion.ChainName, res.PeerPort, res.PeerMetadata.PrivateNode)

	if config.message != "" {
		if err := exchangeMessage(res, config.message); err != nil {
			fmt.Fprintf(os.Stderr, "❌ Message exchange failed: %v\n", err)
			return exitHandshake
		}
	}
	return exitOK
}

// main is the entry point.
func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	cliConfig, err := parseCLIFlags(fs, os.Args[1:])
	if err != nil {
		os.Exit(exitConfig)
	}

	if cliConfig.help {
		printUsage(os.Stdout, fs)
		os.Exit(exitOK)
	}

	if err := validateCLIConfig(cliConfig); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Use -help for usage information.\n")
		os.Exit(exitConfig)
	}

	logCloser, err := setupLogging(cliConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Logging setup failed: %v\n", err)
		os.Exit(exitConfig)
	}

	ctx, cancel := context.WithCancel(context.Background())
	setupSignalHandling(cancel)

	code := run(ctx, cliConfig)
	cancel()
	logCloser.Close()
	os.Exit(code)
}
