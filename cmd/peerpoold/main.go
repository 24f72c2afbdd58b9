// Command peerpoold runs a standalone peer pool daemon: it loads or
// generates a node identity, binds a listener, loads its durable node
// catalog, and keeps the pool alive until interrupted. It exists to
// exercise pool.Pool end to end; order matching, the swap protocol, and
// wallet/RPC surfaces are intentionally absent.
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/oxidex/peerpool/address"
	"github.com/oxidex/peerpool/identity"
	"github.com/oxidex/peerpool/pool"
	"github.com/oxidex/peerpool/store"
)

var (
	portFlag = cli.UintFlag{
		Name:  "port",
		Usage: "TCP port to listen on (0 picks an ephemeral port)",
		Value: 42200,
	}
	addressesFlag = cli.StringFlag{
		Name:  "addresses",
		Usage: "comma-separated host:port addresses to advertise to peers",
	}
	peersFlag = cli.StringFlag{
		Name:  "peers",
		Usage: "comma-separated <hexpubkey>@host:port bootstrap peers to dial at startup",
	}
	keyFileFlag = cli.StringFlag{
		Name:  "keyfile",
		Usage: "path to a 32-byte node identity keyfile, generated on first run",
		Value: "peerpool.key",
	}
	dataDirFlag = cli.StringFlag{
		Name:  "datadir",
		Usage: "directory for the LevelDB node catalog; empty keeps it in memory",
	}
	discoverFlag = cli.BoolFlag{
		Name:  "discover",
		Usage: "enable periodic gossip-based peer discovery",
	}
	noExternalIPFlag = cli.BoolFlag{
		Name:  "no-external-ip",
		Usage: "disable outbound external IP detection",
	}
	logLevelFlag = cli.StringFlag{
		Name:  "loglevel",
		Usage: "panic, fatal, error, warn, info, debug, trace",
		Value: "info",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "peerpoold"
	app.Usage = "standalone peer pool daemon"
	app.Flags = []cli.Flag{
		portFlag, addressesFlag, peersFlag, keyFileFlag, dataDirFlag,
		discoverFlag, noExternalIPFlag, logLevelFlag,
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	log, err := buildLogger(c.String(logLevelFlag.Name))
	if err != nil {
		return err
	}

	key, err := loadOrCreateKey(c.String(keyFileFlag.Name))
	if err != nil {
		return fmt.Errorf("loading node identity: %w", err)
	}
	log.WithField("pubkey", hex.EncodeToString(key.PubKey())).Info("node identity ready")

	nodeStore, closeStore, err := openStore(c.String(dataDirFlag.Name))
	if err != nil {
		return fmt.Errorf("opening node catalog: %w", err)
	}
	defer closeStore()

	cfg := pool.Config{
		Listen:           true,
		Port:             uint16(c.Uint(portFlag.Name)),
		Addresses:        splitNonEmpty(c.String(addressesFlag.Name)),
		DetectExternalIP: !c.Bool(noExternalIPFlag.Name),
		Discover:         c.Bool(discoverFlag.Name),
		DiscoverMinutes:  10,
	}

	p, err := pool.New(cfg, key, nodeStore, log)
	if err != nil {
		return fmt.Errorf("constructing pool: %w", err)
	}
	if err := p.Init(); err != nil {
		return fmt.Errorf("initializing pool: %w", err)
	}
	log.WithField("port", p.ListenPort()).Info("pool listening")

	for _, raw := range splitNonEmpty(c.String(peersFlag.Name)) {
		pubKey, addr, err := parseBootstrapPeer(raw)
		if err != nil {
			log.WithError(err).WithField("peer", raw).Warn("skipping malformed bootstrap peer")
			continue
		}
		go func() {
			if _, err := p.AddOutbound(addr, pubKey, true, nil); err != nil {
				log.WithError(err).WithField("peer", raw).Warn("bootstrap dial failed")
			}
		}()
	}

	waitForSignal(log)
	log.Info("shutting down")
	p.Disconnect()
	return nil
}

func buildLogger(level string) (*logrus.Entry, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid loglevel %q: %w", level, err)
	}
	l := logrus.New()
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logrus.NewEntry(l), nil
}

func loadOrCreateKey(path string) (*identity.Secp256k1Key, error) {
	b, err := os.ReadFile(path)
	if err == nil {
		if len(b) != 32 {
			return nil, fmt.Errorf("keyfile %s: expected 32 bytes, got %d", path, len(b))
		}
		return identity.Secp256k1KeyFromBytes(b), nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	key, err := identity.NewSecp256k1Key()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, key.Bytes(), 0o600); err != nil {
		return nil, fmt.Errorf("writing keyfile %s: %w", path, err)
	}
	return key, nil
}

func openStore(dataDir string) (store.NodeStore, func(), error) {
	if dataDir == "" {
		return store.NewMemoryStore(), func() {}, nil
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, nil, err
	}
	s, err := store.OpenLevelStore(dataDir)
	if err != nil {
		return nil, nil, err
	}
	return s, func() { _ = s.Close() }, nil
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBootstrapPeer(raw string) (pubKey []byte, addr address.Address, err error) {
	at := strings.IndexByte(raw, '@')
	if at < 0 {
		return nil, address.Address{}, fmt.Errorf("expected <hexpubkey>@host:port, got %q", raw)
	}
	pubKey, err = hex.DecodeString(raw[:at])
	if err != nil {
		return nil, address.Address{}, fmt.Errorf("invalid hex pubkey: %w", err)
	}
	addr, err = address.Parse(raw[at+1:])
	if err != nil {
		return nil, address.Address{}, err
	}
	return pubKey, addr, nil
}

func waitForSignal(log *logrus.Entry) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.WithField("signal", sig.String()).Info("received shutdown signal")
}
