// Command feedd runs the feed engine against the configured relays and
// serves health, metrics and feed controls over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nostr-feed/internal/config"
	"nostr-feed/internal/engine"
	"nostr-feed/internal/relay"
	"nostr-feed/internal/signer"
	"nostr-feed/internal/store"
)

const (
	signerTableSize = 256
	signerTTL       = 10 * time.Minute
	seedTimeout     = 5 * time.Second
)

// handlerRef lets the relay manager be built before the engine it feeds
type handlerRef struct {
	relay.Handler
}

func main() {
	printConfig := flag.Bool("example-config", false, "Print the default configuration and exit")
	flag.Parse()

	if *printConfig {
		os.Stdout.Write(config.Example())
		return
	}

	cfg := config.LoadOrDefault()
	InitLogger(cfg.Logging, os.Stdout)

	if err := run(cfg); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("feedd exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sgn := newSigner(cfg.Identity)
	self, err := sgn.PublicKey(ctx)
	if err != nil {
		slog.Warn("no local identity, following view will be empty", "error", err)
	}

	storeCfg := cfg.StoreConfig()
	backend, backendType := store.Open(ctx, storeCfg)
	snaps := store.NewSnapshots(backend, storeCfg)
	defer snaps.Close()

	sink := newLogSink()
	opts := cfg.EngineOptions()
	opts.Store = snaps

	var ref handlerRef
	mgr := relay.NewManager(&ref, cfg.RelayOptions())
	eng := engine.New(opts, mgr, sink, sgn)
	ref.Handler = eng

	engineDone := make(chan error, 1)
	go func() { engineDone <- eng.Run(ctx) }()

	if self != "" {
		seed(ctx, eng, snaps, self)
	}

	started := mgr.Connect(ctx, cfg.Relays)
	slog.Info("connecting to relays", "count", len(started), "view", cfg.View().String())

	srv := &server{
		engine:      eng,
		relays:      mgr,
		store:       snaps,
		sink:        sink,
		backendType: backendType,
		started:     time.Now(),
	}
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("starting http server", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	httpServer.Shutdown(shutdownCtx)
	mgr.Close()
	return <-engineDone
}

// newSigner picks a local signer when a secret key is configured and a
// read-only identity otherwise. Either way requests go through the bridge.
func newSigner(id config.Identity) signer.Signer {
	var next signer.Signer = signer.ReadOnly{PubKey: id.PubKey}
	if id.SecretKey != "" {
		local, err := signer.NewLocal(id.SecretKey)
		if err != nil {
			slog.Error("invalid secret key, running read-only", "error", err)
		} else {
			if pk, _ := local.PublicKey(context.Background()); id.PubKey != "" && id.PubKey != pk {
				slog.Warn("identity.pubkey does not match secret key, using the key's pubkey")
			}
			next = local
		}
	}
	return signer.NewBridge(next, signerTableSize, signerTTL)
}

// seed warms the engine with the persisted follow set and profiles
func seed(ctx context.Context, eng *engine.Engine, snaps *store.Snapshots, self string) {
	ctx, cancel := context.WithTimeout(ctx, seedTimeout)
	defer cancel()

	follows, found, err := snaps.LoadFollows(ctx, self)
	if err != nil {
		slog.Warn("could not load follow snapshot", "error", err)
		return
	}
	if !found {
		slog.Debug("no follow snapshot")
		return
	}

	profiles, err := snaps.LoadProfiles(ctx, append([]string{self}, follows.Pubkeys...))
	if err != nil {
		slog.Warn("could not load profile snapshots", "error", err)
		profiles = nil
	}
	if err := eng.Seed(follows, profiles); err != nil {
		slog.Warn("seed failed", "error", err)
		return
	}
	slog.Info("seeded from snapshot", "follows", len(follows.Pubkeys), "profiles", len(profiles))
}

var _ engine.Sink = (*logSink)(nil)
