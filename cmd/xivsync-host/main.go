// cmd/xivsync-host/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"golang.org/x/sync/errgroup"

	"XivSync/config"
	"XivSync/memory"
	"XivSync/netsync"
	"XivSync/types"
	"XivSync/utils"
)

// eventBuffer decouples the scan loop from fan-out for about one tick.
const eventBuffer = 512

func main() {
	configPath := flag.String("config", "host.yaml", "path to the host configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadHostConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize log file
	utils.IfError(utils.InitializeAppLog(cfg.LogFile, cfg.Debug), "Logging to stderr only")
	log.Infof("Configuration loaded: %+v", cfg)

	bindAddress, err := cfg.ResolveBindAddress()
	if err != nil {
		log.Fatalf("Failed to resolve bind address: %v", err)
	}
	sigs, err := cfg.Signatures.Parse()
	if err != nil {
		log.Fatalf("Invalid signatures: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Every failure rebuilds the whole pipeline: find the game, rescan, serve.
	for ctx.Err() == nil {
		err := runSession(ctx, cfg, bindAddress, sigs)
		switch {
		case ctx.Err() != nil:
		case errors.Is(err, memory.ErrProcessNotFound):
			log.Infof("Waiting for %s to start", cfg.Process)
		default:
			log.WithError(err).Warn("Session ended, restarting")
		}

		select {
		case <-ctx.Done():
		case <-time.After(cfg.RetryDelay):
		}
	}
	log.Info("Shutting down")
}

func runSession(ctx context.Context, cfg *config.HostSettings, bindAddress string, sigs map[memory.SignatureType]memory.Signature) error {
	proc, err := memory.FindProcess(cfg.Process)
	if err != nil {
		return err
	}
	log.Infof("Attaching to %s (pid %d)", proc.Name, proc.PID)

	game, err := utils.NewProcessMemory(int(proc.PID), proc.Name)
	if err != nil {
		return err
	}
	defer game.Close()

	// Perform Pattern Scan
	found, err := memory.PatternScan(game, sigs)
	if err != nil {
		return err
	}

	zone, err := memory.ReadZoneID(game, found)
	if err != nil {
		return err
	}
	if memory.IsInGame(zone) {
		log.Infof("Player is currently in zone %d", zone)
	} else {
		log.Info("Player is not in a zone yet")
	}

	server, err := netsync.Listen(netsync.ServerConfig{
		Address:             bindAddress,
		HeartbeatInterval:   cfg.HeartbeatInterval,
		MaxMissedHeartbeats: cfg.MaxMissedHeartbeats,
	})
	if err != nil {
		return err
	}
	defer server.Close()

	events := make(chan types.Event, eventBuffer)
	scanner := memory.NewScanner(game, found, cfg.ScanInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scanner.Run(gctx, events) })
	g.Go(func() error { return server.Run(gctx, events) })
	g.Go(func() error { return watchProcess(gctx, game) })
	err = g.Wait()
	log.Infof("Scanned %d ticks this session", scanner.Ticks())
	return err
}

// watchProcess ends the session as soon as the game exits.
func watchProcess(ctx context.Context, game *utils.ProcessMemory) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !game.Alive() {
				return utils.ErrProcessGone
			}
		}
	}
}
