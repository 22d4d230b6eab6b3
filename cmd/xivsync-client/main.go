// cmd/xivsync-client/main.go
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

	"XivSync/config"
	"XivSync/mirror"
	"XivSync/netsync"
	"XivSync/utils"
)

func main() {
	configPath := flag.String("config", "client.yaml", "path to the client configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadClientConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize log file
	utils.IfError(utils.InitializeAppLog(cfg.LogFile, cfg.Debug), "Logging to stderr only")
	log.Infof("Configuration loaded: %+v", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for ctx.Err() == nil {
		err := runSession(ctx, cfg)
		switch {
		case ctx.Err() != nil:
		case errors.Is(err, netsync.ErrUnableToConnect):
			log.Warnf("Unable to connect to %s", cfg.HostAddress)
		case errors.Is(err, netsync.ErrReadTimeout):
			log.Warn("Host stopped sending, reconnecting")
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

// runSession builds a fresh mirror and feeds it until the link drops.
func runSession(ctx context.Context, cfg *config.ClientSettings) error {
	region, err := mirror.NewRegion()
	if err != nil {
		return err
	}
	defer func() { utils.IfError(region.Close(), "Failed to unmap mirror region") }()
	log.Infof("Memory mirror at 0x%X (%d bytes)", region.Base(), region.Size())

	heap := mirror.NewHeap(region, cfg.GracePeriod)
	defer func() { utils.IfError(heap.Close(), "Failed to release mob blobs") }()

	client, err := netsync.Dial(netsync.ClientConfig{
		HostAddress:       cfg.HostAddress,
		BindAddress:       cfg.BindAddress,
		HeartbeatInterval: cfg.HeartbeatInterval,
		ConnectTimeout:    cfg.ConnectTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	err = client.Run(ctx, heap)
	stats := client.Stats()
	log.WithFields(log.Fields{
		"received":  stats.Received,
		"malformed": stats.Malformed,
		"gaps":      stats.Gaps,
		"reordered": stats.Reordered,
	}).Info("Sync session stats")
	return err
}
