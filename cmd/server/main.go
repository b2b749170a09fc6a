package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/leverai/focusgroup/internal/api"
	"github.com/leverai/focusgroup/internal/config"
	"github.com/leverai/focusgroup/internal/media"
	"github.com/leverai/focusgroup/internal/mock"
	"github.com/leverai/focusgroup/internal/session"
	"github.com/leverai/focusgroup/internal/token"
	"github.com/leverai/focusgroup/internal/ws"
)

func main() {
	mockMode := flag.Bool("mock", false, "Simulate the moderator agent joining started sessions")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *port > 0 {
		cfg.Server.Port = *port
	}

	store := session.NewStore()
	rooms := media.NewMemory()
	minter := token.NewMinter(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, cfg.LiveKit.TokenTTL)
	if !minter.Configured() {
		log.Println("LiveKit credentials not set; join requests will be rejected")
	}

	broadcaster := ws.NewBroadcaster(store, cfg.Server.BroadcastThrottle, cfg.Server.SnapshotInterval)
	server := api.NewServer(store, rooms, rooms, minter, broadcaster, cfg.LiveKit.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *mockMode {
		log.Println("Starting in mock mode (simulated moderator agent)")
		sim := mock.NewAgentSimulator(store, rooms, mock.DefaultJoinDelay)
		go sim.Start(ctx)
	}

	mux := http.NewServeMux()
	server.SetupRoutes(mux)
	mux.Handle("/ws", ws.NewHandler(broadcaster))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		cancel()
		os.Exit(0)
	}()

	if err := api.ListenAndServe(cfg.Server.Host, cfg.Server.Port, mux); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
