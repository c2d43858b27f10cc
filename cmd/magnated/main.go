// Command magnated runs the Magnate economy simulation server.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/talgya/magnate/internal/api"
	"github.com/talgya/magnate/internal/catalog"
	"github.com/talgya/magnate/internal/news"
	"github.com/talgya/magnate/internal/persistence"
	"github.com/talgya/magnate/internal/sim"
)

// autosaveEvery is the tick interval between automatic saves.
const autosaveEvery = 60

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("Magnate — industrial economy simulation")

	configDir := envString("MAGNATE_CONFIG_DIR", "configs")
	dbPath := envString("MAGNATE_DB", "data/magnate.db")
	apiPort := envInt("MAGNATE_PORT", 8080)

	// ── Catalogs ──────────────────────────────────────────────────────
	goods, err := catalog.LoadGoods(filepath.Join(configDir, "goods.yaml"))
	if err != nil {
		slog.Error("failed to load goods catalog", "error", err)
		os.Exit(1)
	}
	defs, err := catalog.LoadBuildings(filepath.Join(configDir, "buildings.yaml"), goods)
	if err != nil {
		slog.Error("failed to load building catalog", "error", err)
		os.Exit(1)
	}
	wc, err := sim.LoadWorld(filepath.Join(configDir, "world.yaml"))
	if err != nil {
		slog.Error("failed to load world config", "error", err)
		os.Exit(1)
	}
	slog.Info("catalogs loaded", "goods", goods.Len(), "buildings", defs.Len())

	// ── Database ──────────────────────────────────────────────────────
	os.MkdirAll(filepath.Dir(dbPath), 0755)
	db, err := persistence.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", dbPath)

	// ── Load or Build World ───────────────────────────────────────────
	var world *sim.Simulation
	var startTick uint64

	hasState, err := db.HasState()
	if err != nil {
		slog.Error("failed to check saved state", "error", err)
		os.Exit(1)
	}

	if hasState {
		slog.Info("found saved world state, loading...")
		st, err := db.LoadState()
		if err != nil {
			slog.Error("failed to load world state", "error", err)
			os.Exit(1)
		}
		world, err = sim.BuildRestored(goods, defs, wc, st)
		if err != nil {
			slog.Error("failed to restore world", "error", err)
			os.Exit(1)
		}
		startTick = st.Tick
	} else {
		slog.Info("no saved state found, building new world...")
		world, err = sim.Build(goods, defs, wc)
		if err != nil {
			slog.Error("failed to build world", "error", err)
			os.Exit(1)
		}
		// Initial save so a crash before the first autosave still resumes.
		if err := db.SaveState(world.State()); err != nil {
			slog.Error("initial save failed", "error", err)
		}
	}

	// ── Engine ────────────────────────────────────────────────────────
	eng := sim.NewEngine(startTick)
	eng.OnTick = func(tick uint64) {
		world.Step(tick)
		if tick%autosaveEvery == 0 {
			if err := db.SaveState(world.State()); err != nil {
				slog.Error("autosave failed", "tick", tick, "error", err)
			}
		}
	}

	// ── Content Client ────────────────────────────────────────────────
	newsClient := news.NewClient(os.Getenv("ANTHROPIC_API_KEY"))
	if newsClient.Enabled() {
		slog.Info("news client enabled")
	} else {
		slog.Warn("ANTHROPIC_API_KEY not set — headlines and research use canned fallbacks")
	}

	// ── HTTP API + WebSocket ──────────────────────────────────────────
	adminKey := os.Getenv("MAGNATE_ADMIN_KEY")
	if adminKey == "" {
		slog.Warn("MAGNATE_ADMIN_KEY not set — POST endpoints will be disabled")
	}

	hub := api.NewHub()
	go hub.Run()
	go func() {
		for snap := range world.Snapshots {
			hub.BroadcastSnapshot(snap)
		}
	}()

	apiServer := &api.Server{
		Sim:      world,
		Eng:      eng,
		News:     newsClient,
		DB:       db,
		Hub:      hub,
		Port:     apiPort,
		AdminKey: adminKey,
	}
	apiServer.Start()

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		eng.Stop()
	}()

	fmt.Printf("\nMagnate is open for business: %d goods, %d building types.\n", goods.Len(), defs.Len())
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", apiPort)
	if startTick > 0 {
		fmt.Printf("Resuming from tick %d\n", startTick)
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	eng.Run()

	// Final save on shutdown.
	slog.Info("final save...")
	if err := db.SaveState(world.State()); err != nil {
		slog.Error("final save failed", "error", err)
	}

	fmt.Println("Simulation stopped. World state saved.")
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
