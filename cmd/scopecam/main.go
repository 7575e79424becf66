package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/banshee-data/scopecam/internal/config"
	"github.com/banshee-data/scopecam/internal/devicelink"
	"github.com/banshee-data/scopecam/internal/monitoring"
	"github.com/banshee-data/scopecam/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to a scope JSON config (defaults apply when empty)")
	devMode     = flag.Bool("dev", false, "Run against the emulated controller and a synthetic camera")
	listen      = flag.String("listen", ":8080", "Listen address")
	port        = flag.String("port", "", "Serial port for the controller (overrides config; ignored in dev mode)")
	cameraPath  = flag.String("camera", "", "V4L2 camera device (overrides config; ignored in dev mode)")
	videoDir    = flag.String("video-dir", "", "Directory for recordings and snapshots (overrides config)")
	dbPath      = flag.String("db", "", "Catalogue database path (overrides config)")
	listPorts   = flag.Bool("list-ports", false, "List serial ports and exit")
	showVersion = flag.Bool("version", false, "Print the version and exit")
)

var logf = monitoring.Component("scopecam")

func loadConfig(path string) (*config.ScopeConfig, error) {
	if path == "" {
		return config.EmptyScopeConfig(), nil
	}
	return config.LoadScopeConfig(path)
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *listPorts {
		ports, err := devicelink.ListPorts()
		if err != nil {
			log.Fatalf("failed to list serial ports: %v", err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	a, err := newApp(cfg, appOptions{
		Dev:      *devMode,
		Serial:   *port,
		Camera:   *cameraPath,
		VideoDir: *videoDir,
		DBPath:   *dbPath,
	})
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	logf("%s ready", version.String())

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:    *listen,
			Handler: a.Handler(),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("failed to start server: %v", err)
			}
		}()
		logf("listening on %s", *listen)

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		log.Printf("shutdown: %v", err)
		os.Exit(1)
	}
	log.Printf("Graceful shutdown complete")
}
