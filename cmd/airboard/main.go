package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/ayusman/airboard/internal/app"
	"github.com/ayusman/airboard/internal/config"
	"github.com/ayusman/airboard/internal/discovery"
	"github.com/ayusman/airboard/internal/export"
	"github.com/ayusman/airboard/internal/publish"
	"github.com/ayusman/airboard/internal/server"
	"github.com/ayusman/airboard/internal/session"
	"github.com/ayusman/airboard/internal/store"
	"github.com/ayusman/airboard/internal/tray"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	addr := flag.String("addr", "", "listen address, overrides server.addr")
	withTray := flag.Bool("tray", false, "show a system tray menu")
	discover := flag.Bool("discover", false, "list boards on the local network and exit")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "airboard: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	slog.SetDefault(slog.New(cfg.Handler(os.Stderr)))

	if *discover {
		if err := runDiscover(cfg); err != nil {
			slog.Error("discovery failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, *configPath, *withTray); err != nil {
		slog.Error("airboard stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, configPath string, withTray bool) error {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	st, err := store.Open(cfg.StoreConfig())
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer st.Close()

	bg, err := cfg.Background()
	if err != nil {
		return err
	}
	ex, err := export.New(cfg.Export, bg, st.Drawings())
	if err != nil {
		return err
	}

	sessCfg, err := cfg.SessionConfig()
	if err != nil {
		return err
	}
	manager := session.NewManager(sessCfg, ex)
	defer manager.StopAll()

	pipeline := app.New(cfg.AppConfig())
	defer pipeline.Close()

	if cfg.MQTT.Enabled {
		pub, err := publish.Connect(cfg.MQTT)
		if err != nil {
			slog.Warn("mqtt disabled", "error", err)
		} else {
			defer pub.Close()
			manager.OnStart(func(c *session.Coordinator) { pub.Follow(c) })
		}
	}

	webDir := findWebDir()
	if webDir != "" {
		slog.Info("serving static files", "dir", webDir)
	}

	srv := server.New(server.Config{
		StaticDir: webDir,
		Settings:  cfg,
		Manager:   manager,
		Store:     st,
		Exporter:  ex,
		Capture:   pipeline,
	})

	if cfg.Discovery.Enabled {
		if port, err := listenPort(cfg.Server.Addr); err != nil {
			slog.Warn("discovery disabled", "error", err)
		} else if adv, err := discovery.Advertise(cfg.Discovery, port, []string{"airboard", "api=/api"}); err != nil {
			slog.Warn("discovery disabled", "error", err)
		} else {
			defer adv.Shutdown()
		}
	}

	if configPath != "" {
		w, err := config.Watch(configPath, 250*time.Millisecond, func(next *config.Config) {
			sc, err := next.SessionConfig()
			if err != nil {
				slog.Warn("ignoring reloaded session settings", "error", err)
				return
			}
			manager.SetConfig(sc)
			srv.SetConfig(next)
		})
		if err != nil {
			slog.Warn("config hot reload disabled", "error", err)
		} else {
			defer w.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", cfg.Server.Addr)
		errCh <- srv.ListenAndServe(cfg.Server.Addr)
		stop()
	}()

	if withTray {
		t := tray.New()
		manager.OnStart(t.Follow)
		t.OnToggle(pipeline.SetEnabled)
		t.OnOpen(func() { openBrowser(boardURL(cfg.Server.Addr)) })
		t.OnQuit(stop)
		go func() {
			<-ctx.Done()
			t.Quit()
		}()
		// Blocks on the main goroutine as the tray toolkits require.
		t.Run()
	}

	<-ctx.Done()
	slog.Info("shutting down")

	// Ending the sessions first closes their streams.
	manager.StopAll()
	pipeline.Detach()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		slog.Warn("server shutdown", "error", err)
	}

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

func runDiscover(cfg *config.Config) error {
	peers, err := discovery.Browse(cfg.Discovery.Service, 3*time.Second)
	if err != nil {
		return err
	}
	if len(peers) == 0 {
		fmt.Println("no boards found")
		return nil
	}
	for _, p := range peers {
		fmt.Printf("%-24s %s\n", p.Instance, p.URL())
	}
	return nil
}

// listenPort returns the TCP port of a listen address such as ":8080".
func listenPort(addr string) (int, error) {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(port)
}

func boardURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://localhost:8080"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		slog.Warn("failed to open browser", "url", url, "error", err)
	}
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.airboard/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".airboard", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
