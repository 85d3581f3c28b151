package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os/exec"
	"runtime"
	"time"

	"github.com/ayusman/cuerposonoro/internal/app"
	"github.com/ayusman/cuerposonoro/internal/config"
	"github.com/ayusman/cuerposonoro/internal/tray"
)

func main() {
	fmt.Println("Cuerpo Sonoro - Movement Sonification Engine")

	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	a := app.New(cfg)
	if err := a.Start(); err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}

	t := tray.New()
	t.OnToggle(func(enabled bool) {
		a.SetEnabled(enabled)
	})
	t.OnMonitor(func() {
		openBrowser(monitorURL(cfg.Server.Addr))
	})
	t.OnQuit(func() {
		a.Stop()
	})

	// Mirror the current stage zone into the tray menu
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if s := a.Session(); s != nil {
				t.SetZone(s.Snapshot().Zone)
			}
		}
	}()

	// Blocks until quit is selected from the tray menu
	t.Run()
}

// monitorURL builds the browser URL for the monitor page from the server
// listen address. Wildcard and empty hosts map to localhost.
func monitorURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// openBrowser opens the given URL in the default browser.
func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	default:
		log.Printf("open %s in your browser", url)
		return
	}
	if err := cmd.Start(); err != nil {
		log.Printf("failed to open browser: %v", err)
	}
}
