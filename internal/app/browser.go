package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"runtime"
	"time"
)

// openBrowserWhenReady waits for the server to answer its health probe,
// then points the operator's default browser at the UI. Meant to run in
// its own goroutine; it gives up quietly when ctx is cancelled first.
func (a *Application) openBrowserWhenReady(ctx context.Context) {
	url := fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)

	if !a.waitForServer(ctx, url+"/api/health", 10) {
		return
	}

	if err := openBrowser(url); err != nil {
		a.Logger.Error("Could not open a browser",
			slog.String("error", err.Error()),
			slog.String("url", url))
		fmt.Printf("\n========================================\n"+
			"Parcel Pulse is running!\n"+
			"Open your browser and go to:\n"+
			"  %s\n"+
			"========================================\n\n", url)
		return
	}

	a.Logger.Info("Browser opened", slog.String("url", url))
}

// waitForServer polls the health URL until it answers 200 or the
// attempts run out. Half a second between polls covers the gap between
// ListenAndServe starting and the socket accepting.
func (a *Application) waitForServer(ctx context.Context, healthURL string, attempts int) bool {
	for i := 0; i < attempts; i++ {
		select {
		case <-ctx.Done():
			a.Logger.Info("Browser launch cancelled, application shutting down")
			return false
		default:
		}

		resp, err := http.Get(healthURL)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return true
			}
		}

		time.Sleep(500 * time.Millisecond)
	}

	a.Logger.Error("Server never answered its health probe, skipping browser launch",
		slog.String("url", healthURL),
		slog.Int("attempts", attempts))
	return false
}

// browserCommand is one way of launching the default browser
type browserCommand struct {
	name string
	argv []string
}

// browserCommands returns the launch commands for the current platform,
// most reliable first
func browserCommands(url string) []browserCommand {
	switch runtime.GOOS {
	case "windows":
		return []browserCommand{
			{"start", []string{"cmd", "/c", "start", "", url}},
			{"rundll32", []string{"rundll32", "url.dll,FileProtocolHandler", url}},
			{"powershell", []string{"powershell", "-Command", fmt.Sprintf("Start-Process '%s'", url)}},
		}
	case "darwin":
		return []browserCommand{
			{"open", []string{"open", url}},
		}
	default:
		return []browserCommand{
			{"xdg-open", []string{"xdg-open", url}},
			{"sensible-browser", []string{"sensible-browser", url}},
			{"firefox", []string{"firefox", url}},
			{"chromium", []string{"chromium", url}},
		}
	}
}

// openBrowser tries every platform command in order, three rounds with
// a short backoff between rounds.
func openBrowser(url string) error {
	var lastErr error

	commands := browserCommands(url)
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * time.Second)
			slog.Info("Retrying browser launch",
				slog.Int("attempt", attempt+1),
				slog.String("url", url))
		}

		for _, c := range commands {
			cmd := exec.Command(c.argv[0], c.argv[1:]...)
			if err := cmd.Start(); err != nil {
				lastErr = err
				slog.Warn("Browser launch failed",
					slog.String("method", c.name),
					slog.String("error", err.Error()))
				continue
			}

			// Reap the launcher once it exits on its own
			go cmd.Wait()

			slog.Info("Browser launched",
				slog.String("method", c.name),
				slog.String("url", url))
			return nil
		}
	}

	return fmt.Errorf("no browser launch method worked: %w", lastErr)
}
