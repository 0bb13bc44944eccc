package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ayusman/yavanika/internal/app"
	"github.com/ayusman/yavanika/internal/tray"
)

func main() {
	var (
		addr          = flag.String("addr", ":8080", "HTTP listen address")
		cameraID      = flag.Int("camera", 0, "capture device ID, -1 for the mock source")
		sourceLang    = flag.String("source-lang", "ja", "source language")
		targetLang    = flag.String("target-lang", "en", "target language")
		interval      = flag.Duration("interval", 100*time.Millisecond, "capture interval")
		recognizerCmd = flag.String("recognizer", "", "recognizer worker binary")
		translatorCmd = flag.String("translator", "", "translator worker binary")
		useTray       = flag.Bool("tray", false, "run with a system tray icon")
	)
	flag.Parse()

	fmt.Println("Yavanika - Real-Time Translation Overlay")

	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("Failed to get home directory: %v", err)
	}

	dataDir := filepath.Join(homeDir, ".yavanika")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	pluginDir := filepath.Join(dataDir, "plugins")
	if err := os.MkdirAll(pluginDir, 0755); err != nil {
		log.Fatalf("Failed to create plugin directory: %v", err)
	}

	a, err := app.New(app.Config{
		DataDir:         dataDir,
		PluginDir:       pluginDir,
		StaticDir:       findWebDir(),
		SourceLang:      *sourceLang,
		TargetLang:      *targetLang,
		CameraID:        *cameraID,
		RecognizerCmd:   *recognizerCmd,
		TranslatorCmd:   *translatorCmd,
		CaptureInterval: *interval,
	})
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer a.Shutdown()

	if err := a.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start pipeline: %v", err)
	}

	// Flush the learned store and stop workers on Ctrl-C.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		a.Shutdown()
		os.Exit(0)
	}()

	fmt.Printf("Starting server on %s\n", *addr)
	if !*useTray {
		if err := a.Server().ListenAndServe(*addr); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
		return
	}

	go func() {
		if err := a.Server().ListenAndServe(*addr); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()
	runTray(a)
}

// runTray blocks on the system tray loop; quitting the tray quits the
// application.
func runTray(a *app.App) {
	t := tray.New()
	t.OnToggle(a.SetEnabled)
	t.OnQuit(a.Shutdown)

	go func() {
		for range time.Tick(2 * time.Second) {
			t.SetStatus(a.Status())
			if out := a.Engine().LastOutputs(); out != nil && len(out.Translations) > 0 {
				t.SetLastTranslation(out.Translations[0].Text)
			}
		}
	}()
	t.Run()
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.yavanika/web.
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

	homeWebDir := filepath.Join(homeDir, ".yavanika", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
