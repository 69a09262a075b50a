// Package main is the casebook console client. It talks to the API server or,
// with -offline, keeps boards in a local JSON file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"github.com/atinyakov/casebook/internal/client/canvas"
	"github.com/atinyakov/casebook/internal/client/console"
	"github.com/atinyakov/casebook/internal/client/notebook"
	"github.com/atinyakov/casebook/internal/client/remote"
	"github.com/atinyakov/casebook/internal/client/storage"
	"github.com/atinyakov/casebook/internal/logger"
)

var (
	version   string
	buildDate string
)

func main() {
	var (
		serverURL   string
		caFile      string
		sessionFile string
		dataFile    string
		logFile     string
		offline     bool
		showVer     bool
		width       float64
		height      float64
	)

	flag.StringVar(&serverURL, "server", "https://localhost:8080", "server base URL")
	flag.StringVar(&caFile, "ca", "certs/ca.crt", "path to CA cert (empty for system roots)")
	flag.StringVar(&sessionFile, "session", ".casebook-session", "file that keeps the session token")
	flag.StringVar(&dataFile, "data", storage.DefaultFile, "local data file for -offline")
	flag.StringVar(&logFile, "log", "casebook-client.log", "log file")
	flag.BoolVar(&offline, "offline", false, "keep boards in a local file instead of the server")
	flag.BoolVar(&showVer, "version", false, "show build version and date")
	flag.Float64Var(&width, "width", notebook.DefaultCanvas.Width, "canvas width")
	flag.Float64Var(&height, "height", notebook.DefaultCanvas.Height, "canvas height")
	flag.Parse()

	if showVer {
		fmt.Printf("Casebook Client\nVersion: %s\nBuild Date: %s\n", orDefault(version, "N/A"), orDefault(buildDate, "N/A"))
		return
	}

	lg := logger.New()
	if err := lg.InitFile("info", logFile); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = lg.Log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	prompter := console.NewPrompter(os.Stdin, os.Stdout)
	size := canvas.Size{Width: width, Height: height}
	opts := []notebook.Option{
		notebook.WithConfirmer(prompter),
		notebook.WithLogger(lg.Log),
		notebook.WithCanvas(size),
	}

	var (
		sess  notebook.Session
		store notebook.Store
	)
	if offline {
		ls, err := storage.NewLocalStore(dataFile, storage.LocalUser, lg.Log)
		if err != nil {
			log.Fatal(err)
		}
		sess, store = storage.NewLocalSession(storage.LocalUser), ls
	} else {
		httpClient, err := remote.NewHTTPClient(caFile)
		if err != nil {
			log.Fatal(err)
		}
		rc := remote.New(serverURL, httpClient,
			remote.WithSessionFile(sessionFile),
			remote.WithPrompter(prompter),
			remote.WithLogger(lg.Log),
		)
		if err := rc.Resume(ctx); err != nil {
			lg.Log.Warn("could not resume session", zap.Error(err))
			fmt.Println("前回のセッションを復元できませんでした。")
		}
		sess, store = rc, rc
		opts = append(opts, notebook.WithAnalyzer(rc))
	}

	ctrl := notebook.New(sess, store, opts...)
	ctrl.Start(ctx)
	defer ctrl.Close()

	newShell(ctrl, prompter, os.Stdout).run(ctx)
}

// orDefault returns s, or def when s is empty (equivalent to cmp.Or for two strings).
func orDefault(s, def string) string {
	if s != "" {
		return s
	}
	return def
}
