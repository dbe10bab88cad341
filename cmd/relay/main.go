// Relay — the standalone signaling relay server.
//
// One WebSocket endpoint per room: every envelope a member sends is fanned
// out to the other members, and membership changes are announced as
// user-joined / user-left envelopes. The relay never inspects SDP or ICE
// payloads, so it needs no WebRTC stack of its own.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/pterm/pterm"

	"github.com/fireside-hq/campcast/internal/signaling"
	"github.com/fireside-hq/campcast/internal/util"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	addr := flag.String("addr", ":8080", "Listen address")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("Campcast relay — v%s", version))

	mux := http.NewServeMux()
	mux.Handle("/rooms/", signaling.NewRelay())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: *addr, Handler: mux}

	util.StartStatsReporter(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	util.LogSuccess("relay listening on %s", *addr)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			util.LogError("relay failed: %v", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}

	util.LogInfo("relay stopped")
}
