// Campcast — CLI entry point.
//
// This tool joins a room's voice channel through a signaling relay. The
// room owner broadcasts microphone audio to every other member over
// per-member WebRTC connections; everyone else listens.
//
// It can be launched interactively (no flags) or non-interactively via CLI
// flags (-url, -room, -user, -broadcaster).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/pterm/pterm"

	"github.com/fireside-hq/campcast/internal/config"
	"github.com/fireside-hq/campcast/internal/session"
	"github.com/fireside-hq/campcast/internal/signaling"
	"github.com/fireside-hq/campcast/internal/util"
)

var version = "dev"

func main() {
	// Root context — cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := config.Config{}
	flag.StringVar(&cfg.RelayURL, "url", "", "Relay URL to connect to (e.g. wss://relay.example.com)")
	flag.StringVar(&cfg.RoomID, "room", "", "Room id to join")
	flag.StringVar(&cfg.UserID, "user", "", "Local user id (generated when omitted)")
	flag.StringVar(&cfg.BroadcasterID, "broadcaster", "", "Room owner's user id")
	flag.BoolVar(&cfg.AutoListen, "auto-listen", false, "Start listening when the broadcast starts")
	flag.BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")
	flag.Parse()

	if cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("Campcast — v%s", version))
	pterm.Println()

	if cfg.RelayURL == "" {
		askConfig(&cfg)
	}
	if err := cfg.Normalize(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg); err != nil && ctx.Err() == nil {
		util.LogError("session ended: %v", err)
		os.Exit(1)
	}
	util.LogInfo("left room %s", cfg.RoomID)
}

// run joins the room, starts the session coordinator and drives it from an
// interactive menu until the user quits or the channel drops.
func run(ctx context.Context, cfg config.Config) error {
	ch, err := signaling.Dial(ctx, cfg.RelayURL, cfg.RoomID, cfg.UserID)
	if err != nil {
		return err
	}

	sess, err := session.New(session.Config{
		Room:        session.Room{ID: cfg.RoomID, BroadcasterID: cfg.BroadcasterID},
		LocalUserID: cfg.UserID,
		Channel:     ch,
		AutoListen:  cfg.AutoListen,
	})
	if err != nil {
		ch.Close()
		return err
	}

	util.StartStatsReporter(ctx)
	util.LogSuccess("joined room %s as %s (%s)", cfg.RoomID, cfg.UserID, sess.Role())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- sess.Run(runCtx) }()

	go menuLoop(runCtx, cancel, sess)

	err = <-errCh
	if runCtx.Err() != nil {
		return nil
	}
	return err
}

// menuLoop shows the role-appropriate actions until the session ends.
func menuLoop(ctx context.Context, quit context.CancelFunc, sess *session.Session) {
	broadcaster := sess.Role() == session.RoleBroadcaster
	for ctx.Err() == nil {
		var options []string
		if broadcaster {
			options = []string{"Start broadcast", "Stop broadcast", "Show connections", "Quit"}
		} else {
			options = []string{"Listen", "Stop listening", "Show connections", "Quit"}
		}

		choice, _ := pterm.DefaultInteractiveSelect.
			WithOptions(options).
			WithDefaultText("Action").
			Show()

		var err error
		switch {
		case strings.HasPrefix(choice, "Start"):
			err = sess.StartBroadcasting()
		case strings.HasPrefix(choice, "Stop broadcast"):
			err = sess.StopBroadcasting()
		case choice == "Listen":
			err = sess.ListenToBroadcaster()
		case choice == "Stop listening":
			err = sess.StopListening()
		case choice == "Show connections":
			for _, userID := range sess.ActiveConnections() {
				state, _ := sess.ConnectionState(userID)
				pterm.Println(fmt.Sprintf("  %s — %s", userID, state))
			}
			continue
		default:
			quit()
			return
		}

		if err != nil {
			util.LogWarning("%v", err)
		}
	}
}

// askConfig falls back to interactive prompts when no -url flag is given.
func askConfig(cfg *config.Config) {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Relay URL (e.g. wss://relay.example.com)").
			Show()
		relayURL, err := config.NormalizeRelayURL(raw)
		if err == nil {
			cfg.RelayURL = relayURL
			pterm.Println()
			break
		}
		util.LogWarning("invalid input: please enter a valid host or URL")
		pterm.Println()
	}

	cfg.RoomID = askNonEmpty("Room id")
	cfg.BroadcasterID = askNonEmpty("Room owner's user id")

	userID, _ := pterm.DefaultInteractiveTextInput.
		WithDefaultText("Your user id (empty to generate)").
		Show()
	cfg.UserID = strings.TrimSpace(userID)
	pterm.Println()
}

// askNonEmpty prompts until the user enters a non-blank value.
func askNonEmpty(prompt string) string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(prompt).
			Show()
		if v := strings.TrimSpace(raw); v != "" {
			pterm.Println()
			return v
		}
		util.LogWarning("value must not be empty")
	}
}
