package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/YinkaFoster/fostertours-sub001/internal/adapter/driven/history/rest"
	"github.com/YinkaFoster/fostertours-sub001/internal/adapter/driven/media/capture"
	"github.com/YinkaFoster/fostertours-sub001/internal/adapter/driven/media/pion"
	"github.com/YinkaFoster/fostertours-sub001/internal/adapter/driven/signaling/wsclient"
	"github.com/YinkaFoster/fostertours-sub001/internal/config"
	"github.com/YinkaFoster/fostertours-sub001/internal/core/domain"
	"github.com/YinkaFoster/fostertours-sub001/internal/core/service"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	w := zerolog.ConsoleWriter{Out: os.Stderr}
	l := zerolog.New(w).With().Timestamp().Caller().Logger()
	log.Logger = l

	cfg, err := config.Load()
	if err != nil {
		l.Fatal().Err(err).Msg("Failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)
	if err := cfg.ValidateClient(); err != nil {
		l.Fatal().Err(err).Msg("Invalid config")
	}

	if err := run(cfg, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		l.Fatal().Err(err).Msg("Softphone stopped with error")
	}
}

func run(cfg *config.Config, in io.Reader, out io.Writer) error {
	self := domain.UserID(cfg.Client.UserID)

	devices, err := capture.NewDevices()
	if err != nil {
		return fmt.Errorf("init capture: %w", err)
	}
	engine, err := pion.NewEngine(pion.Config{
		STUNURLs:               cfg.ICE.STUNURLs,
		ICEDisconnectedTimeout: cfg.ICE.DisconnectedTimeout,
		ICEFailedTimeout:       cfg.ICE.FailedTimeout,
		Codecs:                 devices,
	})
	if err != nil {
		return fmt.Errorf("init webrtc: %w", err)
	}

	channel := wsclient.New(wsclient.Options{
		URL:           cfg.Client.SignalURL,
		Token:         cfg.Client.Token,
		ReconnectBase: cfg.Client.ReconnectBase,
		ReconnectMax:  cfg.Client.ReconnectMax,
	})
	history := service.NewHistoryBridge(rest.NewClient(cfg.Client.APIURL, cfg.Client.Token))
	defer history.Close()

	calls := service.NewCallService(service.CallConfig{
		Self:        self,
		Name:        cfg.Client.DisplayName,
		Avatar:      cfg.Client.Avatar,
		RingTimeout: cfg.Client.RingTimeout,
	}, channel, engine, devices, history, &printer{out: out})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := channel.Connect(ctx, self); err != nil {
		log.Warn().Err(err).Msg("Signaling unavailable, retrying in the background")
	}
	defer channel.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return calls.Run(gctx)
	})
	g.Go(func() error {
		defer stop()
		return repl(gctx, calls, in, out)
	})
	return g.Wait()
}

const help = `commands:
  call <user> [voice|video]   start a call
  answer | reject | hangup
  mute | unmute
  video on|off
  status
  history [limit]
  quit`

// repl reads commands until EOF or quit.
func repl(ctx context.Context, calls *service.CallService, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	fmt.Fprintln(out, help)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := execute(ctx, calls, strings.Fields(line), out)
			if err != nil {
				fmt.Fprintln(out, "error:", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func execute(ctx context.Context, calls *service.CallService, args []string, out io.Writer) (bool, error) {
	if len(args) == 0 {
		return false, nil
	}
	switch args[0] {
	case "call":
		if len(args) < 2 {
			return false, errors.New("usage: call <user> [voice|video]")
		}
		t := domain.CallVoice
		if len(args) > 2 {
			var err error
			if t, err = domain.ParseCallType(args[2]); err != nil {
				return false, err
			}
		}
		return false, calls.Start(domain.UserID(args[1]), t)
	case "answer":
		return false, calls.Answer()
	case "reject":
		return false, calls.Reject()
	case "hangup":
		return false, calls.Hangup()
	case "mute":
		return false, calls.SetMuted(true)
	case "unmute":
		return false, calls.SetMuted(false)
	case "video":
		if len(args) != 2 || (args[1] != "on" && args[1] != "off") {
			return false, errors.New("usage: video on|off")
		}
		return false, calls.SetVideoEnabled(args[1] == "on")
	case "status":
		st := calls.Status()
		if !st.InCall {
			fmt.Fprintf(out, "idle (last: %s %s)\n", st.Session.ID, st.Session.Outcome)
			return false, nil
		}
		fmt.Fprintf(out, "%s with %s, %s, %ds, muted=%t video=%t\n",
			st.Session.State, st.Session.Peer(), st.Session.Type, st.Seconds, st.Muted, st.VideoEnabled)
		return false, nil
	case "history":
		limit := 20
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return false, fmt.Errorf("invalid limit %q", args[1])
			}
			limit = n
		}
		entries, err := calls.History(ctx, limit)
		if err != nil {
			return false, err
		}
		for _, e := range entries {
			dir := "in "
			if e.IsOutgoing {
				dir = "out"
			}
			fmt.Fprintf(out, "%s %s %-8s %-5s %-8s %ds\n",
				e.CreatedAt.Local().Format("2006-01-02 15:04"), dir, e.OtherUserID, e.Type, e.Status, e.Duration)
		}
		return false, nil
	case "help":
		fmt.Fprintln(out, help)
		return false, nil
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q", args[0])
	}
}
