// Command callagent is a headless softphone. It logs in as one user, listens
// on that user's inbox and either answers incoming calls or places one.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"matchcall/internal/apiclient"
	"matchcall/internal/callclient"
	"matchcall/internal/calls"
	"matchcall/internal/config"
	"matchcall/internal/media"
	"matchcall/internal/peer"
	"matchcall/internal/realtime"
	"matchcall/internal/signaling"
	"matchcall/pkg/logger"

	"github.com/benbjohnson/clock"
)

func main() {
	userID := flag.String("user", "", "user id to log in as")
	callee := flag.String("call", "", "user id to call once the inbox is up")
	video := flag.Bool("video", false, "place a video call instead of audio")
	autoAnswer := flag.Bool("auto-answer", true, "accept incoming calls")
	hangupAfter := flag.Duration("hangup-after", 0, "hang up this long after a call connects (0 = never)")
	flag.Parse()

	cfg, err := config.LoadAgent()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Env, "callagent").With("user_id", *userID)
	slog.SetDefault(log)

	if *userID == "" {
		log.Error("-user is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := apiclient.New(cfg.APIURL, 0)
	pair, err := api.Login(ctx, *userID)
	if err != nil {
		log.Error("login failed", "err", err)
		os.Exit(1)
	}

	transport, err := realtime.Dial(ctx, cfg.RealtimeURL, pair.AccessToken, log)
	if err != nil {
		log.Error("realtime connect failed", "err", err)
		os.Exit(1)
	}
	defer transport.Close()

	peers, err := peer.NewPionFactory(peer.Config{STUNURLs: cfg.Call.STUNURLs}, log)
	if err != nil {
		log.Error("peer factory init failed", "err", err)
		os.Exit(1)
	}

	var machine *callclient.Machine
	seen := newTransitions()
	onChange := func(s callclient.Snapshot) {
		// Runs on the machine goroutine; anything calling back in must be async.
		if !seen.first(s) {
			return
		}
		switch s.Status {
		case callclient.StatusRinging:
			if *autoAnswer {
				go func() {
					if err := machine.Accept(ctx); err != nil {
						log.Warn("accept failed", "call_id", s.CallID, "err", err)
					}
				}()
			}
		case callclient.StatusActive:
			log.Info("call connected", "call_id", s.CallID, "peer_id", s.PeerID, "call_type", s.CallType)
			if *hangupAfter > 0 {
				time.AfterFunc(*hangupAfter, func() {
					if machine.Snapshot().CallID == s.CallID {
						_ = machine.Hangup()
					}
				})
			}
		}
	}

	machine, err = callclient.New(*userID, callclient.Deps{
		Store: api,
		Dialer: signaling.Dialer{
			Transport:        transport,
			SubscribeTimeout: cfg.Signal.SubscribeTimeout,
			Logger:           log,
		},
		Devices: media.StaticDevices{Microphone: true, Camera: true},
		Peers:   peers,
	}, callclient.Options{
		Clock:       clock.New(),
		Logger:      log,
		RingTimeout: cfg.Call.RingTimeout,
		Notifier:    callclient.LogNotifier{Log: log},
		Tones:       callclient.SilentTones{},
		Directory:   api,
		OnChange:    onChange,
	})
	if err != nil {
		log.Error("call machine init failed", "err", err)
		os.Exit(1)
	}
	defer machine.Close()

	inbox, err := callclient.StartInbox(ctx, machine)
	if err != nil {
		log.Error("inbox subscribe failed", "err", err)
		os.Exit(1)
	}
	defer inbox.Stop()

	if *callee != "" {
		callType := calls.CallTypeAudio
		if *video {
			callType = calls.CallTypeVideo
		}
		if err := machine.Dial(ctx, *callee, callType); err != nil {
			log.Error("dial failed", "peer_id", *callee, "err", err)
		}
	}

	select {
	case <-ctx.Done():
		log.Info("shutdown initiated")
	case <-transport.Done():
		log.Warn("realtime connection lost")
	}
}
