package main

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mrcyclo/laravel-wave-client/internal/channel"
	"github.com/mrcyclo/laravel-wave-client/internal/config"
	"github.com/mrcyclo/laravel-wave-client/internal/connector"
	"github.com/mrcyclo/laravel-wave-client/internal/domain"
	"github.com/mrcyclo/laravel-wave-client/internal/lifecycle"
	"github.com/mrcyclo/laravel-wave-client/internal/request"
	"github.com/mrcyclo/laravel-wave-client/internal/transport"
)

const connectTimeout = 10 * time.Second

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	// the websocket and the HTTP client share one cookie session
	jar, _ := cookiejar.New(nil)
	header := http.Header{}
	for k, v := range cfg.Client.Headers {
		header.Set(k, v)
	}
	conn := transport.New(transport.Options{
		URL:          cfg.Client.SocketURL,
		Header:       header,
		Jar:          jar,
		SendBuffer:   cfg.Client.SendBuffer,
		PingPeriod:   cfg.Client.PingPeriod,
		ReconnectMax: cfg.Client.ReconnectMax,
	})
	req := request.New(conn, request.Options{
		CSRFToken:     cfg.Client.CSRFToken,
		Headers:       cfg.Client.Headers,
		BeaconTimeout: cfg.Client.BeaconTimeout,
		HTTPClient:    &http.Client{Jar: jar, Timeout: cfg.Client.RequestTimeout},
	})

	if cfg.Client.CSRFToken == "" && cfg.Client.CSRFURL != "" {
		if _, err := req.FetchCSRF(ctx, cfg.Client.CSRFURL); err != nil {
			log.Fatal().Err(err).Str("url", cfg.Client.CSRFURL).Msg("failed to fetch csrf token")
		}
	}

	connected := make(chan string, 1)
	conn.OnLifecycle(transport.LifecycleConnected, func(sid string) {
		select {
		case connected <- sid:
		default:
		}
	})
	if err := conn.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to connect")
	}
	select {
	case sid := <-connected:
		log.Info().Str("sid", sid).Msg("socket ready")
	case <-time.After(connectTimeout):
		log.Fatal().Msg("no connected frame from server")
	}

	teardown := lifecycle.NewNotifier()
	c := connector.New(ctx, conn, req, teardown, channel.Options{
		Endpoint:  cfg.Client.Endpoint,
		Namespace: cfg.Client.Namespace,
	})

	c.Join(cfg.Client.Channel).
		Here(func(r domain.Roster) {
			log.Info().Str("channel", cfg.Client.Channel).Int("members", len(r)).Msg("here")
			for _, m := range r {
				log.Info().RawJSON("member", m).Msg("present")
			}
		}).
		Joining(func(e channel.Event) {
			log.Info().RawJSON("member", e.Data).Msg("joining")
		}).
		Leaving(func(e channel.Event) {
			log.Info().RawJSON("member", e.Data).Msg("leaving")
		}).
		ListenForWhisper("typing", func(e channel.Event) {
			log.Info().RawJSON("data", e.Data).Msg("typing")
		}).
		Error(func(err error) {
			log.Error().Err(err).Str("channel", cfg.Client.Channel).Msg("presence error")
		})

	// blocks until SIGINT/SIGTERM, then beacons a leave for every joined channel
	teardown.Run(ctx)
	req.Flush()
	c.Disconnect()
	log.Info().Msg("client exited")
}
