// sockjs-echo runs a SockJS echo server, the protocol test fixture.
package main

import (
	"flag"
	"net/http"
	"os"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"

	"github.com/cometchan/sockjs-go/sockjs"
)

func main() {
	configPath := flag.String("config", "", "path to config.toml")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := loadServerConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration failed")
	}
	cfg.Options.Logger = logger

	handler := sockjs.NewHandler(cfg.Prefix, cfg.Options, echoHandler(logger))
	defer handler.Shutdown()

	router := httprouter.New()
	for _, method := range []string{"GET", "POST", "OPTIONS"} {
		router.Handler(method, cfg.Prefix+"/*path", handler)
	}

	logger.Info().Str("addr", cfg.Addr).Str("prefix", cfg.Prefix).Msg("server started")
	if err := http.ListenAndServe(cfg.Addr, router); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
}

func echoHandler(logger zerolog.Logger) sockjs.SessionHandlerFuncs {
	return sockjs.SessionHandlerFuncs{
		Open: func(sess *sockjs.Session) {
			logger.Info().Str("session", sess.ID()).Msg("session opened")
		},
		Message: func(sess *sockjs.Session, msg string) {
			_ = sess.Send(msg)
		},
		Close: func(sess *sockjs.Session, status int, reason string) {
			logger.Info().Str("session", sess.ID()).Int("status", status).Str("reason", reason).Msg("session closed")
		},
	}
}
