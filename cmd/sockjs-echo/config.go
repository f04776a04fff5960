package main

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/cometchan/sockjs-go/sockjs"
)

// sockjs-echo config.toml key mapping to server settings.
type fileConfig struct {
	Addr                 string   `toml:"addr"`
	Prefix               string   `toml:"prefix"`
	DisconnectDelayMS    int      `toml:"disconnect_delay_ms"`
	HeartbeatIntervalMS  int      `toml:"heartbeat_interval_ms"`
	HTTPMessageCacheSize int      `toml:"http_message_cache_size"`
	StreamBytesLimit     int      `toml:"stream_bytes_limit"`
	AllowedOrigins       []string `toml:"allowed_origins"`
	Websocket            *bool    `toml:"websocket"`
	RawWebsocket         bool     `toml:"raw_websocket"`
	JSONP                *bool    `toml:"jsonp"`
	CookieNeeded         bool     `toml:"cookie_needed"`
}

type serverConfig struct {
	Addr    string
	Prefix  string
	Options sockjs.Options
}

func defaultServerConfig() serverConfig {
	return serverConfig{
		Addr:    ":8080",
		Prefix:  "/echo",
		Options: sockjs.DefaultOptions,
	}
}

// loadServerConfig reads a TOML config file over the defaults. A
// missing path keeps the defaults entirely.
func loadServerConfig(path string) (serverConfig, error) {
	cfg := defaultServerConfig()
	if path == "" {
		return cfg, nil
	}
	var raw fileConfig
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return serverConfig{}, fmt.Errorf("load config: %w", err)
	}
	if raw.Addr != "" {
		cfg.Addr = raw.Addr
	}
	if raw.Prefix != "" {
		cfg.Prefix = raw.Prefix
	}
	if raw.DisconnectDelayMS > 0 {
		cfg.Options.DisconnectDelay = time.Duration(raw.DisconnectDelayMS) * time.Millisecond
	}
	if raw.HeartbeatIntervalMS > 0 {
		cfg.Options.HeartbeatInterval = time.Duration(raw.HeartbeatIntervalMS) * time.Millisecond
	}
	if raw.HTTPMessageCacheSize > 0 {
		cfg.Options.HTTPMessageCacheSize = raw.HTTPMessageCacheSize
	}
	if raw.StreamBytesLimit > 0 {
		cfg.Options.StreamBytesLimit = raw.StreamBytesLimit
	}
	if len(raw.AllowedOrigins) > 0 {
		cfg.Options.AllowedOrigins = raw.AllowedOrigins
	}
	if raw.Websocket != nil {
		cfg.Options.Websocket = *raw.Websocket
	}
	if raw.JSONP != nil {
		cfg.Options.JSONP = *raw.JSONP
	}
	cfg.Options.RawWebsocket = raw.RawWebsocket
	if raw.CookieNeeded {
		cfg.Options.JSessionID = sockjs.DefaultJSessionID
	}
	return cfg, nil
}
