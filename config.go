package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/Dragonsize/TDTUmes/p2p"
	"github.com/joho/godotenv"
)

const (
	defaultHost = "127.0.0.1"
	defaultPort = 5000
)

type RelayConfig struct {
	Host         string
	Port         int
	ChunkSize    int
	WriteTimeout time.Duration
	MetricsAddr  string
	LogLevel     string
	LogFormat    string
}

func defaultConfig() RelayConfig {
	return RelayConfig{
		Host:      defaultHost,
		Port:      defaultPort,
		ChunkSize: p2p.DefaultChunkSize,
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// loadConfig builds the configuration from defaults, then the optional env
// file, then the process environment. Later sources win.
func loadConfig(envFile string) (*RelayConfig, error) {
	fileVars := map[string]string{}
	if envFile != "" {
		vars, err := godotenv.Read(envFile)
		if err != nil {
			return nil, fmt.Errorf("error loading env file: %w", err)
		}
		fileVars = vars
	}

	lookup := func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fileVars[key]
	}

	cfg := defaultConfig()

	if host := lookup("RELAY_HOST"); host != "" {
		cfg.Host = host
	}

	if port := lookup("RELAY_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid RELAY_PORT %q: %w", port, err)
		}
		cfg.Port = p
	}

	if size := lookup("RELAY_CHUNK_SIZE"); size != "" {
		n, err := strconv.Atoi(size)
		if err != nil {
			return nil, fmt.Errorf("invalid RELAY_CHUNK_SIZE %q: %w", size, err)
		}
		cfg.ChunkSize = n
	}

	if timeout := lookup("RELAY_WRITE_TIMEOUT"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid RELAY_WRITE_TIMEOUT %q: %w", timeout, err)
		}
		cfg.WriteTimeout = d
	}

	if addr := lookup("RELAY_METRICS_ADDR"); addr != "" {
		cfg.MetricsAddr = addr
	}
	if level := lookup("RELAY_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if format := lookup("RELAY_LOG_FORMAT"); format != "" {
		cfg.LogFormat = format
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *RelayConfig) validate() error {
	if c.Host == "" {
		return errors.New("host must not be empty")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("write timeout must not be negative, got %s", c.WriteTimeout)
	}
	return nil
}

// Addr returns the host:port the server listens on or the client dials.
func (c *RelayConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func makeServer(cfg *RelayConfig) *RelayServer {
	tcpTransport := p2p.NewTCPTransport(p2p.TCPTransportOpts{
		ListenAddr:   cfg.Addr(),
		Decoder:      p2p.ChunkDecoder{Size: cfg.ChunkSize},
		WriteTimeout: cfg.WriteTimeout,
	})

	server := NewRelayServer(RelayServerOpts{
		Transport: tcpTransport,
	})

	tcpTransport.OnPeer = server.OnPeer
	tcpTransport.OnChunk = server.OnChunk
	tcpTransport.OnPeerClosed = server.OnPeerClosed

	return server
}
