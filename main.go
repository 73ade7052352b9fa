// tcpcore - a minimal asynchronous TCP accept/session server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/cyberinferno/tcpcore/config"
	"github.com/cyberinferno/tcpcore/logger"
	"github.com/cyberinferno/tcpcore/server"
)

func main() {
	cfg, err := config.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "tcpcore: %v\n\n", err)
		usage()
		os.Exit(1)
	}

	log := logger.NewConsole("tcpcore", zerolog.InfoLevel)
	defer func() { _ = log.Close() }()

	log.Info("configuration resolved", logger.Field{Key: "config", Value: cfg.String()})

	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch cfg.Mode {
	case config.ModeServer:
		if err := runServer(ctx, cfg, log); err != nil {
			log.Error("server failed", logger.Field{Key: "error", Value: err})
			os.Exit(1)
		}

	case config.ModeClient:
		log.Warn("client mode is not implemented",
			logger.Field{Key: "endpoint", Value: cfg.ClientEndpoint()})
	}
}

// runServer binds and pumps the server until shutdown.
func runServer(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	srv := server.New(cfg, log)
	if err := srv.Start(); err != nil {
		return err
	}

	return srv.Run(ctx)
}

// usage prints command-line help.
func usage() {
	fmt.Fprint(os.Stderr, `Usage:
	tcpcore [mode] address [ip] port [number]
		[mode]  server | client
		address tells the server which address to bind or the client where to connect
		[ip]    an IPv4 address
		port    tells the server or client which port to bind or connect to
		[number] the port number

	Flags:
		--config <file>   YAML config file (address, port)
		--max-ops <n>     stop after servicing n operations (0 = run until signalled)

Example: tcpcore server address 127.0.0.1 port 8000
         tcpcore client address 192.168.0.1 port 3400
`)
}
