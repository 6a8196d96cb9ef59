// Command nxblue-controller discovers and drives NXT bricks.
//
// Without arguments it starts an interactive shell. Any arguments after
// the flags are run as a single shell command, which is useful for
// scripted searches.
//
// Usage:
//
//	nxblue-controller [flags] [command [args...]]
//
// Flags:
//
//	-config string          Configuration file path
//	-framing string         Default message framing: line, utf (default "line")
//	-browse-timeout duration Search duration (default 5s)
//	-reconnect              Reconnect after a lost connection (default true)
//	-mdns                   Discover bricks over mDNS (default true)
//	-interface string       Network interface for mDNS
//	-log-level string       Log level: debug, info, warn, error (default "info")
//	-protocol-log string    Write protocol events to this file (CBOR)
//
// Examples:
//
//	# Interactive shell
//	nxblue-controller
//
//	# List bricks whose name contains "Ult" and exit
//	nxblue-controller search Ult
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nxblue/nxblue-go/cmd/nxblue-controller/interactive"
	"github.com/nxblue/nxblue-go/pkg/config"
	"github.com/nxblue/nxblue-go/pkg/connection"
	"github.com/nxblue/nxblue-go/pkg/controller"
	"github.com/nxblue/nxblue-go/pkg/discovery"
	nxlog "github.com/nxblue/nxblue-go/pkg/log"
)

var (
	configFile    string
	framing       string
	browseTimeout time.Duration
	reconnect     bool
	useMDNS       bool
	iface         string
	logLevel      string
	protocolLog   string
)

func init() {
	flag.StringVar(&configFile, "config", "", "Configuration file path")
	flag.StringVar(&framing, "framing", "line", "Default message framing: line, utf")
	flag.DurationVar(&browseTimeout, "browse-timeout", discovery.BrowseTimeout, "Search duration")
	flag.BoolVar(&reconnect, "reconnect", true, "Reconnect after a lost connection")
	flag.BoolVar(&useMDNS, "mdns", true, "Discover bricks over mDNS")
	flag.StringVar(&iface, "interface", "", "Network interface for mDNS")
	flag.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&protocolLog, "protocol-log", "", "Write protocol events to this file (CBOR)")
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := setupLogging(cfg.Level())

	framingValue, err := cfg.Framing()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	peers, err := cfg.StaticTable()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctrlCfg := controller.DefaultConfig()
	ctrlCfg.Peers = peers
	ctrlCfg.BrowseTimeout = cfg.Controller.BrowseTimeout
	ctrlCfg.Framing = framingValue
	ctrlCfg.MaxMessageSize = cfg.Transport.MaxMessageSize
	ctrlCfg.DisableReconnect = !cfg.Controller.Reconnect
	ctrlCfg.Logger = logger

	if useMDNS {
		browserCfg := discovery.DefaultBrowserConfig()
		browserCfg.Interface = cfg.Controller.Interface
		browserCfg.Logger = logger
		ctrlCfg.Browser = discovery.NewMDNSBrowser(browserCfg)
	}

	protocolLogger, closeLog, err := setupProtocolLog(cfg.Log.ProtocolLog, logger)
	if err != nil {
		log.Fatalf("Failed to open protocol log: %v", err)
	}
	defer closeLog()
	ctrlCfg.ProtocolLogger = protocolLogger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Link callbacks are only invoked once the shell exists.
	var shell *interactive.Controller
	ctrlCfg.Reconnect.OnStateChange = func(from, to connection.State) {
		if shell != nil {
			shell.OnStateChange(from, to)
		}
	}
	ctrlCfg.Reconnect.OnReconnecting = func(attempt int, delay time.Duration) {
		if shell != nil {
			shell.OnReconnecting(attempt, delay)
		}
	}

	mgr := controller.NewManager(ctrlCfg)

	if args := flag.Args(); len(args) > 0 {
		shell = interactive.NewBatch(mgr, os.Stdout)
		defer shell.Close()
		shell.Execute(ctx, strings.Join(args, " "))
		return
	}

	shell, err = interactive.New(mgr)
	if err != nil {
		log.Fatalf("Failed to start shell: %v", err)
	}
	log.SetOutput(shell.Stdout())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.Printf("Received signal: %v", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	shell.Run(ctx, cancel)
	log.Println("Goodbye!")
}

// loadConfig reads the config file and applies flags given on the
// command line on top of it.
func loadConfig() (*config.File, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "framing":
			cfg.Transport.Framing = framing
		case "browse-timeout":
			cfg.Controller.BrowseTimeout = browseTimeout
		case "reconnect":
			cfg.Controller.Reconnect = reconnect
		case "interface":
			cfg.Controller.Interface = iface
		case "log-level":
			cfg.Log.Level = logLevel
		case "protocol-log":
			cfg.Log.ProtocolLog = protocolLog
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(level slog.Level) *slog.Logger {
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	switch level {
	case slog.LevelDebug:
		log.SetFlags(log.Ltime | log.Lmicroseconds | log.Lshortfile)
	case slog.LevelWarn, slog.LevelError:
		log.SetFlags(log.Ltime)
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// setupProtocolLog returns the protocol logger for path. Events also go
// to logger at debug level.
func setupProtocolLog(path string, logger *slog.Logger) (nxlog.Logger, func(), error) {
	adapter := nxlog.NewSlogAdapter(logger)
	if path == "" {
		return adapter, func() {}, nil
	}

	fileLogger, err := nxlog.NewFileLogger(path)
	if err != nil {
		return nil, nil, err
	}

	closeFn := func() {
		if n := fileLogger.Dropped(); n > 0 {
			log.Printf("Protocol log dropped %d events", n)
		}
		if err := fileLogger.Close(); err != nil {
			log.Printf("Error closing protocol log: %v", err)
		}
	}
	return nxlog.NewMultiLogger(fileLogger, adapter), closeFn, nil
}
