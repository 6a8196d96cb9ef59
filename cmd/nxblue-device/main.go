// Command nxblue-device runs a simulated NXT brick.
//
// The brick listens for a controller over TCP, announces itself over
// mDNS and answers a small set of commands (PING, NAME, ECHO, MOVE,
// STOP, BEEP, STATUS). One controller is served at a time.
//
// Usage:
//
//	nxblue-device [flags]
//
// Flags:
//
//	-config string        Configuration file path
//	-name string          Brick name (default "NXT")
//	-address string       Brick address, 12 hex digits (default: first interface MAC)
//	-listen string        Listen address (default ":6174")
//	-framing string       Message framing: line, utf (default "line")
//	-advertise            Announce the brick over mDNS (default true)
//	-interface string     Network interface for mDNS
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-protocol-log string  Write protocol events to this file (CBOR)
//
// Examples:
//
//	# Start a brick named Ultron
//	nxblue-device -name Ultron -address 00:16:53:1B:59:4D
//
//	# Use a config file and record the protocol log
//	nxblue-device -config nxblue.yaml -protocol-log device.log
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/nxblue/nxblue-go/pkg/config"
	"github.com/nxblue/nxblue-go/pkg/device"
	"github.com/nxblue/nxblue-go/pkg/discovery"
	nxlog "github.com/nxblue/nxblue-go/pkg/log"
)

var (
	configFile  string
	name        string
	address     string
	listen      string
	framing     string
	advertise   bool
	iface       string
	logLevel    string
	protocolLog string
)

func init() {
	flag.StringVar(&configFile, "config", "", "Configuration file path")
	flag.StringVar(&name, "name", "NXT", "Brick name")
	flag.StringVar(&address, "address", "", "Brick address, 12 hex digits (default: first interface MAC)")
	flag.StringVar(&listen, "listen", ":6174", "Listen address")
	flag.StringVar(&framing, "framing", "line", "Message framing: line, utf")
	flag.BoolVar(&advertise, "advertise", true, "Announce the brick over mDNS")
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

	if cfg.Device.Address == "" {
		cfg.Device.Address = hardwareAddress()
	}

	framingValue, err := cfg.Framing()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Println("nxblue device")
	log.Println("=============")
	log.Printf("Name:    %s", cfg.Device.Name)
	log.Printf("Address: %s", discovery.FormatAddress(cfg.Device.Address))
	log.Printf("Framing: %s", framingValue)

	devCfg := device.DefaultConfig()
	devCfg.Name = cfg.Device.Name
	devCfg.Address = cfg.Device.Address
	devCfg.ListenAddress = cfg.Device.Listen
	devCfg.Framing = framingValue
	devCfg.MaxMessageSize = cfg.Transport.MaxMessageSize
	devCfg.Logger = logger

	if cfg.Device.Advertise {
		advCfg := discovery.DefaultAdvertiserConfig()
		advCfg.Interface = cfg.Device.Interface
		advCfg.Logger = logger
		devCfg.Advertiser = discovery.NewMDNSAdvertiser(advCfg)
	}

	protocolLogger, closeLog, err := setupProtocolLog(cfg.Log.ProtocolLog, logger)
	if err != nil {
		log.Fatalf("Failed to open protocol log: %v", err)
	}
	defer closeLog()
	devCfg.ProtocolLogger = protocolLogger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr := device.NewManager(devCfg)
	if err := mgr.Start(ctx); err != nil {
		log.Fatalf("Failed to start device: %v", err)
	}
	log.Printf("Listening on %s", mgr.Addr())
	if cfg.Device.Advertise {
		log.Println("Advertising over mDNS")
	}

	brick := newBrick(cfg.Device.Name)
	done := make(chan struct{})
	go func() {
		defer close(done)
		serve(ctx, mgr, brick)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	log.Printf("Received signal: %v", sig)
	log.Println("Shutting down...")

	cancel()
	if err := mgr.Stop(); err != nil {
		log.Printf("Error stopping device: %v", err)
	}
	<-done

	log.Println("Goodbye!")
}

// serve accepts controllers one at a time until ctx is cancelled.
func serve(ctx context.Context, mgr *device.Manager, b *brick) {
	for {
		sock, err := mgr.Accept(ctx, b.listener())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Accept failed: %v", err)
			if errors.Is(err, device.ErrConnectionSetup) {
				continue
			}
			return
		}

		select {
		case <-sock.Done():
		case <-ctx.Done():
			sock.Close()
			sock.Wait()
			return
		}
	}
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
		case "name":
			cfg.Device.Name = name
		case "address":
			cfg.Device.Address = address
		case "listen":
			cfg.Device.Listen = listen
		case "framing":
			cfg.Transport.Framing = framing
		case "advertise":
			cfg.Device.Advertise = advertise
		case "interface":
			cfg.Device.Interface = iface
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
	log.Printf("Protocol log: %s", path)

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

// hardwareAddress returns the MAC of the first non-loopback interface,
// or a fixed placeholder when none is found.
func hardwareAddress() string {
	ifaces, err := net.Interfaces()
	if err == nil {
		for _, i := range ifaces {
			if i.Flags&net.FlagLoopback != 0 || len(i.HardwareAddr) != 6 {
				continue
			}
			return fmt.Sprintf("%X", []byte(i.HardwareAddr))
		}
	}
	return "001653000001"
}
