// Package config loads the YAML configuration file shared by the nxblue
// commands.
//
//	device:
//	  name: Ultron
//	  address: "00:16:53:1b:59:4d"
//	  listen: ":6174"
//	  advertise: true
//	controller:
//	  browse_timeout: 5s
//	  reconnect: true
//	  peers:
//	    - name: Ultron
//	      address: 0016531B594D
//	      host: 192.168.1.20
//	transport:
//	  framing: line
//	  max_message_size: 4096
//	log:
//	  level: info
//	  protocol_log: /var/log/nxblue.nxlog
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nxblue/nxblue-go/pkg/discovery"
	"github.com/nxblue/nxblue-go/pkg/transport"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// File is the configuration file layout.
type File struct {
	Device     Device     `yaml:"device"`
	Controller Controller `yaml:"controller"`
	Transport  Transport  `yaml:"transport"`
	Log        Log        `yaml:"log"`
}

// Device configures nxblue-device.
type Device struct {
	Name      string `yaml:"name"`
	Address   string `yaml:"address"`
	Listen    string `yaml:"listen"`
	Advertise bool   `yaml:"advertise"`
	Interface string `yaml:"interface"`
}

// Controller configures nxblue-controller.
type Controller struct {
	BrowseTimeout time.Duration `yaml:"browse_timeout"`
	Reconnect     bool          `yaml:"reconnect"`
	Interface     string        `yaml:"interface"`
	Peers         []Peer        `yaml:"peers"`
}

// Peer is a statically known brick.
type Peer struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	Host    string `yaml:"host"`
	Port    uint16 `yaml:"port"`
}

// Transport selects message framing.
type Transport struct {
	Framing        string `yaml:"framing"`
	MaxMessageSize int    `yaml:"max_message_size"`
}

// Log configures operational and protocol logging.
type Log struct {
	Level       string `yaml:"level"`
	ProtocolLog string `yaml:"protocol_log"`
}

// Default returns the configuration used when no file is given.
func Default() *File {
	return &File{
		Device: Device{
			Name:      "NXT",
			Listen:    fmt.Sprintf(":%d", transport.DefaultPort),
			Advertise: true,
		},
		Controller: Controller{
			BrowseTimeout: discovery.BrowseTimeout,
			Reconnect:     true,
		},
		Transport: Transport{
			Framing:        transport.FramingLine.String(),
			MaxMessageSize: transport.DefaultMaxMessageSize,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads and validates the file at path. An empty path yields the
// defaults.
func Load(path string) (*File, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field values.
func (f *File) Validate() error {
	if f.Device.Address != "" {
		if _, err := discovery.NormalizeAddress(f.Device.Address); err != nil {
			return fmt.Errorf("%w: device.address: %w", ErrInvalid, err)
		}
	}
	if f.Device.Advertise && f.Device.Name != "" {
		if err := discovery.ValidateInstanceName(f.Device.Name); err != nil {
			return fmt.Errorf("%w: device.name: %w", ErrInvalid, err)
		}
	}
	if f.Controller.BrowseTimeout < 0 {
		return fmt.Errorf("%w: controller.browse_timeout must not be negative", ErrInvalid)
	}
	for i, p := range f.Controller.Peers {
		if _, err := discovery.NormalizeAddress(p.Address); err != nil {
			return fmt.Errorf("%w: controller.peers[%d]: %w", ErrInvalid, i, err)
		}
	}
	if _, err := f.Framing(); err != nil {
		return fmt.Errorf("%w: transport.framing: %w", ErrInvalid, err)
	}
	if f.Transport.MaxMessageSize < 0 {
		return fmt.Errorf("%w: transport.max_message_size must not be negative", ErrInvalid)
	}
	if _, err := ParseLevel(f.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %w", ErrInvalid, err)
	}
	return nil
}

// Framing returns the configured transport framing.
func (f *File) Framing() (transport.Framing, error) {
	return transport.ParseFraming(f.Transport.Framing)
}

// Level returns the configured slog level.
func (f *File) Level() slog.Level {
	level, _ := ParseLevel(f.Log.Level)
	return level
}

// StaticTable builds the controller's static peer table.
func (f *File) StaticTable() (*discovery.StaticTable, error) {
	peers := make([]discovery.Peer, 0, len(f.Controller.Peers))
	for _, p := range f.Controller.Peers {
		peers = append(peers, discovery.Peer{
			Name:    p.Name,
			Address: p.Address,
			Host:    p.Host,
			Port:    p.Port,
		})
	}
	return discovery.NewStaticTable(peers...)
}

// ParseLevel parses a log level name (debug, info, warn, error).
// An empty name is info.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}
