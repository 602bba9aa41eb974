// Package config assembles the runtime configuration from an optional YAML
// file and command-line flags. Flags win over the file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chase3718/thr-comm/internal/store"
	"github.com/chase3718/thr-comm/internal/uart"
)

type Config struct {
	MIDIDevice        string        `yaml:"midi"`
	UARTDevice        string        `yaml:"uart"`
	Baud              int           `yaml:"baud"`
	NoUART            bool          `yaml:"no_uart"`
	NoHeartbeat       bool          `yaml:"no_heartbeat"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	Console           bool          `yaml:"console"`
	PresetsPath       string        `yaml:"presets"`
	Debug             bool          `yaml:"debug"`
	BTChannel         uint          `yaml:"bt_channel"`
	BTAdapter         string        `yaml:"bt_adapter"`
	PairingWindow     time.Duration `yaml:"pairing_window"`
	LongPress         time.Duration `yaml:"long_press"`
}

func Default() *Config {
	return &Config{
		UARTDevice:        uart.DefaultDevice,
		Baud:              uart.DefaultBaud,
		HeartbeatInterval: 2 * time.Second,
		PresetsPath:       store.DefaultPath,
		BTChannel:         11,
		BTAdapter:         "/org/bluez/hci0",
		PairingWindow:     2 * time.Minute,
		LongPress:         2 * time.Second,
	}
}

// ErrHelp is returned when -h or -help was given.
var ErrHelp = flag.ErrHelp

func bind(fs *flag.FlagSet, c *Config) {
	fs.StringVar(&c.MIDIDevice, "midi", c.MIDIDevice, "amp MIDI device: a character device path or port:<name> (required)")
	fs.StringVar(&c.UARTDevice, "uart", c.UARTDevice, "board serial device")
	fs.IntVar(&c.Baud, "baud", c.Baud, "board serial baud rate")
	fs.BoolVar(&c.NoUART, "no-uart", c.NoUART, "run without the board")
	fs.BoolVar(&c.NoHeartbeat, "no-heartbeat", c.NoHeartbeat, "do not send heartbeats to the board")
	fs.DurationVar(&c.HeartbeatInterval, "heartbeat-interval", c.HeartbeatInterval, "time between board heartbeats")
	fs.BoolVar(&c.Console, "console", c.Console, "start the interactive console")
	fs.StringVar(&c.PresetsPath, "presets", c.PresetsPath, "preset list file")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "enable debug logging (adds source location)")
	fs.UintVar(&c.BTChannel, "bt-channel", c.BTChannel, "RFCOMM channel of the serial port service")
	fs.StringVar(&c.BTAdapter, "bt-adapter", c.BTAdapter, "BlueZ adapter object path")
	fs.DurationVar(&c.PairingWindow, "pairing-window", c.PairingWindow, "how long the box stays discoverable after a long press")
	fs.DurationVar(&c.LongPress, "long-press", c.LongPress, "hold time that counts as a long press")
}

// Parse reads args (without the program name). Usage and flag errors are
// written to output.
func Parse(args []string, output io.Writer) (*Config, error) {
	cfg := Default()
	fs := flag.NewFlagSet("thr-comm", flag.ContinueOnError)
	fs.SetOutput(output)
	configPath := fs.String("config", "", "YAML configuration file")
	bind(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	if *configPath != "" {
		fileCfg, err := Load(*configPath)
		if err != nil {
			return nil, err
		}
		// Re-apply the flags that were given explicitly on top of the file.
		over := flag.NewFlagSet("thr-comm", flag.ContinueOnError)
		bind(over, fileCfg)
		var setErr error
		fs.Visit(func(f *flag.Flag) {
			if f.Name == "config" || setErr != nil {
				return
			}
			setErr = over.Set(f.Name, f.Value.String())
		})
		if setErr != nil {
			return nil, setErr
		}
		cfg = fileCfg
	}

	if err := cfg.Validate(); err != nil {
		fs.Usage()
		return nil, err
	}
	return cfg, nil
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.MIDIDevice == "" {
		errs = append(errs, errors.New("-midi is required"))
	}
	if !c.NoUART && c.Baud <= 0 {
		errs = append(errs, fmt.Errorf("invalid baud rate %d", c.Baud))
	}
	if !c.NoUART && !c.NoHeartbeat && c.HeartbeatInterval <= 0 {
		errs = append(errs, fmt.Errorf("invalid heartbeat interval %s", c.HeartbeatInterval))
	}
	if c.BTChannel == 0 || c.BTChannel > 30 {
		errs = append(errs, fmt.Errorf("RFCOMM channel %d not in [1, 30]", c.BTChannel))
	}
	if c.PresetsPath == "" {
		errs = append(errs, errors.New("preset file path is empty"))
	}
	return errors.Join(errs...)
}
