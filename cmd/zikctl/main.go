// Command zikctl controls a Parrot Zik headset from the command line.
//
// Usage:
//
//	zikctl [flags] <command> [args]
//
// Commands:
//
//	status                    Show everything the headset reports
//	battery                   Show battery state and level
//	version                   Show firmware version
//	nc [on|off]               Show or switch noise cancellation
//	lou [on|off]              Show or switch the Lou Reed mode
//	head [on|off]             Show or switch head detection
//	autoconnect [on|off]      Show or switch automatic connection
//	eq [on|off|preset <id>]   Show or control the equalizer
//	presets                   List equalizer presets
//	watch                     Stay connected and print change events
//	shell                     Interactive session
//
// Flags:
//
//	-address string       Headset MAC, or tcp://host:port for a debug peer
//	-config string        Config file path (default ~/.config/zikctl/config.yaml)
//	-log-level string     Console log level: debug, info, warn, error
//	-protocol-log string  Capture protocol events to a CBOR log file
//	-timeout duration     Per-request timeout
//
// Examples:
//
//	zikctl -address A0:14:3D:A2:11:0F status
//	zikctl nc on
//	zikctl eq preset 2
//	zikctl -protocol-log session.zlog watch
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tktech/zik-go/pkg/bluez"
	"github.com/tktech/zik-go/pkg/connection"
	ziklog "github.com/tktech/zik-go/pkg/log"
	"github.com/tktech/zik-go/pkg/state"
	"github.com/tktech/zik-go/pkg/zik"
)

var (
	flagAddress     = flag.String("address", "", "headset MAC, or tcp://host:port for a debug peer")
	flagConfig      = flag.String("config", "", "config file path")
	flagLogLevel    = flag.String("log-level", "", "console log level: debug, info, warn, error")
	flagProtocolLog = flag.String("protocol-log", "", "capture protocol events to a CBOR log file")
	flagTimeout     = flag.Duration("timeout", 0, "per-request timeout")
)

func main() {
	flag.Parse()

	cfg, err := resolveConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := setupLogging(cfg.LogLevel)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}
	if cfg.Address == "" {
		logger.Fatal().Msg("no headset address, use -address or the config file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg, args[0], args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("command failed")
	}
}

func run(ctx context.Context, logger zerolog.Logger, cfg FileConfig, cmd string, args []string) error {
	switch cmd {
	case "watch":
		return runWatch(ctx, logger, cfg)
	case "shell":
		return runShell(ctx, logger, cfg)
	}

	client, cleanup, err := connect(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	return dispatch(ctx, client, cmd, args)
}

// dispatch runs one command against a connected client. Shared by the
// one-shot path and the interactive shell.
func dispatch(ctx context.Context, client *zik.Client, cmd string, args []string) error {
	switch cmd {
	case "status":
		return cmdStatus(ctx, client)
	case "battery":
		return cmdBattery(ctx, client)
	case "version":
		version, err := client.FirmwareVersion(ctx)
		if err != nil {
			return err
		}
		fmt.Println(version)
		return nil
	case "nc":
		return cmdToggle(ctx, args, "noise cancellation",
			client.NoiseCancellation, client.SetNoiseCancellation)
	case "lou":
		return cmdToggle(ctx, args, "lou reed mode",
			client.LouReedMode, client.SetLouReedMode)
	case "head":
		return cmdToggle(ctx, args, "head detection",
			client.HeadDetection, client.SetHeadDetection)
	case "autoconnect":
		return cmdToggle(ctx, args, "auto connection",
			client.AutoConnect, client.SetAutoConnect)
	case "eq":
		return cmdEqualizer(ctx, client, args)
	case "presets":
		return cmdPresets(ctx, client)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// resolveConfig merges the config file with flag overrides. Flags win.
func resolveConfig() (FileConfig, error) {
	path := *flagConfig
	required := path != ""
	if path == "" {
		path = defaultConfigPath()
	}
	cfg, err := loadConfig(path, required)
	if err != nil {
		return cfg, err
	}

	if *flagAddress != "" {
		cfg.Address = *flagAddress
	}
	if *flagLogLevel != "" {
		cfg.LogLevel = *flagLogLevel
	}
	if *flagProtocolLog != "" {
		cfg.ProtocolLog = *flagProtocolLog
	}
	if *flagTimeout > 0 {
		cfg.RequestTimeout = *flagTimeout
	}
	return cfg, nil
}

func setupLogging(level string) zerolog.Logger {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	logger := zerolog.New(output).With().Timestamp().Logger()

	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		parsed = zerolog.InfoLevel
	}
	return logger.Level(parsed)
}

// connect dials the headset and brings up a ready client. The returned
// cleanup closes the client and any protocol log file.
func connect(ctx context.Context, logger zerolog.Logger, cfg FileConfig) (*zik.Client, func(), error) {
	stream, err := dial(ctx, cfg.Address)
	if err != nil {
		return nil, nil, err
	}

	clientCfg := zik.Config{
		RequestTimeout: cfg.RequestTimeout,
		CacheTTL:       cfg.CacheTTL,
		DeviceAddr:     cfg.Address,
	}

	var fileLog *ziklog.FileLogger
	if cfg.ProtocolLog != "" {
		fileLog, err = ziklog.NewFileLogger(cfg.ProtocolLog)
		if err != nil {
			stream.Close()
			return nil, nil, err
		}
		clientCfg.Logger = fileLog
	}

	client := zik.NewClient(stream, clientCfg)
	cleanup := func() {
		client.Close()
		if fileLog != nil {
			fileLog.Close()
		}
	}

	logger.Debug().Str("address", cfg.Address).Msg("connecting")
	if err := client.Connect(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}
	logger.Debug().Str("session", client.SessionID()).Msg("connected")
	return client, cleanup, nil
}

func dial(ctx context.Context, address string) (io.ReadWriteCloser, error) {
	if hostport, ok := strings.CutPrefix(address, "tcp://"); ok {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", hostport)
	}
	return bluez.Dial(ctx, address)
}

func cmdStatus(ctx context.Context, client *zik.Client) error {
	version, err := client.FirmwareVersion(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("firmware           %s\n", version)

	battery, err := client.BatteryStatus(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("battery            %s\n", battery)

	for _, f := range []struct {
		name string
		get  func(context.Context) (bool, error)
	}{
		{"noise cancellation", client.NoiseCancellation},
		{"lou reed mode", client.LouReedMode},
		{"head detection", client.HeadDetection},
		{"auto connection", client.AutoConnect},
	} {
		on, err := f.get(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%-18s %s\n", f.name, onOff(on))
	}

	eq, err := client.EqualizerState(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("equalizer          %s (preset %d)\n", onOff(eq.Enabled), eq.PresetID)
	return nil
}

func cmdBattery(ctx context.Context, client *zik.Client) error {
	battery, err := client.BatteryStatus(ctx)
	if err != nil {
		return err
	}
	fmt.Println(battery)
	return nil
}

func cmdToggle(ctx context.Context, args []string, name string,
	get func(context.Context) (bool, error), set func(context.Context, bool) error) error {
	if len(args) == 0 {
		on, err := get(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", name, onOff(on))
		return nil
	}
	on, err := parseOnOff(args[0])
	if err != nil {
		return err
	}
	if err := set(ctx, on); err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", name, onOff(on))
	return nil
}

func cmdEqualizer(ctx context.Context, client *zik.Client, args []string) error {
	if len(args) == 0 {
		eq, err := client.EqualizerState(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("equalizer: %s (preset %d)\n", onOff(eq.Enabled), eq.PresetID)
		return nil
	}
	switch args[0] {
	case "on", "off":
		on := args[0] == "on"
		if err := client.SetEqualizerEnabled(ctx, on); err != nil {
			return err
		}
		fmt.Printf("equalizer: %s\n", onOff(on))
		return nil
	case "preset":
		if len(args) < 2 {
			return errors.New("eq preset needs an id, see 'zikctl presets'")
		}
		id, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("bad preset id %q", args[1])
		}
		if err := client.SetEqualizerPreset(ctx, id); err != nil {
			return err
		}
		fmt.Printf("equalizer preset: %d\n", id)
		return nil
	default:
		return fmt.Errorf("unknown eq argument %q", args[0])
	}
}

func cmdPresets(ctx context.Context, client *zik.Client) error {
	presets, err := client.EqualizerPresets(ctx)
	if err != nil {
		return err
	}
	for _, p := range presets {
		fmt.Printf("%3d  %s\n", p.ID, p.Name)
	}
	return nil
}

// runWatch stays attached to the headset, printing change events and
// redialing with backoff when the connection drops.
func runWatch(ctx context.Context, logger zerolog.Logger, cfg FileConfig) error {
	manager := connection.NewManager(func(ctx context.Context, online func()) error {
		client, cleanup, err := connect(ctx, logger, cfg)
		if err != nil {
			return err
		}
		defer cleanup()
		online()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case n, ok := <-client.Notifications():
				if !ok {
					return errors.New("session ended")
				}
				logger.Info().Stringer("attribute", n.Attr).Msg("changed")
				printAttribute(ctx, client, n)
			}
		}
	}, connection.ManagerConfig{
		OnOnline: func() { logger.Info().Msg("headset online") },
		OnOffline: func(err error) {
			logger.Warn().Err(err).Msg("headset offline")
		},
		OnRetry: func(attempt int, delay time.Duration) {
			logger.Info().Int("attempt", attempt).Dur("delay", delay).Msg("redialing")
		},
	})

	err := manager.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printAttribute(ctx context.Context, client *zik.Client, n zik.Notification) {
	switch n.Attr {
	case state.AttrBattery:
		if battery, err := client.BatteryStatus(ctx); err == nil {
			fmt.Printf("battery: %s\n", battery)
		}
	case state.AttrNoiseCancellation:
		if on, err := client.NoiseCancellation(ctx); err == nil {
			fmt.Printf("noise cancellation: %s\n", onOff(on))
		}
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func parseOnOff(arg string) (bool, error) {
	switch arg {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("expected on or off, got %q", arg)
	}
}
