// Command zik-log inspects protocol log files captured by zikctl.
//
// Log files hold CBOR-encoded protocol events: frames, decoded
// messages, session state changes, and errors, written with the
// -protocol-log flag.
//
// Usage:
//
//	zik-log <command> [flags] <file.zlog>
//
// Commands:
//
//	view     Print events in human-readable form
//	stats    Summarize a log file
//
// Examples:
//
//	# Everything
//	zik-log view session.zlog
//
//	# Only decoded messages going out
//	zik-log view -layer wire -direction out session.zlog
//
//	# One session
//	zik-log view -session 5f3c2d session.zlog
//
//	# Battery traffic only
//	zik-log view -path /api/system/battery session.zlog
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	ziklog "github.com/tktech/zik-go/pkg/log"
)

const usage = `zik-log - headset protocol log inspector

Usage:
  zik-log <command> [flags] <file.zlog>

Commands:
  view     Print events in human-readable form
  stats    Summarize a log file

Use "zik-log <command> -help" for details on a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	switch cmd := os.Args[1]; cmd {
	case "view":
		runView(os.Args[2:])
	case "stats":
		runStats(os.Args[2:])
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	layer := fs.String("layer", "", "filter by layer (transport, wire, session)")
	direction := fs.String("direction", "", "filter by direction (in, out)")
	category := fs.String("category", "", "filter by category (message, state, error)")
	session := fs.String("session", "", "filter by session ID")
	path := fs.String("path", "", "filter messages by API path prefix")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		os.Exit(1)
	}

	filter := ziklog.Filter{SessionID: *session, Path: *path}
	if *layer != "" {
		l, err := parseLayer(*layer)
		if err != nil {
			fatal(err)
		}
		filter.Layer = &l
	}
	if *direction != "" {
		d, err := parseDirection(*direction)
		if err != nil {
			fatal(err)
		}
		filter.Direction = &d
	}
	if *category != "" {
		c, err := parseCategory(*category)
		if err != nil {
			fatal(err)
		}
		filter.Category = &c
	}

	reader, err := ziklog.NewFilteredReader(fs.Arg(0), filter)
	if err != nil {
		fatal(err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			fatal(err)
		}
		fmt.Println(formatEvent(event))
	}
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		os.Exit(1)
	}

	reader, err := ziklog.NewReader(fs.Arg(0))
	if err != nil {
		fatal(err)
	}
	defer reader.Close()

	var total, errCount int
	var first, last time.Time
	byLayer := map[ziklog.Layer]int{}
	sessions := map[string]bool{}
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fatal(err)
		}
		total++
		byLayer[event.Layer]++
		sessions[event.SessionID] = true
		if event.Category == ziklog.CategoryError {
			errCount++
		}
		if first.IsZero() || event.Timestamp.Before(first) {
			first = event.Timestamp
		}
		if event.Timestamp.After(last) {
			last = event.Timestamp
		}
	}

	fmt.Printf("events:    %d\n", total)
	fmt.Printf("sessions:  %d\n", len(sessions))
	fmt.Printf("errors:    %d\n", errCount)
	for _, l := range []ziklog.Layer{ziklog.LayerTransport, ziklog.LayerWire, ziklog.LayerSession} {
		fmt.Printf("%-10s %d\n", strings.ToLower(l.String())+":", byLayer[l])
	}
	if total > 0 {
		fmt.Printf("span:      %s .. %s\n",
			first.Format(time.RFC3339), last.Format(time.RFC3339))
	}
}

func formatEvent(e ziklog.Event) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %-3s %-9s %-7s",
		e.Timestamp.Format("15:04:05.000"),
		e.Direction, e.Layer, e.Category)
	if e.SessionID != "" {
		fmt.Fprintf(&sb, " [%.8s]", e.SessionID)
	}
	switch {
	case e.Message != nil:
		m := e.Message
		fmt.Fprintf(&sb, " %s %s", m.Type, m.Path)
		if m.Arg != "" {
			fmt.Fprintf(&sb, "?arg=%s", m.Arg)
		}
	case e.Frame != nil:
		fmt.Fprintf(&sb, " frame type=0x%02x size=%d", e.Frame.PacketType, e.Frame.Size)
		if e.Frame.Truncated {
			sb.WriteString(" (truncated)")
		}
	case e.StateChange != nil:
		fmt.Fprintf(&sb, " %s -> %s", e.StateChange.OldState, e.StateChange.NewState)
		if e.StateChange.Reason != "" {
			fmt.Fprintf(&sb, " (%s)", e.StateChange.Reason)
		}
	case e.Error != nil:
		fmt.Fprintf(&sb, " %s", e.Error.Message)
	}
	return sb.String()
}

func parseLayer(s string) (ziklog.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return ziklog.LayerTransport, nil
	case "wire":
		return ziklog.LayerWire, nil
	case "session":
		return ziklog.LayerSession, nil
	default:
		return 0, fmt.Errorf("unknown layer %q", s)
	}
}

func parseDirection(s string) (ziklog.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return ziklog.DirectionIn, nil
	case "out":
		return ziklog.DirectionOut, nil
	default:
		return 0, fmt.Errorf("unknown direction %q", s)
	}
}

func parseCategory(s string) (ziklog.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return ziklog.CategoryMessage, nil
	case "state":
		return ziklog.CategoryState, nil
	case "error":
		return ziklog.CategoryError, nil
	default:
		return 0, fmt.Errorf("unknown category %q", s)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
