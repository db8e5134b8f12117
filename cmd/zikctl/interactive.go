package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog"

	"github.com/tktech/zik-go/pkg/transport"
)

const shellHelp = `Commands:
  status                   show everything the headset reports
  battery                  battery state and level
  version                  firmware version
  nc [on|off]              noise cancellation
  lou [on|off]             lou reed mode
  head [on|off]            head detection
  autoconnect [on|off]     automatic connection
  eq [on|off|preset <id>]  equalizer
  presets                  equalizer preset list
  help                     this text
  quit                     leave the shell`

// runShell connects once and reads commands until EOF or the session
// dies. Device change events print between prompts.
func runShell(ctx context.Context, logger zerolog.Logger, cfg FileConfig) error {
	client, cleanup, err := connect(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "zik> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("create readline: %w", err)
	}
	defer rl.Close()

	go func() {
		for n := range client.Notifications() {
			fmt.Fprintf(rl.Stdout(), "changed: %s\n", n.Attr)
			printAttribute(ctx, client, n)
		}
	}()

	fmt.Fprintln(rl.Stdout(), shellHelp)
	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			return nil
		}
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "help", "?":
			fmt.Fprintln(rl.Stdout(), shellHelp)
			continue
		case "quit", "exit", "q":
			return nil
		}

		if client.State() != transport.StateReady {
			return errors.New("session ended")
		}
		if err := dispatch(ctx, client, fields[0], fields[1:]); err != nil {
			fmt.Fprintf(rl.Stderr(), "error: %v\n", err)
		}
	}
}
