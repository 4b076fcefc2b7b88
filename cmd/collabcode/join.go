package main

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vango-dev/collabcode/internal/config"
	"github.com/vango-dev/collabcode/internal/errors"
	"github.com/vango-dev/collabcode/pkg/client"
	"github.com/vango-dev/collabcode/pkg/filedoc"
	"github.com/vango-dev/collabcode/pkg/presence"
	"github.com/vango-dev/collabcode/pkg/protocol"
	"github.com/vango-dev/collabcode/pkg/reconcile"
)

func joinCmd(opts *globalOptions) *cobra.Command {
	var (
		url  string
		name string
		file string
	)

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Connect a terminal client to a relay",
		Long: `Connect to a relay and chat from the terminal.

Lines typed on stdin are sent as chat messages. Commands:
  /react <emoji> [messageId]   react to the last (or given) chat message
  /cursor <line> <column>      publish a cursor position (1-based)
  /quit                        disconnect

With --file, the given file is shared: edits saved to it are sent to
the relay and edits from others are written into it.

Examples:
  collabcode join --name ada
  collabcode join --url ws://relay.example.com/ws --file notes.md`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if url != "" {
				cfg.Client.URL = url
			}
			if name != "" {
				cfg.Client.Username = name
			}
			return runJoin(cfg, file, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&url, "url", "u", "", "Relay URL (default ws://localhost:8080/ws)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Display name")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Share this file")

	return cmd
}

func runJoin(cfg *config.Config, file string, in io.Reader, out io.Writer) error {
	logger, err := setup(cfg)
	if err != nil {
		return err
	}

	term := newTerminal(out)
	sess := client.New(cfg.SessionConfig(logger), term)
	sess.AttachRenderer(presence.NewRenderer(term, presence.WithLogger(logger)))

	if file != "" {
		doc, err := filedoc.Open(file, logger)
		if err != nil {
			return errors.New("C300").WithDetail(file).Wrap(err)
		}
		defer doc.Close()
		shareDocument(sess, doc, logger)
		info("sharing %s", doc.Path())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sess.Connect(ctx); err != nil {
		return errors.New("C201").Wrap(err)
	}
	defer sess.Close()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sess.Done():
			warn("relay connection closed; run the command again to reconnect")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleInput(sess, term, line); quit {
				return nil
			}
		}
	}
}

// shareDocument wires doc to the session in both directions.
func shareDocument(sess *client.Session, doc *filedoc.Document, logger *slog.Logger) {
	rec := sess.AttachDocument(doc)
	doc.OnChange(func(ev reconcile.ChangeEvent) {
		if err := rec.LocalChange(ev); err != nil {
			logger.Warn("edit not sent", "error", err)
		}
	})
	doc.Start()
}

// handleInput runs one stdin line and reports whether to quit.
func handleInput(sess *client.Session, term *terminal, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	if !strings.HasPrefix(line, "/") {
		if _, err := sess.SendChat(line); err != nil {
			errorMsg("chat not sent: %v", err)
		}
		return false
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true

	case "/react":
		if len(fields) < 2 {
			warn("usage: /react <emoji> [messageId]")
			return false
		}
		target := term.LastMessageID()
		if len(fields) > 2 {
			target = fields[2]
		}
		if target == "" {
			warn("no chat message to react to yet")
			return false
		}
		if err := sess.SendReaction(target, fields[1]); err != nil {
			errorMsg("reaction not sent: %v", err)
		}

	case "/cursor":
		pos, ok := parseCursor(fields[1:])
		if !ok {
			warn("usage: /cursor <line> <column>")
			return false
		}
		if err := sess.SendCursor(pos); err != nil {
			errorMsg("cursor not sent: %v", err)
		}

	default:
		warn("unknown command %s", fields[0])
	}
	return false
}

// parseCursor parses 1-based "line column" into a Position.
func parseCursor(args []string) (protocol.Position, bool) {
	if len(args) != 2 {
		return protocol.Position{}, false
	}
	line, err1 := strconv.Atoi(args[0])
	col, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil || line < 1 || col < 1 {
		return protocol.Position{}, false
	}
	return protocol.Position{Line: line - 1, Character: col - 1}, true
}
