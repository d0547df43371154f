package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/erazemk/devtrack/internal/client"
	"github.com/erazemk/devtrack/internal/config"
	"github.com/erazemk/devtrack/internal/model"
	"github.com/erazemk/devtrack/internal/offline"
)

const queueUsage = `Usage: devtrack queue <assign|return|list|flush> [flags]

Subcommands:
  assign -device <id> -to <user id> [-notes <text>]
  return -device <id> [-condition <text>] [-notes <text>]
  list
  flush                   submit every queued action to the server

Flags:
  -c, -config <path>      YAML config file
  -q, -queue <path>       queue file (default: devtrack-queue.sqlite3)
  -s, -server <url>       server URL for flush (default: http://localhost:8080)
      -username <name>    login for flush; the password comes from
                          client.password or DEVTRACK_CLIENT_PASSWORD
`

func cmdQueue(args []string) error {
	if len(args) < 1 {
		fmt.Fprint(os.Stderr, queueUsage)
		return errors.New("missing queue subcommand")
	}
	sub := args[0]

	fs := flag.NewFlagSet("queue "+sub, flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprint(os.Stdout, queueUsage) }
	configPath := configFlag(fs)
	overrides := map[string]*string{
		"queue":    stringFlag(fs, "queue", "q"),
		"server":   stringFlag(fs, "server", "s"),
		"username": stringFlag(fs, "username", ""),
	}
	deviceID := fs.Int64("device", 0, "")
	userID := fs.Int64("to", 0, "")
	notes := fs.String("notes", "", "")
	condition := fs.String("condition", "", "")

	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath, overrides)
	if err != nil {
		return err
	}

	q, err := offline.Open(cfg.Client.QueuePath)
	if err != nil {
		return fmt.Errorf("opening queue: %w", err)
	}
	defer q.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch sub {
	case "assign":
		return enqueue(ctx, q, model.SyncAction{
			Type:     model.ActionTypeAssign,
			DeviceID: *deviceID,
			UserID:   *userID,
			Notes:    *notes,
		})
	case "return":
		return enqueue(ctx, q, model.SyncAction{
			Type:      model.ActionTypeReturn,
			DeviceID:  *deviceID,
			Condition: *condition,
			Notes:     *notes,
		})
	case "list":
		actions, err := q.List(ctx)
		if err != nil {
			return err
		}
		return printJSON(actions)
	case "flush":
		return flush(ctx, q, cfg.Client)
	default:
		fmt.Fprint(os.Stderr, queueUsage)
		return fmt.Errorf("unknown queue subcommand: %s", sub)
	}
}

func enqueue(ctx context.Context, q *offline.Queue, action model.SyncAction) error {
	queued, err := q.Enqueue(ctx, action)
	if err != nil {
		return err
	}
	n, err := q.Len(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Queued %s of device %d (key %s), %d pending.\n", queued.Action.Type, queued.Action.DeviceID, queued.Action.Key, n)
	return nil
}

func flush(ctx context.Context, q *offline.Queue, cfg config.ClientConfig) error {
	n, err := q.Len(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Println("Queue is empty.")
		return nil
	}

	if cfg.Username == "" {
		return errors.New("client.username is required to flush")
	}

	c := client.New(cfg.ServerURL, "")
	if _, err := c.Login(ctx, cfg.Username, cfg.Password); err != nil {
		return fmt.Errorf("%w: %w", offline.ErrSyncFailed, err)
	}

	result, err := q.Flush(ctx, c)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
