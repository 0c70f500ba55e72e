/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/messagely/apiserver/internal/mq"
	"github.com/messagely/apiserver/types"
	"github.com/spf13/cobra"
)

var eventsChannel string

// eventsCmd groups commands that work with the ledger event feed.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect message ledger events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Log ledger events from the message queue until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		queue, err := mq.Open(ctx, cfg)
		if err != nil {
			return err
		}
		if queue == nil {
			return errors.New("MQ_BACKEND is not configured")
		}
		defer queue.Close()

		slog.Info("tailing events", slog.String("channel", eventsChannel), slog.String("backend", cfg.MQ.Backend))
		err = queue.Subscribe(ctx, eventsChannel, logEvent)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func logEvent(ctx context.Context, msg mq.Message) error {
	var event types.MessageEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		slog.WarnContext(ctx, "undecodable event", slog.String("id", msg.ID), slog.Any("err", err))
		return nil
	}
	slog.InfoContext(ctx, "event",
		slog.String("id", event.ID),
		slog.String("type", event.Type),
		slog.Int64("message_id", event.MessageID),
		slog.String("from", event.FromUsername),
		slog.String("to", event.ToUsername),
		slog.Time("at", event.At),
	)
	return nil
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)

	eventsTailCmd.Flags().StringVar(&eventsChannel, "channel", types.EventMessageSent, "channel to consume")
}
