package main

import (
	"context"
	"log/slog"

	"github.com/mbocsi/goreverb/client"
)

func main() {
	userID := "123"
	slog.Info("Starting private channel client", "user_id", userID)

	cfg, err := client.LoadConfig()
	if err != nil {
		panic(err)
	}

	err = client.Connected(context.Background(), cfg, func(c *client.Client) error {
		slog.Info("Connected", "socket_id", c.SocketID())

		ch, err := c.Subscribe(context.Background(), "private-user."+userID, nil)
		if err != nil {
			return err
		}

		ch.Bind("direct-message", func(event string, data any, channel string) error {
			slog.Info("Direct message", "data", data)
			return nil
		})

		// Client events need to be enabled on the server.
		if err := ch.Trigger("typing", map[string]any{"typing": true}); err != nil {
			slog.Warn("Failed to send typing event", "error", err)
		}

		slog.Info("Listening for events, press Ctrl+C to stop")
		c.Listen()
		return nil
	})
	if err != nil {
		panic(err)
	}
}
