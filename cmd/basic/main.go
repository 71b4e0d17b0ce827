package main

import (
	"context"
	"log/slog"

	"github.com/mbocsi/goreverb/client"
)

func main() {
	slog.Info("Starting basic client")

	cfg, err := client.LoadConfig()
	if err != nil {
		panic(err)
	}

	c, err := client.NewClient(cfg)
	if err != nil {
		panic(err)
	}

	if err := c.Connect(); err != nil {
		panic(err)
	}
	defer c.Disconnect()

	slog.Info("Connected", "socket_id", c.SocketID())

	ch, err := c.Subscribe(context.Background(), "notifications", nil)
	if err != nil {
		panic(err)
	}

	handle := func(event string, data any, channel string) error {
		slog.Info("Received event", "event", event, "channel", channel, "data", data)
		return nil
	}
	ch.Bind("new-notification", handle)
	ch.Bind("alert", handle)

	slog.Info("Listening for events, press Ctrl+C to stop")
	c.Listen()
}
