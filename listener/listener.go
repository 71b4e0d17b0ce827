package listener

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mbocsi/goreverb/client"
)

const sessionRetryDelay = 5 * time.Second

// Listener connects a device to its command channel and answers health,
// vitals and capture requests with API callbacks.
type Listener struct {
	cfg     Config
	api     *apiClient
	capture *captureRunner
	logger  *slog.Logger

	mu        sync.Mutex
	client    *client.Client
	lastEvent time.Time
}

func New(cfg Config) (*Listener, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := slog.Default().With("device_id", cfg.DeviceID)
	return &Listener{
		cfg:    cfg,
		api:    newAPIClient(cfg.APIBaseURL, cfg.APIToken, logger),
		logger: logger,
		capture: &captureRunner{
			script:        cfg.CaptureScript,
			deviceID:      cfg.DeviceID,
			apiBaseURL:    cfg.APIBaseURL,
			apiToken:      cfg.APIToken,
			imageBasePath: cfg.ImageBasePath,
			logger:        logger,
		},
	}, nil
}

// Run keeps a listener session alive until ctx is cancelled. A session that
// ends for any other reason is restarted after a short delay.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info("Starting device listener",
		"api_base_url", l.cfg.APIBaseURL, "capture_script", l.cfg.CaptureScript)

	if l.cfg.StatusAddr != "" {
		go l.serveStatus(ctx)
	}

	for {
		if err := l.runSession(ctx); err != nil {
			l.logger.Error("Session ended", "error", err)
		}
		if ctx.Err() != nil {
			return nil
		}

		l.logger.Info("Reconnecting", "delay", sessionRetryDelay)
		select {
		case <-time.After(sessionRetryDelay):
		case <-ctx.Done():
			return nil
		}
	}
}

func (l *Listener) runSession(ctx context.Context) error {
	cfg := l.cfg.Client
	if cfg.Host == "" {
		server, err := client.DiscoverServer(0)
		if err != nil {
			return err
		}
		cfg.Host = server.Host
		cfg.Port = server.Port
	}

	c, err := client.NewClient(cfg)
	if err != nil {
		return err
	}
	if err := c.Connect(); err != nil {
		return err
	}

	l.mu.Lock()
	l.client = c
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.client = nil
		l.mu.Unlock()
	}()

	l.logger.Info("Connected", "socket_id", c.SocketID())

	channelName := "device." + l.cfg.DeviceID
	ch, err := c.Subscribe(ctx, channelName, nil)
	if err != nil {
		c.Disconnect()
		return err
	}
	l.logger.Info("Subscribed", "channel", channelName)

	ch.Bind("health.ping", l.onHealthPing)
	ch.Bind("vitals.request", l.onVitalsRequest)
	ch.Bind("capture.request", l.onCaptureRequest)
	ch.Bind("*", func(event string, data any, channel string) error {
		l.touch()
		l.logger.Debug("Channel event", "event", event, "channel", channel)
		return nil
	})
	c.Bind("*", func(event string, data any, channel string) error {
		l.logger.Debug("Global event", "event", event, "channel", channel)
		return nil
	})

	done := make(chan struct{})
	go func() {
		c.Listen()
		close(done)
	}()

	select {
	case <-ctx.Done():
		c.Disconnect()
		<-done
		return nil
	case <-done:
		return &client.Error{Kind: client.KindConnection, Message: "connection closed"}
	}
}

func (l *Listener) onHealthPing(event string, data any, channel string) error {
	requestID := requestID(data)
	l.logger.Info("Health ping received", "request_id", requestID)

	return l.api.Post(context.Background(), "/api/device/pong", map[string]any{
		"device_id":  l.cfg.DeviceID,
		"request_id": requestID,
		"status":     "online",
	})
}

func (l *Listener) onVitalsRequest(event string, data any, channel string) error {
	requestID := requestID(data)
	l.logger.Info("Vitals request received", "request_id", requestID)

	return l.api.Post(context.Background(), "/api/device/vitals", map[string]any{
		"device_id":  l.cfg.DeviceID,
		"request_id": requestID,
		"vitals":     collectVitals(),
	})
}

// onCaptureRequest runs the capture script off the dispatch goroutine so a
// slow capture does not stall the socket. Requests during a run or inside
// the cooldown window are dropped without a callback.
func (l *Listener) onCaptureRequest(event string, data any, channel string) error {
	requestID := requestID(data)
	params, _ := field(data, "params").(map[string]any)
	l.logger.Info("Capture request received", "request_id", requestID, "params", params)

	if err := l.capture.tryAcquire(); err != nil {
		l.logger.Warn("Capture request dropped", "request_id", requestID, "reason", err)
		return nil
	}

	go func() {
		defer l.capture.release()

		result := l.capture.Run(context.Background(), requestID, params)
		payload := map[string]any{
			"device_id":  l.cfg.DeviceID,
			"request_id": requestID,
			"success":    result.Success,
		}
		if result.Error != "" {
			payload["error"] = result.Error
		}
		if result.Output != "" {
			payload["output"] = result.Output
		}
		if result.ImagePath != "" {
			payload["image_path"] = result.ImagePath
		}
		if err := l.api.Post(context.Background(), "/api/device/capture/complete", payload); err != nil {
			l.logger.Error("Capture callback failed", "request_id", requestID, "error", err)
		}
	}()
	return nil
}

func (l *Listener) touch() {
	l.mu.Lock()
	l.lastEvent = time.Now()
	l.mu.Unlock()
}

// requestID extracts the request id from a command payload, minting one
// when the server did not send any.
func requestID(data any) string {
	if id, ok := field(data, "request_id").(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

func field(data any, key string) any {
	m, ok := data.(map[string]any)
	if !ok {
		return nil
	}
	return m[key]
}
