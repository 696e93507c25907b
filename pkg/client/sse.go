package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kanha321/mnnit-dark-web-reborn/pkg/protocol"
)

// SSEClient follows the server's change event stream, reconnecting with backoff.
type SSEClient struct {
	baseURL      string
	httpClient   *http.Client
	reconnectMin time.Duration
	reconnectMax time.Duration
	logger       *zap.Logger
}

// NewSSEClient creates a new SSE client.
func NewSSEClient(baseURL string, logger *zap.Logger) *SSEClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SSEClient{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   &http.Client{}, // no timeout on a stream
		reconnectMin: 1 * time.Second,
		reconnectMax: 30 * time.Second,
		logger:       logger,
	}
}

// Subscribe connects to the event endpoint and returns a channel of events.
// The channel is closed once ctx is done.
func (c *SSEClient) Subscribe(ctx context.Context) <-chan protocol.Event {
	events := make(chan protocol.Event, 100)
	go c.subscribeLoop(ctx, events)
	return events
}

func (c *SSEClient) subscribeLoop(ctx context.Context, events chan<- protocol.Event) {
	defer close(events)

	delay := c.reconnectMin
	for {
		err := c.connect(ctx, events)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			delay = c.reconnectMin
			continue
		}

		c.logger.Warn("event stream interrupted",
			zap.Error(err), zap.Duration("retry_in", delay))

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > c.reconnectMax {
			delay = c.reconnectMax
		}
	}
}

func (c *SSEClient) connect(ctx context.Context, events chan<- protocol.Event) error {
	url := c.baseURL + "/api/events"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &HTTPError{StatusCode: resp.StatusCode}
	}

	c.logger.Info("event stream connected", zap.String("url", url))

	scanner := bufio.NewScanner(resp.Body)
	var eventType, data string

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			if data != "" {
				var event protocol.Event
				if err := json.Unmarshal([]byte(data), &event); err != nil {
					c.logger.Debug("malformed event", zap.String("data", data), zap.Error(err))
				} else {
					if event.Type == "" {
						event.Type = eventType
					}
					select {
					case events <- event:
					case <-ctx.Done():
						return nil
					}
				}
			}
			eventType, data = "", ""
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read: %w", err)
	}
	return fmt.Errorf("connection closed")
}
