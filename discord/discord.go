// Package discord delivers embeds to users as direct messages.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dhcgn/mailcord/logging"
	"github.com/dhcgn/mailcord/model"
)

const DefaultBaseURL = "https://discord.com/api/v10"

// maxErrorBody caps how much of a failed response is kept for diagnostics.
const maxErrorBody = 4096

// APIError is returned for any non-2xx response.
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("discord %s: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// IsAPIError reports whether err wraps an *APIError.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// Client talks to the Discord REST API with a bot token.
type Client struct {
	token   string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewClient(token, baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

type channel struct {
	ID string `json:"id"`
}

type messageRequest struct {
	Embeds []model.Embed `json:"embeds"`
}

// CreateDM creates or returns the direct message channel with userID.
func (c *Client) CreateDM(ctx context.Context, userID string) (string, error) {
	var ch channel
	if err := c.post(ctx, "/users/@me/channels", map[string]string{"recipient_id": userID}, &ch); err != nil {
		return "", fmt.Errorf("create dm channel with %s: %w", userID, err)
	}
	if ch.ID == "" {
		return "", fmt.Errorf("create dm channel with %s: response has no channel id", userID)
	}
	if c.logger != nil {
		c.logger.Debug("created dm channel", "user", userID, "channel", ch.ID)
	}
	return ch.ID, nil
}

// PostEmbed posts one embed to channelID.
func (c *Client) PostEmbed(ctx context.Context, channelID string, embed model.Embed) error {
	var resp json.RawMessage
	if err := c.post(ctx, "/channels/"+channelID+"/messages", messageRequest{Embeds: []model.Embed{embed}}, &resp); err != nil {
		return fmt.Errorf("post message to channel %s: %w", channelID, err)
	}
	logging.Verbose(c.logger, "discord response", "channel", channelID, "body", string(resp))
	return nil
}

// Send opens the DM channel with userID and posts embed to it.
func (c *Client) Send(ctx context.Context, userID string, embed model.Embed) error {
	channelID, err := c.CreateDM(ctx, userID)
	if err != nil {
		return err
	}
	if err := c.PostEmbed(ctx, channelID, embed); err != nil {
		return err
	}
	if c.logger != nil {
		c.logger.Debug("sent embed", "user", userID, "title", embed.Title)
	}
	return nil
}

func (c *Client) post(ctx context.Context, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("Content-Type", "application/json")

	startTime := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && c.logger != nil {
			c.logger.Warn("failed to close response body", "error", closeErr)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if c.logger != nil {
		c.logger.Debug("discord request completed",
			"endpoint", endpoint,
			"status", resp.StatusCode,
			"duration_ms", time.Since(startTime).Milliseconds())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(data)}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
