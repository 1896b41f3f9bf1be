// Package speech sends text to a Home Assistant text-to-speech entity for
// playback on a media player.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/deusflow/newsbrief/internal/delivery"
)

type speakRequest struct {
	EntityID      string `json:"entity_id"`
	MediaPlayerID string `json:"media_player_entity_id"`
	Message       string `json:"message"`
	Cache         bool   `json:"cache"`
}

// Client calls tts.speak for one TTS entity.
type Client struct {
	baseURL string
	token   string
	entity  string
	http    *http.Client
}

func NewClient(baseURL, token, entity string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		entity:  entity,
		http:    &http.Client{},
	}
}

func (c *Client) Name() string { return c.entity }

// Speak plays text on player. Callers bound the call with ctx.
func (c *Client) Speak(ctx context.Context, text, player string) error {
	target := c.entity + "/" + player
	body, err := json.Marshal(speakRequest{
		EntityID:      c.entity,
		MediaPlayerID: player,
		Message:       text,
		Cache:         false,
	})
	if err != nil {
		return delivery.Errorf(delivery.Rejected, target, "encode request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/services/tts/speak", bytes.NewReader(body))
	if err != nil {
		return delivery.Errorf(delivery.Unreachable, target, "build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &delivery.DeliveryError{Kind: delivery.Unreachable, Target: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	kind := delivery.Rejected
	if resp.StatusCode >= 500 {
		kind = delivery.Unreachable
	}
	return &delivery.DeliveryError{Kind: kind, Target: target, Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))}
}
