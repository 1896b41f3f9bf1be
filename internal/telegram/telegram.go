package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/deusflow/newsbrief/internal/delivery"
	"github.com/deusflow/newsbrief/internal/logger"
	"github.com/deusflow/newsbrief/internal/news"
)

const (
	DefaultAPIURL = "https://api.telegram.org"
	// Telegram rejects messages over 4096 characters.
	maxMessageRunes = 4096
)

// Sender posts briefings to one chat or channel.
type Sender struct {
	apiURL string
	token  string
	chatID string
	http   *http.Client
}

func NewSender(apiURL, token, chatID string) *Sender {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Sender{
		apiURL: strings.TrimRight(apiURL, "/"),
		token:  token,
		chatID: chatID,
		http:   &http.Client{},
	}
}

func (s *Sender) Name() string { return "telegram:" + s.chatID }

// Display sends the script as one or more plain text messages.
func (s *Sender) Display(ctx context.Context, script news.Script) error {
	parts := Split(script.Body, maxMessageRunes)
	for i, part := range parts {
		if err := s.sendMessageOnce(ctx, part); err != nil {
			return err
		}
		logger.Debug("Message sent to Telegram", "part", i+1, "of", len(parts))
	}
	return nil
}

// sendMessageOnce does one try to send message
func (s *Sender) sendMessageOnce(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiURL, s.token)

	payload := map[string]interface{}{
		"chat_id":                  s.chatID,
		"text":                     text,
		"disable_web_page_preview": true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return delivery.Errorf(delivery.Rejected, s.Name(), "error make JSON: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return delivery.Errorf(delivery.Unreachable, s.Name(), "error build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		// the error text carries the URL, which carries the token
		return delivery.Errorf(delivery.Unreachable, s.Name(), "error HTTP request: %v", redact(err.Error(), s.token))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Description string `json:"description"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		_ = json.Unmarshal(raw, &apiErr)
		kind := delivery.Rejected
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			kind = delivery.Unreachable
		}
		return delivery.Errorf(kind, s.Name(), "telegram API error: status %d %s", resp.StatusCode, apiErr.Description)
	}
	return nil
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "***")
}

// Split breaks text into chunks of at most limit runes, cutting at paragraph
// breaks, then line breaks, then spaces.
func Split(text string, limit int) []string {
	text = strings.TrimSpace(text)
	var parts []string
	for utf8.RuneCountInString(text) > limit {
		head := string([]rune(text)[:limit])
		cut := -1
		for _, sep := range []string{"\n\n", "\n", " "} {
			if idx := strings.LastIndex(head, sep); idx > 0 {
				cut = idx
				break
			}
		}
		if cut < 0 {
			cut = len(head)
		}
		parts = append(parts, strings.TrimSpace(text[:cut]))
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}
