// Package notify publishes round events, both as a structured log line
// and, optionally, as a Discord and/or Telegram webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tos-network/subtensor-validator/internal/config"
	"github.com/tos-network/subtensor-validator/internal/orchestrator"
	"github.com/tos-network/subtensor-validator/internal/util"
)

const (
	maxRetries     = 3
	retryBaseDelay = 500 * time.Millisecond
)

// discordEmbed is the round-summary embed sent to a Discord webhook.
type discordEmbed struct {
	Title  string         `json:"title"`
	Color  int            `json:"color"`
	Fields []discordField `json:"fields"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Sink is the RoundSink implementation: it always logs the round
// summary, and additionally delivers a webhook when one is configured.
type Sink struct {
	cfg        config.NotifyConfig
	httpClient *http.Client
}

// NewSink builds a Sink from configuration.
func NewSink(cfg config.NotifyConfig) *Sink {
	return &Sink{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Publish implements orchestrator.RoundSink.
func (s *Sink) Publish(ctx context.Context, e orchestrator.RoundEvent) {
	util.Infof("round %d complete: block=%d uids=%d elapsed=%s", e.RoundID, e.Block, len(e.UIDs), e.Elapsed)

	if s.cfg.DiscordWebhook != "" {
		s.notifyDiscord(ctx, e)
	}
	if s.cfg.TelegramBotToken != "" && s.cfg.TelegramChatID != "" {
		s.notifyTelegram(ctx, e)
	}
}

func (s *Sink) notifyDiscord(ctx context.Context, e orchestrator.RoundEvent) {
	embed := discordEmbed{
		Title: fmt.Sprintf("Round %d complete", e.RoundID),
		Color: 0x2ecc71,
		Fields: []discordField{
			{Name: "Block", Value: fmt.Sprintf("%d", e.Block), Inline: true},
			{Name: "Miners challenged", Value: fmt.Sprintf("%d", len(e.UIDs)), Inline: true},
			{Name: "Elapsed", Value: e.Elapsed.String(), Inline: true},
		},
	}
	payload := map[string]interface{}{"embeds": []discordEmbed{embed}}

	body, err := json.Marshal(payload)
	if err != nil {
		util.Warnf("notify: failed to marshal discord payload: %v", err)
		return
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.DiscordWebhook, bytes.NewReader(body))
		if err != nil {
			util.Warnf("notify: failed to build discord request: %v", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode < 300 {
				return
			}
		}

		util.Warnf("notify: discord delivery attempt %d failed: %v", attempt+1, err)
		time.Sleep(retryBaseDelay * time.Duration(attempt+1))
	}

	util.Warn("notify: discord delivery exhausted retries")
}

// telegramMessage is a Telegram Bot API sendMessage payload.
type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func (s *Sink) notifyTelegram(ctx context.Context, e orchestrator.RoundEvent) {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", s.cfg.TelegramBotToken)

	text := fmt.Sprintf(
		"*Round %d complete*\nBlock: `%d`\nMiners challenged: `%d`\nElapsed: `%s`",
		e.RoundID, e.Block, len(e.UIDs), e.Elapsed,
	)
	msg := telegramMessage{ChatID: s.cfg.TelegramChatID, Text: text, ParseMode: "Markdown"}

	body, err := json.Marshal(msg)
	if err != nil {
		util.Warnf("notify: failed to marshal telegram payload: %v", err)
		return
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			util.Warnf("notify: failed to build telegram request: %v", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode < 300 {
				return
			}
		}

		util.Warnf("notify: telegram delivery attempt %d failed: %v", attempt+1, err)
		time.Sleep(retryBaseDelay * time.Duration(attempt+1))
	}

	util.Warn("notify: telegram delivery exhausted retries")
}
