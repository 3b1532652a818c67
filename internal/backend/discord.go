package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
)

// DiscordConfig is the per-user credential blob for the Discord adapter.
type DiscordConfig struct {
	BotToken  string `json:"botToken"`
	ChannelID string `json:"channelId"`
}

// Discord relays files as bot attachments in a Discord channel. Store sends
// the file as a channel message; fetch resolves the message and downloads the
// attachment from the CDN.
type Discord struct {
	timeout time.Duration
}

func NewDiscord(timeout time.Duration) *Discord {
	return &Discord{timeout: timeout}
}

func (d *Discord) session(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	s.Client = &http.Client{Timeout: d.timeout}
	return s, nil
}

func (d *Discord) Store(ctx context.Context, obj *Object, rawConfig []byte) (Coordinates, error) {
	var cfg DiscordConfig
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, fmt.Errorf("decode discord config: %w", err)
		}
	}
	if cfg.BotToken == "" || cfg.ChannelID == "" {
		return nil, ErrConfigMissing
	}

	s, err := d.session(cfg.BotToken)
	if err != nil {
		return nil, upstreamErr(PlatformDiscord, "create session", err)
	}

	msg, err := s.ChannelFileSend(cfg.ChannelID, obj.FileName, bytes.NewReader(obj.Data),
		discordgo.WithContext(ctx))
	if err != nil {
		return nil, upstreamErr(PlatformDiscord, "send attachment", err)
	}
	if msg == nil || msg.ID == "" || len(msg.Attachments) == 0 {
		return nil, upstreamErr(PlatformDiscord, "incomplete response", nil)
	}

	return Coordinates{
		"DiscordMessageId": msg.ID,
		"DiscordChannelId": cfg.ChannelID,
		"DiscordBotToken":  cfg.BotToken,
	}, nil
}

func (d *Discord) Fetch(ctx context.Context, coords Coordinates, rawConfig []byte) (*FetchResult, error) {
	// Credentials captured at upload time win over the caller's current config.
	token := coords["DiscordBotToken"]
	if token == "" && len(rawConfig) > 0 {
		var cfg DiscordConfig
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, fmt.Errorf("decode discord config: %w", err)
		}
		token = cfg.BotToken
	}
	if token == "" {
		return nil, ErrConfigMissing
	}

	channelID := coords["DiscordChannelId"]
	messageID := coords["DiscordMessageId"]
	if channelID == "" || messageID == "" {
		return nil, upstreamErr(PlatformDiscord, "incomplete coordinates", nil)
	}

	s, err := d.session(token)
	if err != nil {
		return nil, upstreamErr(PlatformDiscord, "create session", err)
	}

	msg, err := s.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, upstreamErr(PlatformDiscord, "resolve message", err)
	}
	if len(msg.Attachments) == 0 {
		return nil, upstreamErr(PlatformDiscord, "message has no attachment", nil)
	}
	att := msg.Attachments[0]

	// The CDN URL needs no authentication.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return nil, upstreamErr(PlatformDiscord, "build download request", err)
	}
	client := &http.Client{Timeout: d.timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, upstreamErr(PlatformDiscord, "download attachment", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, upstreamErr(PlatformDiscord,
			fmt.Sprintf("download attachment: status %d", resp.StatusCode), nil)
	}

	contentType := att.ContentType
	if contentType == "" {
		contentType = resp.Header.Get("Content-Type")
	}
	return &FetchResult{Body: resp.Body, ContentType: contentType}, nil
}
