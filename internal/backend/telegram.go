package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramConfig is the per-user credential blob for the Telegram adapter.
type TelegramConfig struct {
	BotToken string `json:"botToken"`
	ChatID   string `json:"chatId"`
}

// Telegram relays files through a Telegram bot chat. Images go out as photos,
// everything else as documents; fetch resolves the stored file id to a
// download link and streams it.
type Telegram struct {
	timeout time.Duration
}

func NewTelegram(timeout time.Duration) *Telegram {
	return &Telegram{timeout: timeout}
}

func (t *Telegram) api(token string) (*tgbotapi.BotAPI, error) {
	client := &http.Client{Timeout: t.timeout}
	return tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
}

// Store discards its context: the bot API client offers no per-request
// context hook, so the send is bounded only by the client timeout.
func (t *Telegram) Store(_ context.Context, obj *Object, rawConfig []byte) (Coordinates, error) {
	var cfg TelegramConfig
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, fmt.Errorf("decode telegram config: %w", err)
		}
	}
	if cfg.BotToken == "" || cfg.ChatID == "" {
		return nil, ErrConfigMissing
	}

	chatID, err := strconv.ParseInt(cfg.ChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("telegram chatId %q is not numeric: %w", cfg.ChatID, err)
	}

	api, err := t.api(cfg.BotToken)
	if err != nil {
		return nil, upstreamErr(PlatformTelegram, "authorize bot", err)
	}

	payload := tgbotapi.FileBytes{Name: obj.FileName, Bytes: obj.Data}

	// Telegram distinguishes photo and document uploads; pick by content type.
	var msg tgbotapi.Message
	if strings.HasPrefix(obj.ContentType, "image/") {
		msg, err = api.Send(tgbotapi.NewPhoto(chatID, payload))
	} else {
		msg, err = api.Send(tgbotapi.NewDocument(chatID, payload))
	}
	if err != nil {
		return nil, upstreamErr(PlatformTelegram, "send file", err)
	}

	fileID := extractTelegramFileID(&msg)
	if fileID == "" {
		return nil, upstreamErr(PlatformTelegram, "incomplete response", nil)
	}

	return Coordinates{
		"TgFileId":   fileID,
		"TgChatId":   cfg.ChatID,
		"TgBotToken": cfg.BotToken,
	}, nil
}

// extractTelegramFileID pulls the retrievable file id out of a sent message.
// Photos come back as a size ladder; the last entry is the largest.
func extractTelegramFileID(msg *tgbotapi.Message) string {
	if msg.Document != nil {
		return msg.Document.FileID
	}
	if len(msg.Photo) > 0 {
		return msg.Photo[len(msg.Photo)-1].FileID
	}
	return ""
}

func (t *Telegram) Fetch(ctx context.Context, coords Coordinates, rawConfig []byte) (*FetchResult, error) {
	token := coords["TgBotToken"]
	if token == "" && len(rawConfig) > 0 {
		var cfg TelegramConfig
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, fmt.Errorf("decode telegram config: %w", err)
		}
		token = cfg.BotToken
	}
	if token == "" {
		return nil, ErrConfigMissing
	}

	fileID := coords["TgFileId"]
	if fileID == "" {
		return nil, upstreamErr(PlatformTelegram, "incomplete coordinates", nil)
	}

	api, err := t.api(token)
	if err != nil {
		return nil, upstreamErr(PlatformTelegram, "authorize bot", err)
	}

	file, err := api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, upstreamErr(PlatformTelegram, "resolve file", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.Link(api.Token), nil)
	if err != nil {
		return nil, upstreamErr(PlatformTelegram, "build download request", err)
	}
	client := &http.Client{Timeout: t.timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, upstreamErr(PlatformTelegram, "download file", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, upstreamErr(PlatformTelegram,
			fmt.Sprintf("download file: status %d", resp.StatusCode), nil)
	}

	return &FetchResult{Body: resp.Body, ContentType: resp.Header.Get("Content-Type")}, nil
}
