package notify

import (
	"context"
	"fmt"
	"strings"

	"mt-gateway/src/logger"
	"mt-gateway/src/models"
	"mt-gateway/src/network"

	jsoniter "github.com/json-iterator/go"
)

// TelegramSender posts messages to a chat through the Bot API.
type TelegramSender struct {
	url     string
	chatID  string
	network *network.AsyncNetworkManager
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func NewTelegramSender(cfg models.MNotifierConfig, netCfg models.MNetworkConfig, log *logger.Logger) *TelegramSender {
	netCfg.RequestTimeout = cfg.TimeoutSeconds
	netCfg.MaxRetries = 0 // the breaker counts each attempt

	nm := network.NewAsyncNetworkManager(netCfg, log)
	nm.WithRateLimit(cfg.MessagesPerSec, 1)

	return &TelegramSender{
		url:     fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(cfg.APIBase, "/"), cfg.BotToken),
		chatID:  cfg.ChatID,
		network: nm,
	}
}

func (t *TelegramSender) Send(ctx context.Context, text string) error {
	body, err := t.network.PostForm(ctx, t.url, map[string]string{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return err
	}

	var resp telegramResponse
	if err := jsoniter.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decode telegram response: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("telegram refused message: %s", resp.Description)
	}
	return nil
}

// -----------------------------------------------------------------------------

// LogSender writes messages to the log; used when no chat is configured.
type LogSender struct {
	Logger *logger.Logger
}

func (l LogSender) Send(ctx context.Context, text string) error {
	l.Logger.Info("notification: %s", strings.ReplaceAll(text, "\n", " | "))
	return nil
}
