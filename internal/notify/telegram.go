package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"trades-signal/internal/config"
)

// TelegramSender 通过 Bot API 发送纯文本消息，并按配置限速。
type TelegramSender struct {
	baseURL string
	token   string
	client  *http.Client
	limiter *rate.Limiter
}

// NewTelegramSender 创建 Telegram 发送器。
func NewTelegramSender(cfg config.TelegramConfig) (*TelegramSender, error) {
	if cfg.Token == "" {
		return nil, errors.New("notify: telegram token 不能为空")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Limit(cfg.SendRate)
	if cfg.SendRate <= 0 {
		limit = rate.Inf
	}

	return &TelegramSender{
		baseURL: baseURL,
		token:   cfg.Token,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

type telegramResponse struct {
	OK          bool            `json:"ok"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// Verify 调用 getMe 校验 token，返回机器人用户名。
func (t *TelegramSender) Verify(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint("getMe"), nil)
	if err != nil {
		return "", err
	}
	result, err := t.do(req)
	if err != nil {
		return "", err
	}

	var me struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(result.Result, &me); err != nil {
		return "", fmt.Errorf("notify: 解析 getMe 结果失败: %w", err)
	}
	return me.Username, nil
}

// Send 向单个会话发送文本。
func (t *TelegramSender) Send(ctx context.Context, chatID int64, text string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(map[string]interface{}{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	_, err = t.do(req)
	return err
}

func (t *TelegramSender) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", t.baseURL, t.token, method)
}

func (t *TelegramSender) do(req *http.Request) (telegramResponse, error) {
	resp, err := t.client.Do(req)
	if err != nil {
		return telegramResponse{}, fmt.Errorf("notify: 请求 telegram 失败: %w", err)
	}
	defer resp.Body.Close()

	var result telegramResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&result)
	if resp.StatusCode != http.StatusOK || decodeErr != nil || !result.OK {
		return result, fmt.Errorf("notify: telegram 返回错误 status=%d code=%d: %s",
			resp.StatusCode, result.ErrorCode, result.Description)
	}
	return result, nil
}
