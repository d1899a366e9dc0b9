package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"trades-signal/internal/config"
)

const (
	mainnetPrivateStream = "wss://stream.bybit.com/v5/private"
	testnetPrivateStream = "wss://stream-testnet.bybit.com/v5/private"
)

// Stream 是 Bybit v5 私有账户流客户端，断线后自动重连并重新鉴权订阅。
// 回调 emit 在读协程中被调用，只应把消息投递到队列。
type Stream struct {
	url           string
	apiKey        string
	apiSecret     string
	pingInterval  time.Duration
	reconnectWait time.Duration
	topics        []Topic

	emit   func(Message)
	logger *zap.Logger
	dialer *websocket.Dialer
	now    func() time.Time

	writeMu sync.Mutex
}

// NewStream 创建私有流客户端。
func NewStream(cfg config.ExchangeConfig, emit func(Message), logger *zap.Logger) *Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	url := cfg.StreamURL
	if url == "" {
		url = mainnetPrivateStream
		if cfg.UseTestnet {
			url = testnetPrivateStream
		}
	}
	ping := cfg.PingInterval
	if ping <= 0 {
		ping = 20 * time.Second
	}
	reconnect := cfg.Reconnect
	if reconnect <= 0 {
		reconnect = 5 * time.Second
	}
	return &Stream{
		url:           url,
		apiKey:        cfg.APIKey,
		apiSecret:     cfg.APISecret,
		pingInterval:  ping,
		reconnectWait: reconnect,
		topics:        []Topic{TopicPosition, TopicExecution},
		emit:          emit,
		logger:        logger,
		dialer:        websocket.DefaultDialer,
		now:           time.Now,
	}
}

// Run 阻塞运行直到 ctx 结束。鉴权被拒绝时返回 ErrAuthRejected。
func (s *Stream) Run(ctx context.Context) error {
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrAuthRejected) {
			return err
		}
		s.logger.Warn("私有流连接中断，准备重连",
			zap.String("url", s.url),
			zap.Duration("wait", s.reconnectWait),
			zap.Error(err),
		)

		timer := time.NewTimer(s.reconnectWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (s *Stream) session(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("exchange: 连接私有流失败: %w", err)
	}

	sessCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		_ = conn.Close()
		wg.Wait()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-sessCtx.Done()
		_ = conn.Close()
	}()

	if err := s.authenticate(conn); err != nil {
		return err
	}
	if err := s.subscribe(conn); err != nil {
		return err
	}
	s.logger.Info("私有流已连接", zap.String("url", s.url), zap.Any("topics", s.topics))

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.heartbeat(sessCtx, conn)
	}()

	readWait := 3 * s.pingInterval
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("exchange: 读取私有流失败: %w", err)
		}
		if err := s.handle(payload); err != nil {
			return err
		}
	}
}

func (s *Stream) authenticate(conn *websocket.Conn) error {
	expires := s.now().Add(10 * time.Second).UnixMilli()
	return s.send(conn, map[string]interface{}{
		"op":   "auth",
		"args": []interface{}{s.apiKey, expires, signRealtime(s.apiSecret, expires)},
	})
}

func (s *Stream) subscribe(conn *websocket.Conn) error {
	args := make([]string, 0, len(s.topics))
	for _, topic := range s.topics {
		args = append(args, string(topic))
	}
	return s.send(conn, map[string]interface{}{
		"op":   "subscribe",
		"args": args,
	})
}

func (s *Stream) heartbeat(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.send(conn, map[string]string{"op": "ping"}); err != nil {
				s.logger.Warn("私有流心跳发送失败", zap.Error(err))
				_ = conn.Close()
				return
			}
		}
	}
}

func (s *Stream) send(conn *websocket.Conn, message interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(s.pingInterval))
	if err := conn.WriteJSON(message); err != nil {
		return fmt.Errorf("exchange: 写入私有流失败: %w", err)
	}
	return nil
}

func (s *Stream) handle(payload []byte) error {
	var env wireEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		s.logger.Warn("私有流消息无法解析，已忽略", zap.Error(err))
		return nil
	}

	switch env.Op {
	case "":
	case "auth":
		if env.Success != nil && !*env.Success {
			return fmt.Errorf("%w: %s", ErrAuthRejected, env.RetMsg)
		}
		s.logger.Info("私有流鉴权成功")
		return nil
	case "subscribe":
		if env.Success != nil && !*env.Success {
			s.logger.Error("私有流订阅失败", zap.String("ret_msg", env.RetMsg))
		}
		return nil
	default:
		return nil
	}

	msg, ok, err := DecodeMessage(payload, s.now())
	if err != nil {
		s.logger.Warn("私有流推送解析失败", zap.String("topic", env.Topic), zap.Error(err))
		return nil
	}
	if !ok {
		s.logger.Debug("忽略未订阅主题", zap.String("topic", env.Topic))
		return nil
	}
	if s.emit != nil {
		s.emit(msg)
	}
	return nil
}

// signRealtime 生成 Bybit 私有流鉴权签名：HMAC-SHA256("GET/realtime"+expires)。
func signRealtime(secret string, expires int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("GET/realtime%d", expires)))
	return hex.EncodeToString(mac.Sum(nil))
}
