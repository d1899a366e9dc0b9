package exchange

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"trades-signal/internal/config"
)

// PositionFetcher 抽象按交易对拉取仓位快照的能力。
type PositionFetcher interface {
	FetchPositions(ctx context.Context, symbol string) ([]PositionRow, error)
}

// PositionService 在限速下执行成交后的仓位复核与启动快照。
type PositionService struct {
	fetcher     PositionFetcher
	limiter     *rate.Limiter
	parallelism int
	logger      *zap.Logger
}

// NewPositionService 创建仓位复核服务。
func NewPositionService(fetcher PositionFetcher, cfg config.ExchangeConfig, logger *zap.Logger) *PositionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Limit(cfg.RefetchRate)
	if cfg.RefetchRate <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RefetchBurst
	if burst <= 0 {
		burst = 1
	}
	return &PositionService{
		fetcher:     fetcher,
		limiter:     rate.NewLimiter(limit, burst),
		parallelism: burst,
		logger:      logger,
	}
}

// Snapshot 拉取结算币下全部仓位，用于启动对账。
func (s *PositionService) Snapshot(ctx context.Context) ([]PositionRow, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.fetcher.FetchPositions(ctx, "")
}

// FetchSymbols 按交易对并行复核仓位。单个交易对失败只记录日志，
// 结果按交易对字母序返回，保证下游处理顺序确定。
func (s *PositionService) FetchSymbols(ctx context.Context, symbols []string) []PositionRow {
	unique := dedupeSymbols(symbols)
	if len(unique) == 0 {
		return nil
	}

	var mu sync.Mutex
	bySym := make(map[string][]PositionRow, len(unique))

	var group errgroup.Group
	group.SetLimit(s.parallelism)

	for _, symbol := range unique {
		group.Go(func() error {
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
			rows, err := s.fetcher.FetchPositions(ctx, symbol)
			if err != nil {
				s.logger.Warn("仓位复核失败", zap.String("symbol", symbol), zap.Error(err))
				return nil
			}
			mu.Lock()
			bySym[symbol] = rows
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		s.logger.Warn("仓位复核被中断", zap.Error(err))
	}

	var out []PositionRow
	for _, symbol := range unique {
		out = append(out, bySym[symbol]...)
	}
	return out
}

func dedupeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		if symbol == "" {
			continue
		}
		if _, ok := seen[symbol]; ok {
			continue
		}
		seen[symbol] = struct{}{}
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}
