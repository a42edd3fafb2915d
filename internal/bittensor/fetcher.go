package bittensor

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tao-tracker/tao-tracker/internal/substrate"
)

const subtensorPallet = "SubtensorModule"

// Chain 是 Fetcher 需要的链上读取能力，*substrate.Client 实现了它。
type Chain interface {
	BlockNumber(ctx context.Context) (uint64, error)
	GetStorage(ctx context.Context, key []byte) ([]byte, bool, error)
	QueryStorage(ctx context.Context, keys [][]byte) ([]substrate.KeyValue, error)
	QueryMap(ctx context.Context, prefix []byte) ([]substrate.KeyValue, error)
}

// Fetcher 从 subtensor 链读取子网、区块与钱包数据。它不缓存任何东西。
type Fetcher struct {
	chain  Chain
	logger *logrus.Logger
	now    func() time.Time
}

// NewFetcher 构造 Fetcher。
func NewFetcher(chain Chain, logger *logrus.Logger) (*Fetcher, error) {
	if chain == nil {
		return nil, errors.New("chain client is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Fetcher{chain: chain, logger: logger, now: time.Now}, nil
}

// FetchBlock 返回当前区块高度。
func (f *Fetcher) FetchBlock(ctx context.Context) (uint64, error) {
	return f.chain.BlockNumber(ctx)
}
