package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/tao-tracker/tao-tracker/internal/logging"
)

// FetchFunc 是一次阻塞的上游调用；超时由上游客户端自己控制。
type FetchFunc func(ctx context.Context) (any, error)

// Status 描述一次 Resolve 的来源。
type Status string

const (
	StatusHit   Status = "hit"
	StatusMiss  Status = "miss"
	StatusStale Status = "stale"
)

// Result 是 Resolve 的返回值。Stale 时 FetchErr 记录导致兜底的上游错误。
type Result struct {
	Value     any
	FetchedAt time.Time
	Status    Status
	FetchErr  error
}

// SlotInfo 是诊断接口输出的槽位快照。
type SlotInfo struct {
	Name      string
	FetchedAt time.Time
	Age       time.Duration
}

// Option 调整 Coordinator 的可选行为。
type Option func(*Coordinator)

// WithClock 注入时钟，测试可借此模拟时间流逝。
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSingleFlight 控制同一槽位并发 miss 是否合并为一次上游抓取，默认开启。
func WithSingleFlight(enabled bool) Option {
	return func(c *Coordinator) {
		c.singleFlight = enabled
	}
}

// WithMeterProvider 指定指标来源，默认使用 otel 全局 MeterProvider。
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(c *Coordinator) {
		if provider != nil {
			c.meterProvider = provider
		}
	}
}

// Coordinator 决定“命中缓存”还是“回源抓取”，并在回源失败时回退到旧数据。
// 自身不持有状态，全部状态都在 Store 中。
type Coordinator struct {
	store         Store
	logger        *logrus.Logger
	now           func() time.Time
	singleFlight  bool
	group         singleflight.Group
	meterProvider metric.MeterProvider
	metrics       *metrics
}

// NewCoordinator 构造协调器，进程启动时创建一次并传给所有 handler。
func NewCoordinator(store Store, logger *logrus.Logger, opts ...Option) (*Coordinator, error) {
	if store == nil {
		return nil, errors.New("cache store is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	c := &Coordinator{
		store:         store,
		logger:        logger,
		now:           time.Now,
		singleFlight:  true,
		meterProvider: otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(c)
	}

	m, err := newMetrics(c.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("init cache metrics: %w", err)
	}
	c.metrics = m
	return c, nil
}

// Resolve 返回槽位 name 的数据：
//   - forceRefresh 为 false 且槽位年龄小于 ttl 时直接返回缓存，不调用 fetch；
//   - 否则调用 fetch，成功则写入槽位并返回；
//   - fetch 失败时若槽位有旧值（不论多旧）返回旧值且不修改槽位，否则返回 ErrNoCachedData。
//
// 协调器内部不做重试。
func (c *Coordinator) Resolve(ctx context.Context, name string, ttl time.Duration, forceRefresh bool, fetch FetchFunc) (Result, error) {
	if name == "" {
		return Result{}, errors.New("slot name required")
	}
	if fetch == nil {
		return Result{}, fmt.Errorf("slot %s: fetch func required", name)
	}

	if !forceRefresh {
		if slot, ok := c.store.Get(name); ok && c.fresh(slot, ttl) {
			c.metrics.hit(ctx, name)
			c.logger.WithFields(logging.SlotFields("cache_hit", name)).
				WithField("age_seconds", c.now().Sub(slot.FetchedAt).Seconds()).
				Debug("serving cached slot")
			return Result{Value: slot.Value, FetchedAt: slot.FetchedAt, Status: StatusHit}, nil
		}
	}

	c.metrics.miss(ctx, name)
	fetched, err := c.fetch(ctx, name, fetch)
	if err == nil {
		return Result{Value: fetched.Value, FetchedAt: fetched.FetchedAt, Status: StatusMiss}, nil
	}
	// 调用方主动取消时没有人读取结果，直接返回；超时按普通失败处理，走旧值兜底。
	if errors.Is(ctx.Err(), context.Canceled) && errors.Is(err, context.Canceled) {
		return Result{}, err
	}

	if slot, ok := c.store.Get(name); ok {
		c.metrics.stale(ctx, name)
		c.logger.WithFields(logging.SlotFields("cache_stale", name)).
			WithError(err).
			WithField("fetched_at", slot.FetchedAt).
			Warn("refresh failed, serving stale slot")
		return Result{Value: slot.Value, FetchedAt: slot.FetchedAt, Status: StatusStale, FetchErr: err}, nil
	}

	c.logger.WithFields(logging.SlotFields("cache_empty", name)).
		WithError(err).
		Error("refresh failed and slot was never populated")
	return Result{}, fmt.Errorf("%w: slot %s: %w", ErrNoCachedData, name, err)
}

// Peek 返回仍在有效期内的槽位，不会触发抓取，也不计入命中指标。
func (c *Coordinator) Peek(name string, ttl time.Duration) (Result, bool) {
	slot, ok := c.store.Get(name)
	if !ok || !c.fresh(slot, ttl) {
		return Result{}, false
	}
	return Result{Value: slot.Value, FetchedAt: slot.FetchedAt, Status: StatusHit}, true
}

// Slots 返回当前所有槽位的抓取时间与年龄。
func (c *Coordinator) Slots() []SlotInfo {
	names := c.store.Names()
	now := c.now()
	result := make([]SlotInfo, 0, len(names))
	for _, name := range names {
		slot, ok := c.store.Get(name)
		if !ok {
			continue
		}
		result = append(result, SlotInfo{
			Name:      name,
			FetchedAt: slot.FetchedAt,
			Age:       now.Sub(slot.FetchedAt),
		})
	}
	return result
}

func (c *Coordinator) fresh(slot Slot, ttl time.Duration) bool {
	if ttl <= 0 || slot.FetchedAt.IsZero() {
		return false
	}
	return c.now().Sub(slot.FetchedAt) < ttl
}

// fetch 调用上游并写入槽位。开启 single-flight 时同名槽位只有一个在途抓取，
// 共享的抓取脱离发起者的取消信号，避免一个断开的客户端拖垮其它等待者。
func (c *Coordinator) fetch(ctx context.Context, name string, fn FetchFunc) (Slot, error) {
	if !c.singleFlight {
		return c.fetchAndStore(ctx, name, fn)
	}

	ch := c.group.DoChan(name, func() (any, error) {
		return c.fetchAndStore(context.WithoutCancel(ctx), name, fn)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Slot{}, res.Err
		}
		return res.Val.(Slot), nil
	case <-ctx.Done():
		return Slot{}, ctx.Err()
	}
}

func (c *Coordinator) fetchAndStore(ctx context.Context, name string, fn FetchFunc) (Slot, error) {
	started := time.Now()
	value, err := callFetch(ctx, fn)
	c.metrics.fetched(ctx, name, time.Since(started), err)
	if err != nil {
		return Slot{}, Upstream(name, err)
	}

	slot := Slot{Name: name, Value: value, FetchedAt: c.now()}
	c.store.Set(name, value, slot.FetchedAt)
	c.logger.WithFields(logging.SlotFields("cache_refresh", name)).
		WithField("took_ms", time.Since(started).Milliseconds()).
		Info("slot refreshed")
	return slot, nil
}

// callFetch 把上游解析中的 panic 转成普通错误，单次失败不能拖垮进程。
func callFetch(ctx context.Context, fn FetchFunc) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value, err = nil, fmt.Errorf("fetch panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// ResolveAs 是 Resolve 的类型化包装，载荷类型不符时返回错误而不是 panic。
func ResolveAs[T any](ctx context.Context, c *Coordinator, name string, ttl time.Duration, forceRefresh bool, fetch func(ctx context.Context) (T, error)) (T, Result, error) {
	var zero T
	res, err := c.Resolve(ctx, name, ttl, forceRefresh, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		return zero, res, err
	}
	value, ok := res.Value.(T)
	if !ok {
		return zero, res, fmt.Errorf("slot %s holds %T, want %T", name, res.Value, zero)
	}
	return value, res, nil
}
