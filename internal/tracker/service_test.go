package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tao-tracker/tao-tracker/internal/bittensor"
	"github.com/tao-tracker/tao-tracker/internal/cache"
	"github.com/tao-tracker/tao-tracker/internal/config"
	"github.com/tao-tracker/tao-tracker/internal/logging"
	"github.com/tao-tracker/tao-tracker/internal/pricing"
)

const aliceAddress = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"

var errChainDown = errors.New("chain down")

type fakeChain struct {
	mu            sync.Mutex
	subnets       []bittensor.SubnetInfo
	subnetsErr    error
	block         uint64
	subnetCalls   int
	singleCalls   int
	walletCalls   int
	lastNames     map[uint16]string
	lastTaoUSD    float64
	lastSubnetLen int
}

func (f *fakeChain) FetchSubnets(ctx context.Context, names map[uint16]string) ([]bittensor.SubnetInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subnetCalls++
	f.lastNames = names
	if f.subnetsErr != nil {
		return nil, f.subnetsErr
	}
	return append([]bittensor.SubnetInfo(nil), f.subnets...), nil
}

func (f *fakeChain) FetchSubnet(ctx context.Context, netuid uint16, names map[uint16]string) (bittensor.SubnetInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.singleCalls++
	for _, s := range f.subnets {
		if s.Netuid == netuid {
			return s, nil
		}
	}
	return bittensor.SubnetInfo{}, fmt.Errorf("%w: netuid %d", bittensor.ErrSubnetNotFound, netuid)
}

func (f *fakeChain) FetchBlock(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.block, nil
}

func (f *fakeChain) FetchPortfolio(ctx context.Context, coldkey string, taoUSD float64, subnets []bittensor.SubnetInfo) (bittensor.WalletPortfolio, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.walletCalls++
	f.lastTaoUSD = taoUSD
	f.lastSubnetLen = len(subnets)
	return bittensor.WalletPortfolio{Coldkey: coldkey, TaoPriceUSD: taoUSD, SubnetStakes: []bittensor.SubnetStake{}}, nil
}

func (f *fakeChain) calls() (subnets, single, wallet int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subnetCalls, f.singleCalls, f.walletCalls
}

type fakePrices struct {
	price pricing.TaoPrice
	err   error
	calls int
}

func (f *fakePrices) FetchPrice(ctx context.Context) (pricing.TaoPrice, error) {
	f.calls++
	return f.price, f.err
}

type fakeNames struct {
	names map[uint16]string
	err   error
}

func (f *fakeNames) Fetch(ctx context.Context) (map[uint16]string, error) {
	return f.names, f.err
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	svc    *Service
	chain  *fakeChain
	prices *fakePrices
	names  *fakeNames
	clock  *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	slots, err := cache.NewCoordinator(cache.NewMemoryStore(), logging.Discard(), cache.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("coordinator: %v", err)
	}
	wallets, err := cache.NewCoordinator(cache.NewMemoryStore(), logging.Discard(), cache.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("coordinator: %v", err)
	}

	chain := &fakeChain{
		subnets: []bittensor.SubnetInfo{
			{Netuid: 1, Name: "apex", EmissionPercentage: 60},
			{Netuid: 3, Name: "templar", EmissionPercentage: 40},
		},
		block: 4_000_000,
	}
	prices := &fakePrices{price: pricing.TaoPrice{PriceUSD: 400, Source: "coingecko"}}
	names := &fakeNames{names: map[uint16]string{1: "apex"}}

	svc, err := New(Options{
		Logger:  logging.Discard(),
		Network: "finney",
		TTLs: TTLs{
			Subnets: 300 * time.Second,
			Names:   24 * time.Hour,
			Price:   30 * time.Second,
			Block:   12 * time.Second,
			Wallet:  120 * time.Second,
		},
		Slots:   slots,
		Wallets: wallets,
		Chain:   chain,
		Names:   names,
		Prices:  prices,
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return &fixture{svc: svc, chain: chain, prices: prices, names: names, clock: clock}
}

func TestSubnetsServedFromCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, res, err := f.svc.Subnets(ctx, false)
	if err != nil || len(first) != 2 || res.Status != cache.StatusMiss {
		t.Fatalf("first call: %d subnets, %s, %v", len(first), res.Status, err)
	}
	f.clock.Advance(time.Minute)
	_, res, err = f.svc.Subnets(ctx, false)
	if err != nil || res.Status != cache.StatusHit {
		t.Fatalf("second call: %s, %v", res.Status, err)
	}
	if subnets, _, _ := f.chain.calls(); subnets != 1 {
		t.Fatalf("expected 1 chain fetch, got %d", subnets)
	}
	if f.chain.lastNames[1] != "apex" {
		t.Fatalf("names should be passed to the chain fetcher, got %v", f.chain.lastNames)
	}
}

func TestSubnetsStaleAfterFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, _, err := f.svc.Subnets(ctx, false); err != nil {
		t.Fatalf("warm-up: %v", err)
	}

	f.chain.mu.Lock()
	f.chain.subnetsErr = errChainDown
	f.chain.mu.Unlock()
	f.clock.Advance(10 * time.Minute)

	subnets, res, err := f.svc.Subnets(ctx, false)
	if err != nil {
		t.Fatalf("stale fallback should not fail: %v", err)
	}
	if res.Status != cache.StatusStale || len(subnets) != 2 || !errors.Is(res.FetchErr, errChainDown) {
		t.Fatalf("expected stale subnets, got %s (%d) fetchErr=%v", res.Status, len(subnets), res.FetchErr)
	}
}

func TestSubnetsNoCachedData(t *testing.T) {
	f := newFixture(t)
	f.chain.subnetsErr = errChainDown

	_, _, err := f.svc.Subnets(context.Background(), false)
	if !errors.Is(err, cache.ErrNoCachedData) || !errors.Is(err, cache.ErrUpstreamUnavailable) {
		t.Fatalf("expected no-cached-data error, got %v", err)
	}
}

func TestEmissionsShareSubnetsSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, _, err := f.svc.Subnets(ctx, false); err != nil {
		t.Fatalf("warm-up: %v", err)
	}

	rows, res, err := f.svc.Emissions(ctx, false)
	if err != nil || res.Status != cache.StatusHit {
		t.Fatalf("Emissions: %s, %v", res.Status, err)
	}
	if len(rows) != 2 || rows[1].Netuid != 3 || rows[1].EmissionPercentage != 40 {
		t.Fatalf("unexpected rows %+v", rows)
	}
	if subnets, _, _ := f.chain.calls(); subnets != 1 {
		t.Fatalf("emissions should not trigger another fetch, got %d", subnets)
	}
}

func TestSubnetUsesFreshSubnetsSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, _, err := f.svc.Subnets(ctx, false); err != nil {
		t.Fatalf("warm-up: %v", err)
	}

	subnet, res, err := f.svc.Subnet(ctx, 3, false)
	if err != nil || subnet.Name != "templar" || res.Status != cache.StatusHit {
		t.Fatalf("Subnet(3) = %+v, %s, %v", subnet, res.Status, err)
	}
	if _, single, _ := f.chain.calls(); single != 0 {
		t.Fatalf("single fetch should not run, got %d", single)
	}
}

func TestSubnetFallsBackToSingleFetch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	subnet, res, err := f.svc.Subnet(ctx, 1, false)
	if err != nil || subnet.Netuid != 1 || res.Status != cache.StatusMiss {
		t.Fatalf("Subnet(1) = %+v, %s, %v", subnet, res.Status, err)
	}
	if _, _, err := f.svc.Subnet(ctx, 1, false); err != nil {
		t.Fatalf("cached Subnet(1): %v", err)
	}
	if _, single, _ := f.chain.calls(); single != 1 {
		t.Fatalf("expected one single fetch, got %d", single)
	}

	if _, _, err := f.svc.Subnet(ctx, 99, false); !errors.Is(err, ErrSubnetNotFound) {
		t.Fatalf("expected ErrSubnetNotFound, got %v", err)
	}
}

func TestSubnetAbsentFromFreshSlotSkipsFetch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, _, err := f.svc.Subnets(ctx, false); err != nil {
		t.Fatalf("warm-up: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, _, err := f.svc.Subnet(ctx, 99, false); !errors.Is(err, ErrSubnetNotFound) {
			t.Fatalf("expected ErrSubnetNotFound, got %v", err)
		}
	}
	if _, single, _ := f.chain.calls(); single != 0 {
		t.Fatalf("inactive netuid in a fresh list must not hit the chain, got %d single fetches", single)
	}

	f.clock.Advance(301 * time.Second)
	if _, _, err := f.svc.Subnet(ctx, 99, false); !errors.Is(err, ErrSubnetNotFound) {
		t.Fatalf("expected ErrSubnetNotFound after expiry, got %v", err)
	}
	if _, single, _ := f.chain.calls(); single != 1 {
		t.Fatalf("expired list should fall back to a single fetch, got %d", single)
	}
}

func TestPriceAndBlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	price, _, err := f.svc.Price(ctx, false)
	if err != nil || price.PriceUSD != 400 {
		t.Fatalf("Price = %+v, %v", price, err)
	}
	if _, _, err := f.svc.Price(ctx, true); err != nil {
		t.Fatalf("forced Price: %v", err)
	}
	if f.prices.calls != 2 {
		t.Fatalf("force should refetch, got %d calls", f.prices.calls)
	}

	block, _, err := f.svc.Block(ctx, false)
	if err != nil || block != 4_000_000 {
		t.Fatalf("Block = %d, %v", block, err)
	}
	if f.svc.Network() != "finney" {
		t.Fatalf("unexpected network %q", f.svc.Network())
	}
}

func TestPortfolioRejectsInvalidAddress(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.Portfolio(context.Background(), "bogus", false)
	if !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
	if _, _, wallet := f.chain.calls(); wallet != 0 {
		t.Fatalf("invalid address should not reach the chain")
	}
	for _, slot := range f.svc.Slots() {
		if slot.Name == WalletSlotPrefix+"bogus" {
			t.Fatalf("invalid address should not create a slot")
		}
	}
}

func TestPortfolioUsesPriceAndSubnets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	portfolio, res, err := f.svc.Portfolio(ctx, aliceAddress, false)
	if err != nil || res.Status != cache.StatusMiss {
		t.Fatalf("Portfolio: %s, %v", res.Status, err)
	}
	if portfolio.Coldkey != aliceAddress || f.chain.lastTaoUSD != 400 || f.chain.lastSubnetLen != 2 {
		t.Fatalf("unexpected inputs: price=%v subnets=%d", f.chain.lastTaoUSD, f.chain.lastSubnetLen)
	}

	if _, res, _ := f.svc.Portfolio(ctx, aliceAddress, false); res.Status != cache.StatusHit {
		t.Fatalf("second call should hit the wallet slot, got %s", res.Status)
	}

	found := false
	for _, slot := range f.svc.Slots() {
		if slot.Name == "wallet:"+aliceAddress {
			found = true
		}
	}
	if !found {
		t.Fatalf("wallet slot missing from %+v", f.svc.Slots())
	}
}

func TestPortfolioSurvivesPriceOutage(t *testing.T) {
	f := newFixture(t)
	f.prices.err = errors.New("429 too many requests")

	portfolio, _, err := f.svc.Portfolio(context.Background(), aliceAddress, false)
	if err != nil {
		t.Fatalf("Portfolio should not fail on price outage: %v", err)
	}
	if portfolio.TaoPriceUSD != 0 || f.chain.lastTaoUSD != 0 {
		t.Fatalf("expected zero price valuation, got %v", portfolio.TaoPriceUSD)
	}
}

func TestSubnetNamesFailureFallsBack(t *testing.T) {
	f := newFixture(t)
	f.names.err = errors.New("github unavailable")

	if _, _, err := f.svc.Subnets(context.Background(), false); err != nil {
		t.Fatalf("Subnets should not depend on names: %v", err)
	}
	if f.chain.lastNames != nil {
		t.Fatalf("expected nil names, got %v", f.chain.lastNames)
	}
}

func TestNewValidatesDependencies(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatalf("expected error for missing dependencies")
	}
}

func TestTTLsFromConfig(t *testing.T) {
	cfg := &config.Config{
		SubnetCacheTTL: config.Duration(5 * time.Minute),
		PriceCacheTTL:  config.Duration(30 * time.Second),
		WalletCacheTTL: config.Duration(2 * time.Minute),
		BlockCacheTTL:  config.Duration(12 * time.Second),
		NamesCacheTTL:  config.Duration(24 * time.Hour),
	}
	ttls := TTLsFromConfig(cfg)
	if ttls.Subnets != 5*time.Minute || ttls.Price != 30*time.Second || ttls.Wallet != 2*time.Minute || ttls.Block != 12*time.Second || ttls.Names != 24*time.Hour {
		t.Fatalf("unexpected ttls %+v", ttls)
	}
}
