package routes

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/tao-tracker/tao-tracker/internal/bittensor"
	"github.com/tao-tracker/tao-tracker/internal/cache"
	"github.com/tao-tracker/tao-tracker/internal/pricing"
	"github.com/tao-tracker/tao-tracker/internal/server"
	"github.com/tao-tracker/tao-tracker/internal/tracker"
)

// ErrInvalidRequest 表示查询参数或路径参数非法。
var ErrInvalidRequest = errors.New("invalid request")

// Tracker 是路由依赖的数据入口，*tracker.Service 实现了它。
type Tracker interface {
	Network() string
	Subnets(ctx context.Context, force bool) ([]bittensor.SubnetInfo, cache.Result, error)
	Emissions(ctx context.Context, force bool) ([]bittensor.SubnetEmission, cache.Result, error)
	Subnet(ctx context.Context, netuid uint16, force bool) (bittensor.SubnetInfo, cache.Result, error)
	Price(ctx context.Context, force bool) (pricing.TaoPrice, cache.Result, error)
	Block(ctx context.Context, force bool) (uint64, cache.Result, error)
	Portfolio(ctx context.Context, address string, force bool) (bittensor.WalletPortfolio, cache.Result, error)
	Slots() []cache.SlotInfo
}

type apiHandlers struct {
	svc    Tracker
	logger *logrus.Logger
}

// RegisterAPIRoutes 挂载 /api/v1 下的全部数据接口。
func RegisterAPIRoutes(app *fiber.App, svc Tracker, logger *logrus.Logger) {
	if app == nil || svc == nil || logger == nil {
		return
	}
	h := &apiHandlers{svc: svc, logger: logger}

	api := app.Group("/api/v1")
	api.Get("/health", h.health)
	api.Get("/tao/price", h.price)
	api.Get("/subnets", h.subnets)
	api.Get("/subnets/emissions", h.emissions)
	api.Get("/subnets/:netuid", h.subnet)
	api.Get("/wallet/:address/portfolio", h.portfolio)
	api.Get("/wallet/:address/stakes", h.stakes)
	api.Get("/block", h.block)

	api.Get("/sheets/subnets", h.sheetSubnets)
	api.Get("/sheets/price", h.sheetPrice)
	api.Get("/sheets/portfolio", h.sheetPortfolio)
	api.Get("/sheets/stakes", h.sheetStakes)
}

// requestOptions 是各接口共用的查询参数。
type requestOptions struct {
	csv   bool
	force bool
}

func parseOptions(c fiber.Ctx) (requestOptions, error) {
	var opts requestOptions
	switch format := strings.ToLower(strings.TrimSpace(c.Query("format", "json"))); format {
	case "json", "":
	case "csv":
		opts.csv = true
	default:
		return opts, fmt.Errorf("%w: format must be json or csv, got %q", ErrInvalidRequest, format)
	}

	if raw := strings.TrimSpace(c.Query("use_cache")); raw != "" {
		useCache, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, fmt.Errorf("%w: use_cache must be true or false, got %q", ErrInvalidRequest, raw)
		}
		opts.force = !useCache
	}
	return opts, nil
}

func setCacheHeaders(c fiber.Ctx, res cache.Result) {
	if res.Status != "" {
		c.Set(server.HeaderCacheStatus, string(res.Status))
	}
	if !res.FetchedAt.IsZero() {
		c.Set(server.HeaderFetchedAt, stamp(res.FetchedAt))
	}
}

// renderError 把领域错误映射为状态码：非法请求 400、未知子网 404、无可用数据 503。
// 其它错误交给全局 ErrorHandler。
func (h *apiHandlers) renderError(c fiber.Ctx, err error, asCSV bool) error {
	status, message := classify(err)
	if status == 0 {
		return err
	}
	if status >= fiber.StatusInternalServerError {
		h.logger.WithFields(logrus.Fields{
			"action":     "api_error",
			"request_id": server.RequestID(c),
			"path":       c.Path(),
		}).WithError(err).Warn("upstream data unavailable")
	}
	if asCSV {
		return sendCSV(c, status, []string{"error"}, [][]string{{message}})
	}
	return c.Status(status).JSON(fiber.Map{"error": message})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, tracker.ErrInvalidAddress):
		return fiber.StatusBadRequest, err.Error()
	case errors.Is(err, tracker.ErrSubnetNotFound):
		return fiber.StatusNotFound, err.Error()
	case errors.Is(err, cache.ErrNoCachedData), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusServiceUnavailable, "upstream unavailable and no cached data, retry later"
	default:
		return 0, ""
	}
}

func (h *apiHandlers) health(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"service": "tao-tracker",
		"network": h.svc.Network(),
	})
}

func (h *apiHandlers) price(c fiber.Ctx) error {
	opts, err := parseOptions(c)
	if err != nil {
		return h.renderError(c, err, false)
	}
	price, res, err := h.svc.Price(c.Context(), opts.force)
	if err != nil {
		return h.renderError(c, err, opts.csv)
	}
	setCacheHeaders(c, res)
	if opts.csv {
		return sendCSV(c, fiber.StatusOK, priceHeader, [][]string{priceRow(price)})
	}
	return c.JSON(price)
}

func (h *apiHandlers) subnets(c fiber.Ctx) error {
	opts, err := parseOptions(c)
	if err != nil {
		return h.renderError(c, err, false)
	}
	subnets, res, err := h.svc.Subnets(c.Context(), opts.force)
	if err != nil {
		return h.renderError(c, err, opts.csv)
	}
	setCacheHeaders(c, res)
	if opts.csv {
		rows := make([][]string, 0, len(subnets))
		for _, s := range subnets {
			rows = append(rows, subnetRow(s))
		}
		return sendCSV(c, fiber.StatusOK, subnetHeader, rows)
	}
	return c.JSON(fiber.Map{"count": len(subnets), "subnets": subnets})
}

func (h *apiHandlers) emissions(c fiber.Ctx) error {
	opts, err := parseOptions(c)
	if err != nil {
		return h.renderError(c, err, false)
	}
	emissions, res, err := h.svc.Emissions(c.Context(), opts.force)
	if err != nil {
		return h.renderError(c, err, opts.csv)
	}
	setCacheHeaders(c, res)
	if opts.csv {
		rows := make([][]string, 0, len(emissions))
		for _, e := range emissions {
			rows = append(rows, emissionRow(e))
		}
		return sendCSV(c, fiber.StatusOK, emissionHeader, rows)
	}
	return c.JSON(fiber.Map{"count": len(emissions), "emissions": emissions})
}

func (h *apiHandlers) subnet(c fiber.Ctx) error {
	opts, err := parseOptions(c)
	if err != nil {
		return h.renderError(c, err, false)
	}
	raw := c.Params("netuid")
	netuid, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		return h.renderError(c, fmt.Errorf("%w: netuid must be an integer between 0 and 65535, got %q", ErrInvalidRequest, raw), opts.csv)
	}
	subnet, res, err := h.svc.Subnet(c.Context(), uint16(netuid), opts.force)
	if err != nil {
		return h.renderError(c, err, opts.csv)
	}
	setCacheHeaders(c, res)
	if opts.csv {
		return sendCSV(c, fiber.StatusOK, subnetHeader, [][]string{subnetRow(subnet)})
	}
	return c.JSON(subnet)
}

func (h *apiHandlers) portfolio(c fiber.Ctx) error {
	opts, err := parseOptions(c)
	if err != nil {
		return h.renderError(c, err, false)
	}
	portfolio, res, err := h.svc.Portfolio(c.Context(), strings.TrimSpace(c.Params("address")), opts.force)
	if err != nil {
		return h.renderError(c, err, opts.csv)
	}
	setCacheHeaders(c, res)
	if opts.csv {
		return sendCSV(c, fiber.StatusOK, portfolioHeader, [][]string{portfolioRow(portfolio)})
	}
	return c.JSON(portfolio)
}

func (h *apiHandlers) stakes(c fiber.Ctx) error {
	opts, err := parseOptions(c)
	if err != nil {
		return h.renderError(c, err, false)
	}
	portfolio, res, err := h.svc.Portfolio(c.Context(), strings.TrimSpace(c.Params("address")), opts.force)
	if err != nil {
		return h.renderError(c, err, opts.csv)
	}
	setCacheHeaders(c, res)
	if opts.csv {
		return sendCSV(c, fiber.StatusOK, stakeHeader, stakeRows(portfolio.SubnetStakes))
	}
	return c.JSON(fiber.Map{
		"coldkey":   portfolio.Coldkey,
		"count":     len(portfolio.SubnetStakes),
		"stakes":    portfolio.SubnetStakes,
		"timestamp": portfolio.Timestamp,
	})
}

func (h *apiHandlers) block(c fiber.Ctx) error {
	opts, err := parseOptions(c)
	if err != nil {
		return h.renderError(c, err, false)
	}
	block, res, err := h.svc.Block(c.Context(), opts.force)
	if err != nil {
		return h.renderError(c, err, opts.csv)
	}
	setCacheHeaders(c, res)
	if opts.csv {
		return sendCSV(c, fiber.StatusOK, []string{"block", "network"}, [][]string{{strconv.FormatUint(block, 10), h.svc.Network()}})
	}
	return c.JSON(fiber.Map{"block": block, "network": h.svc.Network()})
}

func stakeRows(stakes []bittensor.SubnetStake) [][]string {
	rows := make([][]string, 0, len(stakes))
	for _, s := range stakes {
		rows = append(rows, stakeRow(s))
	}
	return rows
}
