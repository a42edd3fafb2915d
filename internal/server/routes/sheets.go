package routes

import (
	"strings"

	"github.com/gofiber/fiber/v3"
)

// 电子表格接口始终输出 CSV。IMPORTDATA 遇到非 200 只会显示通用错误，
// 因此上游失败时仍返回 200，并把原因写在 error 列里。

func (h *apiHandlers) sheetError(c fiber.Ctx, err error) error {
	status, message := classify(err)
	if status == 0 {
		return err
	}
	if status != fiber.StatusBadRequest {
		h.logger.WithField("action", "sheets_error").WithField("path", c.Path()).WithError(err).Warn("sheet data unavailable")
		status = fiber.StatusOK
	}
	return sendCSV(c, status, []string{"error"}, [][]string{{message}})
}

func (h *apiHandlers) sheetSubnets(c fiber.Ctx) error {
	opts, err := parseOptions(c)
	if err != nil {
		return h.sheetError(c, err)
	}
	subnets, res, err := h.svc.Subnets(c.Context(), opts.force)
	if err != nil {
		return h.sheetError(c, err)
	}
	setCacheHeaders(c, res)
	rows := make([][]string, 0, len(subnets))
	for _, s := range subnets {
		rows = append(rows, sheetSubnetRow(s))
	}
	return sendCSV(c, fiber.StatusOK, sheetSubnetHeader, rows)
}

func (h *apiHandlers) sheetPrice(c fiber.Ctx) error {
	opts, err := parseOptions(c)
	if err != nil {
		return h.sheetError(c, err)
	}
	price, res, err := h.svc.Price(c.Context(), opts.force)
	if err != nil {
		return h.sheetError(c, err)
	}
	setCacheHeaders(c, res)
	return sendCSV(c, fiber.StatusOK, sheetPriceHeader, [][]string{sheetPriceRow(price)})
}

func (h *apiHandlers) sheetPortfolio(c fiber.Ctx) error {
	opts, err := parseOptions(c)
	if err != nil {
		return h.sheetError(c, err)
	}
	address := strings.TrimSpace(c.Query("address"))
	if address == "" {
		return sendCSV(c, fiber.StatusBadRequest, []string{"error"}, [][]string{{"Missing 'address' query parameter"}})
	}
	portfolio, res, err := h.svc.Portfolio(c.Context(), address, opts.force)
	if err != nil {
		return h.sheetError(c, err)
	}
	setCacheHeaders(c, res)
	return sendCSV(c, fiber.StatusOK, portfolioHeader, [][]string{portfolioRow(portfolio)})
}

func (h *apiHandlers) sheetStakes(c fiber.Ctx) error {
	opts, err := parseOptions(c)
	if err != nil {
		return h.sheetError(c, err)
	}
	address := strings.TrimSpace(c.Query("address"))
	if address == "" {
		return sendCSV(c, fiber.StatusBadRequest, []string{"error"}, [][]string{{"Missing 'address' query parameter"}})
	}
	portfolio, res, err := h.svc.Portfolio(c.Context(), address, opts.force)
	if err != nil {
		return h.sheetError(c, err)
	}
	setCacheHeaders(c, res)
	return sendCSV(c, fiber.StatusOK, stakeHeader, stakeRows(portfolio.SubnetStakes))
}
