package routes

import (
	"github.com/gofiber/fiber/v3"

	"github.com/tao-tracker/tao-tracker/internal/version"
)

// RegisterIndexRoute 在 / 输出服务说明与接口清单。
func RegisterIndexRoute(app *fiber.App) {
	if app == nil {
		return
	}
	app.Get("/", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service": "Bittensor Subnet Tracker API",
			"version": version.Version,
			"endpoints": fiber.Map{
				"health":           "/api/v1/health",
				"tao_price":        "/api/v1/tao/price",
				"all_subnets":      "/api/v1/subnets",
				"subnet_by_id":     "/api/v1/subnets/<netuid>",
				"subnet_emissions": "/api/v1/subnets/emissions",
				"wallet_portfolio": "/api/v1/wallet/<address>/portfolio",
				"wallet_stakes":    "/api/v1/wallet/<address>/stakes",
				"sheets_subnets":   "/api/v1/sheets/subnets",
				"sheets_price":     "/api/v1/sheets/price",
				"sheets_portfolio": "/api/v1/sheets/portfolio?address=<SS58>",
				"sheets_stakes":    "/api/v1/sheets/stakes?address=<SS58>",
				"current_block":    "/api/v1/block",
				"cache_slots":      "/-/slots",
			},
			"usage": fiber.Map{
				"google_sheets_subnets":   `=IMPORTDATA("https://your-api-url/api/v1/sheets/subnets")`,
				"google_sheets_portfolio": `=IMPORTDATA("https://your-api-url/api/v1/sheets/portfolio?address=5Cai...")`,
				"csv_format":              "Add ?format=csv to any /api/v1 endpoint",
				"bypass_cache":            "Add ?use_cache=false to force an upstream refresh",
			},
		})
	})
}
