package routes

import (
	"bytes"
	"encoding/csv"
	"math"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/tao-tracker/tao-tracker/internal/bittensor"
	"github.com/tao-tracker/tao-tracker/internal/pricing"
)

const csvContentType = "text/csv; charset=utf-8"

func sendCSV(c fiber.Ctx, status int, header []string, rows [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, csvContentType)
	return c.Status(status).Send(buf.Bytes())
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

var subnetHeader = []string{
	"netuid", "name", "symbol", "owner", "emission", "emission_percentage", "tempo", "neurons",
	"registration_cost", "alpha_price", "tao_in_reserve", "alpha_in_reserve", "subnet_tao", "timestamp",
}

func subnetRow(s bittensor.SubnetInfo) []string {
	return []string{
		strconv.Itoa(int(s.Netuid)), s.Name, s.Symbol, s.Owner, num(s.Emission), num(s.EmissionPercentage),
		strconv.Itoa(int(s.Tempo)), strconv.Itoa(int(s.Neurons)), num(s.RegistrationCost), num(s.AlphaPrice),
		num(s.TaoInReserve), num(s.AlphaInReserve), num(s.SubnetTao), stamp(s.Timestamp),
	}
}

var sheetSubnetHeader = []string{
	"netuid", "name", "symbol", "emission_pct", "neurons", "alpha_price",
	"tao_in_reserve", "alpha_in_reserve", "subnet_tao", "reg_cost_tao",
}

func sheetSubnetRow(s bittensor.SubnetInfo) []string {
	return []string{
		strconv.Itoa(int(s.Netuid)), s.Name, s.Symbol, num(s.EmissionPercentage), strconv.Itoa(int(s.Neurons)),
		num(s.AlphaPrice), num(s.TaoInReserve), num(s.AlphaInReserve), num(s.SubnetTao), num(s.RegistrationCost),
	}
}

var emissionHeader = []string{"netuid", "name", "emission_percentage"}

func emissionRow(e bittensor.SubnetEmission) []string {
	return []string{strconv.Itoa(int(e.Netuid)), e.Name, num(e.EmissionPercentage)}
}

var priceHeader = []string{
	"price_usd", "price_aud", "price_btc", "market_cap_usd", "volume_24h_usd", "change_24h_percent", "source", "timestamp",
}

func priceRow(p pricing.TaoPrice) []string {
	return []string{
		num(p.PriceUSD), num(pricing.Value(p.PriceAUD)), num(pricing.Value(p.PriceBTC)),
		num(pricing.Value(p.MarketCapUSD)), num(pricing.Value(p.Volume24hUSD)),
		num(pricing.Value(p.Change24hPercent)), p.Source, stamp(p.Timestamp),
	}
}

var sheetPriceHeader = []string{"price_usd", "price_aud", "change_24h_pct", "market_cap", "volume_24h", "timestamp"}

func sheetPriceRow(p pricing.TaoPrice) []string {
	change := math.Round(pricing.Value(p.Change24hPercent)*100) / 100
	return []string{
		num(p.PriceUSD), num(pricing.Value(p.PriceAUD)), num(change),
		num(pricing.Value(p.MarketCapUSD)), num(pricing.Value(p.Volume24hUSD)), stamp(p.Timestamp),
	}
}

var portfolioHeader = []string{
	"coldkey", "free_balance_tao", "free_balance_usd", "total_staked_tao", "total_alpha_value_tao",
	"total_portfolio_tao", "total_portfolio_usd", "tao_price_usd", "timestamp",
}

func portfolioRow(p bittensor.WalletPortfolio) []string {
	return []string{
		p.Coldkey, num(p.FreeBalanceTao), num(p.FreeBalanceUSD), num(p.TotalStakedTao), num(p.TotalAlphaValueTao),
		num(p.TotalPortfolioTao), num(p.TotalPortfolioUSD), num(p.TaoPriceUSD), stamp(p.Timestamp),
	}
}

var stakeHeader = []string{
	"netuid", "subnet_name", "symbol", "hotkey", "tao_staked", "alpha_held", "alpha_price", "alpha_value_tao", "alpha_value_usd",
}

func stakeRow(s bittensor.SubnetStake) []string {
	return []string{
		strconv.Itoa(int(s.Netuid)), s.SubnetName, s.Symbol, s.Hotkey, num(s.TaoStaked), num(s.AlphaHeld),
		num(s.AlphaPrice), num(s.AlphaValueTao), num(s.AlphaValueUSD),
	}
}
