package bittensor

import (
	"errors"
	"math"
	"time"
)

// ErrSubnetNotFound 表示请求的 netuid 当前不是活跃子网。
var ErrSubnetNotFound = errors.New("subnet not found")

// SubnetInfo 是单个子网的快照，金额均以 TAO 计。
type SubnetInfo struct {
	Netuid             uint16    `json:"netuid"`
	Name               string    `json:"name"`
	Symbol             string    `json:"symbol"`
	Owner              string    `json:"owner"`
	Emission           float64   `json:"emission"`
	EmissionPercentage float64   `json:"emission_percentage"`
	Tempo              uint16    `json:"tempo"`
	Neurons            uint16    `json:"neurons"`
	RegistrationCost   float64   `json:"registration_cost"`
	AlphaPrice         float64   `json:"alpha_price"`
	TaoInReserve       float64   `json:"tao_in_reserve"`
	AlphaInReserve     float64   `json:"alpha_in_reserve"`
	SubnetTao          float64   `json:"subnet_tao"`
	Timestamp          time.Time `json:"timestamp"`
}

// SubnetEmission 是 emissions 视图中的一行。
type SubnetEmission struct {
	Netuid             uint16  `json:"netuid"`
	Name               string  `json:"name"`
	EmissionPercentage float64 `json:"emission_percentage"`
}

// Emissions 把子网列表投影为 emissions 视图，顺序与输入一致。
func Emissions(subnets []SubnetInfo) []SubnetEmission {
	out := make([]SubnetEmission, 0, len(subnets))
	for _, s := range subnets {
		out = append(out, SubnetEmission{Netuid: s.Netuid, Name: s.Name, EmissionPercentage: s.EmissionPercentage})
	}
	return out
}

// SubnetStake 是钱包在单个子网上的 alpha 持仓。
type SubnetStake struct {
	Netuid        uint16  `json:"netuid"`
	SubnetName    string  `json:"subnet_name"`
	Symbol        string  `json:"symbol"`
	Hotkey        string  `json:"hotkey"`
	TaoStaked     float64 `json:"tao_staked"`
	AlphaHeld     float64 `json:"alpha_held"`
	AlphaPrice    float64 `json:"alpha_price"`
	AlphaValueTao float64 `json:"alpha_value_tao"`
	AlphaValueUSD float64 `json:"alpha_value_usd"`
}

// WalletPortfolio 汇总 coldkey 的余额与全部子网持仓。
type WalletPortfolio struct {
	Coldkey            string        `json:"coldkey"`
	FreeBalanceTao     float64       `json:"free_balance_tao"`
	FreeBalanceUSD     float64       `json:"free_balance_usd"`
	TotalStakedTao     float64       `json:"total_staked_tao"`
	TotalAlphaValueTao float64       `json:"total_alpha_value_tao"`
	TotalPortfolioTao  float64       `json:"total_portfolio_tao"`
	TotalPortfolioUSD  float64       `json:"total_portfolio_usd"`
	TaoPriceUSD        float64       `json:"tao_price_usd"`
	SubnetStakes       []SubnetStake `json:"subnet_stakes"`
	Timestamp          time.Time     `json:"timestamp"`
}

const raoPerTao = 1e9

func raoToTao(rao float64) float64 {
	return rao / raoPerTao
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
