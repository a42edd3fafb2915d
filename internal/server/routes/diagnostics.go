package routes

import (
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/tao-tracker/tao-tracker/internal/cache"
	"github.com/tao-tracker/tao-tracker/internal/tracker"
)

// SlotLister 暴露缓存槽位快照。
type SlotLister interface {
	Slots() []cache.SlotInfo
}

type slotPayload struct {
	Name       string    `json:"name"`
	FetchedAt  time.Time `json:"fetched_at"`
	AgeSeconds float64   `json:"age_seconds"`
}

// RegisterDiagnosticsRoutes 暴露 /-/slots 诊断接口，列出每个槽位的抓取时间与年龄，以及配置的 TTL。
// 钱包槽位只给出数量，不暴露被查询过的地址。
func RegisterDiagnosticsRoutes(app *fiber.App, slots SlotLister, ttls map[string]string) {
	if app == nil || slots == nil {
		return
	}

	app.Get("/-/slots", func(c fiber.Ctx) error {
		payload, wallets := encodeSlots(slots.Slots())
		return c.JSON(fiber.Map{
			"slots":        payload,
			"wallet_slots": wallets,
			"ttls":         ttls,
		})
	})
}

func encodeSlots(infos []cache.SlotInfo) ([]slotPayload, int) {
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	result := make([]slotPayload, 0, len(infos))
	wallets := 0
	for _, info := range infos {
		if strings.HasPrefix(info.Name, tracker.WalletSlotPrefix) {
			wallets++
			continue
		}
		result = append(result, slotPayload{
			Name:       info.Name,
			FetchedAt:  info.FetchedAt,
			AgeSeconds: info.Age.Seconds(),
		})
	}
	return result, wallets
}
