package casino

import (
	"math/big"

	"github.com/ethereum/go-ethereum/params"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	channelsOpenedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "casino_channels_opened_total",
		Help: "Total number of payment channels mirrored by the engine",
	})

	channelsClosedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "casino_channels_closed_total",
		Help: "Total number of channels closed",
	}, []string{"reason"})

	roundsSettledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "casino_rounds_settled_total",
		Help: "Total number of game rounds settled off-chain",
	}, []string{"game", "won"})

	wageredEtherTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "casino_wagered_ether_total",
		Help: "Total amount wagered, in ether (display metric)",
	})

	paidEtherTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "casino_paid_ether_total",
		Help: "Total amount paid out, in ether (display metric)",
	})
)

// etherFloat is for metrics only; balance math never leaves big.Int.
func etherFloat(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(wei),
		new(big.Float).SetUint64(params.Ether),
	).Float64()
	return f
}
