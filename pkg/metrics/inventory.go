package metrics

import "github.com/prometheus/client_golang/prometheus"

// InventoryMetrics exports stock health gauges.
type InventoryMetrics struct {
	belowMinimum prometheus.Gauge
}

func NewInventoryMetrics(reg prometheus.Registerer) *InventoryMetrics {
	if reg == nil {
		return &InventoryMetrics{}
	}
	belowMinimum := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "brindes_inventory_items_below_minimum",
		Help: "Active items whose quantity is at or below their minimum stock.",
	})
	reg.MustRegister(belowMinimum)
	return &InventoryMetrics{belowMinimum: belowMinimum}
}

// SetBelowMinimum records the latest low-stock count.
func (m *InventoryMetrics) SetBelowMinimum(count int) {
	if m == nil || m.belowMinimum == nil {
		return
	}
	m.belowMinimum.Set(float64(count))
}
