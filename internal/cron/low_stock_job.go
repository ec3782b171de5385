package cron

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/brindes-backend/pkg/db/models"
	"github.com/angelmondragon/brindes-backend/pkg/logger"
	"github.com/angelmondragon/brindes-backend/pkg/metrics"
)

type lowStockSource interface {
	ListBelowMinimum(ctx context.Context) ([]models.InventoryItem, error)
}

// LowStockReportJob logs every active item at or under its reorder threshold
// and exports the count. It only reports; requests are never blocked by it.
type LowStockReportJob struct {
	logg    *logger.Logger
	source  lowStockSource
	metrics *metrics.InventoryMetrics
}

func NewLowStockReportJob(logg *logger.Logger, source lowStockSource, m *metrics.InventoryMetrics) (*LowStockReportJob, error) {
	if logg == nil {
		return nil, errors.New("logger required")
	}
	if source == nil {
		return nil, errors.New("inventory source required")
	}
	return &LowStockReportJob{logg: logg, source: source, metrics: m}, nil
}

func (j *LowStockReportJob) Name() string { return "low-stock-report" }

func (j *LowStockReportJob) Run(ctx context.Context) error {
	items, err := j.source.ListBelowMinimum(ctx)
	if err != nil {
		return fmt.Errorf("list low stock items: %w", err)
	}
	j.metrics.SetBelowMinimum(len(items))

	for _, item := range items {
		fields := map[string]any{
			"item_id":   item.ID,
			"item_name": item.Name,
			"quantity":  item.Quantity,
		}
		if item.MinStock != nil {
			fields["min_stock"] = *item.MinStock
		}
		j.logg.Warn(j.logg.WithFields(ctx, fields), "inventory.low_stock")
	}
	j.logg.Info(j.logg.WithField(ctx, "items_below_minimum", len(items)), "inventory.low_stock_report")
	return nil
}
