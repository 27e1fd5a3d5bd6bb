package services

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"

	"storefront/models"
)

const (
	salesTotalKey  = "total"
	salesByDateKey = "by_date"
)

func (s *OrderService) CountTotalOrders(ctx context.Context) (int64, error) {
	n, err := s.orders.CountOrders(ctx)
	if err != nil {
		return 0, internalError("count orders", err)
	}
	return n, nil
}

// SumTotalSales sums totalPrice over paid orders only.
func (s *OrderService) SumTotalSales(ctx context.Context) (float64, error) {
	if cached, ok := s.cachedSales(ctx, salesTotalKey); ok {
		if total, err := strconv.ParseFloat(cached, 64); err == nil {
			return total, nil
		}
	}

	gen := s.salesGen.Load()
	raw, err := s.orders.SumPaidSales(ctx)
	if err != nil {
		return 0, internalError("sum sales", err)
	}
	total := decimal.NewFromFloat(raw).Round(2).InexactFloat64()

	s.cacheSales(ctx, gen, salesTotalKey, strconv.FormatFloat(total, 'f', 2, 64))
	return total, nil
}

func (s *OrderService) SumSalesByDate(ctx context.Context) ([]models.DailySales, error) {
	if cached, ok := s.cachedSales(ctx, salesByDateKey); ok {
		var sales []models.DailySales
		if err := json.Unmarshal([]byte(cached), &sales); err == nil {
			return sales, nil
		}
	}

	gen := s.salesGen.Load()
	sales, err := s.orders.SumPaidSalesByDate(ctx)
	if err != nil {
		return nil, internalError("sum sales by date", err)
	}
	for i := range sales {
		sales[i].TotalSales = decimal.NewFromFloat(sales[i].TotalSales).Round(2).InexactFloat64()
	}

	if data, err := json.Marshal(sales); err == nil {
		s.cacheSales(ctx, gen, salesByDateKey, string(data))
	}
	return sales, nil
}

func (s *OrderService) cachedSales(ctx context.Context, key string) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	val, err := s.cache.Get(ctx, s.cache.GenerateKey("sales", key))
	if err != nil {
		s.logger.WarnContext(ctx, "sales cache read failed", "key", key, "error", err)
		return "", false
	}
	return val, val != ""
}

// cacheSales stores a value read at generation gen. A payment that lands
// between the read and the write makes the value stale, so it is dropped.
// Invalidations from other instances are not seen here; their window is
// bounded by the cache TTL.
func (s *OrderService) cacheSales(ctx context.Context, gen uint64, key, value string) {
	if s.cache == nil {
		return
	}
	if s.salesGen.Load() != gen {
		return
	}
	cacheKey := s.cache.GenerateKey("sales", key)
	if err := s.cache.Set(ctx, cacheKey, value, s.salesCacheTTL); err != nil {
		s.logger.WarnContext(ctx, "sales cache write failed", "key", key, "error", err)
		return
	}
	if s.salesGen.Load() != gen {
		_ = s.cache.Delete(ctx, cacheKey)
	}
}

// invalidateSales drops cached aggregates after a payment changes them.
func (s *OrderService) invalidateSales(ctx context.Context) {
	s.salesGen.Add(1)
	if s.cache == nil {
		return
	}
	keys := []string{
		s.cache.GenerateKey("sales", salesTotalKey),
		s.cache.GenerateKey("sales", salesByDateKey),
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.WarnContext(ctx, "sales cache invalidation failed", "error", err)
	}
}
