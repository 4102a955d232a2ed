package postgres

import (
	"context"
	"time"

	"github.com/otpbazaar/golang_services/internal/payment_service/domain"
	"github.com/otpbazaar/golang_services/internal/platform/cache"
)

const settingsKey = "settings"

// CachedSettingsRepository keeps gateway settings for ttl. A ttl <= 0
// disables caching and every call reaches the wrapped repository.
type CachedSettingsRepository struct {
	next      domain.SettingsRepository
	cryptomus *cache.TTLCache[string, *domain.CryptomusSettings]
	paytm     *cache.TTLCache[string, *domain.PaytmSettings]
	upi       *cache.TTLCache[string, *domain.UPISettings]
	enabled   bool
}

func NewCachedSettingsRepository(next domain.SettingsRepository, ttl time.Duration, now func() time.Time) *CachedSettingsRepository {
	if now == nil {
		now = time.Now
	}
	return &CachedSettingsRepository{
		next:      next,
		cryptomus: cache.New[string, *domain.CryptomusSettings](ttl, cache.WithClock[string, *domain.CryptomusSettings](now)),
		paytm:     cache.New[string, *domain.PaytmSettings](ttl, cache.WithClock[string, *domain.PaytmSettings](now)),
		upi:       cache.New[string, *domain.UPISettings](ttl, cache.WithClock[string, *domain.UPISettings](now)),
		enabled:   ttl > 0,
	}
}

func (r *CachedSettingsRepository) GetCryptomusSettings(ctx context.Context) (*domain.CryptomusSettings, error) {
	if !r.enabled {
		return r.next.GetCryptomusSettings(ctx)
	}
	return r.cryptomus.GetOrLoad(ctx, settingsKey, r.next.GetCryptomusSettings)
}

func (r *CachedSettingsRepository) GetPaytmSettings(ctx context.Context) (*domain.PaytmSettings, error) {
	if !r.enabled {
		return r.next.GetPaytmSettings(ctx)
	}
	return r.paytm.GetOrLoad(ctx, settingsKey, r.next.GetPaytmSettings)
}

func (r *CachedSettingsRepository) GetUPISettings(ctx context.Context) (*domain.UPISettings, error) {
	if !r.enabled {
		return r.next.GetUPISettings(ctx)
	}
	return r.upi.GetOrLoad(ctx, settingsKey, r.next.GetUPISettings)
}

// Invalidate drops all cached settings so the next read hits the database.
func (r *CachedSettingsRepository) Invalidate() {
	r.cryptomus.Reset()
	r.paytm.Reset()
	r.upi.Reset()
}
