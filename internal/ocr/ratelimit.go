package ocr

import (
	"context"
	"time"

	"finscan/pkg/models"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to a remote engine
type RateLimited struct {
	Engine
	limiter *rate.Limiter
}

// NewRateLimited allows one call per interval with the given burst
func NewRateLimited(e Engine, interval time.Duration, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{Engine: e, limiter: rate.NewLimiter(rate.Every(interval), burst)}
}

// Recognize waits for a token and delegates to the wrapped engine
func (r *RateLimited) Recognize(ctx context.Context, img PageImage, pass models.PassConfig) (*EngineResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, NewEngineError(r.Name(), "Recognize", ErrRateLimited, err.Error())
	}
	return r.Engine.Recognize(ctx, img, pass)
}
