// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package admission

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket admitting at most Rate new tasks per second.
// The bucket holds up to Rate tokens and starts empty, so a backlog present
// at startup is admitted at a steady Rate per second.
type RateLimiter struct {
	limiter *rate.Limiter
	rate    int
}

// NewRateLimiter creates a limiter refilling perSecond tokens every second.
func NewRateLimiter(perSecond int) (*RateLimiter, error) {
	if perSecond <= 0 {
		return nil, ErrInvalidRate
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), perSecond)
	limiter.AllowN(time.Now(), perSecond)
	return &RateLimiter{
		limiter: limiter,
		rate:    perSecond,
	}, nil
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Allow consumes a token if one is available without blocking.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Rate returns the configured tasks per second.
func (r *RateLimiter) Rate() int {
	return r.rate
}
