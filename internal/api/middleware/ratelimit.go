package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/breatheroute/aqigateway/internal/api/models"
)

// RateLimitWindow is the window over which request limits are counted.
const RateLimitWindow = time.Minute

// RateLimitByIP limits each client IP to limit requests per RateLimitWindow.
// A non-positive limit disables limiting.
func RateLimitByIP(limit int) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		limit,
		RateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(rateLimitExceeded),
	)
}

// rateLimitExceeded writes a 429 problem.
func rateLimitExceeded(w http.ResponseWriter, r *http.Request) {
	problem := models.NewTooManyRequests(GetRequestID(r.Context()), "rate limit exceeded, please try again later")
	problem.Instance = r.URL.Path

	w.Header().Set("Retry-After", strconv.Itoa(int(RateLimitWindow.Seconds())))
	problem.Write(w)
}
