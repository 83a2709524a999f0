package rateLimit

import (
	"net/http"
	"time"

	"github.com/carlos-dev-research/web-rag-chatbot/internal/config"

	httprate "github.com/go-chi/httprate"
)

func GetAuth(cfg config.RateLimit) func(http.Handler) http.Handler {
	return limitByIP(cfg, 10, 5*time.Minute)
}

func Register(cfg config.RateLimit) func(http.Handler) http.Handler {
	return limitByIP(cfg, 5, time.Hour)
}

func DeleteUser(cfg config.RateLimit) func(http.Handler) http.Handler {
	return limitByIP(cfg, 3, time.Hour)
}

func UploadAudio() func(http.Handler) http.Handler {
	return httprate.LimitByIP(30, 10*time.Minute)
}

// limitByIP keys requests on the client IP and falls back to the given
// defaults for unset config values.
func limitByIP(cfg config.RateLimit, limit int, window time.Duration) func(http.Handler) http.Handler {
	if cfg.Requests > 0 {
		limit = cfg.Requests
	}
	if cfg.Window > 0 {
		window = cfg.Window
	}

	return httprate.LimitByIP(limit, window)
}
