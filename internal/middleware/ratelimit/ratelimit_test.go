package rateLimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/carlos-dev-research/web-rag-chatbot/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestLimitByIP_UsesConfig(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	h := GetAuth(config.RateLimit{Requests: 2, Window: time.Minute})(ok)

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodPost, "/get-auth", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestLimitByIP_SeparateClients(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	h := Register(config.RateLimit{Requests: 2, Window: time.Minute})(ok)

	call := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/register", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	for _, addr := range []string{"10.0.0.1:1000", "10.0.0.2:1000", "10.0.0.3:1000"} {
		assert.Equal(t, http.StatusOK, call(addr), addr)
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1:2000"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1:3000"))
	assert.Equal(t, http.StatusOK, call("10.0.0.2:2000"))
}
