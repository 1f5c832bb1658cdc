/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package syncserver

import (
	"net/http"
	"strconv"

	"trading-hall-sync-go/internal/metrics"
	"trading-hall-sync-go/internal/signing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func reject(c *gin.Context, status int, reason string) {
	metrics.ServerRejected.WithLabelValues(reason).Inc()
	zap.L().Warn("Sync request rejected",
		zap.String("path", c.Request.URL.Path),
		zap.String("client_ip", c.ClientIP()),
		zap.String("reason", reason),
		zap.Int("status", status))
	c.AbortWithStatusJSON(status, gin.H{"ok": false, "error": reason})
}

func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter != nil && !s.limiter.Allow() {
			reject(c, http.StatusTooManyRequests, "rate_limited")
			return
		}
		c.Next()
	}
}

// adminAuth requires X-Admin-Secret to match the configured admin secret
func (s *Server) adminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AdminSecret == "" {
			reject(c, http.StatusInternalServerError, "admin_secret_not_configured")
			return
		}
		provided := c.GetHeader(signing.HeaderAdminSecret)
		if provided == "" || !signing.Equal(provided, s.cfg.AdminSecret) {
			reject(c, http.StatusUnauthorized, "unauthorized")
			return
		}
		c.Next()
	}
}

// checkSkew reports whether ts is present and within the allowed clock skew
func (s *Server) checkSkew(ts int64) bool {
	return ts > 0 && signing.WithinSkew(ts, s.now(), s.cfg.MaxSkew)
}

func parseTimestamp(raw string) int64 {
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return ts
}
