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
	"context"
	"errors"
	"net/http"
	"time"

	"trading-hall-sync-go/internal/models"
	"trading-hall-sync-go/internal/remotestore"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultMaxSkew   = 120 * time.Second
	DefaultListLimit = 200
	maxBodyBytes     = 4 << 20
)

// Server receives signed sync records and serves them back to agents and admins
type Server struct {
	cfg        models.ServerConfig
	repo       remotestore.Repository
	router     *gin.Engine
	limiter    *rate.Limiter
	httpServer *http.Server
	now        func() time.Time
}

func New(cfg models.ServerConfig, repo remotestore.Repository, logger *zap.Logger) *Server {
	if cfg.MaxSkew <= 0 {
		cfg.MaxSkew = DefaultMaxSkew
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = DefaultListLimit
	}
	if cfg.AdminSecret == "" {
		cfg.AdminSecret = cfg.SyncSecret
	}

	s := &Server{
		cfg:  cfg,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = int(cfg.RateLimit)
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "X-Sync-Signature", "X-Ts", "X-Admin-Secret"},
		MaxAge:       12 * time.Hour,
	}))

	s.router = router
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.health)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	syncGroup := s.router.Group("/api/sync")
	syncGroup.Use(s.rateLimit())
	{
		syncGroup.GET("/list", s.listRecords)
		syncGroup.POST("/:type", s.receiveRecord)
	}

	admin := s.router.Group("/api/admin")
	admin.Use(s.rateLimit(), s.adminAuth())
	{
		admin.GET("/users", s.adminUsers)
		admin.GET("/orders", s.adminOrders)
		admin.GET("/deposits", s.adminDeposits)
		admin.POST("/deposits/review", s.adminReviewDeposit)
		admin.POST("/platform-config", s.adminPlatformConfig)
	}

	public := s.router.Group("/api/public")
	public.Use(s.rateLimit())
	{
		public.GET("/platform-config", s.publicPlatformConfig)
	}
}

// Router returns the gin engine, used by tests
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start serves HTTP until Shutdown is called
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	zap.L().Info("Starting sync server", zap.String("addr", s.cfg.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	zap.L().Info("Stopping sync server")
	return s.httpServer.Shutdown(ctx)
}
