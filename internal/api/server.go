// Package api exposes a read-only gin-based status surface over the
// current round and moving-average vector.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tos-network/subtensor-validator/internal/chain"
	"github.com/tos-network/subtensor-validator/internal/config"
	"github.com/tos-network/subtensor-validator/internal/orchestrator"
	"github.com/tos-network/subtensor-validator/internal/util"
)

// ChainHealth is the subset of chain.Client the API needs.
type ChainHealth interface {
	Endpoints() []chain.EndpointState
}

// RoundSource is the subset of orchestrator.Orchestrator the API needs.
type RoundSource interface {
	Snapshot() []float64
}

// Server is the status/metrics HTTP surface.
type Server struct {
	cfg   config.APIConfig
	chain ChainHealth
	round RoundSource

	engine *gin.Engine
	server *http.Server

	lastEventMu sync.Mutex
	lastEvent   *orchestrator.RoundEvent
}

// NewServer builds a Server.
func NewServer(cfg config.APIConfig, chainClient ChainHealth, round RoundSource) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:   cfg,
		chain: chainClient,
		round: round,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware(cfg.CORSOrigins))

	engine.GET("/health", s.handleHealth)
	api := engine.Group("/api")
	{
		api.GET("/round", s.handleRound)
		api.GET("/scores", s.handleScores)
		api.GET("/chain", s.handleChain)
	}

	s.engine = engine
	return s
}

// RecordRoundEvent stores the most recently published round event for
// the /api/round endpoint.
func (s *Server) RecordRoundEvent(e orchestrator.RoundEvent) {
	s.lastEventMu.Lock()
	defer s.lastEventMu.Unlock()
	ev := e
	s.lastEvent = &ev
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	allowAll := len(origins) == 1 && origins[0] == "*"
	return func(c *gin.Context) {
		if allowAll {
			c.Header("Access-Control-Allow-Origin", "*")
		} else {
			origin := c.Request.Header.Get("Origin")
			for _, o := range origins {
				if o == origin {
					c.Header("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleRound(c *gin.Context) {
	s.lastEventMu.Lock()
	event := s.lastEvent
	s.lastEventMu.Unlock()

	if event == nil {
		c.JSON(http.StatusOK, gin.H{"round": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"round_id": event.RoundID,
		"block":    event.Block,
		"uids":     event.UIDs,
		"elapsed":  event.Elapsed.String(),
	})
}

func (s *Server) handleScores(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"scores": s.round.Snapshot()})
}

func (s *Server) handleChain(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"endpoints": s.chain.Endpoints()})
}

// Start begins serving the status API.
func (s *Server) Start() error {
	if !s.cfg.Enabled {
		return nil
	}

	s.server = &http.Server{
		Addr:    s.cfg.Bind,
		Handler: s.engine,
	}

	util.Infof("status API listening on %s", s.cfg.Bind)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			util.Errorf("status API error: %v", err)
		}
	}()

	return nil
}

// Stop shuts down the status API.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
