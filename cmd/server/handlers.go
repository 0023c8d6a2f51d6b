package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"quotes-api/internal/dto"
	"quotes-api/internal/models"
	"quotes-api/internal/resolver"
	"quotes-api/internal/stream"
)

// Server holds all dependencies
type Server struct {
	router   *gin.Engine
	resolver *resolver.Resolver
	streamer *stream.Streamer
}

func (s *Server) setupRoutes(metricsHandler http.Handler) {
	s.router.Use(corsMiddleware())

	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(metricsHandler))

	api := s.router.Group("/api/v1")
	{
		api.GET("/quotes", s.handleGetQuotes)
		api.GET("/crypto/quotes", s.handleGetCryptoQuotes)
		api.GET("/spark/:symbol", s.handleGetSpark)
		api.GET("/fx", s.handleGetFx)
	}

	s.router.GET("/ws/quotes", s.handleStream)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"service":   "quotes-api",
	})
}

func (s *Server) handleGetQuotes(c *gin.Context) {
	var req dto.QuotesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	symbols := dto.SymbolList(req.Symbols)
	if len(symbols) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": "no symbols"})
		return
	}

	quotes := s.resolver.GetQuotes(c.Request.Context(), models.Market(req.Market), symbols)
	c.JSON(http.StatusOK, gin.H{
		"market": req.Market,
		"data":   quotes,
		"count":  len(quotes),
	})
}

func (s *Server) handleGetCryptoQuotes(c *gin.Context) {
	var req dto.CryptoQuotesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	symbols := dto.SymbolList(req.Symbols)
	if len(symbols) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": "no symbols"})
		return
	}

	quotes := s.resolver.GetCryptoQuotes(c.Request.Context(), symbols)
	c.JSON(http.StatusOK, gin.H{
		"market": string(models.MarketCrypto),
		"data":   quotes,
		"count":  len(quotes),
	})
}

func (s *Server) handleGetSpark(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	var req dto.SparkRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}

	closes := s.resolver.GetSpark(c.Request.Context(), symbol, models.Market(req.Market), resolver.SparkOptions{
		Interval: req.Interval,
		Points:   req.Points,
	})
	c.JSON(http.StatusOK, gin.H{
		"symbol": symbol,
		"market": req.Market,
		"closes": closes,
		"count":  len(closes),
	})
}

func (s *Server) handleGetFx(c *gin.Context) {
	var req dto.FxRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}

	fx := s.resolver.GetFxRate(c.Request.Context(), req.Base, req.Quote)
	c.JSON(http.StatusOK, fx)
}

func (s *Server) handleStream(c *gin.Context) {
	var req dto.QuotesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	symbols := dto.SymbolList(req.Symbols)
	if len(symbols) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": "no symbols"})
		return
	}

	s.streamer.Serve(c.Writer, c.Request, models.Market(req.Market), symbols)
}

// Helper functions

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, Accept, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
