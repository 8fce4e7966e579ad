package server

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)

	api := s.engine.Group("/api")
	{
		api.GET("/system/status", s.handleSystemStatus)
		api.GET("/plugins", s.handlePluginList)
		api.GET("/plugins/:id", s.handlePluginGet)
		api.GET("/services", s.handleServiceList)
		api.GET("/commands", s.handleCommandList)
		api.GET("/events", s.handleRecentEvents)
		api.GET("/events/stats", s.handleEventStats)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleSystemStatus(c *gin.Context) {
	status := gin.H{
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"goroutines":     runtime.NumGoroutine(),
		"go_version":     runtime.Version(),
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		status["cpu_percent"] = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		status["memory_used_percent"] = vm.UsedPercent
		status["memory_total_bytes"] = vm.Total
	}

	c.JSON(http.StatusOK, status)
}

func (s *Server) handlePluginList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plugins": s.manager.List()})
}

func (s *Server) handlePluginGet(c *gin.Context) {
	info, ok := s.manager.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "plugin not found"})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleServiceList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"services": s.manager.Services().List()})
}

func (s *Server) handleCommandList(c *gin.Context) {
	type commandInfo struct {
		Name        string   `json:"name"`
		Aliases     []string `json:"aliases,omitempty"`
		Description string   `json:"description,omitempty"`
		Usage       string   `json:"usage,omitempty"`
		Level       string   `json:"level"`
		CooldownSec int      `json:"cooldown_seconds"`
		Enabled     bool     `json:"enabled"`
	}
	var out []commandInfo
	for _, cmd := range s.commands.List() {
		out = append(out, commandInfo{
			Name:        cmd.Name,
			Aliases:     cmd.Aliases,
			Description: cmd.Description,
			Usage:       cmd.Usage,
			Level:       cmd.Level.String(),
			CooldownSec: int(cmd.Cooldown.Seconds()),
			Enabled:     cmd.Enabled,
		})
	}
	c.JSON(http.StatusOK, gin.H{"commands": out})
}

func (s *Server) handleRecentEvents(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = parsed
	}

	recent, err := s.bus.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": recent})
}

func (s *Server) handleEventStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.bus.GetStats())
}
