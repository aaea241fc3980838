package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"solarsim/internal/model"
	"solarsim/internal/registers"
	"solarsim/internal/simulator"
	"solarsim/internal/store"
)

type Server struct {
	router         *gin.Engine
	server         *http.Server
	store          *store.Store
	fleet          *simulator.Fleet
	regs           *registers.Map
	port           int
	modbusPort     int
	mqttEnabled    bool
	mqttBroker     string
	mqttPrefix     string
	streamInterval time.Duration
}

type ServerConfig struct {
	Port            int
	Store           *store.Store
	Fleet           *simulator.Fleet
	Registers       *registers.Map
	Metrics         http.Handler
	ModbusPort      int
	MQTTEnabled     bool
	MQTTBroker      string
	MQTTTopicPrefix string
	StreamInterval  time.Duration
}

func NewServer(cfg ServerConfig) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	if cfg.StreamInterval <= 0 {
		cfg.StreamInterval = 2 * time.Second
	}

	s := &Server{
		router:         router,
		store:          cfg.Store,
		fleet:          cfg.Fleet,
		regs:           cfg.Registers,
		port:           cfg.Port,
		modbusPort:     cfg.ModbusPort,
		mqttEnabled:    cfg.MQTTEnabled,
		mqttBroker:     cfg.MQTTBroker,
		mqttPrefix:     cfg.MQTTTopicPrefix,
		streamInterval: cfg.StreamInterval,
	}

	s.setupRoutes(cfg.Metrics)
	return s
}

func (s *Server) setupRoutes(metrics http.Handler) {
	s.router.GET("/health", s.healthHandler)
	if metrics != nil {
		s.router.GET("/metrics", gin.WrapH(metrics))
	}
	s.router.GET("/ws/telemetry", s.telemetryStreamHandler)

	api := s.router.Group("/api/v1")
	{
		api.GET("/plants", s.plantsHandler)
		api.GET("/plants/:id/status", s.plantStatusHandler)
		api.GET("/plants/:id/alarms", s.plantAlarmsHandler)
		api.DELETE("/plants/:id/alarms", s.clearAlarmsHandler)
		api.GET("/alarms", s.fleetAlarmsHandler)
		api.GET("/power/global", s.globalPowerHandler)
		api.GET("/modbus/map", s.modbusMapHandler)
		api.GET("/events", s.eventsHandler)
		api.GET("/system/config", s.systemConfigHandler)
		api.GET("/settings/offline-mode", s.getOfflineModeHandler)
		api.POST("/settings/offline-mode", s.setOfflineModeHandler)
	}
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}

	log.Printf("API server starting on port %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) healthHandler(c *gin.Context) {
	degraded := 0
	stale := 0
	for _, st := range s.store.All() {
		if st.Degraded {
			degraded++
		}
		if st.Stale {
			stale++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"plants":          len(s.store.ListPlants()),
		"degraded_plants": degraded,
		"stale_plants":    stale,
		"offline_mode":    s.fleet.Offline(),
		"timestamp":       time.Now(),
	})
}

func (s *Server) plantsHandler(c *gin.Context) {
	type plantSummary struct {
		PlantID    string       `json:"plant_id"`
		PowerKW    float64      `json:"power_kw"`
		Status     model.Status `json:"status"`
		StatusName string       `json:"status_name"`
		Degraded   bool         `json:"degraded"`
		Stale      bool         `json:"stale"`
		UpdatedAt  time.Time    `json:"updated_at"`
	}

	states := s.store.All()
	out := make([]plantSummary, 0, len(states))
	for _, st := range states {
		out = append(out, plantSummary{
			PlantID:    st.PlantID,
			PowerKW:    st.Record.PowerKW,
			Status:     st.Record.Status,
			StatusName: st.Record.Status.String(),
			Degraded:   st.Degraded,
			Stale:      st.Stale,
			UpdatedAt:  st.LastUpdate,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) plantStatusHandler(c *gin.Context) {
	id := c.Param("id")
	st, ok := s.store.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown plant %q", id)})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) plantAlarmsHandler(c *gin.Context) {
	id := c.Param("id")
	if _, ok := s.store.Get(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown plant %q", id)})
		return
	}

	activeOnly := c.DefaultQuery("active", "false") == "true"
	alarms := s.store.Alarms(id, activeOnly)
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "0")); err == nil && limit > 0 && limit < len(alarms) {
		alarms = alarms[:limit]
	}
	c.JSON(http.StatusOK, alarms)
}

func (s *Server) clearAlarmsHandler(c *gin.Context) {
	id := c.Param("id")
	if _, ok := s.store.Get(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown plant %q", id)})
		return
	}

	cleared := s.store.ClearAlarms(id)
	log.Printf("Cleared %d alarms on plant %s", cleared, id)
	c.JSON(http.StatusOK, gin.H{
		"plant_id": id,
		"cleared":  cleared,
	})
}

func (s *Server) fleetAlarmsHandler(c *gin.Context) {
	activeOnly := c.DefaultQuery("active", "true") == "true"

	out := make([]model.AlarmEvent, 0)
	for _, id := range s.store.ListPlants() {
		out = append(out, s.store.Alarms(id, activeOnly)...)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) globalPowerHandler(c *gin.Context) {
	var (
		totalAC    float64
		totalDC    float64
		totalDaily float64
		totalMonth float64
		totalLife  float64
		producing  int
		faulted    int
	)

	states := s.store.All()
	for _, st := range states {
		totalAC += st.Record.PowerKW
		totalDC += st.Record.DCPowerKW
		totalDaily += st.Record.DailyEnergyKWh
		totalMonth += st.Record.MonthlyEnergyKWh
		totalLife += st.Record.TotalEnergyKWh
		if st.Record.PowerKW > 0 {
			producing++
		}
		if st.Record.Status == model.StatusFault {
			faulted++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"total_power_kw":     totalAC,
		"total_dc_power_kw":  totalDC,
		"energy_daily_kwh":   totalDaily,
		"energy_monthly_kwh": totalMonth,
		"energy_total_kwh":   totalLife,
		"plants":             len(states),
		"plants_producing":   producing,
		"plants_faulted":     faulted,
		"timestamp":          time.Now(),
	})
}

func (s *Server) modbusMapHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"block_size":   registers.BlockSize,
		"plant_stride": registers.PlantStride,
		"registers":    s.regs.Entries(),
	})
}

func (s *Server) eventsHandler(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 || limit > 1000 {
		limit = 100
	}
	c.JSON(http.StatusOK, s.store.Events(limit))
}

// systemConfigHandler dumps the public, non-secret parts of the runtime
// configuration so a client can discover the other endpoints.
func (s *Server) systemConfigHandler(c *gin.Context) {
	var broker *string
	if s.mqttEnabled && s.mqttBroker != "" {
		broker = &s.mqttBroker
	}

	c.JSON(http.StatusOK, gin.H{
		"api_port":            s.port,
		"modbus_port":         s.modbusPort,
		"modbus_host":         "0.0.0.0",
		"mqtt_enabled":        s.mqttEnabled,
		"mqtt_broker":         broker,
		"mqtt_topic_prefix":   s.mqttPrefix,
		"websocket_endpoint":  "/ws/telemetry",
		"prometheus_endpoint": "/metrics",
	})
}

func (s *Server) getOfflineModeHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"offline": s.fleet.Offline()})
}

type offlineModeRequest struct {
	Offline *bool `json:"offline" binding:"required"`
}

func (s *Server) setOfflineModeHandler(c *gin.Context) {
	var req offlineModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.fleet.SetOffline(*req.Offline)
	log.Printf("Offline mode set to %v", *req.Offline)
	c.JSON(http.StatusOK, gin.H{"offline": s.fleet.Offline()})
}
