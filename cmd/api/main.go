// Package main implements the mechanic chat API server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/WessleyAI/wessley-mechanic/engine/agent"
	"github.com/WessleyAI/wessley-mechanic/engine/app"
	"github.com/WessleyAI/wessley-mechanic/engine/domain"
	"github.com/WessleyAI/wessley-mechanic/pkg/config"
	"github.com/WessleyAI/wessley-mechanic/pkg/metrics"
	"github.com/WessleyAI/wessley-mechanic/pkg/mid"
)

// service is the part of agent.Engine the handlers use.
type service interface {
	HandleTurn(ctx context.Context, in agent.TurnInput) domain.DiagnosticResponse
	FindWorkshops(ctx context.Context, lat, lng float64) ([]string, error)
	History(ctx context.Context, userID string) ([]domain.ChatOverview, error)
	Transcript(ctx context.Context, chatID, userID string) ([]domain.ConversationTurn, error)
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	config.LoadEnv(".env", logger)
	cfg, err := config.Load(config.NewViper(), os.Getenv("MECHANIC_CONFIG"))
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mid.Chain(newRouter(a.Engine, a.Metrics, cfg.CORSOrigin, logger), mid.OTel("mechanic-api")),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port, "store", cfg.StoreBackend, "llm", cfg.LLM.Provider)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func newRouter(svc service, m *metrics.Metrics, corsOrigin string, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(mid.Recover(logger), mid.Logger(logger), mid.CORS(corsOrigin))

	r.GET("/api/health", handleHealth)
	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	api := r.Group("/api", mid.RequireUser())
	api.POST("/vehicle/chat", handleChat(svc))
	api.GET("/vehicle/workshops", handleWorkshops(svc, logger))
	api.GET("/chat/history", handleHistory(svc, logger))
	api.GET("/chat/:id", handleTranscript(svc, logger))
	return r
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ChatRequest is the JSON body for POST /api/vehicle/chat.
type ChatRequest struct {
	ChatID    string   `json:"chat_id,omitempty"`
	Message   string   `json:"message"`
	VehicleID string   `json:"vehicle_id,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

func handleChat(svc service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := domain.ValidateMessage(req.Message); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if (req.Latitude == nil) != (req.Longitude == nil) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "latitude and longitude must be sent together"})
			return
		}
		if req.Latitude != nil {
			if err := domain.ValidateCoordinates(*req.Latitude, *req.Longitude); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
		if req.ChatID == "" {
			req.ChatID = uuid.NewString()
		}

		resp := svc.HandleTurn(c.Request.Context(), agent.TurnInput{
			UserInput: req.Message,
			ChatID:    req.ChatID,
			UserID:    mid.UserID(c),
			VehicleID: req.VehicleID,
			Lat:       req.Latitude,
			Lng:       req.Longitude,
		})
		c.JSON(http.StatusOK, resp)
	}
}

func handleWorkshops(svc service, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		lat, errLat := strconv.ParseFloat(c.Query("latitude"), 64)
		lng, errLng := strconv.ParseFloat(c.Query("longitude"), 64)
		if errLat != nil || errLng != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "latitude and longitude are required"})
			return
		}
		urls, err := svc.FindWorkshops(c.Request.Context(), lat, lng)
		switch {
		case errors.Is(err, domain.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		case errors.Is(err, agent.ErrNoWorkshopFinder):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		case err != nil:
			logger.Error("workshop lookup failed", "err", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "workshop lookup failed"})
			return
		}
		if urls == nil {
			urls = []string{}
		}
		c.JSON(http.StatusOK, gin.H{"maps_urls": urls})
	}
}

func handleHistory(svc service, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		chats, err := svc.History(c.Request.Context(), mid.UserID(c))
		if err != nil {
			logger.Error("chat history failed", "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
		if chats == nil {
			chats = []domain.ChatOverview{}
		}
		c.JSON(http.StatusOK, chats)
	}
}

func handleTranscript(svc service, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		turns, err := svc.Transcript(c.Request.Context(), c.Param("id"), mid.UserID(c))
		if errors.Is(err, domain.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			logger.Error("chat transcript failed", "chat_id", c.Param("id"), "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
		if len(turns) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
			return
		}
		c.JSON(http.StatusOK, turns)
	}
}
