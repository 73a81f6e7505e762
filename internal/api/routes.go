// Package api exposes the observability and device-auth HTTP surface. It is
// a thin read-only view over the session layer; all real work happens in the
// pipeline.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/voxkit/voxbridge/domain/entities"
	"github.com/voxkit/voxbridge/domain/repositories"
	"github.com/voxkit/voxbridge/internal/auth"
)

// SessionLister is the slice of the session manager the API reads.
type SessionLister interface {
	ActiveSessions() []entities.Session
}

// Server holds the route dependencies.
type Server struct {
	sessions SessionLister
	history  repositories.SessionStore
	devices  repositories.DeviceRegistry
	auth     *auth.Authenticator
	logger   *zap.Logger
}

// NewServer creates the API server. history may be nil when no sink is
// configured.
func NewServer(sessions SessionLister, history repositories.SessionStore, devices repositories.DeviceRegistry, authenticator *auth.Authenticator, logger *zap.Logger) *Server {
	return &Server{
		sessions: sessions,
		history:  history,
		devices:  devices,
		auth:     authenticator,
		logger:   logger,
	}
}

// InitRoutes initializes all API routes
func (s *Server) InitRoutes(e *echo.Echo) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "voxbridge",
		})
	})

	v1 := e.Group("/api/v1")
	v1.POST("/device/auth", s.deviceAuth)
	v1.GET("/sessions/active", s.activeSessions)
	v1.GET("/devices/:id/sessions", s.deviceSessions)
}

func (s *Server) deviceAuth(c echo.Context) error {
	var req DeviceAuthRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Error("Failed to bind device auth request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	if req.SerialNumber == "" || req.SecretKey == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Serial number and secret key are required",
		})
	}

	device, err := s.devices.Validate(c.Request().Context(), req.SerialNumber, req.SecretKey)
	if err != nil {
		if !errors.Is(err, repositories.ErrDeviceNotFound) {
			s.logger.Error("Device validation failed", zap.Error(err))
		}
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "authentication_failed",
			Message: "Invalid device credentials",
		})
	}

	token, expiresAt, err := s.auth.GenerateDeviceToken(device.ID)
	if err != nil {
		s.logger.Error("Failed to generate device token",
			zap.String("device_id", device.ID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	s.logger.Info("Device authenticated successfully",
		zap.String("device_id", device.ID),
		zap.String("serial_number", device.SerialNumber))

	return c.JSON(http.StatusOK, DeviceAuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		DeviceID:  device.ID,
	})
}

func (s *Server) activeSessions(c echo.Context) error {
	sessions := s.sessions.ActiveSessions()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

func (s *Server) deviceSessions(c echo.Context) error {
	if s.history == nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "history_disabled",
			Message: "No session history sink is configured",
		})
	}

	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 200 {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_limit",
				Message: "limit must be between 1 and 200",
			})
		}
		limit = parsed
	}

	sessions, err := s.history.RecentByDevice(c.Request().Context(), c.Param("id"), limit)
	if err != nil {
		s.logger.Error("Failed to list device sessions", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "history_unavailable",
			Message: "Could not read session history",
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"count":    len(sessions),
		"sessions": sessions,
	})
}
