package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wellsite/internal/booking"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, booking.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: err.Error()})
	case errors.Is(err, booking.ErrUnknownService),
		errors.Is(err, booking.ErrUnknownSlot),
		errors.Is(err, booking.ErrUnknownSessionType):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation_failed", Message: err.Error()})
	case errors.Is(err, booking.ErrConfirmed):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "already_confirmed", Message: err.Error()})
	default:
		s.log.Error("booking request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "failed to process booking session"})
	}
}

func (s *Server) catalog(c *gin.Context) {
	cat := s.booking.Catalog()
	c.JSON(http.StatusOK, gin.H{
		"services":     cat.Services,
		"slots":        cat.Slots,
		"sessionTypes": booking.SessionTypes,
	})
}

func (s *Server) startSession(c *gin.Context) {
	sess, err := s.booking.Start(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, s.booking.View(sess))
}

func (s *Server) getSession(c *gin.Context) {
	sess, err := s.booking.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.booking.View(sess))
}

func (s *Server) updateSession(c *gin.Context) {
	var p booking.Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation_failed", Message: err.Error()})
		return
	}
	sess, err := s.booking.Update(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.booking.View(sess))
}

func (s *Server) cancelSession(c *gin.Context) {
	if err := s.booking.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) advance(c *gin.Context) {
	sess, moved, err := s.booking.Advance(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"advanced": moved, "session": s.booking.View(sess)})
}

func (s *Server) retreat(c *gin.Context) {
	sess, moved, err := s.booking.Retreat(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"retreated": moved, "session": s.booking.View(sess)})
}
