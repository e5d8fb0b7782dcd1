// Package api provides the REST API server for dualseq
package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/james-see/dualseq/pkg/app"
	"github.com/james-see/dualseq/pkg/sequencer"
	"github.com/james-see/dualseq/pkg/source"
)

// @title dualseq API
// @version 1.0
// @description Transport, loop and routing control for a MIDI sequencer
// @host localhost:8080
// @BasePath /api/v1

// Server serializes HTTP requests onto one App; the sequencer itself is
// not safe for concurrent use
type Server struct {
	mu  sync.Mutex
	app *app.App
}

// NewServer creates a server around a
func NewServer(a *app.App) *Server {
	return &Server{app: a}
}

// StartServer starts the API server on the specified port
func StartServer(a *app.App, port int) error {
	return NewServer(a).Router().Run(fmt.Sprintf(":%d", port))
}

// Router builds the gin engine with every route registered
func (s *Server) Router() *gin.Engine {
	r := gin.Default()

	// CORS middleware
	r.Use(corsMiddleware())

	// Health check
	r.GET("/health", healthCheck)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/backends", listBackends)
		v1.GET("/status", s.handleStatus)
		v1.GET("/tracks", s.handleTracks)
		v1.GET("/dump", s.handleDump)
		v1.POST("/load", s.handleLoad)
		v1.POST("/upload", s.handleUpload)
		v1.POST("/transport/play", s.handlePlay)
		v1.POST("/transport/stop", s.handleStop)
		v1.POST("/transport/rewind", s.handleRewind)
		v1.POST("/loop/toggle", s.handleLoopToggle)
		v1.POST("/loop/on", s.handleLoopOn)
		v1.POST("/loop/off", s.handleLoopOff)
		v1.PUT("/loop", s.handleSetLoop)
		v1.PUT("/length", s.handleSetLength)
		v1.PUT("/output", s.handleSetOutput)
	}

	// Swagger docs
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// healthCheck godoc
// @Summary Health check endpoint
// @Description Returns the health status of the API
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "dualseq",
	})
}

// listBackends godoc
// @Summary List sequencing backends
// @Description Returns the backends a server can be configured with
// @Tags info
// @Produce json
// @Success 200 {object} map[string][]map[string]string
// @Router /api/v1/backends [get]
func listBackends(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"backends": []map[string]string{
			{"id": string(sequencer.KindLegacy), "description": "handle-based sequence and player, tick resolution"},
			{"id": string(sequencer.KindModern), "description": "object-based sequencer, optional audio graph"},
		},
	})
}

// handleStatus godoc
// @Summary Sequencer status
// @Description Returns transport, loop and track state
// @Tags transport
// @Produce json
// @Success 200 {object} sequencer.Status
// @Router /api/v1/status [get]
func (s *Server) handleStatus(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, s.app.Sequencer.Status())
}

// handleTracks godoc
// @Summary List tracks
// @Description Returns length, loop and destination per track
// @Tags tracks
// @Produce json
// @Success 200 {object} map[string][]sequencer.TrackStatus
// @Router /api/v1/tracks [get]
func (s *Server) handleTracks(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"tracks": s.app.Sequencer.Status().Tracks})
}

// handleDump godoc
// @Summary Native debug dump
// @Description Returns the backend's diagnostic dump; empty for backends without one
// @Tags debug
// @Produce plain
// @Success 200 {string} string
// @Router /api/v1/dump [get]
func (s *Server) handleDump(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf bytes.Buffer
	if err := s.app.Sequencer.DebugDump(&buf); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", buf.Bytes())
}

type loadRequest struct {
	Name string `json:"name" binding:"required"`
}

// handleLoad godoc
// @Summary Load a MIDI source
// @Description Loads a named file from the MIDI directory; the previous sequence stays on failure
// @Tags sources
// @Accept json
// @Produce json
// @Param request body loadRequest true "Source name"
// @Success 200 {object} sequencer.Status
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /api/v1/load [post]
func (s *Server) handleLoad(c *gin.Context) {
	var req loadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.app.Load(req.Name); err != nil {
		c.JSON(loadStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.app.Sequencer.Status())
}

// handleUpload godoc
// @Summary Upload and load a MIDI file
// @Description Stores the uploaded file in the MIDI directory and loads it
// @Tags sources
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "MIDI file"
// @Success 200 {object} sequencer.Status
// @Failure 400 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /api/v1/upload [post]
func (s *Server) handleUpload(c *gin.Context) {
	// Get uploaded file
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return
	}

	// Reject before touching the MIDI directory
	if _, err := source.Parse(header.Filename, data); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	// Store under the name Load resolves to, so extensionless uploads load
	name := source.ResolveName(filepath.Base(header.Filename))
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.app.Config.MIDIDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store file"})
		return
	}
	if err := s.app.Load(name); err != nil {
		c.JSON(loadStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.app.Sequencer.Status())
}

func loadStatus(err error) int {
	switch {
	case errors.Is(err, source.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, source.ErrMalformed), errors.Is(err, source.ErrUnsupportedTimeFormat):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// transport runs op and replies with the resulting status
func (s *Server) transport(c *gin.Context, op func(*sequencer.Sequencer)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op(s.app.Sequencer)
	c.JSON(http.StatusOK, s.app.Sequencer.Status())
}

// handlePlay godoc
// @Summary Start playback
// @Description Starts the transport; a backend that cannot start stays stopped
// @Tags transport
// @Produce json
// @Success 200 {object} sequencer.Status
// @Router /api/v1/transport/play [post]
func (s *Server) handlePlay(c *gin.Context) {
	s.transport(c, (*sequencer.Sequencer).Play)
}

// handleStop godoc
// @Summary Stop playback
// @Tags transport
// @Produce json
// @Success 200 {object} sequencer.Status
// @Router /api/v1/transport/stop [post]
func (s *Server) handleStop(c *gin.Context) {
	s.transport(c, (*sequencer.Sequencer).Stop)
}

// handleRewind godoc
// @Summary Rewind to the start
// @Tags transport
// @Produce json
// @Success 200 {object} sequencer.Status
// @Router /api/v1/transport/rewind [post]
func (s *Server) handleRewind(c *gin.Context) {
	s.transport(c, (*sequencer.Sequencer).Rewind)
}

// handleLoopToggle godoc
// @Summary Toggle looping
// @Tags loop
// @Produce json
// @Success 200 {object} sequencer.Status
// @Router /api/v1/loop/toggle [post]
func (s *Server) handleLoopToggle(c *gin.Context) {
	s.transport(c, (*sequencer.Sequencer).LoopToggle)
}

// handleLoopOn godoc
// @Summary Loop the whole sequence forever
// @Tags loop
// @Produce json
// @Success 200 {object} sequencer.Status
// @Router /api/v1/loop/on [post]
func (s *Server) handleLoopOn(c *gin.Context) {
	s.transport(c, (*sequencer.Sequencer).LoopOn)
}

// handleLoopOff godoc
// @Summary Disable looping
// @Tags loop
// @Produce json
// @Success 200 {object} sequencer.Status
// @Router /api/v1/loop/off [post]
func (s *Server) handleLoopOff(c *gin.Context) {
	s.transport(c, (*sequencer.Sequencer).LoopOff)
}

// handleSetLoop godoc
// @Summary Set loop duration and count
// @Description Applies one loop duration (beats) and count to every track; count 0 repeats forever
// @Tags loop
// @Accept json
// @Produce json
// @Param request body sequencer.LoopInfo true "Loop info"
// @Success 200 {object} sequencer.Status
// @Failure 400 {object} map[string]string
// @Router /api/v1/loop [put]
func (s *Server) handleSetLoop(c *gin.Context) {
	var req sequencer.LoopInfo
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid loop info"})
		return
	}
	s.transport(c, func(seq *sequencer.Sequencer) {
		seq.SetLoopInfo(req.Duration, req.Count)
	})
}

type lengthRequest struct {
	Length sequencer.Beats `json:"length"`
}

// handleSetLength godoc
// @Summary Set every track's length
// @Tags tracks
// @Accept json
// @Produce json
// @Param request body lengthRequest true "Length in beats"
// @Success 200 {object} sequencer.Status
// @Failure 400 {object} map[string]string
// @Router /api/v1/length [put]
func (s *Server) handleSetLength(c *gin.Context) {
	var req lengthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid length"})
		return
	}
	s.transport(c, func(seq *sequencer.Sequencer) {
		seq.SetLength(req.Length)
	})
}

type outputRequest struct {
	Port string `json:"port,omitempty"`
	Unit bool   `json:"unit,omitempty"`
}

// handleSetOutput godoc
// @Summary Route every track
// @Description Routes to a named MIDI port, to the SoundFont synthesizer with unit=true, or nowhere with an empty object
// @Tags tracks
// @Accept json
// @Produce json
// @Param request body outputRequest true "Destination"
// @Success 200 {object} sequencer.Status
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/output [put]
func (s *Server) handleSetOutput(c *gin.Context) {
	var req outputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid destination"})
		return
	}
	if req.Port != "" && req.Unit {
		c.JSON(http.StatusBadRequest, gin.H{"error": "port and unit are mutually exclusive"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case req.Port != "":
		if err := s.app.SetOutputPort(req.Port); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
	case req.Unit:
		synth := s.app.Synth()
		if synth == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no audio graph configured"})
			return
		}
		s.app.SetOutput(sequencer.UnitDestination(synth))
	default:
		s.app.SetOutput(sequencer.Destination{})
	}
	c.JSON(http.StatusOK, s.app.Sequencer.Status())
}
