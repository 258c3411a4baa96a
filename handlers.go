package main

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"FaceValServer/cache"
	"FaceValServer/detect"
	"FaceValServer/logger"
	"FaceValServer/monitor"
	"FaceValServer/pool"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxBodyBytes = 10 << 20 // 10MB

type appState struct {
	sessions  *cache.Store
	buffers   *pool.BufferPool
	pipeline  *detect.Pipeline
	modelPath string
	modelDir  string
}

type ValidationResponse struct {
	IsValid   bool   `json:"is_valid"`
	FaceCount int    `json:"face_count"`
	Message   string `json:"message"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func newRouter(app *appState) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/api/status", app.handleStatus)
	r.POST("/validate-face", app.handleValidateFace)
	r.POST("/api/models/upload", app.handleModelUpload)
	return r
}

func (app *appState) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"cached_sessions": app.sessions.Len(),
		"pooled_buffers":  app.buffers.Len(),
		"model":           app.modelPath,
	})
}

func (app *appState) handleValidateFace(c *gin.Context) {
	start := time.Now()
	requestID := uuid.NewString()
	monitor.ValidationTotal.Inc()

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

	imgBytes, err := readImageBytes(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "invalid_request",
			Message: "Failed to read image data",
			Details: err.Error(),
		})
		return
	}

	img, _, err := image.Decode(bytes.NewReader(imgBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "invalid_image",
			Message: "Failed to decode image",
			Details: err.Error(),
		})
		return
	}

	sess, err := app.sessions.Get(app.modelPath)
	if err != nil {
		monitor.ValidationFailures.Inc()
		logger.Log().Error("session load failed", zap.String("requestID", requestID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "session_error",
			Message: "Failed to initialize face detection",
			Details: err.Error(),
		})
		return
	}

	boxes, err := app.pipeline.Run(c.Request.Context(), img, sess)
	monitor.ProcessingSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		monitor.ValidationFailures.Inc()
		logger.Log().Error("processing failed",
			zap.String("requestID", requestID),
			zap.String("kind", detect.KindOf(err).String()),
			zap.Error(err))
		status := http.StatusInternalServerError
		code := "processing_error"
		if detect.KindOf(err) == detect.KindImageLoad {
			status = http.StatusBadRequest
			code = "invalid_image"
		}
		c.JSON(status, ErrorResponse{
			Code:    code,
			Message: "Failed to process image",
			Details: err.Error(),
		})
		return
	}

	faceCount := len(boxes)
	logger.Log().Info("validation done",
		zap.String("requestID", requestID),
		zap.Int("faceCount", faceCount),
		zap.Duration("elapsed", time.Since(start)))

	c.JSON(http.StatusOK, ValidationResponse{
		IsValid:   faceCount == 1,
		FaceCount: faceCount,
		Message:   faceValidationMessage(faceCount),
	})
}

// readImageBytes accepts multipart form uploads, JSON bodies carrying a
// base64 image, or a raw image body.
func readImageBytes(c *gin.Context) ([]byte, error) {
	switch c.ContentType() {
	case "application/json":
		var req struct {
			Image string `json:"image"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, err
		}
		if req.Image == "" {
			return nil, fmt.Errorf("no image data in JSON body")
		}
		return base64.StdEncoding.DecodeString(req.Image)
	case "multipart/form-data":
		file, err := c.FormFile("file")
		if err != nil {
			return nil, err
		}
		f, err := file.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(f)
	default:
		return io.ReadAll(c.Request.Body)
	}
}

func (app *appState) handleModelUpload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "invalid_request",
			Message: "File upload failed",
			Details: err.Error(),
		})
		return
	}
	modelPath := filepath.Join(app.modelDir, filepath.Base(file.Filename))
	if err := c.SaveUploadedFile(file, modelPath); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "internal_error",
			Message: "Failed to save file",
			Details: err.Error(),
		})
		return
	}
	logger.Log().Info("model uploaded", zap.String("path", modelPath))
	c.JSON(http.StatusOK, gin.H{"data": modelPath})
}

func faceValidationMessage(faceCount int) string {
	switch {
	case faceCount == 0:
		return "No faces detected"
	case faceCount == 1:
		return "Valid single face detected"
	default:
		return fmt.Sprintf("Multiple faces detected: %d", faceCount)
	}
}
