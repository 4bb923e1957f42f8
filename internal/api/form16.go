package api

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"taxfiler/internal/logging"
	"taxfiler/internal/service/filing"
	"taxfiler/internal/service/ocr"
)

const (
	form16Field = "form16"
	// room for multipart headers on top of the file limit
	multipartOverhead = 1 << 20
)

func (h *Handler) uploadForm16(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)
	file, err := c.FormFile(form16Field)
	if err != nil {
		if isTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"message": "File too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"message": "No file uploaded"})
		return
	}
	if file.Size > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"message": "File too large"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "open file failed"})
		return
	}
	defer f.Close()

	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "unreadable file"})
		return
	}
	if !h.allowedMime(mtype) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid file type. Only PDF, JPEG, and PNG files are allowed."})
		return
	}
	if _, err := f.Seek(0, 0); err != nil {
		respondError(c, err, "Failed to process Form 16")
		return
	}

	sub := filing.Submission{
		UserID:   userID,
		Filename: filepath.Base(file.Filename),
		MimeType: mtype.String(),
		Size:     file.Size,
		Body:     f,
	}
	logger := logging.FromContext(c.Request.Context())
	logger.Info("form16 upload received", "user_id", userID, "mime", sub.MimeType, "size", sub.Size)

	var result *filing.Result
	err = h.workers.Run(c.Request.Context(), userID, func(ctx context.Context) error {
		var runErr error
		result, runErr = h.pipeline.Process(ctx, sub)
		return runErr
	})
	if err != nil {
		h.respondPipelineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"fileUpload":    result.Upload,
		"taxFiling":     result.Filing,
		"extractedData": result.Extracted,
		"suggestions":   result.Suggestions,
	})
}

func isTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large")
}

func (h *Handler) allowedMime(mtype *mimetype.MIME) bool {
	for _, allowed := range h.allowedTypes {
		if mtype.Is(allowed) {
			return true
		}
	}
	return false
}

func (h *Handler) respondPipelineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ocr.ErrPDFNotImplemented):
		c.JSON(http.StatusNotImplemented, gin.H{"message": ocr.ErrPDFNotImplemented.Error()})
	case errors.Is(err, ocr.ErrUnsupportedFileType):
		c.JSON(http.StatusBadRequest, gin.H{"message": ocr.ErrUnsupportedFileType.Error()})
	default:
		respondError(c, err, "Failed to process Form 16")
	}
}

func (h *Handler) listUploads(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	uploads, err := h.records.ListUploads(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "Failed to fetch uploads")
		return
	}
	for _, u := range uploads {
		u.OCRText = ""
	}
	c.JSON(http.StatusOK, uploads)
}

func (h *Handler) getUpload(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	uploadID, ok := pathID(c)
	if !ok {
		return
	}
	upload, err := h.records.GetUpload(c.Request.Context(), userID, uploadID)
	if err != nil {
		respondError(c, err, "Failed to fetch upload")
		return
	}
	job, err := h.records.GetJob(c.Request.Context(), userID, uploadID)
	if err != nil {
		respondError(c, err, "Failed to fetch upload")
		return
	}
	c.JSON(http.StatusOK, gin.H{"fileUpload": upload, "job": job})
}

func (h *Handler) retryUpload(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	uploadID, ok := pathID(c)
	if !ok {
		return
	}
	var result *filing.Result
	err := h.workers.Run(c.Request.Context(), userID, func(ctx context.Context) error {
		var runErr error
		result, runErr = h.pipeline.Resume(ctx, userID, uploadID)
		return runErr
	})
	if err != nil {
		h.respondPipelineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"fileUpload":    result.Upload,
		"taxFiling":     result.Filing,
		"extractedData": result.Extracted,
		"suggestions":   result.Suggestions,
	})
}
