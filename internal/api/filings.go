package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"taxfiler/internal/models"
	"taxfiler/internal/service/export"
)

func (h *Handler) listFilings(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	filings, err := h.records.ListFilings(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "Failed to fetch tax filings")
		return
	}
	c.JSON(http.StatusOK, filings)
}

func (h *Handler) getFiling(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	filingID, ok := pathID(c)
	if !ok {
		return
	}
	f, err := h.records.GetFiling(c.Request.Context(), userID, filingID)
	if err != nil {
		respondError(c, err, "Failed to fetch tax filing")
		return
	}
	c.JSON(http.StatusOK, f)
}

// createFiling accepts the financial year plus any known Form 16 fields and stores a draft.
func (h *Handler) createFiling(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req models.Form16Fields
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid tax filing data"})
		return
	}
	year := strings.TrimSpace(req.FinancialYear)
	if year == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "financialYear is required"})
		return
	}
	f, err := h.records.CreateFiling(c.Request.Context(), userID, year, req)
	if err != nil {
		respondError(c, err, "Failed to create tax filing")
		return
	}
	h.dashboard.Invalidate(c.Request.Context(), userID)
	c.JSON(http.StatusCreated, f)
}

func (h *Handler) markFiled(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	filingID, ok := pathID(c)
	if !ok {
		return
	}
	f, err := h.records.MarkFiled(c.Request.Context(), userID, filingID)
	if err != nil {
		respondError(c, err, "Failed to update tax filing")
		return
	}
	h.dashboard.Invalidate(c.Request.Context(), userID)
	c.JSON(http.StatusOK, f)
}

func (h *Handler) exportFiling(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	filingID, ok := pathID(c)
	if !ok {
		return
	}
	f, err := h.records.GetFiling(c.Request.Context(), userID, filingID)
	if err != nil {
		respondError(c, err, "Failed to export tax filing")
		return
	}
	data, err := export.FilingWorkbook(f)
	if err != nil {
		respondError(c, err, "Failed to export tax filing")
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.Filename(f)))
	c.Data(http.StatusOK, export.ContentType, data)
}
