package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"taxfiler/internal/models"
)

func (h *Handler) listChatMessages(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	messages, err := h.records.ListChatMessages(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "Failed to fetch chat messages")
		return
	}
	c.JSON(http.StatusOK, messages)
}

func (h *Handler) postChatMessage(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req struct {
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Message is required"})
		return
	}
	ctx := c.Request.Context()
	userMsg, err := h.records.AppendChatMessage(ctx, userID, models.RoleUser, req.Message)
	if err != nil {
		respondError(c, err, "Failed to process chat message")
		return
	}
	chatContext, err := h.chatContext(ctx, userID)
	if err != nil {
		respondError(c, err, "Failed to process chat message")
		return
	}
	reply, err := h.chat.GenerateReply(ctx, req.Message, chatContext)
	if err != nil {
		respondError(c, err, "Failed to process chat message")
		return
	}
	botMsg, err := h.records.AppendChatMessage(ctx, userID, models.RoleAssistant, reply)
	if err != nil {
		respondError(c, err, "Failed to process chat message")
		return
	}
	c.JSON(http.StatusOK, gin.H{"userMessage": userMsg, "botMessage": botMsg})
}

// chatContext summarizes the user's current-year filing for the assistant.
func (h *Handler) chatContext(ctx context.Context, userID int64) (string, error) {
	year := h.pipeline.CurrentYear()
	f, err := h.records.FilingForYear(ctx, userID, year)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Sprintf("Financial year %s. The user has not processed a Form 16 yet.", year), nil
	}
	if err != nil {
		return "", err
	}
	fields := f.Fields
	return fmt.Sprintf(
		"Financial year %s, filing status %s. Gross salary ₹%.0f, 80C ₹%.0f, 80D ₹%.0f, standard deduction ₹%.0f, TDS ₹%.0f, tax payable ₹%.0f. %d saving suggestions on file.",
		f.FinancialYear, f.Status, fields.GrossSalary, fields.Deductions80C, fields.Deductions80D,
		fields.StandardDeduction, fields.TDSDeducted, fields.TaxPayable, len(f.TaxSuggestions),
	), nil
}
