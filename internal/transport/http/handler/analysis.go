package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"datasteward/internal/app"
	"datasteward/internal/transport/http/response"
)

type AnalysisHandler struct {
	analysis  *app.AnalysisService
	dashboard *app.DashboardService
}

type AnalysisQueryRequest struct {
	Question string `json:"question" binding:"required,max=4000"`
}

func NewAnalysisHandler(analysis *app.AnalysisService, dashboard *app.DashboardService) *AnalysisHandler {
	return &AnalysisHandler{analysis: analysis, dashboard: dashboard}
}

func (h *AnalysisHandler) Query(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req AnalysisQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	answer, err := h.analysis.Query(c.Request.Context(), userID, req.Question)
	if err != nil {
		if errors.Is(err, app.ErrInvalidInput) {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "analysis query failed")
		return
	}
	response.OK(c, gin.H{"answer": answer})
}

func (h *AnalysisHandler) Dashboard(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	summary, err := h.dashboard.Summary(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "load dashboard failed")
		return
	}
	response.OK(c, summary)
}
