package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"datasteward/internal/app"
	"datasteward/internal/model"
	"datasteward/internal/transport/http/response"
)

type DataChatHandler struct {
	dataChat *app.DataChatService
	catalog  *app.CatalogService
}

type SelectRequest struct {
	DataSourceID string `json:"dataSourceId" binding:"required"`
}

type AskRequest struct {
	Question string `json:"question" binding:"required,max=4000"`
}

type transcriptView struct {
	Selected *model.DataSource   `json:"selected"`
	Messages []model.ChatMessage `json:"messages"`
}

func NewDataChatHandler(dataChat *app.DataChatService, catalog *app.CatalogService) *DataChatHandler {
	return &DataChatHandler{dataChat: dataChat, catalog: catalog}
}

func (h *DataChatHandler) Select(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req SelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	src, err := h.catalog.Get(c.Request.Context(), userID, req.DataSourceID)
	if err != nil {
		writeCatalogError(c, err, "select data source failed")
		return
	}

	messages := h.dataChat.Select(userID, src)
	response.OK(c, transcriptView{Selected: &src, Messages: messages})
}

func (h *DataChatHandler) Ask(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	messages, err := h.dataChat.Ask(c.Request.Context(), userID, req.Question)
	if err != nil {
		writeDataChatError(c, err, "ask failed")
		return
	}
	response.OK(c, gin.H{"messages": messages})
}

func (h *DataChatHandler) Report(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	message, err := h.dataChat.Report(c.Request.Context(), userID)
	if err != nil {
		writeDataChatError(c, err, "generate report failed")
		return
	}
	response.OK(c, gin.H{"message": message})
}

func (h *DataChatHandler) Transcript(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	view := transcriptView{Messages: h.dataChat.Transcript(userID)}
	if src, ok := h.dataChat.Selected(userID); ok {
		view.Selected = &src
	}
	response.OK(c, view)
}

func writeDataChatError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrNoSelection):
		response.Error(c, http.StatusConflict, response.CodeNoSelection, err.Error())
	case errors.Is(err, app.ErrSelectionChanged):
		response.Error(c, http.StatusConflict, response.CodeSelectionChanged, err.Error())
	case errors.Is(err, app.ErrAIRequest):
		response.Error(c, http.StatusBadGateway, response.CodeAIRequestFailed, app.ErrAIRequest.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}
