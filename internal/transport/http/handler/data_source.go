package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"datasteward/internal/app"
	"datasteward/internal/model"
	"datasteward/internal/transport/http/response"
)

type DataSourceHandler struct {
	catalog  *app.CatalogService
	dataChat *app.DataChatService
	profiles ProfileLookup
	maxBytes int64
}

type dataSourceList struct {
	Items    []model.DataSource `json:"items"`
	Degraded bool               `json:"degraded"`
}

func NewDataSourceHandler(catalog *app.CatalogService, dataChat *app.DataChatService, profiles ProfileLookup, maxBytes int64) *DataSourceHandler {
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}
	return &DataSourceHandler{
		catalog:  catalog,
		dataChat: dataChat,
		profiles: profiles,
		maxBytes: maxBytes,
	}
}

// List returns the catalog. A list that could not be read is returned empty
// with degraded set rather than as an error.
func (h *DataSourceHandler) List(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	sources, err := h.catalog.Load(c.Request.Context(), userID)
	if err != nil && !errors.Is(err, app.ErrPersistence) {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list data sources failed")
		return
	}
	response.OK(c, dataSourceList{Items: sources, Degraded: err != nil})
}

func (h *DataSourceHandler) Search(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	sources, err := h.catalog.Search(c.Request.Context(), userID, c.Query("q"))
	if err != nil && !errors.Is(err, app.ErrPersistence) {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "search data sources failed")
		return
	}
	response.OK(c, dataSourceList{Items: sources, Degraded: err != nil})
}

// Upload accepts a multipart form with "file", adds it to the catalog and
// makes it the active data chat source.
func (h *DataSourceHandler) Upload(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	profile, err := h.profiles.CurrentUser(userID)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "user not found")
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+1<<20)
	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, http.StatusRequestEntityTooLarge, response.CodePayloadTooLarge, h.tooLargeMessage())
			return
		}
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file (form field 'file')")
		return
	}
	if file.Size > h.maxBytes {
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodePayloadTooLarge, h.tooLargeMessage())
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "failed to open uploaded file")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.maxBytes))
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "failed to read uploaded file")
		return
	}

	src, err := h.catalog.Add(c.Request.Context(), profile, app.FileInput{
		Name:        file.Filename,
		Size:        file.Size,
		ContentType: file.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		writeCatalogError(c, err, "add data source failed")
		return
	}

	transcript := h.dataChat.Select(userID, src)
	response.OK(c, gin.H{
		"dataSource": src,
		"transcript": transcript,
	})
}

func (h *DataSourceHandler) Delete(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	removed, err := h.catalog.Remove(c.Request.Context(), userID, id)
	if err != nil {
		writeCatalogError(c, err, "remove data source failed")
		return
	}
	if removed {
		h.dataChat.Deselect(userID, id)
	}
	response.OK(c, gin.H{"removed": removed})
}

func (h *DataSourceHandler) tooLargeMessage() string {
	return fmt.Sprintf("file too large (max %dMB)", h.maxBytes>>20)
}

func writeCatalogError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrAuthRequired):
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, err.Error())
	case errors.Is(err, app.ErrDataSourceNotFound):
		response.Error(c, http.StatusNotFound, response.CodeDataSourceNotFound, err.Error())
	case errors.Is(err, app.ErrUpload):
		response.Error(c, http.StatusBadGateway, response.CodeUploadFailed, app.ErrUpload.Error())
	case errors.Is(err, app.ErrExtraction):
		response.Error(c, http.StatusUnprocessableEntity, response.CodeExtractionFailed, app.ErrExtraction.Error())
	case errors.Is(err, app.ErrAnalysis):
		response.Error(c, http.StatusBadGateway, response.CodeAnalysisFailed, app.ErrAnalysis.Error())
	case errors.Is(err, app.ErrPersistence):
		response.Error(c, http.StatusServiceUnavailable, response.CodePersistenceFailed, app.ErrPersistence.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}
