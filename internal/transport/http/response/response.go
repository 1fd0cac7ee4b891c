package response

import "github.com/gin-gonic/gin"

const (
	CodeOK                 = 0
	CodeBadRequest         = 40000
	CodeUsernameExists     = 40001
	CodeEmailExists        = 40002
	CodeUnauthorized       = 40100
	CodeInvalidCredentials = 40101
	CodeChannelNotFound    = 40401
	CodeDataSourceNotFound = 40402
	CodeNoSelection        = 40901
	CodeSelectionChanged   = 40902
	CodePayloadTooLarge    = 41300
	CodeInternalServer     = 50000
	CodeUploadFailed       = 50201
	CodeExtractionFailed   = 50202
	CodeAnalysisFailed     = 50203
	CodeAIRequestFailed    = 50204
	CodePersistenceFailed  = 50301
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}
