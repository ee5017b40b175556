package api

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Yat-Muk/prism-clash/internal/pkg/errors"
)

// Response 修改類接口的統一響應
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func ok(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, Response{Success: true, Message: message, Data: data})
}

// fail 按錯誤類型映射狀態碼
func fail(c *gin.Context, err error) {
	c.Error(err)
	c.AbortWithStatusJSON(statusOf(err), Response{
		Success: false,
		Message: err.Error(),
		Code:    errors.Code(err),
	})
}

func badRequest(c *gin.Context, err error) {
	c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, Response{Success: false, Message: err.Error()})
}

func statusOf(err error) int {
	switch {
	case stderrors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, errors.ErrConflict):
		return http.StatusConflict
	case stderrors.Is(err, errors.ErrParse),
		stderrors.Is(err, errors.ErrValidation),
		stderrors.Is(err, errors.ErrIndex),
		stderrors.Is(err, errors.ErrReference):
		return http.StatusBadRequest
	case stderrors.Is(err, errors.ErrPatchApply):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
