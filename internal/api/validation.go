package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/turk-gin/internal/utils"
)

// ValidateIDParam 校验路径中的 :id 参数
func ValidateIDParam() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := c.Params.Get("id")
		if !ok {
			c.Next()
			return
		}
		if err := utils.ValidateID(id); err != nil {
			Error(c, http.StatusBadRequest, "invalid ID", err.Error())
			c.Abort()
			return
		}
		c.Next()
	}
}
