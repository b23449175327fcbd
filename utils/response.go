package utils

import (
	"github.com/gin-gonic/gin"
)

// JSONResponse sends a structured JSON response
func JSONResponse(c *gin.Context, status int, data any, message string) {
	c.JSON(status, gin.H{
		"status":  status,
		"message": message,
		"data":    data,
	})
}

// JSONError sends a structured error response
func JSONError(c *gin.Context, status int, err error, message string) {
	c.JSON(status, gin.H{
		"status":  status,
		"message": message,
		"error":   err.Error(),
	})
}

// JSONErrorWithDetail sends an error response carrying extra top-level fields,
// such as the detail and minimum amount of a rejected bid
func JSONErrorWithDetail(c *gin.Context, status int, err error, message string, extra gin.H) {
	body := gin.H{
		"status":  status,
		"message": message,
		"error":   err.Error(),
	}
	for k, v := range extra {
		if _, reserved := body[k]; !reserved {
			body[k] = v
		}
	}
	c.JSON(status, body)
}
