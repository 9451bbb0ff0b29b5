package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RespondOK writes payload as a 200 response.
func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondCreated writes payload as a 201 response.
func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}

// RespondAccepted writes payload as a 202 response, used by the admin
// endpoints that hand work to a background job.
func RespondAccepted(c *gin.Context, payload any) {
	c.JSON(http.StatusAccepted, payload)
}

// RespondNoContent writes an empty 204 response.
func RespondNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
