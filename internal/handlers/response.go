package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorBody is the flat error shape every failure response uses.
type ErrorBody struct {
	Error string `json:"error"`
}

func RespondError(c *gin.Context, status int, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorBody{Error: msg})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
