package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"gorow/internal/settings"
)

func (this *RequestHandler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, this.Settings())
}

// PutConfig applies the fields of the request body on top of the current
// settings and persists the result. Device and storage changes take effect
// after a restart.
func (this *RequestHandler) PutConfig(c *gin.Context) {
	updated := *this.Settings()
	if err := c.ShouldBindJSON(&updated); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := updated.Validate(); err != nil {
		var ve *settings.ValidationError
		if errors.As(err, &ve) {
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "field": ve.Field})
		} else {
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		}
		return
	}
	if err := updated.Save(this.ConfigPath); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	this.setSettings(&updated)
	c.JSON(http.StatusOK, &updated)
}
