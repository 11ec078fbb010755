package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bitbucket.org/mmdatafocus/pos_backend/models"
)

// statusFor maps a workflow error to its HTTP status.
func statusFor(err error) int {
	var validation *models.ValidationError
	var conflict *models.NumberingConflict
	var credit *models.InsufficientCredit
	var lockTimeout *models.StockLockTimeout
	var transition *models.InvalidStateTransition
	var denied *models.PermissionDenied
	var fiscalErr *models.FiscalProviderError
	var concurrent *models.ConcurrentUpdate

	switch {
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.As(err, &denied):
		return http.StatusForbidden
	case errors.As(err, &conflict), errors.As(err, &credit), errors.As(err, &lockTimeout), errors.As(err, &transition), errors.As(err, &concurrent):
		return http.StatusConflict
	case errors.As(err, &fiscalErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes {"error": reason}; unexpected errors are recorded on the
// gin context for the error logger and their text is not exposed.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}

	var credit *models.InsufficientCredit
	if errors.As(err, &credit) {
		body["available_credit"] = credit.Available.StringFixed(2)
	}
	var validation *models.ValidationError
	if errors.As(err, &validation) && validation.Field != "" {
		body["field"] = validation.Field
	}

	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		body["error"] = "internal server error"
	}
	c.AbortWithStatusJSON(status, body)
}

// badRequest answers a body or path that could not be decoded.
func badRequest(c *gin.Context, reason string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": reason})
}

func pathId(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

// bindBody decodes an optional JSON body; an empty body leaves dest untouched.
func bindBody(c *gin.Context, dest any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dest); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return false
	}
	return true
}
