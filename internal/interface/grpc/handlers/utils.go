package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ark-network/raffle/internal/core/domain"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

var errMissingCaller = errors.New("missing caller identity")

type errorResponse struct {
	Error string `json:"error"`
}

var statusByError = []struct {
	err    error
	status int
}{
	{errMissingCaller, http.StatusUnauthorized},
	{domain.ErrUnauthorized, http.StatusForbidden},
	{domain.ErrInvalidParameters, http.StatusBadRequest},
	{domain.ErrInvalidEntryCount, http.StatusBadRequest},
	{domain.ErrIncorrectPayment, http.StatusPaymentRequired},
	{domain.ErrRoundNotFound, http.StatusNotFound},
	{domain.ErrUnknownRequest, http.StatusNotFound},
	{domain.ErrRoundExpired, http.StatusGone},
	{domain.ErrRoundNotOpen, http.StatusConflict},
	{domain.ErrRoundNotEligible, http.StatusConflict},
	{domain.ErrSoldOut, http.StatusConflict},
	{domain.ErrRequestAlreadyPending, http.StatusConflict},
	{domain.ErrAlreadyResolved, http.StatusConflict},
	{domain.ErrNoEntrants, http.StatusConflict},
	{domain.ErrTransferFailed, http.StatusBadGateway},
	{domain.ErrHistoryUnavailable, http.StatusNotImplemented},
}

func httpStatus(err error) int {
	for _, s := range statusByError {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	status := httpStatus(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).Errorf("%s %s", c.Request.Method, c.FullPath())
		c.AbortWithStatusJSON(status, errorResponse{"internal error"})
		return
	}
	log.WithError(err).Debugf("%s %s", c.Request.Method, c.FullPath())
	c.AbortWithStatusJSON(status, errorResponse{err.Error()})
}

func invalidBody(err error) error {
	return fmt.Errorf("%w: invalid request body: %s", domain.ErrInvalidParameters, err)
}
