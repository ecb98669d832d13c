package handlers

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ark-network/raffle/internal/core/domain"
	"github.com/gin-gonic/gin"
)

const callerHeader = "X-Caller"

func parseCaller(c *gin.Context) (string, error) {
	caller := strings.TrimSpace(c.GetHeader(callerHeader))
	if len(caller) <= 0 {
		return "", fmt.Errorf("%w: missing %s header", errMissingCaller, callerHeader)
	}
	return caller, nil
}

func parseRoundId(c *gin.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid round id %q", domain.ErrInvalidParameters, c.Param("id"))
	}
	return id, nil
}

func parseStatuses(c *gin.Context) ([]domain.RoundStatus, error) {
	raw := c.QueryArray("status")
	statuses := make([]domain.RoundStatus, 0, len(raw))
	for _, s := range raw {
		status, err := domain.ParseRoundStatus(strings.ToUpper(s))
		if err != nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrInvalidParameters, err)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func parseRandomWords(words []string) ([]*big.Int, error) {
	if len(words) <= 0 {
		return nil, fmt.Errorf("%w: missing random words", domain.ErrInvalidParameters)
	}
	parsed := make([]*big.Int, 0, len(words))
	for _, w := range words {
		word, ok := new(big.Int).SetString(w, 0)
		if !ok || word.Sign() < 0 {
			return nil, fmt.Errorf("%w: invalid random word %q", domain.ErrInvalidParameters, w)
		}
		parsed = append(parsed, word)
	}
	return parsed, nil
}
