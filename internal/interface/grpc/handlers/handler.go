package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/ark-network/raffle/internal/core/application"
	"github.com/ark-network/raffle/internal/core/domain"
	"github.com/ark-network/raffle/internal/core/ports"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const listenerChannelSize = 64

type handler struct {
	svc application.Service
	// nil unless the oracle delivers randomness through http callbacks.
	receiver ports.FulfillmentReceiver

	eventsBroker *broker[event]
}

func NewHandler(svc application.Service, oracle ports.RandomnessOracle) *handler {
	receiver, _ := oracle.(ports.FulfillmentReceiver)
	h := &handler{
		svc:          svc,
		receiver:     receiver,
		eventsBroker: newBroker[event](),
	}

	go h.listenToEvents()

	return h
}

func (h *handler) RegisterRoutes(router gin.IRouter) {
	v1 := router.Group("/v1")

	v1.GET("/operator", h.getOperator)
	v1.GET("/balance", h.getPooledBalance)
	v1.GET("/accounts/:id/balance", h.getAccountBalance)

	v1.POST("/rounds", h.openRound)
	v1.GET("/rounds", h.listRounds)
	v1.GET("/rounds/:id", h.getRound)
	v1.GET("/rounds/:id/remaining", h.getRemainingEntries)
	v1.GET("/rounds/:id/history", h.getRoundHistory)
	v1.POST("/rounds/:id/entries", h.buyEntries)
	v1.POST("/rounds/:id/draw", h.requestRandomness)
	v1.POST("/rounds/:id/retry", h.retryRandomness)

	v1.POST("/oracle/fulfill", h.fulfill)
	v1.GET("/events", h.getEventStream)
}

func (h *handler) getOperator(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"operator": h.svc.GetOperator()})
}

func (h *handler) getPooledBalance(c *gin.Context) {
	caller, err := parseCaller(c)
	if err != nil {
		abortWithError(c, err)
		return
	}

	balance, err := h.svc.GetPooledBalance(c.Request.Context(), caller)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

func (h *handler) getAccountBalance(c *gin.Context) {
	balance, err := h.svc.GetAccountBalance(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

func (h *handler) openRound(c *gin.Context) {
	caller, err := parseCaller(c)
	if err != nil {
		abortWithError(c, err)
		return
	}

	var req openRoundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, invalidBody(err))
		return
	}

	roundId, err := h.svc.OpenRound(c.Request.Context(), caller, domain.RoundParams{
		EntryPrice:     req.EntryPrice,
		MaxEntries:     req.MaxEntries,
		CommissionRate: req.CommissionRate,
		Expiration:     req.Expiration,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": roundId})
}

func (h *handler) listRounds(c *gin.Context) {
	statuses, err := parseStatuses(c)
	if err != nil {
		abortWithError(c, err)
		return
	}

	rounds, err := h.svc.ListRounds(c.Request.Context(), statuses...)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rounds": roundList(rounds).toJSON()})
}

func (h *handler) getRound(c *gin.Context) {
	roundId, err := parseRoundId(c)
	if err != nil {
		abortWithError(c, err)
		return
	}

	info, err := h.svc.GetRound(c.Request.Context(), roundId)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRound(*info))
}

func (h *handler) getRemainingEntries(c *gin.Context) {
	roundId, err := parseRoundId(c)
	if err != nil {
		abortWithError(c, err)
		return
	}

	remaining, err := h.svc.GetRemainingEntries(c.Request.Context(), roundId)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"remaining": remaining})
}

func (h *handler) getRoundHistory(c *gin.Context) {
	roundId, err := parseRoundId(c)
	if err != nil {
		abortWithError(c, err)
		return
	}

	history, err := h.svc.GetRoundHistory(c.Request.Context(), roundId)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRoundHistory(*history))
}

func (h *handler) buyEntries(c *gin.Context) {
	caller, err := parseCaller(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	roundId, err := parseRoundId(c)
	if err != nil {
		abortWithError(c, err)
		return
	}

	var req buyEntriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, invalidBody(err))
		return
	}

	if err := h.svc.BuyEntries(
		c.Request.Context(), caller, roundId, req.Count, req.Payment,
	); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) requestRandomness(c *gin.Context) {
	roundId, err := parseRoundId(c)
	if err != nil {
		abortWithError(c, err)
		return
	}

	requestId, err := h.svc.RequestRandomness(c.Request.Context(), roundId)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"requestId": requestId})
}

func (h *handler) retryRandomness(c *gin.Context) {
	caller, err := parseCaller(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	roundId, err := parseRoundId(c)
	if err != nil {
		abortWithError(c, err)
		return
	}

	requestId, err := h.svc.RetryRandomness(c.Request.Context(), caller, roundId)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"requestId": requestId})
}

func (h *handler) fulfill(c *gin.Context) {
	if h.receiver == nil {
		c.AbortWithStatusJSON(
			http.StatusNotFound, errorResponse{"oracle callbacks are not enabled"},
		)
		return
	}

	var req fulfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, invalidBody(err))
		return
	}
	words, err := parseRandomWords(req.RandomWords)
	if err != nil {
		abortWithError(c, err)
		return
	}

	if err := h.receiver.Fulfill(
		c.Request.Context(), c.GetHeader("Authorization"), req.RequestId, words,
	); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// getEventStream streams round notifications as server-sent events. The
// optional round query params restrict the stream to the given rounds.
func (h *handler) getEventStream(c *gin.Context) {
	topics := make(map[string]struct{})
	for _, id := range c.QueryArray("round") {
		topics[id] = struct{}{}
	}

	l := &listener[event]{
		id:     uuid.NewString(),
		topics: topics,
		ch:     make(chan event, listenerChannelSize),
	}
	h.eventsBroker.pushListener(l)
	defer h.eventsBroker.removeListener(l.id)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	log.Debugf("events listener %s connected", l.id)

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case e := <-l.ch:
			c.SSEvent(e.Type, e)
			return true
		}
	})

	log.Debugf("events listener %s disconnected", l.id)
}

func (h *handler) listenToEvents() {
	for e := range h.svc.GetEventsChannel(context.Background()) {
		h.eventsBroker.dispatch(strconv.FormatUint(e.GetRoundId(), 10), newEvent(e))
	}
}
