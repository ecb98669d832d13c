package relayoracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ark-network/raffle/internal/core/domain"
	"github.com/ark-network/raffle/internal/core/ports"
	"github.com/golang-jwt/jwt/v5"
)

const (
	Issuer           = "raffled"
	RelayIssuer      = "randomness-relay"
	requestsPath     = "/v1/requests"
	tokenLifetime    = time.Minute
	requestSubject   = "randomness_request"
	fulfilledSubject = "randomness_fulfillment"
)

type requestBody struct {
	CorrelationKey       string `json:"correlationKey"`
	KeyHash              string `json:"keyHash"`
	SubscriptionId       string `json:"subscriptionId"`
	RequestConfirmations uint16 `json:"requestConfirmations"`
	CallbackGasLimit     uint32 `json:"callbackGasLimit"`
	NumWords             uint32 `json:"numWords"`
}

type responseBody struct {
	RequestId string `json:"requestId"`
}

// service forwards randomness requests to an external relay over HTTP. Both
// directions are authenticated with HMAC signed tokens sharing one secret.
type service struct {
	url    string
	secret []byte
	client *http.Client
	now    func() time.Time

	lock    *sync.RWMutex
	handler ports.FulfillmentHandler
}

func NewService(url, secret string) (ports.RandomnessOracle, error) {
	if len(url) <= 0 {
		return nil, fmt.Errorf("missing relay url")
	}
	if len(secret) <= 0 {
		return nil, fmt.Errorf("missing relay secret")
	}
	return &service{
		url:    strings.TrimSuffix(url, "/"),
		secret: []byte(secret),
		client: &http.Client{Timeout: 15 * time.Second},
		now:    time.Now,
		lock:   &sync.RWMutex{},
	}, nil
}

func (s *service) RequestRandomness(
	ctx context.Context, req ports.RandomnessRequest,
) (string, error) {
	body, err := json.Marshal(requestBody{
		CorrelationKey:       req.CorrelationKey,
		KeyHash:              req.KeyHash,
		SubscriptionId:       req.SubscriptionId,
		RequestConfirmations: req.RequestConfirmations,
		CallbackGasLimit:     req.CallbackGasLimit,
		NumWords:             req.NumWords,
	})
	if err != nil {
		return "", err
	}

	token, err := SignToken(s.secret, Issuer, requestSubject, s.now())
	if err != nil {
		return "", fmt.Errorf("failed to sign request: %s", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodPost, s.url+requestsPath, bytes.NewReader(body),
	)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to reach relay: %s", err)
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read relay response: %s", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("relay answered with status %d: %s", resp.StatusCode, string(buf))
	}

	res := responseBody{}
	if err := json.Unmarshal(buf, &res); err != nil {
		return "", fmt.Errorf("failed to parse relay response: %s", err)
	}
	if len(res.RequestId) <= 0 {
		return "", fmt.Errorf("relay returned an empty request id")
	}
	return res.RequestId, nil
}

func (s *service) RegisterFulfillmentHandler(handler ports.FulfillmentHandler) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.handler = handler
}

// Fulfill authenticates a callback from the relay and hands the words over to
// the registered handler.
func (s *service) Fulfill(
	ctx context.Context, token, requestId string, randomWords []*big.Int,
) error {
	if err := VerifyToken(s.secret, token, RelayIssuer, s.now()); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, err)
	}

	s.lock.RLock()
	handler := s.handler
	s.lock.RUnlock()

	if handler == nil {
		return fmt.Errorf("no fulfillment handler registered")
	}
	return handler(ctx, requestId, randomWords)
}

func (s *service) Close() {
	s.client.CloseIdleConnections()
}

// SignToken returns a short lived HS256 token for the given issuer.
func SignToken(secret []byte, issuer, subject string, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
	})
	return token.SignedString(secret)
}

func VerifyToken(secret []byte, token, issuer string, now time.Time) error {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if len(token) <= 0 {
		return errors.New("missing token")
	}

	claims := jwt.RegisteredClaims{}
	if _, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	); err != nil {
		return mapJWTError(err)
	}
	return nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return errors.New("token signature is invalid")
	case errors.Is(err, jwt.ErrTokenExpired):
		return errors.New("token is expired")
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return errors.New("token issuer mismatch")
	case errors.Is(err, jwt.ErrTokenMalformed):
		return errors.New("token is malformed")
	default:
		return fmt.Errorf("invalid token: %s", err)
	}
}
