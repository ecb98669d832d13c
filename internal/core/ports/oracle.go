package ports

import (
	"context"
	"math/big"
)

// OracleConfig is passed through to the oracle untouched.
type OracleConfig struct {
	KeyHash              string
	SubscriptionId       string
	RequestConfirmations uint16
	CallbackGasLimit     uint32
	NumWords             uint32
}

type RandomnessRequest struct {
	OracleConfig
	CorrelationKey string
}

// FulfillmentHandler is invoked by the oracle, possibly much later, with the
// words generated for a request.
type FulfillmentHandler func(ctx context.Context, requestId string, randomWords []*big.Int) error

type RandomnessOracle interface {
	RequestRandomness(ctx context.Context, req RandomnessRequest) (requestId string, err error)
	RegisterFulfillmentHandler(handler FulfillmentHandler)
	Close()
}

// FulfillmentReceiver is implemented by oracles whose responses reach the
// daemon through its own transport rather than in-process.
type FulfillmentReceiver interface {
	Fulfill(ctx context.Context, token, requestId string, randomWords []*big.Int) error
}
