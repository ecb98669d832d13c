package domain

import "fmt"

// RandomnessRequest correlates an oracle request with the round that issued
// it. It lives until the matching response is consumed.
type RandomnessRequest struct {
	Id        string
	RoundId   uint64
	CreatedAt int64
}

func NewRandomnessRequest(id string, roundId uint64, createdAt int64) (*RandomnessRequest, error) {
	if len(id) <= 0 {
		return nil, fmt.Errorf("missing request id")
	}
	if roundId == 0 {
		return nil, fmt.Errorf("missing round id")
	}
	return &RandomnessRequest{id, roundId, createdAt}, nil
}

// IsStale tells whether the request has been waiting for longer than timeout
// seconds.
func (r RandomnessRequest) IsStale(now, timeout int64) bool {
	return now-r.CreatedAt >= timeout
}
