package interfaces

// Service is the long running transport exposing the raffle to callers.
type Service interface {
	Start() error
	Stop()
}
