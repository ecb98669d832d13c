package application

import (
	"strconv"
	"sync"
)

// roundLocks hands out one exclusive lock per round id, so that operations on
// the same round are totally ordered while different rounds proceed in
// parallel.
type roundLocks struct {
	lock  *sync.Mutex
	locks map[uint64]*sync.Mutex
}

func newRoundLocks() *roundLocks {
	return &roundLocks{&sync.Mutex{}, make(map[uint64]*sync.Mutex)}
}

func (l *roundLocks) acquire(roundId uint64) (release func()) {
	l.lock.Lock()
	roundLock, ok := l.locks[roundId]
	if !ok {
		roundLock = &sync.Mutex{}
		l.locks[roundId] = roundLock
	}
	l.lock.Unlock()

	roundLock.Lock()
	return roundLock.Unlock
}

func formatRoundId(id uint64) string {
	return strconv.FormatUint(id, 10)
}
