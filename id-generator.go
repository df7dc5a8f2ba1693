package es

import (
	"math/rand"
	"sync"

	"github.com/oklog/ulid/v2"
)

type IDGenerator interface {
	Create() EventID
}

func NewIDGenerator(clock Clock) *UlidIdGenerator {
	t := clock.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)

	return &UlidIdGenerator{
		clock:   clock,
		entropy: entropy,
	}
}

type UlidIdGenerator struct {
	lk      sync.Mutex
	clock   Clock
	entropy *ulid.MonotonicEntropy
}

func (g *UlidIdGenerator) Create() EventID {
	g.lk.Lock()
	defer g.lk.Unlock()

	return EventID(ulid.MustNew(ulid.Timestamp(g.clock.Now()), g.entropy).String())
}
