package es

import "strconv"

// Sequence numbers events within a single aggregate. The first recorded event
// carries sequence 1; InitialSequence marks an aggregate with no history.
type Sequence int64

const InitialSequence = Sequence(0)

func (s Sequence) Next() Sequence {
	return s + 1
}

func (s Sequence) After(other Sequence) bool {
	return s > other
}

func (s Sequence) String() string {
	return strconv.FormatInt(int64(s), 10)
}
