package dynamo

import (
	"github.com/google/wire"

	es "github.com/ebbtide-io/ebb-events-go"
)

var EventStoreSet = wire.NewSet(
	Client,
	NewEventStore,
	NewSnapshotStore,
	wire.Bind(new(es.EventStore), new(*EventStore)),
	wire.Bind(new(es.SnapshotStore), new(*SnapshotStore)),
)
