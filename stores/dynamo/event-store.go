// Package dynamo implements the event and snapshot stores on DynamoDB. Each
// recorded event is one item keyed by a zero-padded sequence sort key; a head
// item per aggregate carries the current sequence, and a conditional put on
// it enforces the expected-sequence check transactionally.
package dynamo

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/pkg/errors"

	es "github.com/ebbtide-io/ebb-events-go"
)

// TransactWriteItems caps a transaction at 25 items; one is the head record.
const MaxBatchSize = 24

type EventStoreTableName string

type EventStoreOption func(store *EventStore)

func WithClock(clock es.Clock) EventStoreOption {
	return func(store *EventStore) {
		store.clock = clock
	}
}

func WithIdGenerator(generator es.IDGenerator) EventStoreOption {
	return func(store *EventStore) {
		store.id = generator
	}
}

func NewEventStore(client *dynamodb.Client, table EventStoreTableName, options ...EventStoreOption) *EventStore {
	store := &EventStore{
		db:    client,
		table: string(table),
	}

	for _, option := range options {
		option(store)
	}

	if store.clock == nil {
		store.clock = es.SystemClock{}
	}

	if store.id == nil {
		store.id = es.NewIDGenerator(store.clock)
	}

	return store
}

type EventStore struct {
	db    *dynamodb.Client
	table string
	clock es.Clock
	id    es.IDGenerator
}

type eventRecord struct {
	PartitionKey string                   `dynamodbav:"pk"`
	SortKey      string                   `dynamodbav:"sk"`
	Sequence     int64                    `dynamodbav:"sequence"`
	EventID      string                   `dynamodbav:"id"`
	EventType    string                   `dynamodbav:"type"`
	Timestamp    string                   `dynamodbav:"timestamp"`
	Metadata     es.RecordedEventMetadata `dynamodbav:"metadata"`
	Data         es.Data                  `dynamodbav:"data"`
}

type headRecord struct {
	PartitionKey string `dynamodbav:"pk"`
	SortKey      string `dynamodbav:"sk"`
	Sequence     int64  `dynamodbav:"sequence"`
	Timestamp    string `dynamodbav:"timestamp"`
}

func partitionKey(id es.AggregateId) string {
	return id.Encode().String()
}

func sortKey(sequence es.Sequence) string {
	return fmt.Sprintf("event#%012d", int64(sequence))
}

const headSortKey = "head"

func (store *EventStore) Load(ctx context.Context, id es.AggregateId, after es.Sequence) (es.Aggregate, error) {
	// read the head before the events: a concurrent append can then only add
	// events the query will see, never leave the head ahead of them. Loaded
	// events win over the head below; a lagging head at worst causes a
	// spurious sequence conflict on the next append.
	head, err := store.head(ctx, id)
	if err != nil {
		return es.Aggregate{}, err
	}

	query := expression.Key("pk").Equal(expression.Value(partitionKey(id))).And(
		expression.Key("sk").GreaterThan(expression.Value(sortKey(after))),
	)

	builder := expression.NewBuilder().WithKeyCondition(query)
	expr, err := builder.Build()
	if err != nil {
		return es.Aggregate{}, err
	}

	var records []eventRecord
	var start map[string]types.AttributeValue
	for {
		out, err := store.db.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(store.table),
			ConsistentRead:            aws.Bool(true),
			ExclusiveStartKey:         start,
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			KeyConditionExpression:    expr.KeyCondition(),
		})
		if err != nil {
			return es.Aggregate{}, errors.Wrap(es.ErrStoreUnavailable, err.Error())
		}

		var page []eventRecord
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return es.Aggregate{}, err
		}

		records = append(records, page...)

		start = out.LastEvaluatedKey
		if start == nil {
			break
		}
	}

	events := make([]es.RecordedEvent, 0, len(records))
	sequence := head
	for _, record := range records {
		// the head item sorts after every event# key; skip it
		if !strings.HasPrefix(record.SortKey, "event#") {
			continue
		}

		events = append(events, es.RecordedEvent{
			AggregateId: id,
			Sequence:    es.Sequence(record.Sequence),
			EventID:     es.EventID(record.EventID),
			EventType:   es.EventType(record.EventType),
			Timestamp:   es.Timestamp(record.Timestamp),
			Metadata:    record.Metadata,
			Data:        record.Data,
		})

		sequence = es.Sequence(record.Sequence)
	}

	return es.Aggregate{
		Id:       id,
		Events:   events,
		Sequence: sequence,
	}, nil
}

func (store *EventStore) head(ctx context.Context, id es.AggregateId) (es.Sequence, error) {
	out, err := store.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(store.table),
		ConsistentRead: aws.Bool(true),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: partitionKey(id)},
			"sk": &types.AttributeValueMemberS{Value: headSortKey},
		},
	})
	if err != nil {
		return es.InitialSequence, errors.Wrap(es.ErrStoreUnavailable, err.Error())
	}

	if out.Item == nil {
		return es.InitialSequence, nil
	}

	var head headRecord
	if err := attributevalue.UnmarshalMap(out.Item, &head); err != nil {
		return es.InitialSequence, err
	}

	return es.Sequence(head.Sequence), nil
}

func (store *EventStore) Append(ctx context.Context, id es.AggregateId, options es.AppendOptions, events ...es.DomainEvent) (es.Sequence, error) {
	if len(events) == 0 {
		return es.InitialSequence, es.Invalid("attempted to append an empty batch")
	}
	if len(events) > MaxBatchSize {
		return es.InitialSequence, es.Invalid(fmt.Sprintf("batch of %d exceeds the %d event transaction limit", len(events), MaxBatchSize))
	}

	timestamp := es.TimestampFromTime(store.clock.Now())

	payloads := make([]es.Data, len(events))
	eventTypes := make([]es.EventType, len(events))
	for i, event := range events {
		data, err := es.MarshalToData(event)
		if err != nil {
			return es.InitialSequence, err
		}

		payloads[i] = data
		eventTypes[i] = es.EventTypeOf(event)
	}

	current := options.ExpectedSequence
	if !options.Checked() {
		head, err := store.head(ctx, id)
		if err != nil {
			return es.InitialSequence, err
		}
		current = head
	}

	items := make([]types.TransactWriteItem, 0, len(events)+1)

	sequence := current
	for i := range events {
		sequence = sequence.Next()

		record, err := attributevalue.MarshalMap(eventRecord{
			PartitionKey: partitionKey(id),
			SortKey:      sortKey(sequence),
			Sequence:     int64(sequence),
			EventID:      store.id.Create().String(),
			EventType:    eventTypes[i].String(),
			Timestamp:    timestamp.String(),
			Metadata:     options.RecordedEventMetadata,
			Data:         payloads[i],
		})
		if err != nil {
			return es.InitialSequence, err
		}

		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				Item:                record,
				TableName:           aws.String(store.table),
				ConditionExpression: aws.String("attribute_not_exists(pk)"),
			},
		})
	}

	head, err := attributevalue.MarshalMap(headRecord{
		PartitionKey: partitionKey(id),
		SortKey:      headSortKey,
		Sequence:     int64(sequence),
		Timestamp:    timestamp.String(),
	})
	if err != nil {
		return es.InitialSequence, err
	}

	condition, err := expression.NewBuilder().WithCondition(headCondition(current)).Build()
	if err != nil {
		return es.InitialSequence, err
	}

	items = append(items, types.TransactWriteItem{
		Put: &types.Put{
			Item:                                head,
			TableName:                           aws.String(store.table),
			ConditionExpression:                 condition.Condition(),
			ExpressionAttributeNames:            condition.Names(),
			ExpressionAttributeValues:           condition.Values(),
			ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureNone,
		},
	})

	_, err = store.db.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		return es.InitialSequence, maybeSequenceConflict(err)
	}

	return sequence, nil
}

func headCondition(current es.Sequence) expression.ConditionBuilder {
	if current == es.InitialSequence {
		return expression.AttributeNotExists(expression.Name("sequence"))
	}

	return expression.Name("sequence").Equal(expression.Value(int64(current)))
}

func maybeSequenceConflict(err error) error {
	var oe *smithy.OperationError
	if errors.As(err, &oe) {
		var re *http.ResponseError
		if errors.As(oe.Unwrap(), &re) {
			var tc *types.TransactionCanceledException
			if errors.As(re.Unwrap(), &tc) {
				for _, reason := range tc.CancellationReasons {
					if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
						return es.ErrSequenceConflict
					}
				}
			}
		}
	}

	return err
}
