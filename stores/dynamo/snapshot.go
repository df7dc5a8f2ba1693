package dynamo

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pkg/errors"

	es "github.com/ebbtide-io/ebb-events-go"
)

const snapshotSortKey = "snapshot"

func NewSnapshotStore(client *dynamodb.Client, table EventStoreTableName) *SnapshotStore {
	return &SnapshotStore{
		db:    client,
		table: string(table),
	}
}

// SnapshotStore keeps the latest snapshot per aggregate alongside its events,
// as a single item guarded against regressing to an older sequence.
type SnapshotStore struct {
	db    *dynamodb.Client
	table string
}

type snapshotRecord struct {
	PartitionKey string  `dynamodbav:"pk"`
	SortKey      string  `dynamodbav:"sk"`
	Sequence     int64   `dynamodbav:"sequence"`
	State        es.Data `dynamodbav:"state"`
	SavedAt      string  `dynamodbav:"savedAt"`
}

func (store *SnapshotStore) Save(ctx context.Context, snapshot es.Snapshot) error {
	record, err := attributevalue.MarshalMap(snapshotRecord{
		PartitionKey: partitionKey(snapshot.AggregateId),
		SortKey:      snapshotSortKey,
		Sequence:     int64(snapshot.Sequence),
		State:        snapshot.State,
		SavedAt:      snapshot.SavedAt.String(),
	})
	if err != nil {
		return err
	}

	guard := expression.AttributeNotExists(expression.Name("sequence")).Or(
		expression.Name("sequence").LessThanEqual(expression.Value(int64(snapshot.Sequence))),
	)

	condition, err := expression.NewBuilder().WithCondition(guard).Build()
	if err != nil {
		return err
	}

	_, err = store.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(store.table),
		Item:                      record,
		ConditionExpression:       condition.Condition(),
		ExpressionAttributeNames:  condition.Names(),
		ExpressionAttributeValues: condition.Values(),
	})
	if err != nil {
		var failed *types.ConditionalCheckFailedException
		if errors.As(err, &failed) {
			// a newer snapshot is already in place
			return nil
		}

		return errors.Wrap(err, "failed to save snapshot")
	}

	return nil
}

func (store *SnapshotStore) LoadLatest(ctx context.Context, id es.AggregateId) (es.Snapshot, bool, error) {
	out, err := store.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(store.table),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: partitionKey(id)},
			"sk": &types.AttributeValueMemberS{Value: snapshotSortKey},
		},
	})
	if err != nil {
		return es.Snapshot{}, false, errors.Wrap(es.ErrStoreUnavailable, err.Error())
	}

	if out.Item == nil {
		return es.Snapshot{}, false, nil
	}

	var record snapshotRecord
	if err := attributevalue.UnmarshalMap(out.Item, &record); err != nil {
		return es.Snapshot{}, false, err
	}

	return es.Snapshot{
		AggregateId: id,
		Sequence:    es.Sequence(record.Sequence),
		State:       record.State,
		SavedAt:     es.Timestamp(record.SavedAt),
	}, true, nil
}
