package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"potluck"
)

type dynamoClient interface {
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// sessionItem is the table layout. The full session is kept as a JSON document
// next to the attributes used for conditions, the host index and filters.
type sessionItem struct {
	PK             string   `dynamodbav:"PK"`
	SessionID      string   `dynamodbav:"SessionID"`
	HostID         string   `dynamodbav:"HostID"`
	SessionDate    string   `dynamodbav:"SessionDate"`
	Status         string   `dynamodbav:"Status"`
	ParticipantIDs []string `dynamodbav:"ParticipantIDs,stringset"`
	Version        int64    `dynamodbav:"Version"`
	Document       string   `dynamodbav:"Document"`
}

// DynamoDB stores one item per session. ListByHost queries a global secondary
// index keyed on HostID; ListByParticipant scans with a contains filter.
type DynamoDB struct {
	client    dynamoClient
	table     string
	hostIndex string
}

func NewDynamoDB(client dynamoClient, table, hostIndex string) *DynamoDB {
	return &DynamoDB{client: client, table: table, hostIndex: hostIndex}
}

func sessionPK(id string) string {
	return "SESSION#" + id
}

func toItem(s potluck.Session) (map[string]types.AttributeValue, error) {
	doc, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session %s: %w", s.ID, err)
	}
	item, err := attributevalue.MarshalMap(sessionItem{
		PK:             sessionPK(s.ID),
		SessionID:      s.ID,
		HostID:         s.HostID,
		SessionDate:    s.Date,
		Status:         string(s.Status),
		ParticipantIDs: s.ParticipantIDs(),
		Version:        s.Version,
		Document:       string(doc),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session %s: %w", s.ID, err)
	}
	return item, nil
}

func fromItem(av map[string]types.AttributeValue) (potluck.Session, error) {
	var it sessionItem
	if err := attributevalue.UnmarshalMap(av, &it); err != nil {
		return potluck.Session{}, fmt.Errorf("failed to unmarshal session item: %w", err)
	}
	s, err := decode([]byte(it.Document))
	if err != nil {
		return potluck.Session{}, err
	}
	s.Version = it.Version
	return s, nil
}

func (d *DynamoDB) Create(ctx context.Context, s potluck.Session) error {
	return d.put(ctx, s, expression.Name("PK").AttributeNotExists(), func() error {
		return fmt.Errorf("session %s already exists: %w", s.ID, ErrConflict)
	})
}

func (d *DynamoDB) Update(ctx context.Context, s potluck.Session, expectedVersion int64) error {
	cond := expression.Name("PK").AttributeExists().
		And(expression.Name("Version").Equal(expression.Value(expectedVersion)))
	return d.put(ctx, s, cond, func() error {
		// A failed condition is either a concurrent write or a deleted item.
		if _, err := d.Get(ctx, s.ID); err != nil {
			return err
		}
		return conflict(s.ID, expectedVersion)
	})
}

func (d *DynamoDB) put(ctx context.Context, s potluck.Session, cond expression.ConditionBuilder, onConditionFailed func() error) error {
	item, err := toItem(s)
	if err != nil {
		return err
	}

	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(d.table),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return onConditionFailed()
		}
		return fmt.Errorf("failed to put session %s: %w", s.ID, err)
	}
	return nil
}

func (d *DynamoDB) Get(ctx context.Context, id string) (potluck.Session, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: sessionPK(id)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return potluck.Session{}, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	if len(out.Item) == 0 {
		return potluck.Session{}, notFound(id)
	}
	return fromItem(out.Item)
}

func (d *DynamoDB) Delete(ctx context.Context, id string) error {
	expr, err := expression.NewBuilder().
		WithCondition(expression.Name("PK").AttributeExists()).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: sessionPK(id)},
		},
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return notFound(id)
		}
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

func (d *DynamoDB) ListByHost(ctx context.Context, hostID string) ([]potluck.Session, error) {
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key("HostID").Equal(expression.Value(hostID))).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	p := dynamodb.NewQueryPaginator(d.client, &dynamodb.QueryInput{
		TableName:                 aws.String(d.table),
		IndexName:                 aws.String(d.hostIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})

	out := make([]potluck.Session, 0)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query sessions for host %s: %w", hostID, err)
		}
		sessions, err := d.decodeItems(page.Items)
		if err != nil {
			return nil, err
		}
		out = append(out, sessions...)
	}
	sortSessions(out)
	return out, nil
}

func (d *DynamoDB) ListByParticipant(ctx context.Context, userID string) ([]potluck.Session, error) {
	expr, err := expression.NewBuilder().
		WithFilter(expression.Name("ParticipantIDs").Contains(userID)).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	p := dynamodb.NewScanPaginator(d.client, &dynamodb.ScanInput{
		TableName:                 aws.String(d.table),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ConsistentRead:            aws.Bool(true),
	})

	out := make([]potluck.Session, 0)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sessions for participant %s: %w", userID, err)
		}
		sessions, err := d.decodeItems(page.Items)
		if err != nil {
			return nil, err
		}
		out = append(out, sessions...)
	}
	sortSessions(out)
	return out, nil
}

func (d *DynamoDB) decodeItems(items []map[string]types.AttributeValue) ([]potluck.Session, error) {
	out := make([]potluck.Session, 0, len(items))
	for _, item := range items {
		s, err := fromItem(item)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
