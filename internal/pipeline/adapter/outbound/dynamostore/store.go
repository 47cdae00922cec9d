// Package dynamostore persists analysis sessions in a DynamoDB table keyed by
// session_id with a global secondary index on user_id.
package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/config"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/domain"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/port"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// API is the subset of the DynamoDB client used by the store.
type API interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Store is a port.SessionStore backed by DynamoDB.
type Store struct {
	api       API
	table     string
	userIndex string
	now       func() time.Time
}

// Ensure Store implements port.SessionStore.
var _ port.SessionStore = (*Store)(nil)

// Option customizes the store.
type Option func(*Store)

// WithClock replaces time.Now for updated_at stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New wraps an existing client.
func New(api API, table, userIndex string, opts ...Option) *Store {
	s := &Store{api: api, table: table, userIndex: userIndex, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromConfig loads AWS credentials from the default chain. The storage
// region and endpoint are shared with the blob store.
func NewFromConfig(ctx context.Context, sessions config.SessionsConfig, storage config.StorageConfig, opts ...Option) (*Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(storage.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if sessions.DSN != "" {
			o.BaseEndpoint = aws.String(sessions.DSN)
		}
	})

	logger.Infow("DynamoDB session store configured", "table", sessions.Table, "user_index", sessions.UserIndex)
	return New(client, sessions.Table, sessions.UserIndex, opts...), nil
}

// Ping describes the table.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	return err
}

func (s *Store) key(sessionID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"session_id": &types.AttributeValueMemberS{Value: sessionID},
	}
}

func (s *Store) Create(ctx context.Context, session *domain.Session) error {
	item, err := attributevalue.MarshalMap(toItem(session))
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", session.SessionID, err)
	}

	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(session_id)"),
	})
	if isConditionFailed(err) {
		return fmt.Errorf("%w: %s", port.ErrSessionExists, session.SessionID)
	}
	if err != nil {
		return fmt.Errorf("put session %s: %w", session.SessionID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.key(sessionID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("%w: %s", port.ErrSessionNotFound, sessionID)
	}

	var it sessionItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", sessionID, err)
	}
	return it.toDomain(), nil
}

func (s *Store) ListByUser(ctx context.Context, userID string) ([]domain.Session, error) {
	items, err := s.queryUser(ctx, userID, "", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("list sessions for %s: %w", userID, err)
	}

	out := make([]domain.Session, 0, len(items))
	for i := range items {
		out = append(out, *items[i].toDomain())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) Transition(ctx context.Context, sessionID string, from []domain.Status, to domain.Status, patch domain.SessionPatch) (bool, error) {
	if !domain.AllowTransition(from, to) {
		return false, fmt.Errorf("%w: %v to %s for %s", port.ErrInvalidTransition, from, to, sessionID)
	}

	changed, err := s.update(ctx, sessionID, from, to, patch)
	if err != nil {
		return false, fmt.Errorf("transition session %s to %s: %w", sessionID, to, err)
	}
	return changed, nil
}

func (s *Store) Patch(ctx context.Context, sessionID string, from []domain.Status, patch domain.SessionPatch) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("%w: no source status for %s", port.ErrInvalidTransition, sessionID)
	}

	changed, err := s.update(ctx, sessionID, from, "", patch)
	if err != nil {
		return false, fmt.Errorf("patch session %s: %w", sessionID, err)
	}
	return changed, nil
}

// update applies patch, and the status when to is set, while the current status is
// one of from. A failed condition reports false without an error.
func (s *Store) update(ctx context.Context, sessionID string, from []domain.Status, to domain.Status, patch domain.SessionPatch) (bool, error) {
	names := map[string]string{"#status": "status"}
	values := map[string]types.AttributeValue{
		":now": numberValue(s.now().UTC().UnixNano()),
	}
	sets := []string{"updated_at = :now"}
	if to != "" {
		sets = append(sets, "#status = :to")
		values[":to"] = &types.AttributeValueMemberS{Value: string(to)}
	}
	for col, v := range patchValues(patch) {
		sets = append(sets, col+" = :"+col)
		values[":"+col] = v
	}
	sort.Strings(sets)
	inClause := statusPlaceholders(":from", from, values)

	_, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       s.key(sessionID),
		UpdateExpression:          aws.String("SET " + strings.Join(sets, ", ")),
		ConditionExpression:       aws.String("attribute_exists(session_id) AND #status IN (" + inClause + ")"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if isConditionFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkStale finds candidates with a user query or a table scan, then updates each
// one conditionally. Rows that changed status in between are skipped.
func (s *Store) MarkStale(ctx context.Context, filter domain.StaleFilter, to domain.Status, reason string) ([]string, error) {
	if len(filter.Statuses) == 0 {
		return nil, nil
	}
	if !domain.AllowTransition(filter.Statuses, to) {
		return nil, fmt.Errorf("%w: %v to %s", port.ErrInvalidTransition, filter.Statuses, to)
	}

	values := map[string]types.AttributeValue{
		":cutoff": numberValue(filter.CreatedBefore.UTC().UnixNano()),
	}
	cond := "#status IN (" + statusPlaceholders(":st", filter.Statuses, values) + ") AND created_at < :cutoff"

	var (
		candidates []sessionItem
		err        error
	)
	if filter.UserID != "" {
		candidates, err = s.queryUser(ctx, filter.UserID, cond, map[string]string{"#status": "status"}, values)
	} else {
		candidates, err = s.scan(ctx, cond, map[string]string{"#status": "status"}, values)
	}
	if err != nil {
		return nil, fmt.Errorf("find stale sessions: %w", err)
	}

	patch := domain.SessionPatch{FailureReason: reason}
	var ids []string
	for _, it := range candidates {
		changed, err := s.Transition(ctx, it.SessionID, filter.Statuses, to, patch)
		if err != nil {
			return ids, fmt.Errorf("mark stale sessions %s: %w", to, err)
		}
		if changed {
			ids = append(ids, it.SessionID)
		}
	}
	return ids, nil
}

func (s *Store) DeleteByStatus(ctx context.Context, userID string, statuses []domain.Status) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	values := map[string]types.AttributeValue{}
	cond := "#status IN (" + statusPlaceholders(":st", statuses, values) + ")"
	names := map[string]string{"#status": "status"}

	items, err := s.queryUser(ctx, userID, cond, names, values)
	if err != nil {
		return 0, fmt.Errorf("find sessions for %s: %w", userID, err)
	}

	deleted := 0
	for _, it := range items {
		_, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName:                 aws.String(s.table),
			Key:                       s.key(it.SessionID),
			ConditionExpression:       aws.String(cond),
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
		})
		if isConditionFailed(err) {
			continue
		}
		if err != nil {
			return deleted, fmt.Errorf("delete session %s: %w", it.SessionID, err)
		}
		deleted++
	}
	return deleted, nil
}

func (s *Store) queryUser(ctx context.Context, userID, filter string, names map[string]string, values map[string]types.AttributeValue) ([]sessionItem, error) {
	vals := map[string]types.AttributeValue{":uid": &types.AttributeValueMemberS{Value: userID}}
	for k, v := range values {
		vals[k] = v
	}
	in := &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		IndexName:                 aws.String(s.userIndex),
		KeyConditionExpression:    aws.String("user_id = :uid"),
		ExpressionAttributeValues: vals,
	}
	if filter != "" {
		in.FilterExpression = aws.String(filter)
		in.ExpressionAttributeNames = names
	}

	var items []sessionItem
	paginator := dynamodb.NewQueryPaginator(s.api, in)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var batch []sessionItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, err
		}
		items = append(items, batch...)
	}
	return items, nil
}

func (s *Store) scan(ctx context.Context, filter string, names map[string]string, values map[string]types.AttributeValue) ([]sessionItem, error) {
	var items []sessionItem
	paginator := dynamodb.NewScanPaginator(s.api, &dynamodb.ScanInput{
		TableName:                 aws.String(s.table),
		FilterExpression:          aws.String(filter),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var batch []sessionItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, err
		}
		items = append(items, batch...)
	}
	return items, nil
}

func statusPlaceholders(prefix string, statuses []domain.Status, values map[string]types.AttributeValue) string {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		name := prefix + strconv.Itoa(i)
		names[i] = name
		values[name] = &types.AttributeValueMemberS{Value: string(st)}
	}
	return strings.Join(names, ", ")
}

func patchValues(patch domain.SessionPatch) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, 4)
	if patch.InputArchiveURL != "" {
		out["input_archive_url"] = &types.AttributeValueMemberS{Value: patch.InputArchiveURL}
	}
	if patch.InputArchiveExpiresAt != nil {
		out["input_archive_expires_at"] = numberValue(patch.InputArchiveExpiresAt.UTC().UnixNano())
	}
	if patch.ResultArchiveURL != "" {
		out["result_archive_url"] = &types.AttributeValueMemberS{Value: patch.ResultArchiveURL}
	}
	if patch.FailureReason != "" {
		out["failure_reason"] = &types.AttributeValueMemberS{Value: patch.FailureReason}
	}
	return out
}

func numberValue(n int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return err != nil && errors.As(err, &ccf)
}
