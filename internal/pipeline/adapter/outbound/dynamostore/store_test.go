package dynamostore

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/anthanhphan/statement-pipeline/internal/pipeline/config"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/domain"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/port"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeAPI struct {
	putErr   error
	puts     []*dynamodb.PutItemInput
	getItem  map[string]types.AttributeValue
	updates  []*dynamodb.UpdateItemInput
	updErrs  map[string]error
	deletes  []*dynamodb.DeleteItemInput
	queries  []*dynamodb.QueryInput
	scans    []*dynamodb.ScanInput
	rows     []map[string]types.AttributeValue
	describe error
}

func (f *fakeAPI) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.puts = append(f.puts, in)
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeAPI) GetItem(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: f.getItem}, nil
}

func (f *fakeAPI) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updates = append(f.updates, in)
	id := in.Key["session_id"].(*types.AttributeValueMemberS).Value
	return &dynamodb.UpdateItemOutput{}, f.updErrs[id]
}

func (f *fakeAPI) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.deletes = append(f.deletes, in)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeAPI) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queries = append(f.queries, in)
	return &dynamodb.QueryOutput{Items: f.rows}, nil
}

func (f *fakeAPI) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.scans = append(f.scans, in)
	return &dynamodb.ScanOutput{Items: f.rows}, nil
}

func (f *fakeAPI) DescribeTable(_ context.Context, _ *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return &dynamodb.DescribeTableOutput{}, f.describe
}

func row(t *testing.T, s domain.Session) map[string]types.AttributeValue {
	t.Helper()
	item, err := attributevalue.MarshalMap(toItem(&s))
	require.NoError(t, err)
	return item
}

func newStore(api API) *Store {
	return New(api, "analysis_sessions", "user_id-index", WithClock(func() time.Time { return base }))
}

func TestStore_Create(t *testing.T) {
	api := &fakeAPI{}
	s := newStore(api)
	session := &domain.Session{SessionID: "s1", UserID: "u1", Status: domain.StatusUploading, CreatedAt: base, UpdatedAt: base}

	require.NoError(t, s.Create(context.Background(), session))
	require.Len(t, api.puts, 1)
	assert.Equal(t, "attribute_not_exists(session_id)", aws.ToString(api.puts[0].ConditionExpression))
	assert.Equal(t, "uploading", api.puts[0].Item["status"].(*types.AttributeValueMemberS).Value)

	api.putErr = &types.ConditionalCheckFailedException{}
	assert.ErrorIs(t, s.Create(context.Background(), session), port.ErrSessionExists)
}

func TestStore_Get(t *testing.T) {
	expires := base.Add(24 * time.Hour)
	api := &fakeAPI{}
	s := newStore(api)

	_, err := s.Get(context.Background(), "s1")
	assert.ErrorIs(t, err, port.ErrSessionNotFound)

	api.getItem = row(t, domain.Session{
		SessionID:             "s1",
		UserID:                "u1",
		Status:                domain.StatusProcessing,
		FileCount:             3,
		InputArchiveURL:       "https://signed/u1/s1.zip",
		InputArchiveExpiresAt: &expires,
		CreatedAt:             base,
		UpdatedAt:             base,
	})
	got, err := s.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, got.Status)
	assert.Equal(t, 3, got.FileCount)
	assert.True(t, got.CreatedAt.Equal(base))
	require.NotNil(t, got.InputArchiveExpiresAt)
	assert.True(t, got.InputArchiveExpiresAt.Equal(expires))
}

func TestStore_Transition(t *testing.T) {
	api := &fakeAPI{updErrs: map[string]error{"gone": &types.ConditionalCheckFailedException{}}}
	s := newStore(api)

	ok, err := s.Transition(context.Background(), "s1",
		[]domain.Status{domain.StatusProcessing}, domain.StatusCompleted,
		domain.SessionPatch{ResultArchiveURL: "https://backend/out.zip"})
	require.NoError(t, err)
	assert.True(t, ok)

	in := api.updates[0]
	assert.Equal(t, "SET #status = :to, result_archive_url = :result_archive_url, updated_at = :now", aws.ToString(in.UpdateExpression))
	assert.Equal(t, "attribute_exists(session_id) AND #status IN (:from0)", aws.ToString(in.ConditionExpression))
	assert.Equal(t, "processing", in.ExpressionAttributeValues[":from0"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "completed", in.ExpressionAttributeValues[":to"].(*types.AttributeValueMemberS).Value)

	ok, err = s.Transition(context.Background(), "gone", []domain.Status{domain.StatusUploading}, domain.StatusFailed, domain.SessionPatch{})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Transition(context.Background(), "s1", nil, domain.StatusFailed, domain.SessionPatch{})
	assert.ErrorIs(t, err, port.ErrInvalidTransition)

	_, err = s.Transition(context.Background(), "s1", []domain.Status{domain.StatusExpired}, domain.StatusProcessing, domain.SessionPatch{})
	assert.ErrorIs(t, err, port.ErrInvalidTransition)
	assert.Len(t, api.updates, 2, "disallowed moves never reach the table")
}

func TestStore_Patch(t *testing.T) {
	api := &fakeAPI{updErrs: map[string]error{"gone": &types.ConditionalCheckFailedException{}}}
	s := newStore(api)
	expires := base.Add(48 * time.Hour)
	patch := domain.SessionPatch{InputArchiveURL: "https://signed/u1/s1.zip?v=2", InputArchiveExpiresAt: &expires}

	ok, err := s.Patch(context.Background(), "s1", domain.ArchiveStatuses, patch)
	require.NoError(t, err)
	assert.True(t, ok)

	in := api.updates[0]
	assert.Equal(t, "SET input_archive_expires_at = :input_archive_expires_at, input_archive_url = :input_archive_url, updated_at = :now", aws.ToString(in.UpdateExpression))
	assert.Equal(t, "attribute_exists(session_id) AND #status IN (:from0, :from1, :from2)", aws.ToString(in.ConditionExpression))
	assert.NotContains(t, in.ExpressionAttributeValues, ":to")

	ok, err = s.Patch(context.Background(), "gone", domain.ArchiveStatuses, patch)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Patch(context.Background(), "s1", nil, patch)
	assert.ErrorIs(t, err, port.ErrInvalidTransition)
}

func TestStore_MarkStale(t *testing.T) {
	stale := []map[string]types.AttributeValue{
		row(t, domain.Session{SessionID: "a", UserID: "u1", Status: domain.StatusProcessing, CreatedAt: base.Add(-time.Hour)}),
		row(t, domain.Session{SessionID: "b", UserID: "u1", Status: domain.StatusUploading, CreatedAt: base.Add(-time.Hour)}),
	}
	filter := domain.StaleFilter{
		UserID:        "u1",
		Statuses:      []domain.Status{domain.StatusUploading, domain.StatusProcessing},
		CreatedBefore: base.Add(-30 * time.Minute),
	}

	t.Run("UserQuery", func(t *testing.T) {
		api := &fakeAPI{rows: stale, updErrs: map[string]error{"b": &types.ConditionalCheckFailedException{}}}
		s := newStore(api)

		ids, err := s.MarkStale(context.Background(), filter, domain.StatusFailed, "timed out")
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, ids, "rows that moved on are skipped")

		require.Len(t, api.queries, 1)
		q := api.queries[0]
		assert.Equal(t, "user_id-index", aws.ToString(q.IndexName))
		assert.Equal(t, "#status IN (:st0, :st1) AND created_at < :cutoff", aws.ToString(q.FilterExpression))
		assert.Equal(t, "u1", q.ExpressionAttributeValues[":uid"].(*types.AttributeValueMemberS).Value)
		assert.Empty(t, api.scans)

		assert.Contains(t, aws.ToString(api.updates[0].UpdateExpression), "failure_reason = :failure_reason")
	})

	t.Run("SystemWideScan", func(t *testing.T) {
		api := &fakeAPI{rows: stale}
		s := newStore(api)
		all := filter
		all.UserID = ""

		ids, err := s.MarkStale(context.Background(), all, domain.StatusExpired, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, ids)
		assert.Len(t, api.scans, 1)
		assert.Empty(t, api.queries)
		assert.NotContains(t, aws.ToString(api.updates[0].UpdateExpression), "failure_reason")
	})
}

func TestStore_ListAndDelete(t *testing.T) {
	api := &fakeAPI{rows: []map[string]types.AttributeValue{
		row(t, domain.Session{SessionID: "old", UserID: "u1", Status: domain.StatusFailed, CreatedAt: base.Add(-time.Hour)}),
		row(t, domain.Session{SessionID: "new", UserID: "u1", Status: domain.StatusExpired, CreatedAt: base}),
	}}
	s := newStore(api)

	sessions, err := s.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "new", sessions[0].SessionID)

	n, err := s.DeleteByStatus(context.Background(), "u1", []domain.Status{domain.StatusFailed, domain.StatusExpired})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, api.deletes, 2)
	assert.Equal(t, "#status IN (:st0, :st1)", aws.ToString(api.deletes[0].ConditionExpression))
	_, hasUID := api.deletes[0].ExpressionAttributeValues[":uid"]
	assert.False(t, hasUID, "delete condition carries only the values it references")
}

// TestStore_DynamoDBLocal runs against DynamoDB Local when DYNAMODB_TEST_ENDPOINT is set.
// The table is created with the session_id key and the user_id-index GSI.
func TestStore_DynamoDBLocal(t *testing.T) {
	endpoint := os.Getenv("DYNAMODB_TEST_ENDPOINT")
	if endpoint == "" {
		t.Skip("DYNAMODB_TEST_ENDPOINT not set")
	}
	ctx := context.Background()
	table := "sessions_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	s, err := NewFromConfig(ctx,
		config.SessionsConfig{DSN: endpoint, Table: table, UserIndex: "user_id-index"},
		config.StorageConfig{Region: "us-east-1"})
	require.NoError(t, err)

	client := s.api.(*dynamodb.Client)
	_, err = client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(table),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("session_id"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("user_id"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{{AttributeName: aws.String("session_id"), KeyType: types.KeyTypeHash}},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{{
			IndexName:  aws.String("user_id-index"),
			KeySchema:  []types.KeySchemaElement{{AttributeName: aws.String("user_id"), KeyType: types.KeyTypeHash}},
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		}},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = client.DeleteTable(context.Background(), &dynamodb.DeleteTableInput{TableName: aws.String(table)})
	})

	require.NoError(t, s.Create(ctx, &domain.Session{SessionID: "s1", UserID: "u1", Status: domain.StatusProcessing, CreatedAt: base, UpdatedAt: base}))
	assert.ErrorIs(t, s.Create(ctx, &domain.Session{SessionID: "s1", UserID: "u1", Status: domain.StatusUploading, CreatedAt: base, UpdatedAt: base}), port.ErrSessionExists)

	ids, err := s.MarkStale(ctx, domain.StaleFilter{
		UserID:        "u1",
		Statuses:      []domain.Status{domain.StatusProcessing},
		CreatedBefore: base.Add(time.Minute),
	}, domain.StatusFailed, "timed out")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids)

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, "timed out", got.FailureReason)
}
