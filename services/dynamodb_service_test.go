package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goalchat/models"
)

type item = map[string]types.AttributeValue

// fakeDynamo understands exactly the requests DynamoDBRepository issues.
type fakeDynamo struct {
	mu            sync.Mutex
	tables        map[string]bool
	conversations map[string]item
	messages      map[string][]item
	goals         map[string]item
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{
		tables:        map[string]bool{},
		conversations: map[string]item{},
		messages:      map[string][]item{},
		goals:         map[string]item{},
	}
}

func (f *fakeDynamo) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.TableName)
	if f.tables[name] {
		return nil, &types.ResourceInUseException{Message: aws.String("exists")}
	}
	f.tables[name] = true
	return &dynamodb.CreateTableOutput{}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch aws.ToString(in.TableName) {
	case conversationsTable:
		id := attrString(in.Item, "ID")
		if _, ok := f.conversations[id]; ok && in.ConditionExpression != nil {
			return nil, &types.ConditionalCheckFailedException{}
		}
		f.conversations[id] = in.Item
	case messagesTable:
		cid := attrString(in.Item, "ConversationID")
		f.messages[cid] = append(f.messages[cid], in.Item)
	case goalsTable:
		f.goals[attrString(in.Item, "UserID")] = in.Item
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if aws.ToString(in.TableName) == conversationsTable {
		return &dynamodb.GetItemOutput{Item: f.conversations[attrString(in.Key, "ID")]}, nil
	}
	return &dynamodb.GetItemOutput{Item: f.goals[attrString(in.Key, "UserID")]}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := attrString(in.Key, "ID")
	cur, ok := f.conversations[id]
	if !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	updated := attrString(in.ExpressionAttributeValues, ":updated")
	if strings.Contains(aws.ToString(in.ConditionExpression), "UpdatedAt < :updated") && attrString(cur, "UpdatedAt") >= updated {
		return nil, &types.ConditionalCheckFailedException{}
	}
	next := item{}
	for k, v := range cur {
		next[k] = v
	}
	if v, ok := in.ExpressionAttributeValues[":title"]; ok {
		next["Title"] = v
	}
	next["UpdatedAt"] = in.ExpressionAttributeValues[":updated"]
	f.conversations[id] = next
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := append([]item(nil), f.messages[attrString(in.ExpressionAttributeValues, ":cid")]...)
	sort.Slice(items, func(i, j int) bool { return attrString(items[i], "SortKey") < attrString(items[j], "SortKey") })
	return &dynamodb.QueryOutput{Items: items}, nil
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	uid := attrString(in.ExpressionAttributeValues, ":uid")
	var out []item
	for _, it := range f.conversations {
		if attrString(it, "UserID") == uid {
			out = append(out, it)
		}
	}
	return &dynamodb.ScanOutput{Items: out}, nil
}

func TestDynamoDBEnsureTablesIsIdempotent(t *testing.T) {
	db := newFakeDynamo()
	repo := NewDynamoDBRepository(db, newStepClock(), seqIDs("c"), nil)

	require.NoError(t, repo.EnsureTables(context.Background()))
	require.NoError(t, repo.EnsureTables(context.Background()))
	assert.Len(t, db.tables, 3)
}

func TestDynamoDBConversationLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewDynamoDBRepository(newFakeDynamo(), newStepClock(), seqIDs("c"), nil)

	first, err := repo.CreateConversation(ctx, userID, "Generate a Roadmap")
	require.NoError(t, err)
	second, err := repo.CreateConversation(ctx, userID, "")
	require.NoError(t, err)
	_, err = repo.CreateConversation(ctx, "someone-else", "")
	require.NoError(t, err)

	later := baseTime.Add(time.Hour)
	require.NoError(t, repo.SaveMessage(ctx, models.Message{ID: "m2", ConversationID: first.ID, Role: models.RoleAssistant, Content: "b", Timestamp: later.Add(time.Second)}))
	require.NoError(t, repo.SaveMessage(ctx, models.Message{ID: "m1", ConversationID: first.ID, Role: models.RoleUser, Content: "a\n- list", Timestamp: later}))
	require.NoError(t, repo.UpdateConversationTitle(ctx, second.ID, "Renamed"))

	history, err := repo.GetHistory(ctx, userID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, first.ID, history[0].ID)
	assert.Equal(t, "New Chat - Generate a Roadmap...", history[0].Title)
	require.Len(t, history[0].Messages, 2)
	assert.Equal(t, "a\n- list", history[0].Messages[0].Content)
	assert.Equal(t, models.RoleUser, history[0].Messages[0].Role)
	assert.Equal(t, later, history[0].Messages[0].Timestamp)
	assert.Equal(t, "m2", history[0].Messages[1].ID)
	assert.True(t, history[0].UpdatedAt.After(history[0].CreatedAt))
	assert.Equal(t, "Renamed", history[1].Title)
	assert.Empty(t, history[1].Messages)

	assert.ErrorIs(t, repo.UpdateConversationTitle(ctx, "missing", "x"), ErrNotFound)
	assert.ErrorIs(t, repo.SaveMessage(ctx, models.Message{ConversationID: "missing"}), ErrNotFound)
}

func TestDynamoDBGoalRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewDynamoDBRepository(newFakeDynamo(), newStepClock(), seqIDs("c"), nil)

	none, err := repo.GetContext(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, none)

	due := baseTime.Add(72 * time.Hour)
	goal := models.Goal{
		ID: "g1", UserID: userID, Title: "Learn Go", Description: "Concurrency",
		Status:    models.StatusInProgress,
		Roadmap:   []string{"Week 1", "Week 2"},
		Tasks:     []models.Task{{ID: "t1", GoalID: "g1", Description: "Tour of Go", Status: models.StatusCompleted, DueDate: &due}},
		CreatedAt: baseTime.Add(-time.Hour),
		UpdatedAt: baseTime.Add(-time.Hour),
	}
	stored, err := repo.UpdateGoal(ctx, goal)
	require.NoError(t, err)
	assert.True(t, stored.UpdatedAt.After(goal.UpdatedAt))

	got, err := repo.GetContext(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, stored, *got)
}

func TestMessageSortKeyOrdersChronologically(t *testing.T) {
	a := models.Message{ID: "b", Timestamp: baseTime}
	b := models.Message{ID: "a", Timestamp: baseTime.Add(100 * time.Millisecond)}
	c := models.Message{ID: "c", Timestamp: baseTime.Add(time.Second)}
	assert.Less(t, messageSortKey(a), messageSortKey(b))
	assert.Less(t, messageSortKey(b), messageSortKey(c))
}

func TestDynamoDBSaveMessageNeverMovesUpdatedAtBack(t *testing.T) {
	ctx := context.Background()
	db := newFakeDynamo()
	repo := NewDynamoDBRepository(db, fixedClock(baseTime), seqIDs("c"), nil)
	conv, err := repo.CreateConversation(ctx, userID, "")
	require.NoError(t, err)

	newest := baseTime.Add(2 * time.Hour)
	require.NoError(t, repo.SaveMessage(ctx, models.Message{ID: "m2", ConversationID: conv.ID, Role: models.RoleAssistant, Timestamp: newest}))
	require.NoError(t, repo.SaveMessage(ctx, models.Message{ID: "m1", ConversationID: conv.ID, Role: models.RoleUser, Timestamp: baseTime.Add(time.Hour)}))

	history, err := repo.GetHistory(ctx, userID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, newest, history[0].UpdatedAt)
	assert.Equal(t, []string{"m1", "m2"}, []string{history[0].Messages[0].ID, history[0].Messages[1].ID})
}

func TestFormatTimeIsFixedWidth(t *testing.T) {
	a := formatTime(time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC))
	b := formatTime(time.Date(2026, 5, 4, 12, 0, 0, 5, time.UTC))
	assert.Len(t, b, len(a))
	assert.Less(t, a, b)
}
