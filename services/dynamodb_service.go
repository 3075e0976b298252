package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"goalchat/models"
)

const (
	conversationsTable = "Conversations"
	messagesTable      = "Messages"
	goalsTable         = "Goals"

	// sortKeyLayout is fixed width so sort keys order lexicographically.
	sortKeyLayout = "2006-01-02T15:04:05.000000000Z"
)

// DynamoDBAPI is the subset of the DynamoDB client the repository uses.
type DynamoDBAPI interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoDBRepository stores conversations, messages and goals in three
// DynamoDB tables.
type DynamoDBRepository struct {
	db    DynamoDBAPI
	clock Clock
	newID IDFunc
	log   *zap.Logger
}

// NewDynamoDBClient connects to DynamoDB. A non-empty endpoint points the
// client at a local DynamoDB with static dummy credentials.
func NewDynamoDBClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if endpoint != "" {
		customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{URL: endpoint}, nil
		})
		opts = append(opts,
			config.WithEndpointResolverWithOptions(customResolver),
			config.WithCredentialsProvider(credentials.StaticCredentialsProvider{
				Value: aws.Credentials{
					AccessKeyID: "dummy", SecretAccessKey: "dummy", SessionToken: "dummy",
				},
			}),
		)
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg), nil
}

func NewDynamoDBRepository(db DynamoDBAPI, clock Clock, newID IDFunc, log *zap.Logger) *DynamoDBRepository {
	if log == nil {
		log = zap.NewNop()
	}
	return &DynamoDBRepository{db: db, clock: clock, newID: newID, log: log}
}

var _ Repository = (*DynamoDBRepository)(nil)

// EnsureTables creates the three tables, ignoring ones that already exist.
func (r *DynamoDBRepository) EnsureTables(ctx context.Context) error {
	specs := []struct {
		name string
		hash string
		rng  string
	}{
		{conversationsTable, "ID", ""},
		{messagesTable, "ConversationID", "SortKey"},
		{goalsTable, "UserID", ""},
	}
	for _, s := range specs {
		input := &dynamodb.CreateTableInput{
			TableName: aws.String(s.name),
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String(s.hash), AttributeType: types.ScalarAttributeTypeS},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(s.hash), KeyType: types.KeyTypeHash},
			},
			BillingMode: types.BillingModePayPerRequest,
		}
		if s.rng != "" {
			input.AttributeDefinitions = append(input.AttributeDefinitions,
				types.AttributeDefinition{AttributeName: aws.String(s.rng), AttributeType: types.ScalarAttributeTypeS})
			input.KeySchema = append(input.KeySchema,
				types.KeySchemaElement{AttributeName: aws.String(s.rng), KeyType: types.KeyTypeRange})
		}

		_, err := r.db.CreateTable(ctx, input)
		var inUse *types.ResourceInUseException
		switch {
		case err == nil:
			r.log.Info("Created DynamoDB table", zap.String("table", s.name))
		case errors.As(err, &inUse):
			r.log.Debug("DynamoDB table already exists", zap.String("table", s.name))
		default:
			return fmt.Errorf("create table %s: %w", s.name, err)
		}
	}
	return nil
}

func (r *DynamoDBRepository) GetHistory(ctx context.Context, userID string) ([]models.Conversation, error) {
	convs := make([]models.Conversation, 0)
	var startKey map[string]types.AttributeValue
	for {
		out, err := r.db.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(conversationsTable),
			FilterExpression: aws.String("UserID = :uid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":uid": &types.AttributeValueMemberS{Value: userID},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("scan conversations: %w", err)
		}
		for _, item := range out.Items {
			convs = append(convs, conversationFromItem(item))
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	sort.SliceStable(convs, func(i, j int) bool { return convs[i].CreatedAt.Before(convs[j].CreatedAt) })

	for i := range convs {
		msgs, err := r.messages(ctx, convs[i].ID)
		if err != nil {
			return nil, err
		}
		convs[i].Messages = msgs
	}
	return convs, nil
}

func (r *DynamoDBRepository) messages(ctx context.Context, conversationID string) ([]models.Message, error) {
	msgs := make([]models.Message, 0)
	var startKey map[string]types.AttributeValue
	for {
		out, err := r.db.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(messagesTable),
			KeyConditionExpression: aws.String("ConversationID = :cid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":cid": &types.AttributeValueMemberS{Value: conversationID},
			},
			ScanIndexForward:  aws.Bool(true),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("query messages of %s: %w", conversationID, err)
		}
		for _, item := range out.Items {
			msgs = append(msgs, messageFromItem(item))
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return msgs, nil
}

func (r *DynamoDBRepository) GetContext(ctx context.Context, userID string) (*models.Goal, error) {
	out, err := r.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(goalsTable),
		Key: map[string]types.AttributeValue{
			"UserID": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get goal of %s: %w", userID, err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	g, err := goalFromItem(out.Item)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *DynamoDBRepository) CreateConversation(ctx context.Context, userID, initialMessage string) (models.Conversation, error) {
	c := newConversation(r.newID(), userID, initialMessage, r.clock)
	_, err := r.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(conversationsTable),
		Item:                conversationItem(c),
		ConditionExpression: aws.String("attribute_not_exists(ID)"),
	})
	if err != nil {
		return models.Conversation{}, fmt.Errorf("put conversation: %w", err)
	}
	return c, nil
}

func (r *DynamoDBRepository) UpdateConversationTitle(ctx context.Context, conversationID, title string) error {
	return r.updateConversation(ctx, conversationID, "SET #title = :title, UpdatedAt = :updated", map[string]string{"#title": "Title"},
		map[string]types.AttributeValue{
			":title":   &types.AttributeValueMemberS{Value: title},
			":updated": &types.AttributeValueMemberS{Value: formatTime(r.clock.Now())},
		})
}

// SaveMessage stores the message and moves the conversation's UpdatedAt
// forward. A write that lands after a newer one leaves UpdatedAt alone.
func (r *DynamoDBRepository) SaveMessage(ctx context.Context, msg models.Message) error {
	if err := r.touchConversation(ctx, msg.ConversationID, laterOf(r.clock.Now(), msg.Timestamp)); err != nil {
		return err
	}
	_, err = r.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(messagesTable),
		Item:      messageItem(msg),
	})
	if err != nil {
		return fmt.Errorf("put message %s: %w", msg.ID, err)
	}
	return nil
}

func (r *DynamoDBRepository) UpdateGoal(ctx context.Context, goal models.Goal) (models.Goal, error) {
	stored := stampGoal(goal, r.clock)
	item, err := goalItem(stored)
	if err != nil {
		return models.Goal{}, err
	}
	if _, err := r.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(goalsTable),
		Item:      item,
	}); err != nil {
		return models.Goal{}, fmt.Errorf("put goal %s: %w", goal.ID, err)
	}
	return stored, nil
}

// touchConversation raises UpdatedAt to at, never lowering it.
func (r *DynamoDBRepository) touchConversation(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(conversationsTable),
		Key: map[string]types.AttributeValue{
			"ID": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression:    aws.String("SET UpdatedAt = :updated"),
		ConditionExpression: aws.String("attribute_exists(ID) AND UpdatedAt < :updated"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":updated": &types.AttributeValueMemberS{Value: formatTime(at)},
		},
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		out, getErr := r.db.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String(conversationsTable),
			Key: map[string]types.AttributeValue{
				"ID": &types.AttributeValueMemberS{Value: id},
			},
		})
		if getErr != nil {
			return fmt.Errorf("get conversation %s: %w", id, getErr)
		}
		if len(out.Item) == 0 {
			return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("update conversation %s: %w", id, err)
	}
	return nil
}

func (r *DynamoDBRepository) updateConversation(ctx context.Context, id, expr string, names map[string]string, values map[string]types.AttributeValue) error {
	_, err := r.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(conversationsTable),
		Key: map[string]types.AttributeValue{
			"ID": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(ID)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update conversation %s: %w", id, err)
	}
	return nil
}

func conversationItem(c models.Conversation) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"ID":        &types.AttributeValueMemberS{Value: c.ID},
		"UserID":    &types.AttributeValueMemberS{Value: c.UserID},
		"Title":     &types.AttributeValueMemberS{Value: c.Title},
		"CreatedAt": &types.AttributeValueMemberS{Value: formatTime(c.CreatedAt)},
		"UpdatedAt": &types.AttributeValueMemberS{Value: formatTime(c.UpdatedAt)},
	}
}

func conversationFromItem(item map[string]types.AttributeValue) models.Conversation {
	return models.Conversation{
		ID:        attrString(item, "ID"),
		UserID:    attrString(item, "UserID"),
		Title:     attrString(item, "Title"),
		CreatedAt: attrTime(item, "CreatedAt"),
		UpdatedAt: attrTime(item, "UpdatedAt"),
		Messages:  []models.Message{},
	}
}

func messageItem(m models.Message) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"ConversationID": &types.AttributeValueMemberS{Value: m.ConversationID},
		"SortKey":        &types.AttributeValueMemberS{Value: messageSortKey(m)},
		"ID":             &types.AttributeValueMemberS{Value: m.ID},
		"Role":           &types.AttributeValueMemberS{Value: string(m.Role)},
		"Content":        &types.AttributeValueMemberS{Value: m.Content},
		"Timestamp":      &types.AttributeValueMemberS{Value: formatTime(m.Timestamp)},
	}
}

func messageFromItem(item map[string]types.AttributeValue) models.Message {
	return models.Message{
		ID:             attrString(item, "ID"),
		ConversationID: attrString(item, "ConversationID"),
		Role:           models.Role(attrString(item, "Role")),
		Content:        attrString(item, "Content"),
		Timestamp:      attrTime(item, "Timestamp"),
	}
}

func messageSortKey(m models.Message) string {
	return formatTime(m.Timestamp) + "#" + m.ID
}

func goalItem(g models.Goal) (map[string]types.AttributeValue, error) {
	tasks, err := json.Marshal(g.Tasks)
	if err != nil {
		return nil, fmt.Errorf("encode tasks of goal %s: %w", g.ID, err)
	}
	roadmap := make([]types.AttributeValue, len(g.Roadmap))
	for i, step := range g.Roadmap {
		roadmap[i] = &types.AttributeValueMemberS{Value: step}
	}
	return map[string]types.AttributeValue{
		"UserID":          &types.AttributeValueMemberS{Value: g.UserID},
		"ID":              &types.AttributeValueMemberS{Value: g.ID},
		"Title":           &types.AttributeValueMemberS{Value: g.Title},
		"Description":     &types.AttributeValueMemberS{Value: g.Description},
		"Status":          &types.AttributeValueMemberS{Value: string(g.Status)},
		"Roadmap":         &types.AttributeValueMemberL{Value: roadmap},
		"ProgressSummary": &types.AttributeValueMemberS{Value: g.ProgressSummary},
		"Tasks":           &types.AttributeValueMemberS{Value: string(tasks)},
		"CreatedAt":       &types.AttributeValueMemberS{Value: formatTime(g.CreatedAt)},
		"UpdatedAt":       &types.AttributeValueMemberS{Value: formatTime(g.UpdatedAt)},
	}, nil
}

func goalFromItem(item map[string]types.AttributeValue) (models.Goal, error) {
	g := models.Goal{
		ID:              attrString(item, "ID"),
		UserID:          attrString(item, "UserID"),
		Title:           attrString(item, "Title"),
		Description:     attrString(item, "Description"),
		Status:          models.GoalStatus(attrString(item, "Status")),
		ProgressSummary: attrString(item, "ProgressSummary"),
		CreatedAt:       attrTime(item, "CreatedAt"),
		UpdatedAt:       attrTime(item, "UpdatedAt"),
	}
	if l, ok := item["Roadmap"].(*types.AttributeValueMemberL); ok && len(l.Value) > 0 {
		for _, v := range l.Value {
			if s, ok := v.(*types.AttributeValueMemberS); ok {
				g.Roadmap = append(g.Roadmap, s.Value)
			}
		}
	}
	if raw := attrString(item, "Tasks"); raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &g.Tasks); err != nil {
			return models.Goal{}, fmt.Errorf("decode tasks of goal %s: %w", g.ID, err)
		}
	}
	return g, nil
}

func attrString(item map[string]types.AttributeValue, key string) string {
	if v, ok := item[key].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func attrTime(item map[string]types.AttributeValue, key string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, attrString(item, key))
	return t
}

// formatTime is fixed width so stored times compare as strings.
func formatTime(t time.Time) string {
	return t.UTC().Format(sortKeyLayout)
}
