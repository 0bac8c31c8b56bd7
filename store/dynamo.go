package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client used by Dynamo.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	BatchGetItem(ctx context.Context, in *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

const (
	indexInterestsByOwner    = "owner_id-index"
	indexMatchesByPoster     = "poster_id-index"
	indexMatchesByInterested = "interested_user_id-index"
	counterUsers             = "users"
	counterPurposes          = "purposes"
	counterMessages          = "messages"
)

// dynamoTables holds the physical table names derived from a prefix.
type dynamoTables struct {
	users     string
	usernames string
	profiles  string
	purposes  string
	interests string
	seen      string
	matches   string
	messages  string
	counters  string
}

func newDynamoTables(prefix string) dynamoTables {
	return dynamoTables{
		users:     prefix + "users",
		usernames: prefix + "usernames",
		profiles:  prefix + "profiles",
		purposes:  prefix + "purposes",
		interests: prefix + "interests",
		seen:      prefix + "seen_purposes",
		matches:   prefix + "final_matches",
		messages:  prefix + "messages",
		counters:  prefix + "counters",
	}
}

type userItem struct {
	ID           int64     `dynamodbav:"id"`
	Username     string    `dynamodbav:"username"`
	PasswordHash string    `dynamodbav:"password_hash"`
	CreatedAt    time.Time `dynamodbav:"created_at"`
}

type usernameItem struct {
	Username string `dynamodbav:"username"`
	UserID   int64  `dynamodbav:"user_id"`
}

type profileItem struct {
	UserID    int64     `dynamodbav:"user_id"`
	Bio       string    `dynamodbav:"bio"`
	ImageURL  string    `dynamodbav:"profile_image_url"`
	UpdatedAt time.Time `dynamodbav:"updated_at"`
}

type purposeItem struct {
	ID          int64     `dynamodbav:"id"`
	OwnerID     int64     `dynamodbav:"user_id"`
	Title       string    `dynamodbav:"title"`
	Description string    `dynamodbav:"description"`
	CreatedAt   time.Time `dynamodbav:"created_at"`
}

// swipeItem is shared by the interests and seen tables. OwnerID is the
// purpose owner, denormalized so interests can be queried per poster.
type swipeItem struct {
	UserID    int64     `dynamodbav:"user_id"`
	PurposeID int64     `dynamodbav:"purpose_id"`
	OwnerID   int64     `dynamodbav:"owner_id"`
	CreatedAt time.Time `dynamodbav:"created_at"`
}

type matchItem struct {
	PurposeID        int64     `dynamodbav:"purpose_id"`
	InterestedUserID int64     `dynamodbav:"interested_user_id"`
	PosterID         int64     `dynamodbav:"poster_id"`
	Accepted         bool      `dynamodbav:"accepted"`
	CreatedAt        time.Time `dynamodbav:"created_at"`
}

type messageItem struct {
	ConversationID string    `dynamodbav:"conversation_id"`
	ID             int64     `dynamodbav:"id"`
	SenderID       int64     `dynamodbav:"sender_id"`
	ReceiverID     int64     `dynamodbav:"receiver_id"`
	Text           string    `dynamodbav:"text"`
	SentAt         time.Time `dynamodbav:"sent_at"`
}

func (it matchItem) match() Match {
	return Match{
		PurposeID:                it.PurposeID,
		PosterID:                 it.PosterID,
		InterestedUserID:         it.InterestedUserID,
		AcceptedByInterestedUser: it.Accepted,
		CreatedAt:                it.CreatedAt,
	}
}

func conversationID(a, b int64) string {
	lo, hi := conversationKey(a, b)
	return strconv.FormatInt(lo, 10) + "#" + strconv.FormatInt(hi, 10)
}

func numAttr(v int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
}

func strAttr(v string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: v}
}

func boolAttr(v bool) types.AttributeValue {
	return &types.AttributeValueMemberBOOL{Value: v}
}

// Dynamo implements Store on DynamoDB with one table per entity.
type Dynamo struct {
	client DynamoAPI
	tables dynamoTables
	now    func() time.Time
}

// NewDynamo wraps a DynamoDB client. Table names are prefix + entity name.
func NewDynamo(client DynamoAPI, prefix string) *Dynamo {
	return &Dynamo{client: client, tables: newDynamoTables(prefix), now: time.Now}
}

// NewDynamoClient builds a DynamoDB client from the default AWS chain.
// A non-empty endpoint targets DynamoDB Local with static dummy credentials.
func NewDynamoClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if endpoint != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// isConditionFailed reports whether err is a failed condition expression.
// A cancelled transaction only counts when one of its reasons is a failed
// condition; throttling or a concurrent transaction is a storage error.
func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return false
	}
	for _, r := range tce.CancellationReasons {
		if aws.ToString(r.Code) == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}

func (d *Dynamo) wrap(op, table string, err error) error {
	return fmt.Errorf("dynamo %s %s: %w", op, table, err)
}

// nextID atomically increments a named counter and returns the new value.
func (d *Dynamo) nextID(ctx context.Context, name string) (int64, error) {
	out, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(d.tables.counters),
		Key:                       map[string]types.AttributeValue{"name": strAttr(name)},
		UpdateExpression:          aws.String("ADD seq :one"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":one": numAttr(1)},
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, d.wrap("counter", d.tables.counters, err)
	}
	var c struct {
		Seq int64 `dynamodbav:"seq"`
	}
	if err := attributevalue.UnmarshalMap(out.Attributes, &c); err != nil {
		return 0, d.wrap("counter", d.tables.counters, err)
	}
	return c.Seq, nil
}

// get loads one item into out, returning ErrNotFound when it is absent.
func (d *Dynamo) get(ctx context.Context, table string, key map[string]types.AttributeValue, out any) error {
	res, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(table),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return d.wrap("get", table, err)
	}
	if len(res.Item) == 0 {
		return ErrNotFound
	}
	if err := attributevalue.UnmarshalMap(res.Item, out); err != nil {
		return d.wrap("unmarshal", table, err)
	}
	return nil
}

const (
	batchGetLimit   = 100
	batchGetRetries = 5
)

var errUnprocessedKeys = errors.New("unprocessed keys remain")

// batchGet reads every key in req, resubmitting UnprocessedKeys with a
// growing pause until DynamoDB returns them all. Missing items are absent
// from the result.
func (d *Dynamo) batchGet(ctx context.Context, req map[string]types.KeysAndAttributes) (map[string][]map[string]types.AttributeValue, error) {
	tables := strings.Join(slices.Sorted(maps.Keys(req)), ",")
	out := make(map[string][]map[string]types.AttributeValue, len(req))
	for attempt := 0; len(req) > 0; attempt++ {
		if attempt > batchGetRetries {
			return nil, d.wrap("batch get", tables, errUnprocessedKeys)
		}
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 20 * time.Millisecond):
			}
		}
		res, err := d.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: req})
		if err != nil {
			return nil, d.wrap("batch get", tables, err)
		}
		for table, items := range res.Responses {
			out[table] = append(out[table], items...)
		}
		req = res.UnprocessedKeys
	}
	return out, nil
}

// putNew writes item only if no item with the same key exists and reports
// whether it was written.
func (d *Dynamo) putNew(ctx context.Context, table, pk string, item any) (bool, error) {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return false, d.wrap("marshal", table, err)
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(table),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(" + pk + ")"),
	})
	if isConditionFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, d.wrap("put", table, err)
	}
	return true, nil
}

// queryAll drains a query through the SDK paginator.
func queryAll[T any](ctx context.Context, d *Dynamo, in *dynamodb.QueryInput) ([]T, error) {
	var out []T
	p := dynamodb.NewQueryPaginator(d.client, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, d.wrap("query", aws.ToString(in.TableName), err)
		}
		var items []T
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, d.wrap("unmarshal", aws.ToString(in.TableName), err)
		}
		out = append(out, items...)
	}
	return out, nil
}

func eqQuery(table, index, attr string, v types.AttributeValue) *dynamodb.QueryInput {
	in := &dynamodb.QueryInput{
		TableName:                 aws.String(table),
		KeyConditionExpression:    aws.String(attr + " = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":pk": v},
	}
	if index != "" {
		in.IndexName = aws.String(index)
	}
	return in
}

func withAcceptedFilter(in *dynamodb.QueryInput, accepted bool) *dynamodb.QueryInput {
	in.FilterExpression = aws.String("accepted = :accepted")
	in.ExpressionAttributeValues[":accepted"] = boolAttr(accepted)
	return in
}

func (d *Dynamo) CreateUser(ctx context.Context, username, passwordHash string) (User, error) {
	id, err := d.nextID(ctx, counterUsers)
	if err != nil {
		return User{}, err
	}
	u := userItem{ID: id, Username: username, PasswordHash: passwordHash, CreatedAt: d.now().UTC()}
	userAV, err := attributevalue.MarshalMap(u)
	if err != nil {
		return User{}, d.wrap("marshal", d.tables.users, err)
	}
	nameAV, err := attributevalue.MarshalMap(usernameItem{Username: username, UserID: id})
	if err != nil {
		return User{}, d.wrap("marshal", d.tables.usernames, err)
	}
	_, err = d.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(d.tables.usernames),
				Item:                nameAV,
				ConditionExpression: aws.String("attribute_not_exists(username)"),
			}},
			{Put: &types.Put{
				TableName:           aws.String(d.tables.users),
				Item:                userAV,
				ConditionExpression: aws.String("attribute_not_exists(id)"),
			}},
		},
	})
	if isConditionFailed(err) {
		return User{}, ErrConflict
	}
	if err != nil {
		return User{}, d.wrap("transact", d.tables.users, err)
	}
	return User(u), nil
}

func (d *Dynamo) UserByID(ctx context.Context, id int64) (User, error) {
	var u userItem
	if err := d.get(ctx, d.tables.users, map[string]types.AttributeValue{"id": numAttr(id)}, &u); err != nil {
		return User{}, err
	}
	return User(u), nil
}

func (d *Dynamo) UserByUsername(ctx context.Context, username string) (User, error) {
	var n usernameItem
	if err := d.get(ctx, d.tables.usernames, map[string]types.AttributeValue{"username": strAttr(username)}, &n); err != nil {
		return User{}, err
	}
	return d.UserByID(ctx, n.UserID)
}

func (d *Dynamo) RenameUser(ctx context.Context, id int64, username string) error {
	u, err := d.UserByID(ctx, id)
	if err != nil {
		return err
	}
	if u.Username == username {
		return nil
	}
	nameAV, err := attributevalue.MarshalMap(usernameItem{Username: username, UserID: id})
	if err != nil {
		return d.wrap("marshal", d.tables.usernames, err)
	}
	_, err = d.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(d.tables.usernames),
				Item:                nameAV,
				ConditionExpression: aws.String("attribute_not_exists(username)"),
			}},
			{Delete: &types.Delete{
				TableName: aws.String(d.tables.usernames),
				Key:       map[string]types.AttributeValue{"username": strAttr(u.Username)},
			}},
			{Update: &types.Update{
				TableName:                 aws.String(d.tables.users),
				Key:                       map[string]types.AttributeValue{"id": numAttr(id)},
				UpdateExpression:          aws.String("SET username = :username"),
				ConditionExpression:       aws.String("attribute_exists(id)"),
				ExpressionAttributeValues: map[string]types.AttributeValue{":username": strAttr(username)},
			}},
		},
	})
	if isConditionFailed(err) {
		return ErrConflict
	}
	if err != nil {
		return d.wrap("transact", d.tables.users, err)
	}
	return nil
}

func (d *Dynamo) UpsertProfile(ctx context.Context, p Profile) (Profile, error) {
	if _, err := d.UserByID(ctx, p.UserID); err != nil {
		return Profile{}, err
	}
	p.UpdatedAt = d.now().UTC()
	av, err := attributevalue.MarshalMap(profileItem(p))
	if err != nil {
		return Profile{}, d.wrap("marshal", d.tables.profiles, err)
	}
	if _, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tables.profiles),
		Item:      av,
	}); err != nil {
		return Profile{}, d.wrap("put", d.tables.profiles, err)
	}
	return p, nil
}

func (d *Dynamo) ProfileByUserID(ctx context.Context, userID int64) (Profile, error) {
	var it profileItem
	if err := d.get(ctx, d.tables.profiles, map[string]types.AttributeValue{"user_id": numAttr(userID)}, &it); err != nil {
		return Profile{}, err
	}
	return Profile(it), nil
}

// Participants reads users and profiles with BatchGetItem. Each id costs
// one key per table, so a chunk of half the request limit fills a request.
func (d *Dynamo) Participants(ctx context.Context, ids []int64) (map[int64]Participant, error) {
	out := make(map[int64]Participant, len(ids))
	unique := slices.Compact(slices.Sorted(slices.Values(ids)))
	for chunk := range slices.Chunk(unique, batchGetLimit/2) {
		userKeys := make([]map[string]types.AttributeValue, len(chunk))
		profileKeys := make([]map[string]types.AttributeValue, len(chunk))
		for i, id := range chunk {
			userKeys[i] = map[string]types.AttributeValue{"id": numAttr(id)}
			profileKeys[i] = map[string]types.AttributeValue{"user_id": numAttr(id)}
		}
		res, err := d.batchGet(ctx, map[string]types.KeysAndAttributes{
			d.tables.users:    {Keys: userKeys, ConsistentRead: aws.Bool(true)},
			d.tables.profiles: {Keys: profileKeys, ConsistentRead: aws.Bool(true)},
		})
		if err != nil {
			return nil, err
		}

		profiles := make(map[int64]profileItem, len(res[d.tables.profiles]))
		for _, av := range res[d.tables.profiles] {
			var p profileItem
			if err := attributevalue.UnmarshalMap(av, &p); err != nil {
				return nil, d.wrap("unmarshal", d.tables.profiles, err)
			}
			profiles[p.UserID] = p
		}
		for _, av := range res[d.tables.users] {
			var u userItem
			if err := attributevalue.UnmarshalMap(av, &u); err != nil {
				return nil, d.wrap("unmarshal", d.tables.users, err)
			}
			p := profiles[u.ID]
			out[u.ID] = Participant{UserID: u.ID, Username: u.Username, Bio: p.Bio, ImageURL: p.ImageURL}
		}
	}
	return out, nil
}

func (d *Dynamo) CreatePurpose(ctx context.Context, p Purpose) (Purpose, error) {
	owner, err := d.UserByID(ctx, p.OwnerID)
	if err != nil {
		return Purpose{}, err
	}
	id, err := d.nextID(ctx, counterPurposes)
	if err != nil {
		return Purpose{}, err
	}
	p.ID = id
	p.OwnerName = owner.Username
	p.CreatedAt = d.now().UTC()
	av, err := attributevalue.MarshalMap(purposeItem{
		ID: p.ID, OwnerID: p.OwnerID, Title: p.Title, Description: p.Description, CreatedAt: p.CreatedAt,
	})
	if err != nil {
		return Purpose{}, d.wrap("marshal", d.tables.purposes, err)
	}
	if _, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tables.purposes),
		Item:      av,
	}); err != nil {
		return Purpose{}, d.wrap("put", d.tables.purposes, err)
	}
	return p, nil
}

func (d *Dynamo) purposeItem(ctx context.Context, id int64) (purposeItem, error) {
	var it purposeItem
	err := d.get(ctx, d.tables.purposes, map[string]types.AttributeValue{"id": numAttr(id)}, &it)
	return it, err
}

// ownerNames resolves purpose owner usernames, caching per call.
type ownerNames struct {
	d     *Dynamo
	names map[int64]string
}

func (d *Dynamo) ownerNames() *ownerNames {
	return &ownerNames{d: d, names: make(map[int64]string)}
}

func (o *ownerNames) purpose(ctx context.Context, it purposeItem) (Purpose, error) {
	name, ok := o.names[it.OwnerID]
	if !ok {
		u, err := o.d.UserByID(ctx, it.OwnerID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return Purpose{}, err
		}
		name = u.Username
		o.names[it.OwnerID] = name
	}
	return Purpose{
		ID:          it.ID,
		OwnerID:     it.OwnerID,
		OwnerName:   name,
		Title:       it.Title,
		Description: it.Description,
		CreatedAt:   it.CreatedAt,
	}, nil
}

func (d *Dynamo) PurposeByID(ctx context.Context, id int64) (Purpose, error) {
	it, err := d.purposeItem(ctx, id)
	if err != nil {
		return Purpose{}, err
	}
	return d.ownerNames().purpose(ctx, it)
}

// swipedBy returns the purpose ids userID has an item for in table.
func (d *Dynamo) swipedBy(ctx context.Context, table string, userID int64) (map[int64]struct{}, error) {
	items, err := queryAll[swipeItem](ctx, d, eqQuery(table, "", "user_id", numAttr(userID)))
	if err != nil {
		return nil, err
	}
	out := make(map[int64]struct{}, len(items))
	for _, it := range items {
		out[it.PurposeID] = struct{}{}
	}
	return out, nil
}

// Feed scans the purposes table page by page. The exclusion sets are loaded
// when the sequence is ranged over.
func (d *Dynamo) Feed(ctx context.Context, userID int64) iter.Seq2[Purpose, error] {
	return func(yield func(Purpose, error) bool) {
		liked, err := d.swipedBy(ctx, d.tables.interests, userID)
		if err != nil {
			yield(Purpose{}, err)
			return
		}
		seen, err := d.swipedBy(ctx, d.tables.seen, userID)
		if err != nil {
			yield(Purpose{}, err)
			return
		}

		names := d.ownerNames()
		p := dynamodb.NewScanPaginator(d.client, &dynamodb.ScanInput{
			TableName:                 aws.String(d.tables.purposes),
			FilterExpression:          aws.String("user_id <> :uid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":uid": numAttr(userID)},
		})
		for p.HasMorePages() {
			page, err := p.NextPage(ctx)
			if err != nil {
				yield(Purpose{}, d.wrap("scan", d.tables.purposes, err))
				return
			}
			var items []purposeItem
			if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
				yield(Purpose{}, d.wrap("unmarshal", d.tables.purposes, err))
				return
			}
			for _, it := range items {
				if it.OwnerID == userID {
					continue
				}
				if _, ok := liked[it.ID]; ok {
					continue
				}
				if _, ok := seen[it.ID]; ok {
					continue
				}
				purpose, err := names.purpose(ctx, it)
				if !yield(purpose, err) || err != nil {
					return
				}
			}
		}
	}
}

// swipeRefs checks that both sides of a swipe exist and returns the purpose.
func (d *Dynamo) swipeRefs(ctx context.Context, userID, purposeID int64) (purposeItem, error) {
	if _, err := d.UserByID(ctx, userID); err != nil {
		return purposeItem{}, err
	}
	return d.purposeItem(ctx, purposeID)
}

func (d *Dynamo) recordSwipe(ctx context.Context, table string, userID, purposeID int64) (bool, error) {
	p, err := d.swipeRefs(ctx, userID, purposeID)
	if err != nil {
		return false, err
	}
	return d.putNew(ctx, table, "user_id", swipeItem{
		UserID:    userID,
		PurposeID: purposeID,
		OwnerID:   p.OwnerID,
		CreatedAt: d.now().UTC(),
	})
}

func (d *Dynamo) RecordInterest(ctx context.Context, userID, purposeID int64) (bool, error) {
	return d.recordSwipe(ctx, d.tables.interests, userID, purposeID)
}

func (d *Dynamo) RecordSeen(ctx context.Context, userID, purposeID int64) (bool, error) {
	return d.recordSwipe(ctx, d.tables.seen, userID, purposeID)
}

func (d *Dynamo) HasInterest(ctx context.Context, userID, purposeID int64) (bool, error) {
	var it swipeItem
	err := d.get(ctx, d.tables.interests, map[string]types.AttributeValue{
		"user_id":    numAttr(userID),
		"purpose_id": numAttr(purposeID),
	}, &it)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (d *Dynamo) InterestsForPoster(ctx context.Context, posterID int64) ([]InterestView, error) {
	interests, err := queryAll[swipeItem](ctx, d, eqQuery(d.tables.interests, indexInterestsByOwner, "owner_id", numAttr(posterID)))
	if err != nil {
		return nil, err
	}
	matches, err := queryAll[matchItem](ctx, d, eqQuery(d.tables.matches, indexMatchesByPoster, "poster_id", numAttr(posterID)))
	if err != nil {
		return nil, err
	}
	acted := make(map[matchKey]struct{}, len(matches))
	for _, m := range matches {
		acted[matchKey{purposeID: m.PurposeID, interestedUserID: m.InterestedUserID}] = struct{}{}
	}

	names := d.ownerNames()
	purposes := make(map[int64]Purpose)
	var out []InterestView
	for _, in := range interests {
		if _, ok := acted[matchKey{purposeID: in.PurposeID, interestedUserID: in.UserID}]; ok {
			continue
		}
		p, ok := purposes[in.PurposeID]
		if !ok {
			it, err := d.purposeItem(ctx, in.PurposeID)
			if err != nil {
				return nil, err
			}
			if p, err = names.purpose(ctx, it); err != nil {
				return nil, err
			}
			purposes[in.PurposeID] = p
		}
		out = append(out, InterestView{Purpose: p, InterestedUserID: in.UserID, CreatedAt: in.CreatedAt})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		if out[i].Purpose.ID != out[j].Purpose.ID {
			return out[i].Purpose.ID < out[j].Purpose.ID
		}
		return out[i].InterestedUserID < out[j].InterestedUserID
	})
	return out, nil
}

func (d *Dynamo) CreateMatch(ctx context.Context, m Match) (bool, error) {
	if _, err := d.purposeItem(ctx, m.PurposeID); err != nil {
		return false, err
	}
	return d.putNew(ctx, d.tables.matches, "purpose_id", matchItem{
		PurposeID:        m.PurposeID,
		InterestedUserID: m.InterestedUserID,
		PosterID:         m.PosterID,
		CreatedAt:        d.now().UTC(),
	})
}

func (d *Dynamo) AcceptMatch(ctx context.Context, purposeID, interestedUserID int64) (Match, error) {
	out, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(d.tables.matches),
		Key: map[string]types.AttributeValue{
			"purpose_id":         numAttr(purposeID),
			"interested_user_id": numAttr(interestedUserID),
		},
		UpdateExpression:    aws.String("SET accepted = :true"),
		ConditionExpression: aws.String("accepted = :false"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true":  boolAttr(true),
			":false": boolAttr(false),
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if isConditionFailed(err) {
		return Match{}, ErrNotFound
	}
	if err != nil {
		return Match{}, d.wrap("update", d.tables.matches, err)
	}
	var it matchItem
	if err := attributevalue.UnmarshalMap(out.Attributes, &it); err != nil {
		return Match{}, d.wrap("unmarshal", d.tables.matches, err)
	}
	return it.match(), nil
}

func (d *Dynamo) PendingMatchesFor(ctx context.Context, interestedUserID int64) ([]MatchView, error) {
	items, err := queryAll[matchItem](ctx, d, withAcceptedFilter(
		eqQuery(d.tables.matches, indexMatchesByInterested, "interested_user_id", numAttr(interestedUserID)), false))
	if err != nil {
		return nil, err
	}
	return d.matchViews(ctx, items)
}

func (d *Dynamo) MutualMatchesFor(ctx context.Context, userID int64) ([]MatchView, error) {
	asPoster, err := queryAll[matchItem](ctx, d, withAcceptedFilter(
		eqQuery(d.tables.matches, indexMatchesByPoster, "poster_id", numAttr(userID)), true))
	if err != nil {
		return nil, err
	}
	asInterested, err := queryAll[matchItem](ctx, d, withAcceptedFilter(
		eqQuery(d.tables.matches, indexMatchesByInterested, "interested_user_id", numAttr(userID)), true))
	if err != nil {
		return nil, err
	}
	seen := make(map[matchKey]struct{})
	var items []matchItem
	for _, it := range append(asPoster, asInterested...) {
		k := matchKey{purposeID: it.PurposeID, interestedUserID: it.InterestedUserID}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		items = append(items, it)
	}
	return d.matchViews(ctx, items)
}

func (d *Dynamo) matchViews(ctx context.Context, items []matchItem) ([]MatchView, error) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		if items[i].PurposeID != items[j].PurposeID {
			return items[i].PurposeID < items[j].PurposeID
		}
		return items[i].InterestedUserID < items[j].InterestedUserID
	})
	names := d.ownerNames()
	out := make([]MatchView, 0, len(items))
	for _, it := range items {
		pi, err := d.purposeItem(ctx, it.PurposeID)
		if err != nil {
			return nil, err
		}
		p, err := names.purpose(ctx, pi)
		if err != nil {
			return nil, err
		}
		out = append(out, MatchView{Match: it.match(), Purpose: p})
	}
	return out, nil
}

func (d *Dynamo) AppendMessage(ctx context.Context, m Message) (Message, error) {
	if _, err := d.UserByID(ctx, m.SenderID); err != nil {
		return Message{}, err
	}
	if _, err := d.UserByID(ctx, m.ReceiverID); err != nil {
		return Message{}, err
	}
	id, err := d.nextID(ctx, counterMessages)
	if err != nil {
		return Message{}, err
	}
	m.ID = id
	m.SentAt = d.now().UTC()
	av, err := attributevalue.MarshalMap(messageItem{
		ConversationID: conversationID(m.SenderID, m.ReceiverID),
		ID:             m.ID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		Text:           m.Text,
		SentAt:         m.SentAt,
	})
	if err != nil {
		return Message{}, d.wrap("marshal", d.tables.messages, err)
	}
	if _, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tables.messages),
		Item:      av,
	}); err != nil {
		return Message{}, d.wrap("put", d.tables.messages, err)
	}
	return m, nil
}

func (d *Dynamo) Conversation(ctx context.Context, a, b int64) ([]Message, error) {
	in := eqQuery(d.tables.messages, "", "conversation_id", strAttr(conversationID(a, b)))
	in.ScanIndexForward = aws.Bool(true)
	items, err := queryAll[messageItem](ctx, d, in)
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(items))
	for _, it := range items {
		out = append(out, Message{
			ID:         it.ID,
			SenderID:   it.SenderID,
			ReceiverID: it.ReceiverID,
			Text:       it.Text,
			SentAt:     it.SentAt,
		})
	}
	sortMessages(out)
	return out, nil
}

// EnsureTables creates every table and index the store needs. Tables that
// already exist are left alone.
func (d *Dynamo) EnsureTables(ctx context.Context) error {
	for _, in := range d.tableDefinitions() {
		_, err := d.client.CreateTable(ctx, in)
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			continue
		}
		if err != nil {
			return d.wrap("create table", aws.ToString(in.TableName), err)
		}
	}
	return nil
}

type keyAttr struct {
	name string
	typ  types.ScalarAttributeType
}

func tableInput(name string, keys []keyAttr, indexes map[string]keyAttr) *dynamodb.CreateTableInput {
	defined := map[string]types.ScalarAttributeType{}
	in := &dynamodb.CreateTableInput{
		TableName:   aws.String(name),
		BillingMode: types.BillingModePayPerRequest,
	}
	for i, k := range keys {
		kt := types.KeyTypeHash
		if i > 0 {
			kt = types.KeyTypeRange
		}
		in.KeySchema = append(in.KeySchema, types.KeySchemaElement{AttributeName: aws.String(k.name), KeyType: kt})
		defined[k.name] = k.typ
	}
	idxNames := make([]string, 0, len(indexes))
	for idx := range indexes {
		idxNames = append(idxNames, idx)
	}
	sort.Strings(idxNames)
	for _, idx := range idxNames {
		k := indexes[idx]
		in.GlobalSecondaryIndexes = append(in.GlobalSecondaryIndexes, types.GlobalSecondaryIndex{
			IndexName:  aws.String(idx),
			KeySchema:  []types.KeySchemaElement{{AttributeName: aws.String(k.name), KeyType: types.KeyTypeHash}},
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		})
		defined[k.name] = k.typ
	}
	attrNames := make([]string, 0, len(defined))
	for n := range defined {
		attrNames = append(attrNames, n)
	}
	sort.Strings(attrNames)
	for _, n := range attrNames {
		in.AttributeDefinitions = append(in.AttributeDefinitions, types.AttributeDefinition{
			AttributeName: aws.String(n),
			AttributeType: defined[n],
		})
	}
	return in
}

func (d *Dynamo) tableDefinitions() []*dynamodb.CreateTableInput {
	n := types.ScalarAttributeTypeN
	s := types.ScalarAttributeTypeS
	t := d.tables
	return []*dynamodb.CreateTableInput{
		tableInput(t.users, []keyAttr{{"id", n}}, nil),
		tableInput(t.usernames, []keyAttr{{"username", s}}, nil),
		tableInput(t.profiles, []keyAttr{{"user_id", n}}, nil),
		tableInput(t.purposes, []keyAttr{{"id", n}}, nil),
		tableInput(t.interests, []keyAttr{{"user_id", n}, {"purpose_id", n}},
			map[string]keyAttr{indexInterestsByOwner: {"owner_id", n}}),
		tableInput(t.seen, []keyAttr{{"user_id", n}, {"purpose_id", n}}, nil),
		tableInput(t.matches, []keyAttr{{"purpose_id", n}, {"interested_user_id", n}},
			map[string]keyAttr{
				indexMatchesByPoster:     {"poster_id", n},
				indexMatchesByInterested: {"interested_user_id", n},
			}),
		tableInput(t.messages, []keyAttr{{"conversation_id", s}, {"id", n}}, nil),
		tableInput(t.counters, []keyAttr{{"name", s}}, nil),
	}
}
