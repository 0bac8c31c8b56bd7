package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type avItem = map[string]types.AttributeValue

// fakeDynamo is an in-memory DynamoAPI understanding exactly the expression
// forms Dynamo emits: "a = :v", "attribute_(not_)exists(a)", "SET a = :v"
// and "ADD a :v". Scan filters are ignored.
type fakeDynamo struct {
	mu sync.Mutex

	keys    map[string][]string          // table -> key attributes
	indexes map[string]string            // index name -> hash attribute
	tables  map[string]map[string]avItem // table -> key string -> item
	order   map[string][]string          // table -> key strings in insertion order
	created map[string]bool
	errs    map[string]error // operation -> injected error

	pageSize    int
	unprocessed int // BatchGetItem calls that hold back one key per table
	calls       map[string]int
}

func newFakeDynamo(d *Dynamo) *fakeDynamo {
	f := &fakeDynamo{
		keys:    make(map[string][]string),
		indexes: make(map[string]string),
		tables:  make(map[string]map[string]avItem),
		order:   make(map[string][]string),
		created: make(map[string]bool),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
	for _, def := range d.tableDefinitions() {
		name := aws.ToString(def.TableName)
		for _, k := range def.KeySchema {
			f.keys[name] = append(f.keys[name], aws.ToString(k.AttributeName))
		}
		for _, gsi := range def.GlobalSecondaryIndexes {
			f.indexes[aws.ToString(gsi.IndexName)] = aws.ToString(gsi.KeySchema[0].AttributeName)
		}
		f.tables[name] = make(map[string]avItem)
	}
	return f
}

func attrString(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberN:
		return "N:" + v.Value
	case *types.AttributeValueMemberS:
		return "S:" + v.Value
	case *types.AttributeValueMemberBOOL:
		return "B:" + strconv.FormatBool(v.Value)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%T", av)
	}
}

func (f *fakeDynamo) keyString(table string, it avItem) string {
	parts := make([]string, 0, 2)
	for _, k := range f.keys[table] {
		parts = append(parts, attrString(it[k]))
	}
	return strings.Join(parts, "|")
}

func (f *fakeDynamo) enter(op string) error {
	f.calls[op]++
	return f.errs[op]
}

func evalCond(cond *string, existing avItem, vals avItem) bool {
	c := aws.ToString(cond)
	switch {
	case c == "":
		return true
	case strings.HasPrefix(c, "attribute_not_exists("):
		attr := strings.TrimSuffix(strings.TrimPrefix(c, "attribute_not_exists("), ")")
		return existing == nil || existing[attr] == nil
	case strings.HasPrefix(c, "attribute_exists("):
		attr := strings.TrimSuffix(strings.TrimPrefix(c, "attribute_exists("), ")")
		return existing != nil && existing[attr] != nil
	}
	f := strings.Fields(c)
	if len(f) != 3 || f[1] != "=" {
		panic("fakeDynamo: unsupported condition " + c)
	}
	return existing != nil && attrString(existing[f[0]]) == attrString(vals[f[2]])
}

func (f *fakeDynamo) store(table string, it avItem) {
	k := f.keyString(table, it)
	if _, ok := f.tables[table][k]; !ok {
		f.order[table] = append(f.order[table], k)
	}
	f.tables[table][k] = it
}

func (f *fakeDynamo) remove(table string, key avItem) {
	k := f.keyString(table, key)
	delete(f.tables[table], k)
	order := f.order[table][:0]
	for _, o := range f.order[table] {
		if o != k {
			order = append(order, o)
		}
	}
	f.order[table] = order
}

// applyUpdate evaluates a SET or ADD expression and returns the new avItem and
// the attributes it touched.
func applyUpdate(existing, key avItem, expr string, vals avItem) (avItem, avItem) {
	next := avItem{}
	for k, v := range key {
		next[k] = v
	}
	for k, v := range existing {
		next[k] = v
	}
	f := strings.Fields(expr)
	touched := avItem{}
	switch {
	case len(f) == 4 && f[0] == "SET" && f[2] == "=":
		next[f[1]] = vals[f[3]]
		touched[f[1]] = vals[f[3]]
	case len(f) == 3 && f[0] == "ADD":
		var cur int64
		if n, ok := next[f[1]].(*types.AttributeValueMemberN); ok {
			cur, _ = strconv.ParseInt(n.Value, 10, 64)
		}
		delta, _ := strconv.ParseInt(vals[f[2]].(*types.AttributeValueMemberN).Value, 10, 64)
		av := &types.AttributeValueMemberN{Value: strconv.FormatInt(cur+delta, 10)}
		next[f[1]] = av
		touched[f[1]] = av
	default:
		panic("fakeDynamo: unsupported update " + expr)
	}
	return next, touched
}

func conditionFailed() error {
	return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetItem"); err != nil {
		return nil, err
	}
	table := aws.ToString(in.TableName)
	return &dynamodb.GetItemOutput{Item: f.tables[table][f.keyString(table, in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("PutItem"); err != nil {
		return nil, err
	}
	table := aws.ToString(in.TableName)
	existing := f.tables[table][f.keyString(table, in.Item)]
	if !evalCond(in.ConditionExpression, existing, in.ExpressionAttributeValues) {
		return nil, conditionFailed()
	}
	f.store(table, in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdateItem"); err != nil {
		return nil, err
	}
	table := aws.ToString(in.TableName)
	existing := f.tables[table][f.keyString(table, in.Key)]
	if !evalCond(in.ConditionExpression, existing, in.ExpressionAttributeValues) {
		return nil, conditionFailed()
	}
	next, touched := applyUpdate(existing, in.Key, aws.ToString(in.UpdateExpression), in.ExpressionAttributeValues)
	f.store(table, next)

	out := &dynamodb.UpdateItemOutput{}
	switch in.ReturnValues {
	case types.ReturnValueAllNew:
		out.Attributes = next
	case types.ReturnValueUpdatedNew:
		out.Attributes = touched
	}
	return out, nil
}

// page slices items after the start key, honouring pageSize.
func (f *fakeDynamo) page(table string, items []avItem, start avItem) ([]avItem, avItem) {
	if start != nil {
		sk := f.keyString(table, start)
		for i, it := range items {
			if f.keyString(table, it) == sk {
				items = items[i+1:]
				break
			}
		}
	}
	if f.pageSize > 0 && len(items) > f.pageSize {
		items = items[:f.pageSize]
		last := items[len(items)-1]
		lek := avItem{}
		for _, k := range f.keys[table] {
			lek[k] = last[k]
		}
		return items, lek
	}
	return items, nil
}

func (f *fakeDynamo) scanTable(table string) []avItem {
	out := make([]avItem, 0, len(f.order[table]))
	for _, k := range f.order[table] {
		out = append(out, f.tables[table][k])
	}
	return out
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Query"); err != nil {
		return nil, err
	}
	table := aws.ToString(in.TableName)
	cond := strings.Fields(aws.ToString(in.KeyConditionExpression))
	if len(cond) != 3 {
		panic("fakeDynamo: unsupported key condition")
	}
	if idx := aws.ToString(in.IndexName); idx != "" && f.indexes[idx] != cond[0] {
		panic("fakeDynamo: key condition does not match index " + idx)
	}
	want := attrString(in.ExpressionAttributeValues[cond[2]])

	var matched []avItem
	for _, it := range f.scanTable(table) {
		if attrString(it[cond[0]]) != want {
			continue
		}
		if in.FilterExpression != nil && !evalCond(in.FilterExpression, it, in.ExpressionAttributeValues) {
			continue
		}
		matched = append(matched, it)
	}
	items, lek := f.page(table, matched, in.ExclusiveStartKey)
	return &dynamodb.QueryOutput{Items: items, Count: int32(len(items)), LastEvaluatedKey: lek}, nil
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Scan"); err != nil {
		return nil, err
	}
	table := aws.ToString(in.TableName)
	items, lek := f.page(table, f.scanTable(table), in.ExclusiveStartKey)
	return &dynamodb.ScanOutput{Items: items, Count: int32(len(items)), LastEvaluatedKey: lek}, nil
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("TransactWriteItems"); err != nil {
		return nil, err
	}
	reasons := make([]types.CancellationReason, len(in.TransactItems))
	cancelled := false
	for i, ti := range in.TransactItems {
		var ok bool
		switch {
		case ti.Put != nil:
			table := aws.ToString(ti.Put.TableName)
			ok = evalCond(ti.Put.ConditionExpression, f.tables[table][f.keyString(table, ti.Put.Item)], ti.Put.ExpressionAttributeValues)
		case ti.Delete != nil:
			table := aws.ToString(ti.Delete.TableName)
			ok = evalCond(ti.Delete.ConditionExpression, f.tables[table][f.keyString(table, ti.Delete.Key)], ti.Delete.ExpressionAttributeValues)
		case ti.Update != nil:
			table := aws.ToString(ti.Update.TableName)
			ok = evalCond(ti.Update.ConditionExpression, f.tables[table][f.keyString(table, ti.Update.Key)], ti.Update.ExpressionAttributeValues)
		}
		reasons[i].Code = aws.String("None")
		if !ok {
			reasons[i].Code = aws.String("ConditionalCheckFailed")
			cancelled = true
		}
	}
	if cancelled {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}
	for _, ti := range in.TransactItems {
		switch {
		case ti.Put != nil:
			f.store(aws.ToString(ti.Put.TableName), ti.Put.Item)
		case ti.Delete != nil:
			f.remove(aws.ToString(ti.Delete.TableName), ti.Delete.Key)
		case ti.Update != nil:
			table := aws.ToString(ti.Update.TableName)
			existing := f.tables[table][f.keyString(table, ti.Update.Key)]
			next, _ := applyUpdate(existing, ti.Update.Key, aws.ToString(ti.Update.UpdateExpression), ti.Update.ExpressionAttributeValues)
			f.store(table, next)
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeDynamo) BatchGetItem(_ context.Context, in *dynamodb.BatchGetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("BatchGetItem"); err != nil {
		return nil, err
	}
	n := 0
	for _, ka := range in.RequestItems {
		n += len(ka.Keys)
	}
	if n > 100 {
		return nil, fmt.Errorf("fakeDynamo: %d keys exceed the BatchGetItem limit", n)
	}

	out := &dynamodb.BatchGetItemOutput{
		Responses:       make(map[string][]avItem),
		UnprocessedKeys: make(map[string]types.KeysAndAttributes),
	}
	for table, ka := range in.RequestItems {
		keys := ka.Keys
		if f.unprocessed > 0 && len(keys) > 0 {
			out.UnprocessedKeys[table] = types.KeysAndAttributes{Keys: keys[len(keys)-1:], ConsistentRead: ka.ConsistentRead}
			keys = keys[:len(keys)-1]
		}
		for _, k := range keys {
			if it := f.tables[table][f.keyString(table, k)]; it != nil {
				out.Responses[table] = append(out.Responses[table], it)
			}
		}
	}
	if f.unprocessed > 0 {
		f.unprocessed--
	}
	return out, nil
}

func (f *fakeDynamo) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateTable"); err != nil {
		return nil, err
	}
	name := aws.ToString(in.TableName)
	if f.created[name] {
		return nil, &types.ResourceInUseException{Message: aws.String("Table already exists: " + name)}
	}
	f.created[name] = true
	return &dynamodb.CreateTableOutput{}, nil
}
