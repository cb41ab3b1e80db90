// Package dynamodb implements the store backend on Amazon DynamoDB.
//
// Records live in a single table keyed by pk = "<type>#<key>". The raw
// payload is kept verbatim in a binary attribute so reads return
// exactly what was written; a flattened copy of the top-level JSON
// fields is kept in a map attribute so queries can filter server-side.
// Versions are maintained with conditional update expressions, which
// makes versioned writes safe to retry: a duplicate delivery of an
// already-applied write fails its version condition and surfaces as a
// conflict.
package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/corefabric/gatekit/store"
)

// Client is the subset of the DynamoDB API the backend uses.
// *dynamodb.Client satisfies it.
type Client interface {
	GetItem(ctx context.Context, params *awsdynamodb.GetItemInput, optFns ...func(*awsdynamodb.Options)) (*awsdynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *awsdynamodb.UpdateItemInput, optFns ...func(*awsdynamodb.Options)) (*awsdynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *awsdynamodb.DeleteItemInput, optFns ...func(*awsdynamodb.Options)) (*awsdynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *awsdynamodb.QueryInput, optFns ...func(*awsdynamodb.Options)) (*awsdynamodb.QueryOutput, error)
}

// Config configures the DynamoDB backend.
type Config struct {
	// TableName is the records table. Required.
	TableName string

	// TypeIndexName is the GSI keyed by record type, used by Query.
	// Defaults to "rtype-index".
	TypeIndexName string
}

func (c *Config) validate() error {
	if c.TableName == "" {
		return errors.New("dynamodb: table name is required")
	}
	if c.TypeIndexName == "" {
		c.TypeIndexName = "rtype-index"
	}
	return nil
}

// Backend implements store.Backend on DynamoDB.
type Backend struct {
	client Client
	config Config
}

// New creates a DynamoDB backend.
func New(client Client, config Config) (*Backend, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &Backend{client: client, config: config}, nil
}

func recordPK(resourceType, key string) string {
	return resourceType + "#" + key
}

// Get implements store.Backend.
func (b *Backend) Get(ctx context.Context, resourceType, key string) (*store.Record, error) {
	out, err := b.client.GetItem(ctx, &awsdynamodb.GetItemInput{
		TableName:      aws.String(b.config.TableName),
		Key:            itemKey(resourceType, key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, classifyAWS(err)
	}
	// The SDK may report a missing item as an empty non-nil map.
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("%s/%s: %w", resourceType, key, store.ErrNotFound)
	}

	return unmarshalRecord(resourceType, key, out.Item)
}

// Put implements store.Backend. The write runs as a single conditional
// update so the version check and the payload replacement are atomic.
func (b *Backend) Put(ctx context.Context, resourceType, key string, payload []byte, expectedVersion int64) (int64, error) {
	doc, err := flattenPayload(payload)
	if err != nil {
		return 0, store.Permanent(fmt.Errorf("dynamodb: invalid payload: %w", err))
	}

	input := &awsdynamodb.UpdateItemInput{
		TableName: aws.String(b.config.TableName),
		Key:       itemKey(resourceType, key),
		UpdateExpression: aws.String(
			"SET payload = :p, #doc = :d, rtype = :rt, rkey = :rk, " +
				"updated_at = :now, #version = if_not_exists(#version, :zero) + :one"),
		ExpressionAttributeNames: map[string]string{
			"#doc":     "doc",
			"#version": "version",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p":    &types.AttributeValueMemberB{Value: payload},
			":d":    &types.AttributeValueMemberM{Value: doc},
			":rt":   &types.AttributeValueMemberS{Value: resourceType},
			":rk":   &types.AttributeValueMemberS{Value: key},
			":now":  &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
			":zero": &types.AttributeValueMemberN{Value: "0"},
			":one":  &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	}

	switch {
	case expectedVersion == store.NoVersion:
		// Unconditional overwrite.
	case expectedVersion == 0:
		input.ConditionExpression = aws.String("attribute_not_exists(pk)")
	default:
		input.ConditionExpression = aws.String("#version = :expected")
		input.ExpressionAttributeValues[":expected"] = &types.AttributeValueMemberN{
			Value: strconv.FormatInt(expectedVersion, 10),
		}
	}

	out, err := b.client.UpdateItem(ctx, input)
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return 0, store.Conflict(fmt.Errorf("%s/%s: expected version %d: %w",
				resourceType, key, expectedVersion, err))
		}
		return 0, classifyAWS(err)
	}

	return attributeVersion(out.Attributes)
}

// Delete implements store.Backend.
func (b *Backend) Delete(ctx context.Context, resourceType, key string) error {
	_, err := b.client.DeleteItem(ctx, &awsdynamodb.DeleteItemInput{
		TableName:           aws.String(b.config.TableName),
		Key:                 itemKey(resourceType, key),
		ConditionExpression: aws.String("attribute_exists(pk)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return fmt.Errorf("%s/%s: %w", resourceType, key, store.ErrNotFound)
		}
		return classifyAWS(err)
	}
	return nil
}

// Query implements store.Backend. It queries the type GSI and filters
// server-side; ordering and limiting happen client-side because the
// order field is arbitrary.
func (b *Backend) Query(ctx context.Context, resourceType string, filter store.Filter) (store.Iterator, error) {
	input := &awsdynamodb.QueryInput{
		TableName:              aws.String(b.config.TableName),
		IndexName:              aws.String(b.config.TypeIndexName),
		KeyConditionExpression: aws.String("rtype = :rt"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":rt": &types.AttributeValueMemberS{Value: resourceType},
		},
	}

	if len(filter.Conditions) > 0 {
		expr, names, err := buildFilterExpression(filter.Conditions, input.ExpressionAttributeValues)
		if err != nil {
			return nil, store.Permanent(err)
		}
		input.FilterExpression = aws.String(expr)
		input.ExpressionAttributeNames = names
	}

	var records []*store.Record
	paginator := awsdynamodb.NewQueryPaginator(b.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classifyAWS(err)
		}
		for _, item := range page.Items {
			rec, err := unmarshalQueryItem(resourceType, item)
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
		}
	}

	if filter.OrderBy != "" {
		sortRecords(records, filter.OrderBy, filter.Descending)
	} else {
		sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	}
	if filter.Limit > 0 && len(records) > filter.Limit {
		records = records[:filter.Limit]
	}

	return store.NewSliceIterator(records), nil
}

func itemKey(resourceType, key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: recordPK(resourceType, key)},
	}
}

// flattenPayload converts the JSON payload into a DynamoDB map so
// filter expressions can address its top-level fields.
func flattenPayload(payload []byte) (map[string]types.AttributeValue, error) {
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, err
	}
	return attributevalue.MarshalMap(doc)
}

// buildFilterExpression renders store conditions as a DynamoDB filter
// expression over the flattened document attribute.
func buildFilterExpression(
	conditions []store.Condition, values map[string]types.AttributeValue,
) (string, map[string]string, error) {
	names := map[string]string{"#doc": "doc"}
	var expr string

	for i, cond := range conditions {
		nameKey := fmt.Sprintf("#f%d", i)
		valueKey := fmt.Sprintf(":v%d", i)
		names[nameKey] = cond.Field

		var clause string
		switch cond.Op {
		case store.OpEqual, store.OpNotEqual, store.OpLessThan,
			store.OpLessOrEqual, store.OpGreaterThan, store.OpGreaterOrEqual:
			av, err := attributevalue.Marshal(cond.Value)
			if err != nil {
				return "", nil, fmt.Errorf("dynamodb: marshal condition value: %w", err)
			}
			values[valueKey] = av
			clause = fmt.Sprintf("#doc.%s %s %s", nameKey, comparator(cond.Op), valueKey)
		case store.OpIn:
			members := inMembers(cond.Value)
			if len(members) == 0 {
				return "", nil, fmt.Errorf("dynamodb: %q condition needs a non-empty slice", store.OpIn)
			}
			var keys string
			for j, member := range members {
				av, err := attributevalue.Marshal(member)
				if err != nil {
					return "", nil, fmt.Errorf("dynamodb: marshal condition value: %w", err)
				}
				memberKey := fmt.Sprintf("%s_%d", valueKey, j)
				values[memberKey] = av
				if j > 0 {
					keys += ", "
				}
				keys += memberKey
			}
			clause = fmt.Sprintf("#doc.%s IN (%s)", nameKey, keys)
		default:
			return "", nil, fmt.Errorf("dynamodb: unsupported operator %q", cond.Op)
		}

		if i > 0 {
			expr += " AND "
		}
		expr += clause
	}

	return expr, names, nil
}

// inMembers normalizes an "in" condition's value list.
func inMembers(value any) []any {
	switch list := value.(type) {
	case []string:
		members := make([]any, len(list))
		for i, item := range list {
			members[i] = item
		}
		return members
	case []any:
		return list
	default:
		return nil
	}
}

func comparator(op store.Op) string {
	switch op {
	case store.OpEqual:
		return "="
	case store.OpNotEqual:
		return "<>"
	default:
		return string(op)
	}
}

func unmarshalRecord(resourceType, key string, item map[string]types.AttributeValue) (*store.Record, error) {
	rec := &store.Record{Type: resourceType, Key: key}

	if v, ok := item["payload"].(*types.AttributeValueMemberB); ok {
		rec.Payload = v.Value
	}
	version, err := attributeVersion(item)
	if err != nil {
		return nil, err
	}
	rec.Version = version
	if v, ok := item["updated_at"].(*types.AttributeValueMemberS); ok {
		rec.UpdatedAt, _ = time.Parse(time.RFC3339, v.Value)
	}

	return rec, nil
}

func unmarshalQueryItem(resourceType string, item map[string]types.AttributeValue) (*store.Record, error) {
	var key string
	if v, ok := item["rkey"].(*types.AttributeValueMemberS); ok {
		key = v.Value
	}
	return unmarshalRecord(resourceType, key, item)
}

func attributeVersion(item map[string]types.AttributeValue) (int64, error) {
	v, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, store.Permanent(errors.New("dynamodb: item has no version attribute"))
	}
	version, err := strconv.ParseInt(v.Value, 10, 64)
	if err != nil {
		return 0, store.Permanent(fmt.Errorf("dynamodb: bad version attribute: %w", err))
	}
	return version, nil
}

// sortRecords orders records by a top-level payload field.
func sortRecords(records []*store.Record, field string, descending bool) {
	values := make(map[*store.Record]any, len(records))
	for _, rec := range records {
		var doc map[string]any
		if err := json.Unmarshal(rec.Payload, &doc); err == nil {
			values[rec] = doc[field]
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		less := lessValue(values[records[i]], values[records[j]])
		if descending {
			return !less && !equalValue(values[records[i]], values[records[j]])
		}
		return less
	})
}

func lessValue(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af < bf
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as < bs
	}
	return false
}

func equalValue(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
