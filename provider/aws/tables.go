package aws

import (
	"context"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/dynamodbattribute"
	"github.com/cenkalti/backoff"
	"github.com/diversitus/infra/provider"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// TableActiveTimeout is the maximum time to wait for a table to become active.
var TableActiveTimeout = 5 * time.Minute

// EnsureTable creates a DynamoDB table, or adds missing indexes and tags to an
// existing table. The call returns once the table is active.
func (c *Cloud) EnsureTable(ctx context.Context, spec provider.TableSpec) (*provider.TableInfo, error) {
	logger := c.logger().With(zap.String("table", spec.Name))

	desc, err := c.describeTable(ctx, spec.Name)
	if err != nil && !isCode(err, dynamodb.ErrCodeResourceNotFoundException) {
		return nil, err
	}

	if desc == nil {
		logger.Info("Create table")
		input := createTableInput(spec)
		if err := input.Validate(); err != nil {
			return nil, err
		}
		err := c.retry(ctx, "create table", func() error {
			resp, err := c.DynamoDB.CreateTableRequest(input).Send(ctx)
			if err != nil {
				return handlePutError(err)
			}
			desc = resp.TableDescription
			return nil
		})
		if err != nil {
			return nil, err
		}
	} else {
		if key := hashKey(desc); key != spec.HashKey {
			return nil, errors.Errorf("table %s: hash key cannot be changed from %q to %q", spec.Name, key, spec.HashKey)
		}
		if err := c.updateTable(ctx, desc, spec); err != nil {
			return nil, err
		}
	}

	desc, err = c.waitActive(ctx, spec.Name)
	if err != nil {
		return nil, err
	}

	if len(spec.Tags) > 0 {
		tags := make([]dynamodb.Tag, 0, len(spec.Tags))
		for _, k := range sortedKeys(spec.Tags) {
			tags = append(tags, dynamodb.Tag{Key: aws.String(k), Value: aws.String(spec.Tags[k])})
		}
		err := c.retry(ctx, "tag table", func() error {
			_, err := c.DynamoDB.TagResourceRequest(&dynamodb.TagResourceInput{
				ResourceArn: desc.TableArn,
				Tags:        tags,
			}).Send(ctx)
			return handlePutError(err)
		})
		if err != nil {
			return nil, err
		}
	}

	return &provider.TableInfo{
		Name:    spec.Name,
		ARN:     aws.StringValue(desc.TableArn),
		HashKey: spec.HashKey,
	}, nil
}

func createTableInput(spec provider.TableSpec) *dynamodb.CreateTableInput {
	input := &dynamodb.CreateTableInput{
		TableName:            aws.String(spec.Name),
		BillingMode:          dynamodb.BillingMode(spec.BillingMode),
		AttributeDefinitions: attributeDefinitions(spec.Attributes),
		KeySchema: []dynamodb.KeySchemaElement{
			{AttributeName: aws.String(spec.HashKey), KeyType: dynamodb.KeyTypeHash},
		},
	}
	for _, idx := range spec.Indexes {
		input.GlobalSecondaryIndexes = append(input.GlobalSecondaryIndexes, dynamodb.GlobalSecondaryIndex{
			IndexName: aws.String(idx.Name),
			KeySchema: []dynamodb.KeySchemaElement{
				{AttributeName: aws.String(idx.HashKey), KeyType: dynamodb.KeyTypeHash},
			},
			Projection: &dynamodb.Projection{ProjectionType: dynamodb.ProjectionTypeAll},
		})
	}
	return input
}

func attributeDefinitions(attrs map[string]string) []dynamodb.AttributeDefinition {
	defs := make([]dynamodb.AttributeDefinition, 0, len(attrs))
	for _, name := range sortedKeys(attrs) {
		defs = append(defs, dynamodb.AttributeDefinition{
			AttributeName: aws.String(name),
			AttributeType: dynamodb.ScalarAttributeType(attrs[name]),
		})
	}
	return defs
}

// updateTable creates the indexes that do not yet exist on a table. Existing
// indexes are not modified.
func (c *Cloud) updateTable(ctx context.Context, desc *dynamodb.TableDescription, spec provider.TableSpec) error {
	existing := make(map[string]bool, len(desc.GlobalSecondaryIndexes))
	for _, gsi := range desc.GlobalSecondaryIndexes {
		existing[aws.StringValue(gsi.IndexName)] = true
	}
	for _, idx := range spec.Indexes {
		if existing[idx.Name] {
			continue
		}
		// Only one index can be created per update.
		if _, err := c.waitActive(ctx, spec.Name); err != nil {
			return err
		}
		c.logger().Info("Create index", zap.String("table", spec.Name), zap.String("index", idx.Name))
		input := &dynamodb.UpdateTableInput{
			TableName:            aws.String(spec.Name),
			AttributeDefinitions: attributeDefinitions(spec.Attributes),
			GlobalSecondaryIndexUpdates: []dynamodb.GlobalSecondaryIndexUpdate{{
				Create: &dynamodb.CreateGlobalSecondaryIndexAction{
					IndexName: aws.String(idx.Name),
					KeySchema: []dynamodb.KeySchemaElement{
						{AttributeName: aws.String(idx.HashKey), KeyType: dynamodb.KeyTypeHash},
					},
					Projection: &dynamodb.Projection{ProjectionType: dynamodb.ProjectionTypeAll},
				},
			}},
		}
		err := c.retry(ctx, "update table", func() error {
			_, err := c.DynamoDB.UpdateTableRequest(input).Send(ctx)
			return handlePutError(err)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Cloud) describeTable(ctx context.Context, name string) (*dynamodb.TableDescription, error) {
	var desc *dynamodb.TableDescription
	err := c.retry(ctx, "describe table", func() error {
		resp, err := c.DynamoDB.DescribeTableRequest(&dynamodb.DescribeTableInput{
			TableName: aws.String(name),
		}).Send(ctx)
		if err != nil {
			return handlePutError(err)
		}
		desc = resp.Table
		return nil
	})
	return desc, err
}

var errNotActive = errors.New("table is not active")

// waitActive waits until a table and all of its indexes are active.
func (c *Cloud) waitActive(ctx context.Context, name string) (*dynamodb.TableDescription, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = TableActiveTimeout

	var desc *dynamodb.TableDescription
	err := backoff.Retry(func() error {
		d, err := c.describeTable(ctx, name)
		if err != nil {
			if isCode(err, dynamodb.ErrCodeResourceNotFoundException) {
				// Not yet visible after create.
				return err
			}
			return backoff.Permanent(err)
		}
		desc = d
		if d.TableStatus != dynamodb.TableStatusActive {
			return errNotActive
		}
		for _, gsi := range d.GlobalSecondaryIndexes {
			if gsi.IndexStatus != dynamodb.IndexStatusActive {
				return errNotActive
			}
		}
		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return nil, errors.Wrapf(err, "wait for table %s", name)
	}
	return desc, nil
}

func hashKey(desc *dynamodb.TableDescription) string {
	for _, ks := range desc.KeySchema {
		if ks.KeyType == dynamodb.KeyTypeHash {
			return aws.StringValue(ks.AttributeName)
		}
	}
	return ""
}

// PutItem creates or replaces an item.
func (c *Cloud) PutItem(ctx context.Context, table string, item map[string]interface{}) error {
	av, err := dynamodbattribute.MarshalMap(item)
	if err != nil {
		return errors.Wrap(err, "marshal item")
	}
	return c.retry(ctx, "put item", func() error {
		_, err := c.DynamoDB.PutItemRequest(&dynamodb.PutItemInput{
			TableName: aws.String(table),
			Item:      av,
		}).Send(ctx)
		return handlePutError(err)
	})
}

// ScanItems returns all items in a table.
func (c *Cloud) ScanItems(ctx context.Context, table string) ([]map[string]interface{}, error) {
	var out []map[string]interface{}
	var start map[string]dynamodb.AttributeValue
	for {
		var resp *dynamodb.ScanResponse
		err := c.retry(ctx, "scan", func() error {
			var err error
			resp, err = c.DynamoDB.ScanRequest(&dynamodb.ScanInput{
				TableName:         aws.String(table),
				ExclusiveStartKey: start,
				ConsistentRead:    aws.Bool(true),
			}).Send(ctx)
			return handlePutError(err)
		})
		if err != nil {
			return nil, err
		}
		var page []map[string]interface{}
		if err := dynamodbattribute.UnmarshalListOfMaps(resp.Items, &page); err != nil {
			return nil, errors.Wrap(err, "unmarshal items")
		}
		out = append(out, page...)
		if len(resp.LastEvaluatedKey) == 0 {
			return out, nil
		}
		start = resp.LastEvaluatedKey
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
