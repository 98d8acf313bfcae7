package kvbackend

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/awserr"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/dynamodbiface"
	"github.com/diversitus/infra/storage"
	"github.com/pkg/errors"
)

// DynamoDB stores key-value pairs in an AWS DynamoDB table. The bucket of a
// key is stored as the hash key, allowing a bucket to be scanned with a
// single query.
type DynamoDB struct {
	Client    dynamodbiface.ClientAPI
	TableName string
}

// NewDynamoDB creates a new DynamoDB backend.
func NewDynamoDB(cfg aws.Config, tableName string) *DynamoDB {
	return &DynamoDB{
		Client:    dynamodb.New(cfg),
		TableName: tableName,
	}
}

// CreateTable creates the DynamoDB table.
func (d *DynamoDB) CreateTable(ctx context.Context) error {
	_, err := d.Client.CreateTableRequest(&dynamodb.CreateTableInput{
		TableName: aws.String(d.TableName),
		AttributeDefinitions: []dynamodb.AttributeDefinition{
			{AttributeName: aws.String("Bucket"), AttributeType: dynamodb.ScalarAttributeTypeS},
			{AttributeName: aws.String("Key"), AttributeType: dynamodb.ScalarAttributeTypeS},
		},
		KeySchema: []dynamodb.KeySchemaElement{
			{AttributeName: aws.String("Bucket"), KeyType: dynamodb.KeyTypeHash},
			{AttributeName: aws.String("Key"), KeyType: dynamodb.KeyTypeRange},
		},
		BillingMode: dynamodb.BillingModePayPerRequest,
	}).Send(ctx)
	if err != nil {
		return errors.Wrap(err, "create table")
	}
	return nil
}

func (d *DynamoDB) itemKey(key string) (map[string]dynamodb.AttributeValue, error) {
	buc, k, err := splitKey(key)
	if err != nil {
		return nil, err
	}
	return map[string]dynamodb.AttributeValue{
		"Bucket": {S: aws.String(buc)},
		"Key":    {S: aws.String(k)},
	}, nil
}

// Put creates or updates a value.
func (d *DynamoDB) Put(ctx context.Context, key string, value []byte) error {
	item, err := d.itemKey(key)
	if err != nil {
		return err
	}
	item["Value"] = dynamodb.AttributeValue{B: value}
	_, err = d.Client.PutItemRequest(&dynamodb.PutItemInput{
		TableName: aws.String(d.TableName),
		Item:      item,
	}).Send(ctx)
	if err != nil {
		return errors.Wrap(err, "dynamodb put")
	}
	return nil
}

// Get returns a single value.
func (d *DynamoDB) Get(ctx context.Context, key string) ([]byte, error) {
	k, err := d.itemKey(key)
	if err != nil {
		return nil, err
	}
	resp, err := d.Client.GetItemRequest(&dynamodb.GetItemInput{
		TableName:      aws.String(d.TableName),
		Key:            k,
		ConsistentRead: aws.Bool(true),
	}).Send(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "dynamodb get")
	}
	v, ok := resp.Item["Value"]
	if !ok || len(v.B) == 0 {
		return nil, storage.ErrNotFound
	}
	return v.B, nil
}

// Delete deletes a key.
func (d *DynamoDB) Delete(ctx context.Context, key string) error {
	k, err := d.itemKey(key)
	if err != nil {
		return err
	}
	_, err = d.Client.DeleteItemRequest(&dynamodb.DeleteItemInput{
		TableName:                aws.String(d.TableName),
		Key:                      k,
		ConditionExpression:      aws.String("attribute_exists(#key)"),
		ExpressionAttributeNames: map[string]string{"#key": "Key"},
	}).Send(ctx)
	if aerr, ok := err.(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
		return storage.ErrNotFound
	}
	if err != nil {
		return errors.Wrap(err, "dynamodb delete")
	}
	return nil
}

// Scan returns all values in the given bucket.
func (d *DynamoDB) Scan(ctx context.Context, bucket string) (map[string][]byte, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(d.TableName),
		KeyConditionExpression: aws.String("#bucket = :bucket"),
		ExpressionAttributeNames: map[string]string{
			"#bucket": "Bucket",
		},
		ExpressionAttributeValues: map[string]dynamodb.AttributeValue{
			":bucket": {S: aws.String(bucket)},
		},
		ConsistentRead: aws.Bool(true),
	}
	out := make(map[string][]byte)
	for {
		resp, err := d.Client.QueryRequest(input).Send(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "query dynamodb")
		}
		for _, item := range resp.Items {
			k := item["Key"].S
			if k == nil {
				continue
			}
			out[bucket+"/"+*k] = item["Value"].B
		}
		if len(resp.LastEvaluatedKey) == 0 {
			return out, nil
		}
		input.ExclusiveStartKey = resp.LastEvaluatedKey
	}
}
