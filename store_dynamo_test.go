package magiclink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dynamoMock struct {
	items map[string]map[string]types.AttributeValue
	err   error
}

func newDynamoMock() *dynamoMock {
	return &dynamoMock{items: map[string]map[string]types.AttributeValue{}}
}

func itemKey(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func (m *dynamoMock) PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.items[aws.ToString(in.TableName)+"/"+itemKey(in.Item["code"])] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *dynamoMock) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	k := aws.ToString(in.TableName) + "/" + itemKey(in.Key["code"])
	old, ok := m.items[k]
	delete(m.items, k)
	out := &dynamodb.DeleteItemOutput{}
	if ok && in.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = old
	}
	return out, nil
}

func TestDynamoStore(t *testing.T) {
	dm := newDynamoMock()
	ds := NewDynamoStore(dm, "codes")
	ds.now = func() time.Time { return time.Unix(1000, 0) }
	ctx := context.Background()

	e, err := ds.GetAndDelete(ctx, "123456")
	assert.Nil(t, e)
	assert.Equal(t, ErrCodeNotFound, err)

	require.NoError(t, ds.Put(ctx, "123456", "uid", 10*time.Minute))
	item := dm.items["codes/123456"]
	require.NotNil(t, item)
	assert.Equal(t, &types.AttributeValueMemberN{Value: "1600"}, item["expiresAt"])
	assert.Equal(t, &types.AttributeValueMemberS{Value: "uid"}, item["username"])

	e, err = ds.GetAndDelete(ctx, "123456")
	require.NoError(t, err)
	assert.Equal(t, &CodeEntry{Code: "123456", Username: "uid", ExpiresAt: 1600}, e)

	e, err = ds.GetAndDelete(ctx, "123456")
	assert.Nil(t, e)
	assert.Equal(t, ErrCodeNotFound, err)
}

func TestDynamoStoreErrors(t *testing.T) {
	dm := newDynamoMock()
	dm.err = errors.New("ProvisionedThroughputExceededException")
	ds := NewDynamoStore(dm, "codes")

	assert.ErrorIs(t, ds.Put(context.Background(), "code", "uid", time.Minute), dm.err)
	_, err := ds.GetAndDelete(context.Background(), "code")
	assert.ErrorIs(t, err, dm.err)
}
