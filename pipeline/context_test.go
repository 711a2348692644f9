package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type ctxTestKey int

const (
	testKey ctxTestKey = -1
)

func TestContext(t *testing.T) {
	assert.NotNil(t, SetContext(nil, nil, nil))

	rw, req := fromContext(context.Background())
	assert.Nil(t, rw)
	assert.Nil(t, req)

	ctx := context.WithValue(context.Background(), testKey, "hello")
	rec := httptest.NewRecorder()
	r := &http.Request{}

	ctx = SetContext(ctx, rec, r)

	assert.NotNil(t, ctx)
	rw2, req2 := fromContext(ctx)
	assert.Equal(t, rec, rw2)
	assert.Equal(t, r, req2)
	assert.Equal(t, "hello", ctx.Value(testKey))
}
