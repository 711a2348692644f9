package pipeline

import (
	"context"
	"net/http"
)

type ctxKey int

const (
	reqKey ctxKey = 1
	rwKey  ctxKey = 2
)

// SetContext returns a context carrying the request and response writer,
// which CookieFlowStore needs to read and write the flow cookie.
func SetContext(ctx context.Context, rw http.ResponseWriter, r *http.Request) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, reqKey, r)
	ctx = context.WithValue(ctx, rwKey, rw)
	return ctx
}

func fromContext(ctx context.Context) (http.ResponseWriter, *http.Request) {
	rw, _ := ctx.Value(rwKey).(http.ResponseWriter)
	r, _ := ctx.Value(reqKey).(*http.Request)
	return rw, r
}
