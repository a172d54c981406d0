package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.Dial(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)

	_, err = client.CreateTopic(ctx, "articles-new")
	require.NoError(t, err)
	return client, srv
}

func TestPublishSendsJSONWithTraceContext(t *testing.T) {
	client, srv := newTestClient(t)
	pub := New(client)
	pub.propagator = propagation.TraceContext{}
	defer func() { _ = pub.Close() }()

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "process")
	defer span.End()

	id, err := pub.Publish(ctx, "articles-new", map[string]string{"id": "abc"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	var got map[string]string
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	require.Equal(t, "abc", got["id"])
	require.Contains(t, msgs[0].Attributes, "traceparent")
	require.Contains(t, msgs[0].Attributes["traceparent"], span.SpanContext().TraceID().String())
}

func TestPublishValidatesInput(t *testing.T) {
	t.Parallel()

	_, err := (&Publisher{}).Publish(context.Background(), "t", "x")
	require.Error(t, err)

	client, _ := newTestClient(t)
	pub := New(client)
	defer func() { _ = pub.Close() }()
	_, err = pub.Publish(context.Background(), "", "x")
	require.Error(t, err)
	_, err = pub.Publish(context.Background(), "articles-new", func() {})
	require.Error(t, err)
}

func TestCarrierKeys(t *testing.T) {
	t.Parallel()

	c := &pubsubCarrier{attrs: map[string]string{}}
	c.Set("traceparent", "v")
	require.Equal(t, "v", c.Get("traceparent"))
	require.Equal(t, []string{"traceparent"}, c.Keys())
}
