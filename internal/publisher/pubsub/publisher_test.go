package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"cloud.google.com/go/pubsub/v2/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	testProject = "quotes-project"
	testTopic   = "crawl-completed"
)

type completion struct {
	SessionID string `json:"session_id"`
	Records   int    `json:"records"`
}

func (c completion) Attributes() map[string]string {
	return map[string]string{"session_id": c.SessionID}
}

func newFakeClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, testProject, option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{
		Name: "projects/" + testProject + "/topics/" + testTopic,
	})
	require.NoError(t, err)
	return client, srv
}

func TestPublishSendsJSONWithAttributes(t *testing.T) {
	client, srv := newFakeClient(t)
	pub := NewWithClient(client)

	id, err := pub.Publish(context.Background(), testTopic, completion{SessionID: "s-1", Records: 10})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.NoError(t, pub.Close())

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	var got completion
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, completion{SessionID: "s-1", Records: 10}, got)
	assert.Equal(t, "s-1", msgs[0].Attributes["session_id"])
}

func TestPublishReusesTopicPublisher(t *testing.T) {
	client, srv := newFakeClient(t)
	pub := NewWithClient(client)
	defer func() { _ = pub.Close() }()

	for range 2 {
		_, err := pub.Publish(context.Background(), testTopic, map[string]int{"n": 1})
		require.NoError(t, err)
	}
	assert.Len(t, pub.publishers, 1)
	assert.Len(t, srv.Messages(), 2)
}

func TestPublishValidates(t *testing.T) {
	t.Parallel()

	_, err := (&Publisher{}).Publish(context.Background(), testTopic, "x")
	require.Error(t, err)

	client, _ := newFakeClient(t)
	pub := NewWithClient(client)
	_, err = pub.Publish(context.Background(), "", "x")
	require.Error(t, err)
	_, err = pub.Publish(context.Background(), testTopic, func() {})
	require.Error(t, err)
}

func TestNewRequiresProject(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), "")
	require.Error(t, err)
}
