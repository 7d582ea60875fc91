//go:build integration

package natsutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

func natsURL() string {
	if v := os.Getenv("NATS_URL"); v != "" {
		return v
	}
	return nats.DefaultURL
}

func TestNATS_PubSub(t *testing.T) {
	nc, err := nats.Connect(natsURL())
	if err != nil {
		t.Fatalf("nats connect: %v", err)
	}
	t.Cleanup(nc.Close)

	type msg struct {
		Text string `json:"text"`
	}
	ch := make(chan msg, 1)
	sub, err := Subscribe(nc, "integ.pubsub", nil, func(_ context.Context, m msg) { ch <- m })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if err := NewPublisher(nc).Publish(context.Background(), "integ.pubsub", msg{Text: "hello"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	nc.Flush()

	select {
	case got := <-ch:
		if got.Text != "hello" {
			t.Fatalf("got %q", got.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}
