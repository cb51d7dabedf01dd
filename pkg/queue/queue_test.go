package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/yeisme/sourcelens/pkg/queue"
)

func TestPublishSourceMapUploaded(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 4}, watermill.NopLogger{})
	defer ch.Close()

	msgs, err := ch.Subscribe(ctx, queue.TopicSourceMapUploaded)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	payload := queue.SourceMapUploadedPayload{
		ProjectID: "web",
		Files:     []queue.FileRef{{Version: "1.0.0", Filename: "app.min.js.map", Size: 42}},
	}

	if err := queue.PublishSourceMapUploaded(ch, payload, queue.WithTraceID("trace-1"), queue.WithProducer("sourcelens")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case m := <-msgs:
		m.Ack()

		env, err := queue.ParseSourceMapUploaded(m)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}

		if env.Header.Topic != queue.TopicSourceMapUploaded || env.Header.TraceID != "trace-1" {
			t.Fatalf("header = %+v", env.Header)
		}

		if env.Payload.ProjectID != "web" || len(env.Payload.Files) != 1 || env.Payload.Files[0].Size != 42 {
			t.Fatalf("payload = %+v", env.Payload)
		}

		if m.Metadata.Get(queue.MetaProducer) != "sourcelens" || m.Metadata.Get(queue.MetaProject) != "web" {
			t.Fatalf("metadata = %v", m.Metadata)
		}
	case <-ctx.Done():
		t.Fatal("message not delivered")
	}
}


func TestParseRejectsTopicMismatch(t *testing.T) {
	msg, err := queue.NewWatermillMessage(queue.TopicVersionCreated, queue.VersionCreatedPayload{ProjectID: "web"})
	if err != nil {
		t.Fatalf("new message: %v", err)
	}

	if _, err := queue.ParseWatermillMessage[queue.VersionCreatedPayload](msg); err != nil {
		t.Fatalf("parse: %v", err)
	}

	msg.Metadata.Set(queue.MetaTopic, queue.TopicReportMapped)

	if _, err := queue.ParseWatermillMessage[queue.VersionCreatedPayload](msg); !errors.Is(err, queue.ErrTopicMismatch) {
		t.Fatalf("err = %v, want ErrTopicMismatch", err)
	}
}
