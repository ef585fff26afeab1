package mocks

import (
	"context"
	"fmt"

	"github.com/cloudevents/sdk-go/v2/event"

	"github.com/mycoach/server/pkg/coaching"
)

// --- Mock Publisher ---
type MockPublisher struct {
	PublishCloudEventFunc func(ctx context.Context, topic string, e event.Event) (string, error)

	// Published collects every event when no func override is set.
	Published []event.Event
}

func (m *MockPublisher) PublishCloudEvent(ctx context.Context, topic string, e event.Event) (string, error) {
	if m.PublishCloudEventFunc != nil {
		return m.PublishCloudEventFunc(ctx, topic, e)
	}
	m.Published = append(m.Published, e)
	return "msg-id", nil
}

// --- Mock Storage ---
type MockBlobStore struct {
	WriteFunc func(ctx context.Context, bucket, object string, data []byte) error
	ReadFunc  func(ctx context.Context, bucket, object string) ([]byte, error)

	// Objects collects writes when no func override is set, keyed
	// bucket/object.
	Objects map[string][]byte
}

func (m *MockBlobStore) Write(ctx context.Context, bucket, object string, data []byte) error {
	if m.WriteFunc != nil {
		return m.WriteFunc(ctx, bucket, object, data)
	}
	if m.Objects == nil {
		m.Objects = make(map[string][]byte)
	}
	m.Objects[bucket+"/"+object] = data
	return nil
}

func (m *MockBlobStore) Read(ctx context.Context, bucket, object string) ([]byte, error) {
	if m.ReadFunc != nil {
		return m.ReadFunc(ctx, bucket, object)
	}
	if data, ok := m.Objects[bucket+"/"+object]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("object not found: %s/%s", bucket, object)
}

// --- Mock Model Backend ---
type MockBackend struct {
	GenerateFunc func(ctx context.Context, req *coaching.GenerateRequest) (*coaching.GenerateResponse, error)

	// Requests collects every call for assertion.
	Requests []*coaching.GenerateRequest
}

func (m *MockBackend) Generate(ctx context.Context, req *coaching.GenerateRequest) (*coaching.GenerateResponse, error) {
	m.Requests = append(m.Requests, req)
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return &coaching.GenerateResponse{
		Text:         "{}",
		Model:        "gemini-2.0-flash",
		InputTokens:  100,
		OutputTokens: 50,
	}, nil
}
