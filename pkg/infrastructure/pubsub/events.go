package pubsub

import (
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// Event sources identifying which pipeline produced an event.
const (
	SourceSync     = "mycoach/sync"
	SourceCoaching = "mycoach/coaching"
)

// NewCloudEvent builds a CloudEvent v1.0 with a JSON payload. The
// subject carries the user the event concerns so consumers can route
// without decoding the body.
func NewCloudEvent(source, eventType, userID string, data any) (cloudevents.Event, error) {
	e := cloudevents.NewEvent()
	e.SetID(uuid.NewString())
	e.SetSpecVersion("1.0")
	e.SetType(eventType)
	e.SetSource(source)
	e.SetSubject(userID)

	if err := e.SetData(cloudevents.ApplicationJSON, data); err != nil {
		return e, err
	}

	return e, nil
}
