package firestore

import (
	"cloud.google.com/go/firestore"

	shared "github.com/mycoach/server/pkg"
	"github.com/mycoach/server/pkg/types"
)

// Client exposes typed accessors for the collection layout. Everything
// hangs off users/{uid}: raw_records, activities, snapshots, mesocycle,
// invocations, results, availability, source_states.
type Client struct {
	fs *firestore.Client
}

func NewClient(client *firestore.Client) *Client {
	return &Client{fs: client}
}

func (c *Client) Close() error {
	return c.fs.Close()
}

func (c *Client) userDoc(userID string) *firestore.DocumentRef {
	return c.fs.Collection(shared.CollectionUsers).Doc(userID)
}

func (c *Client) Profiles() *Collection[types.UserProfile] {
	return &Collection[types.UserProfile]{Ref: c.fs.Collection(shared.CollectionUsers)}
}

func (c *Client) RawRecords(userID string) *Collection[types.RawRecord] {
	return &Collection[types.RawRecord]{Ref: c.userDoc(userID).Collection("raw_records")}
}

func (c *Client) Activities(userID string) *Collection[types.Activity] {
	return &Collection[types.Activity]{Ref: c.userDoc(userID).Collection("activities")}
}

func (c *Client) Snapshots(userID string) *Collection[types.HealthSnapshot] {
	return &Collection[types.HealthSnapshot]{Ref: c.userDoc(userID).Collection("snapshots")}
}

func (c *Client) Mesocycle(userID string) *Collection[types.MesocycleState] {
	return &Collection[types.MesocycleState]{Ref: c.userDoc(userID).Collection("mesocycle")}
}

func (c *Client) Invocations(userID string) *Collection[types.PromptInvocation] {
	return &Collection[types.PromptInvocation]{Ref: c.userDoc(userID).Collection("invocations")}
}

func (c *Client) Results(userID string) *Collection[types.CoachingResult] {
	return &Collection[types.CoachingResult]{Ref: c.userDoc(userID).Collection("results")}
}

func (c *Client) Availability(userID string) *Collection[availabilityDoc] {
	return &Collection[availabilityDoc]{Ref: c.userDoc(userID).Collection("availability")}
}

func (c *Client) SourceStates(userID string) *Collection[types.SourceState] {
	return &Collection[types.SourceState]{Ref: c.userDoc(userID).Collection("source_states")}
}

// availabilityDoc stores one week's slots under the week-start date.
type availabilityDoc struct {
	WeekStart string                   `firestore:"week_start"`
	Slots     []types.AvailabilitySlot `firestore:"slots"`
}
