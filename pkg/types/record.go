package types

// Record kinds carried on RawRecord and reported by normalized records.
const (
	KindActivity = "activity"
	KindHealth   = "health"
)

func (a *Activity) RecordKind() string { return KindActivity }

func (s *HealthSnapshot) RecordKind() string { return KindHealth }
