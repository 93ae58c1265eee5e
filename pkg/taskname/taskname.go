package taskname

const (
	// TrackingRun runs one bounded tracking loop.
	TrackingRun = "tracking:run"
)
