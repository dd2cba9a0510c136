package clearing

// Upstream processing states reported by the clearing proxy.
const (
	UpstreamProcessing = "PROCESSING"
	UpstreamDone       = "DONE"
	UpstreamDelivered  = "DELIVERED"
	UpstreamError      = "ERROR"
)

// Submission-level states fed back by MapStatus. They textually match the
// submission package's status constants so callers can compare without an
// import in either direction.
const (
	MappedTransmitted = "transmitted"
	MappedDelivered   = "delivered"
	MappedRejected    = "rejected"
)

// MapStatus translates an upstream processing state into the submission
// status it implies. PROCESSING and DONE both mean the proxy accepted the
// message but the insurer has not confirmed receipt. The second return is
// false for states the proxy never documented; callers leave the
// submission untouched in that case.
func MapStatus(upstream string) (string, bool) {
	switch upstream {
	case UpstreamProcessing, UpstreamDone:
		return MappedTransmitted, true
	case UpstreamDelivered:
		return MappedDelivered, true
	case UpstreamError:
		return MappedRejected, true
	default:
		return "", false
	}
}
