package rdapclient

import "net"

// isRetryableNetErr classifies a raw transport error (before it's wrapped in
// a NetworkError) as one worth retrying: kept from the teacher's original
// getJSON retry path, now consulted by Fetcher instead of being interleaved
// with cache/retry logic itself (see fetch.go, orchestrator.go).
func isRetryableNetErr(err error) bool {
	var ne net.Error
	if errorsAs(err, &ne) && (ne.Timeout() || temporary(ne)) {
		return true
	}
	msg := lower(err.Error())
	return containsAny(msg, "connection reset", "connection refused", "broken pipe", "unexpected eof", "no such host")
}
