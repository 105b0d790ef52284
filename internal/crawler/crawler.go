// Package crawler classifies inbound callers as search-engine crawlers,
// unverifiable bots, impersonators, or regular users. Verification runs a
// reverse/forward DNS round trip (or an IP allow-list check) and results
// are cached because the DNS path costs two network round trips per
// (IP, User-Agent) pair.
package crawler

// Result is the outcome of classifying a remote IP / User-Agent pair.
type Result int

const (
	// VerifiedBot is a known crawler whose IP passed verification.
	VerifiedBot Result = iota
	// UnverifiableBot matches a signature that offers no verification.
	UnverifiableBot
	// PotentialMaliciousBot claims a known crawler UA but failed
	// verification.
	PotentialMaliciousBot
	// PotentialUser matches no known bot signature.
	PotentialUser
)

// String returns the snake_case name used in logs and metric labels.
func (r Result) String() string {
	switch r {
	case VerifiedBot:
		return "verified_bot"
	case UnverifiableBot:
		return "unverifiable_bot"
	case PotentialMaliciousBot:
		return "potential_malicious_bot"
	case PotentialUser:
		return "potential_user"
	default:
		return "unknown"
	}
}

func validResult(v int) bool {
	return v >= int(VerifiedBot) && v <= int(PotentialUser)
}
