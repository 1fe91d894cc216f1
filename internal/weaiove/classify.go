package weaiove

import "strings"

// Condition is a vendor situation recognised from a business error message.
type Condition int

const (
	CondNone Condition = iota
	CondAlreadySignedIn
	CondChancesExhausted
	CondInsufficientPoints
)

func (c Condition) String() string {
	switch c {
	case CondAlreadySignedIn:
		return "already_signed_in"
	case CondChancesExhausted:
		return "chances_exhausted"
	case CondInsufficientPoints:
		return "insufficient_points"
	default:
		return "none"
	}
}

// Benign reports whether the condition is an expected, harmless outcome
// rather than a failure worth surfacing at error level.
func (c Condition) Benign() bool { return c != CondNone }

// messageTable is the only place vendor message wording is matched.
// The API has no enumerated status for these cases, so substring matching
// is a best-effort heuristic and breaks if the wording changes upstream.
var messageTable = []struct {
	pattern string
	cond    Condition
}{
	{"重复签到", CondAlreadySignedIn},    // "duplicate check-in"
	{"机会已用完", CondChancesExhausted},  // "chances used up"
	{"积分不足", CondInsufficientPoints}, // "insufficient points"
}

// Classify returns the first condition whose pattern occurs in msg.
func Classify(msg string) Condition {
	for _, m := range messageTable {
		if strings.Contains(msg, m.pattern) {
			return m.cond
		}
	}
	return CondNone
}

// consolation prize labels that do not warrant a win alert.
var genericPrizeMarkers = []string{"积分", "谢谢"}

// IsRealPrize reports whether a draw result names something other than
// points or a "thanks for playing" consolation.
func IsRealPrize(prize string) bool {
	if strings.TrimSpace(prize) == "" {
		return false
	}
	for _, m := range genericPrizeMarkers {
		if strings.Contains(prize, m) {
			return false
		}
	}
	return true
}

// SuggestsBadToken reports whether a failed call points at an invalid or
// expired member token: a 401 in either the HTTP status or the envelope, or
// a message naming the token.
func SuggestsBadToken(r Result) bool {
	if r.Kind == KindAuth {
		return true
	}
	if r.Kind != KindBusiness {
		return false
	}
	msg := strings.ToLower(r.Message)
	return strings.Contains(msg, "token") || strings.Contains(msg, "401")
}
