package account

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/example/aove-scheduler/internal/internaltypes"
)

const (
	recordSep = "@"
	fieldSep  = "|"
)

// Account is one vendor login: an opaque member token plus a human label.
type Account struct {
	Token string
	Label string
	// Raw is the entry as configured, used in "token may be invalid" alerts.
	Raw string
}

// Masked returns the token with everything but its first and last four characters hidden.
func (a Account) Masked() string {
	if len(a.Token) <= 8 {
		return strings.Repeat("*", len(a.Token))
	}
	return a.Token[:4] + strings.Repeat("*", len(a.Token)-8) + a.Token[len(a.Token)-4:]
}

// Parse splits "token1|label1@token2|label2" into accounts.
// Malformed entries are logged and skipped; an input without a single valid
// entry returns an error wrapping internaltypes.ErrConfig.
func Parse(raw string, log *zap.Logger) ([]Account, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var out []Account
	for i, entry := range strings.Split(raw, recordSep) {
		a, ok, err := parseEntry(entry)
		if err != nil {
			log.Warn("skipping account entry", zap.Int("entry", i+1), zap.Error(err))
			continue
		}
		if ok {
			out = append(out, a)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no valid account entries (want token1|label1@token2|label2)", internaltypes.ErrConfig)
	}
	return out, nil
}

// Check returns an error naming the first entry Parse would skip.
// Blank entries are not malformed.
func Check(raw string) error {
	for i, entry := range strings.Split(raw, recordSep) {
		if _, _, err := parseEntry(entry); err != nil {
			return fmt.Errorf("entry %d: %w", i+1, err)
		}
	}
	return nil
}

// parseEntry returns ok=false for a blank entry.
func parseEntry(entry string) (Account, bool, error) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return Account{}, false, nil
	}
	parts := strings.Split(entry, fieldSep)
	if len(parts) != 2 {
		return Account{}, false, fmt.Errorf("want token|label, got %d fields", len(parts))
	}
	token, label := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if token == "" || label == "" {
		return Account{}, false, fmt.Errorf("empty token or label")
	}
	return Account{Token: token, Label: label, Raw: entry}, true, nil
}

// Format is the inverse of Parse.
func Format(accounts []Account) string {
	entries := make([]string, 0, len(accounts))
	for _, a := range accounts {
		entries = append(entries, a.Token+fieldSep+a.Label)
	}
	return strings.Join(entries, recordSep)
}
