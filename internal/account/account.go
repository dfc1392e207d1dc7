// Package account parses and normalizes ledger account identifiers.
//
// Two forms are accepted:
//   - hex addresses: 0x followed by 40 hex digits, normalized to lowercase
//   - named accounts: lowercase handles such as "rewards" or "alice", used
//     for system accounts and in development setups
package account

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Account is a normalized account identifier.
type Account string

var (
	hexRegex   = regexp.MustCompile(`^0x[0-9a-f]{40}$`)
	namedRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,31}$`)
)

var ErrInvalidAccount = errors.New("account: invalid account identifier")

// Parse validates s and returns its normalized form.
func Parse(s string) (Account, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		lower := "0x" + strings.ToLower(s[2:])
		if !hexRegex.MatchString(lower) {
			return "", fmt.Errorf("%w: %q (expected 0x + 40 hex digits)", ErrInvalidAccount, s)
		}
		return Account(lower), nil
	}
	if !namedRegex.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAccount, s)
	}
	return Account(s), nil
}

// MustParse is Parse for constants.
func MustParse(s string) Account {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// IsHex reports whether the account is a hex address.
func (a Account) IsHex() bool {
	return strings.HasPrefix(string(a), "0x")
}

func (a Account) String() string { return string(a) }
