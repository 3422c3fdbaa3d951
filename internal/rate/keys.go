package rate

import (
	"fmt"
	"strings"
)

// Anonymous replaces a missing user id or ip in keys.
const Anonymous = "anonymous"

const keyPrefix = "rate_limit"

// KeyBy selects which caller attributes identify a rate limit bucket.
type KeyBy string

const (
	KeyByUser   KeyBy = "user"
	KeyByIP     KeyBy = "ip"
	KeyByIPUser KeyBy = "ipuser"
)

// ParseKeyBy accepts the strategy names plus "ip+user" as an alias of ipuser.
func ParseKeyBy(s string) (KeyBy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return KeyByUser, nil
	case "", "ip":
		return KeyByIP, nil
	case "ipuser", "ip+user":
		return KeyByIPUser, nil
	default:
		return "", fmt.Errorf("%w: unknown key strategy %q", ErrInvalidRule, s)
	}
}

// Identity is what is known about a caller.
type Identity struct {
	UserID string
	IP     string
}

// Key builds the bucket key for identity on route.
func Key(by KeyBy, id Identity, route string) string {
	user := orAnonymous(id.UserID)
	ip := orAnonymous(id.IP)

	switch by {
	case KeyByUser:
		return keyPrefix + ":user:" + user + ":" + route
	case KeyByIPUser:
		return keyPrefix + ":ipuser:" + ip + ":" + user + ":" + route
	default:
		return keyPrefix + ":ip:" + ip + ":" + route
	}
}

func orAnonymous(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return Anonymous
	}
	return s
}
