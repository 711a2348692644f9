package magiclink

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ConsumePath is where an http(s) deep link base receives link tokens.
const ConsumePath = "/auth/magic/consume"

var consumeCodeRe = regexp.MustCompile(`^[A-Za-z0-9_-]{6,64}$`)

// LinkURL embeds token in the deep link. A custom scheme base receives the
// token directly as ?code=; an http(s) base gets the consume path appended.
func LinkURL(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid deep link base %q: %w", base, err)
	}
	if u.Scheme == "" {
		return "", fmt.Errorf("deep link base %q has no scheme", base)
	}
	q := "code=" + escapeComponent(token)
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return strings.TrimRight(base, "/") + ConsumePath + "?" + q, nil
	default:
		return base + "?" + q, nil
	}
}

// escapeComponent percent-encodes s for a query value, writing spaces as
// %20 rather than +.
func escapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// ValidConsumeCode reports whether code is acceptable to the consume
// endpoint.
func ValidConsumeCode(code string) bool {
	return consumeCodeRe.MatchString(code)
}
