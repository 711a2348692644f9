package magiclink

import (
	"fmt"
	"html"
	"net/http"

	"go.uber.org/zap"
)

// ConsumeHandler relays an emailed http(s) link to the app's deep link. It
// only validates the shape of the code; verification happens when the app
// answers the challenge.
func ConsumeHandler(deepLink string, logger *zap.Logger) http.Handler {
	if deepLink == "" {
		deepLink = DefaultDeepLinkBase
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if !ValidConsumeCode(code) {
			logger.Debug("rejected magic link code", zap.Int("length", len(code)))
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, "Invalid code parameter.")
			return
		}
		redirect := deepLink + "?code=" + escapeComponent(code)
		w.Header().Set("Location", redirect)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusFound)
		esc := html.EscapeString(redirect)
		fmt.Fprintf(w, `Open the app: <a href="%s">%s</a>`, esc, esc)
	})
}
