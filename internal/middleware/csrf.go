package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/bsudfrance/bsf-server/internal/auth"
	"github.com/bsudfrance/bsf-server/pkg/crypto"
	"github.com/bsudfrance/bsf-server/pkg/errors"
	"github.com/bsudfrance/bsf-server/pkg/logger"
	"github.com/bsudfrance/bsf-server/pkg/response"
)

const (
	// CSRFCookieName is the cookie used to transport the CSRF token to clients.
	CSRFCookieName = "bsf_csrf"
	// CSRFHeaderName is the header clients must present for unsafe HTTP methods.
	CSRFHeaderName = "X-CSRF-Token"

	csrfTokenLength = 32
)

var unsafeMethods = map[string]struct{}{
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodPatch:  {},
	http.MethodDelete: {},
}

// CSRF implements the double-submit-cookie pattern for the cookie-session
// client. Safe methods receive a token via cookie and header; mutating
// requests must echo it in X-CSRF-Token. Paths in exempt skip the check
// because login and invitation acceptance happen before the client holds a
// token. The cookie lives as long as the session; pass the session TTL as
// maxAge.
func CSRF(maxAge time.Duration, exempt ...string) gin.HandlerFunc {
	if maxAge <= 0 {
		maxAge = iauth.DefaultSessionTTL
	}
	cookieMaxAge := int(maxAge.Seconds())

	exemptPaths := make(map[string]struct{}, len(exempt))
	for _, path := range exempt {
		exemptPaths[path] = struct{}{}
	}

	return func(c *gin.Context) {
		method := c.Request.Method
		if method == http.MethodOptions {
			c.Next()
			return
		}

		token, err := ensureCSRFCookie(c, cookieMaxAge)
		if err != nil {
			response.Error(c, errors.ErrInternalServer)
			c.Abort()
			return
		}

		if _, ok := exemptPaths[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		if isUnsafeMethod(method) {
			headerToken := strings.TrimSpace(c.GetHeader(CSRFHeaderName))
			if headerToken == "" || !constantTimeEqual(token, headerToken) {
				logger.WithModule("csrf").Warn("csrf validation failed",
					// Never log token contents
					zap.String("method", method),
					zap.String("path", c.FullPath()),
				)
				response.Error(c, errors.ErrCSRFInvalid)
				c.Abort()
				return
			}
		} else {
			c.Header(CSRFHeaderName, token)
		}

		c.Next()
	}
}

func ensureCSRFCookie(c *gin.Context, maxAge int) (string, error) {
	if existing, err := c.Cookie(CSRFCookieName); err == nil && existing != "" {
		setCSRFCookie(c, existing, maxAge)
		return existing, nil
	}

	token, err := crypto.GenerateToken(csrfTokenLength)
	if err != nil {
		return "", err
	}
	setCSRFCookie(c, token, maxAge)
	return token, nil
}

func setCSRFCookie(c *gin.Context, token string, maxAge int) {
	// Readable by the SPA so it can mirror the value into the header.
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		Secure:   isSecureRequest(c.Request),
		HttpOnly: false,
		MaxAge:   maxAge,
		SameSite: http.SameSiteLaxMode,
	})
}

func isSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func isUnsafeMethod(method string) bool {
	_, ok := unsafeMethods[method]
	return ok
}

func constantTimeEqual(a, b string) bool {
	if a == "" || b == "" || len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
