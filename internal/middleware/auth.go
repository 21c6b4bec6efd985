package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bsudfrance/bsf-server/internal/auditctx"
	iauth "github.com/bsudfrance/bsf-server/internal/auth"
	"github.com/bsudfrance/bsf-server/internal/models"
	"github.com/bsudfrance/bsf-server/pkg/errors"
	"github.com/bsudfrance/bsf-server/pkg/response"
)

const (
	// SessionCookieName transports the opaque session token.
	SessionCookieName = "bsf_session"

	CtxUserKey      = "currentUser"
	CtxSessionIDKey = "sessionID"
)

// SessionAuth resolves the session cookie into the current user. Requests
// without a valid cookie pass through anonymously; RequireUser decides per
// route whether that is acceptable. When the session service rotates the
// token, the fresh cookie is set on the response.
func SessionAuth(sessions *iauth.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Attach client metadata for the audit trail before any handler runs.
		ctx := auditctx.WithRequestInfo(c.Request.Context(), auditctx.RequestInfo{
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		c.Request = c.Request.WithContext(ctx)

		token, err := c.Cookie(SessionCookieName)
		if err != nil || token == "" {
			c.Next()
			return
		}

		resolved, err := sessions.Resolve(c.Request.Context(), token)
		if err != nil {
			// Invalid, expired or revoked: drop the stale cookie.
			clearSessionCookie(c)
			c.Next()
			return
		}

		if resolved.Rotated() {
			SetSessionCookie(c, resolved.RotatedToken, int(sessions.TTL().Seconds()))
		}

		c.Set(CtxUserKey, resolved.User)
		c.Set(CtxSessionIDKey, resolved.Session.ID)
		c.Next()
	}
}

// RequireUser rejects requests whose resolved user is missing, inactive or
// outside the allowed roles. An empty role set means any authenticated user.
func RequireUser(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision := iauth.Authorize(CurrentUser(c), roles...)
		switch decision.Access {
		case iauth.AccessGranted:
			c.Next()
		case iauth.AccessForbidden:
			response.Error(c, errors.ErrForbidden)
			c.Abort()
		default:
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
		}
	}
}

// CurrentUser returns the resolved user, or nil for anonymous requests.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(CtxUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

// SessionID returns the resolved session's ID, or empty for anonymous requests.
func SessionID(c *gin.Context) string {
	v, ok := c.Get(CtxSessionIDKey)
	if !ok {
		return ""
	}
	id, _ := v.(string)
	return id
}

// SetSessionCookie writes the session cookie with the hardening flags the
// browser client relies on.
func SetSessionCookie(c *gin.Context, token string, maxAge int) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Secure:   isSecureRequest(c.Request),
		HttpOnly: true,
		MaxAge:   maxAge,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie removes the session cookie, used on logout.
func ClearSessionCookie(c *gin.Context) {
	clearSessionCookie(c)
}
