package middleware

import (
	"net/http"

	"github.com/arklim/social-platform-auth/internal/infra/config"
	"github.com/arklim/social-platform-auth/internal/usecase"
	"github.com/gin-gonic/gin"
)

// AntiForgery enforces the double-submit check on state-changing requests.
// Clients must echo the anti-forgery cookie back in the configured header;
// the pair is validated against the server-side record without consuming it.
// Safe methods pass through untouched.
func AntiForgery(service *usecase.AntiForgeryService, settings config.AntiForgerySettings) gin.HandlerFunc {
	cookieName := settings.CookieName
	if cookieName == "" {
		cookieName = "csrf_token"
	}

	headerName := settings.HeaderName
	if headerName == "" {
		headerName = "X-CSRF-Token"
	}

	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		// Bearer clients carry no ambient cookie credentials, so the
		// double-submit check adds nothing for them.
		if _, ok := BearerToken(c); ok {
			c.Next()
			return
		}

		cookieValue, err := c.Cookie(cookieName)
		if err != nil {
			cookieValue = ""
		}
		headerValue := c.GetHeader(headerName)

		if err := service.Verify(c.Request.Context(), headerValue, cookieValue); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden,
				newErrorResponse(c, "anti-forgery token mismatch"))
			return
		}

		c.Next()
	}
}
