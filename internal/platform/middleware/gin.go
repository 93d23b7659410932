package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Gin adapts a net/http middleware to gin. When the wrapped middleware does
// not call its next handler the gin chain is aborted.
func Gin(mw func(http.Handler) http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		reached := false
		mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reached = true
			c.Request = r
			c.Next()
		})).ServeHTTP(c.Writer, c.Request)
		if !reached {
			c.Abort()
		}
	}
}

// Harden restricts which peers gin believes about forwarded client addresses
// and adds the trusted host check and security headers to router.
func Harden(router *gin.Engine, trustedProxies, hosts, origins []string) error {
	if err := router.SetTrustedProxies(trustedProxies); err != nil {
		return fmt.Errorf("invalid trusted proxies: %w", err)
	}
	router.Use(Gin(TrustedHosts(hosts)), Gin(SecurityHeaders(origins)))
	return nil
}
