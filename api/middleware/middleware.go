/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"
	"github.com/gin-gonic/gin"

	"github.com/blnkfinance/storesync/config"
)

const KeyHeader = "X-Storesync-Key"

const defaultLimiterCleanup = time.Minute

// isPublicPath reports paths that skip the secret key. Store webhooks carry
// an HMAC signature checked by their handler.
func isPublicPath(path string) bool {
	return path == "/" || strings.HasPrefix(path, "/webhooks/")
}

// limitKey buckets requests by account when the route names one, so a busy
// merchant cannot starve the others sharing an address.
func limitKey(c *gin.Context) []string {
	if account := c.Param("account_id"); account != "" {
		return []string{"account", account}
	}
	return []string{"ip", c.ClientIP()}
}

// RateLimitMiddleware limits requests with tollbooth. Without both a rate and
// a burst configured it is a pass-through.
func RateLimitMiddleware(conf *config.Configuration) gin.HandlerFunc {
	rl := conf.RateLimit
	if rl.RequestsPerSecond == nil || rl.Burst == nil {
		return func(c *gin.Context) { c.Next() }
	}

	ttl := defaultLimiterCleanup
	if rl.CleanupIntervalSec != nil && *rl.CleanupIntervalSec > 0 {
		ttl = time.Duration(*rl.CleanupIntervalSec) * time.Second
	}

	lmt := tollbooth.NewLimiter(*rl.RequestsPerSecond, &limiter.ExpirableOptions{DefaultExpirationTTL: ttl})
	lmt.SetBurst(*rl.Burst)
	return func(c *gin.Context) {
		if httpErr := tollbooth.LimitByKeys(lmt, limitKey(c)); httpErr != nil {
			c.AbortWithStatusJSON(httpErr.StatusCode, gin.H{"error": httpErr.Message})
			return
		}
		c.Next()
	}
}

// presentedKey reads the secret from KeyHeader or a bearer Authorization header.
func presentedKey(c *gin.Context) string {
	if key := c.GetHeader(KeyHeader); key != "" {
		return key
	}
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func SecretKeyAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isPublicPath(c.Request.URL.Path) {
			c.Next()
			return
		}
		conf, err := config.Fetch()
		if err != nil || conf.Server.SecretKey == "" {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "secret key is not configured"})
			return
		}

		key := presentedKey(c)
		switch {
		case key == "":
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing secret key"})
			return
		case subtle.ConstantTimeCompare([]byte(conf.Server.SecretKey), []byte(key)) != 1:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid secret key"})
			return
		}
		c.Next()
	}
}
