package middleware

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yungbote/taskbridge-backend/internal/platform/envutil"
)

const defaultOrigins = "http://localhost:80,http://localhost:3000,http://localhost:5173,http://127.0.0.1:80,http://127.0.0.1:3000,http://127.0.0.1:5173"

func CORS() gin.HandlerFunc {
	raw := envutil.Str("CORS_ALLOWED_ORIGINS", defaultOrigins)
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	})
}
