package main

import (
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"atelier/internal/config"
	"atelier/internal/database"
	"atelier/internal/domain"
	"atelier/internal/middleware"
	"atelier/internal/modules/auth"
	"atelier/internal/pkg/csrf"
	"atelier/internal/pkg/token"
	"atelier/internal/ratelimit"
	"atelier/internal/repository"
)

func main() {
	_ = godotenv.Load()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is empty")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	db, err := database.Get(dsn)
	if err != nil {
		log.Fatal(err)
	}
	if err := db.AutoMigrate(&domain.User{}, &domain.Session{}); err != nil {
		log.Fatal(err)
	}

	var store ratelimit.Store
	if cfg.RedisAddr != "" {
		store = ratelimit.NewRedisStore(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
	} else {
		log.Println("REDIS_ADDR is empty, rate limits are per-instance only")
		store = ratelimit.NewMemoryStore()
	}
	limiter := ratelimit.New(store, cfg.AppEnv)

	tokens := token.New(cfg.JWTSecret)
	guard := csrf.New(cfg.CSRFSecret, cfg.CSRFWindow)

	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)

	authService := auth.NewService(userRepo, sessionRepo, tokens, limiter, cfg.AccessTTL, cfg.RefreshTTL)
	authHandler := auth.NewHandler(authService, limiter, guard, cfg.CookieSecure, cfg.CookiePath, cfg.CookieSameSite, cfg.AccessTTL, cfg.RefreshTTL)

	r := gin.Default()
	r.GET("/healthz", func(c *gin.Context) {
		sqlDB, herr := db.DB()
		if herr == nil {
			herr = sqlDB.PingContext(c.Request.Context())
		}
		if herr != nil {
			log.Printf("healthz failed: %v", herr)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.Use(middleware.ErrorLogger())
	r.Use(middleware.CORS())
	r.Use(middleware.CSRF(guard, "/api/v1/auth/login", "/api/v1/auth/register"))

	v1 := r.Group("/api/v1")
	{
		// public
		authHandler.RegisterPublicRoutes(v1)

		// protected
		protected := v1.Group("/")
		protected.Use(middleware.Auth(tokens))
		{
			authHandler.RegisterProtectedRoutes(protected)
		}
	}

	if err := r.Run(":8080"); err != nil {
		log.Fatal(err)
	}
}
