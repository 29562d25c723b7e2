package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"libris-backend/internal/library/audit"
	"libris-backend/internal/library/catalog"
	"libris-backend/internal/library/engagement"
	"libris-backend/internal/library/loans"
	"libris-backend/internal/library/settings"
	"libris-backend/internal/platform/auth"
	"libris-backend/internal/platform/db"
)

func main() {
	// 設定読み込み
	cfg, err := db.LoadConfig("config/config.yaml")
	if err != nil {
		panic(err)
	}

	mode := cfg.Mode
	log.Printf("[INFO] mode:%s\n", mode)

	if cfg.Mode != "dev" && cfg.Mode != "release" {
		fmt.Println("Usage: go run main.go [dev|release]")
		return
	}

	conn, err := db.Connect(cfg.DB)
	if err != nil {
		panic(err)
	}
	defer conn.Close()

	log.Printf("[INFO] connected to DB: %s", cfg.DB.DBName)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if mode == "dev" {
		// CORS（開発中のみ必要）
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:3000"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// ヘルス
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	secret := []byte(cfg.Auth.JWTSecret)

	// /api/v1: public は未認証、reader は要ログイン、admin は admin ロール必須
	api := r.Group("/api/v1")
	reader := r.Group("/api/v1", auth.RequireAuth(secret))
	admin := r.Group("/api/v1", auth.RequireAuth(secret), auth.RequireRole(auth.RoleAdmin))

	aud := audit.NewRecorder(conn)

	auth.RegisterRoutes(api, reader, admin, auth.NewService(conn, secret, aud))
	catalog.RegisterRoutes(api, admin, catalog.NewService(conn, aud))
	loans.RegisterRoutes(reader, admin, loans.NewService(conn, aud))
	settings.RegisterRoutes(admin, settings.NewService(conn, aud))
	engagement.RegisterRoutes(api, reader, admin, engagement.NewService(conn, aud))

	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: r,
	}

	go func() {
		log.Printf("[INFO] listening on %s", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	log.Println("[INFO] shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal(err)
	}
}
