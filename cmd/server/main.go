package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/joho/godotenv"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/api/handlers"
	"github.com/maheshrc27/postflow/internal/api/middleware"
	"github.com/maheshrc27/postflow/internal/app"
	"github.com/maheshrc27/postflow/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	deps, err := app.New(ctx, cfg)
	cancel()
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	server := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: handlers.ErrorHandler,
	})

	server.Use(logger.New())
	server.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	authService := service.NewAuthService(cfg, deps.Users)
	userService := service.NewUserService(deps.Users)
	storageService := service.NewStorageService(cfg)
	platformService := service.NewPlatformService(cfg.SecretKey, deps.Clients, deps.Accounts)
	apiKeyService := service.NewApiKeyService(deps.Keys)

	authMiddleware := middleware.NewAuthMiddleware(cfg, apiKeyService).AuthMiddleware()

	auth := handlers.NewAuthHandler(cfg, authService)
	server.Get("/login", auth.Login)
	server.Get("/login/callback", auth.LoginCallbackHandler)
	server.Post("/logout", auth.Logout)

	platform := handlers.NewPlatformHandler(platformService, cfg.FrontendURL)
	server.Get("/auth/:platform", authMiddleware, platform.AddSocialAccount)
	server.Get("/auth/:platform/callback", platform.CallbackHandler)

	api := server.Group("/api")
	api.Use(authMiddleware)

	user := handlers.NewUserHandler(userService, cfg.CookieName)
	api.Get("/user/info", user.GetUserInfo)
	api.Post("/user/remove", user.RemoveUser)

	apiKeys := handlers.NewApiKeyHandler(apiKeyService)
	api.Post("/api_key/new", apiKeys.CreateApiKey)
	api.Get("/api_key/list", apiKeys.ListKeys)
	api.Post("/api_key/remove", apiKeys.RemoveAPIKey)

	post := handlers.NewPostHandler(deps.PostService)
	api.Post("/posts/create", post.CreatePost)
	api.Put("/posts/update", post.UpdatePost)
	api.Get("/posts", post.ListPosts)
	api.Post("/posts/remove", post.RemovePost)

	media := handlers.NewMediaHandler(storageService)
	api.Get("/media/upload_url", media.UploadURL)
	api.Post("/media/upload", media.Upload)

	// social accounts api routes
	api.Get("/accounts", platform.ListSocialAccounts)
	api.Post("/accounts/remove", platform.DeleteSocialAccount)

	go func() {
		if err := server.Listen(cfg.ServerAddr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Printf("Server is running on %s", cfg.ServerAddr)

	gracefulShutdown(server, deps)
}

func gracefulShutdown(server *fiber.App, deps *app.App) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if err := server.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	deps.Close()
	log.Println("Server shutdown complete.")
}
