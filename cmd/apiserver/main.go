package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	redisDriver "github.com/redis/go-redis/v9"

	"chatcore/internal/auth"
	"chatcore/internal/blobstore"
	"chatcore/internal/chattypes"
	"chatcore/internal/config"
	"chatcore/internal/handlers/apiserver"
	appKafka "chatcore/internal/kafka"
	"chatcore/internal/messages"
	"chatcore/internal/middleware"
	"chatcore/internal/recordstore"
	appRedis "chatcore/internal/redis"
	"chatcore/internal/rooms"
	"chatcore/internal/social"
	"chatcore/internal/unread"
)

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	log.Println("API server config loaded.")

	// Record store backend: postgres for real deployments, memory for
	// local development.
	var backend recordstore.Backend
	switch cfg.Store.Backend {
	case "memory":
		backend = recordstore.NewMemoryBackend()
		log.Println("Using in-memory record store.")
	case "postgres":
		db, err := recordstore.InitDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init database: %v", err)
		}
		backend, err = recordstore.NewGormBackend(db)
		if err != nil {
			log.Fatalf("failed to init record store backend: %v", err)
		}
		log.Println("API server database connected.")
	default:
		log.Fatalf("unsupported store backend: %s", cfg.Store.Backend)
	}
	defer backend.Close()

	store := recordstore.New(backend, recordstore.Options{
		MaxRetries:   cfg.Store.MaxTxRetries,
		RetryBackoff: cfg.Store.TxRetryBackoff,
	})

	redisClient := redisDriver.NewClient(&redisDriver.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	log.Println("Connected to Redis.")

	tokenBlacklist := appRedis.NewRedisTokenBlacklist(redisClient)

	kfkProducer, err := appKafka.NewConfluentKafkaProducer(cfg.Kafka)
	if err != nil {
		log.Fatalf("failed to create Kafka producer: %v", err)
	}
	defer kfkProducer.Close()
	log.Println("Kafka producer initialized (API server).")

	eventPublisher := appKafka.NewRoomEventPublisher(kfkProducer, cfg.Kafka.RoomEventsTopic)

	authService := auth.NewService(store, cfg.Auth)
	socialService := social.NewService(store)
	roomService := rooms.NewService(store)
	messageService := messages.NewService(store, roomService, eventPublisher)
	unreadService := unread.NewService(store)

	var blobStore chattypes.BlobStore
	blobBaseURL := "/uploads"
	switch cfg.Storage.Type {
	case "local":
		blobStore, err = blobstore.NewLocalBlobStore(cfg.Storage, blobBaseURL)
		if err != nil {
			log.Fatalf("failed to init local blob store: %v", err)
		}
		log.Println("Local blob store initialized.")
	default:
		log.Fatalf("unsupported storage type: %s", cfg.Storage.Type)
	}

	authHandler := apiserver.NewAuthHandler(authService, tokenBlacklist)
	userHandler := apiserver.NewUserHandler(socialService)
	friendHandler := apiserver.NewFriendHandler(socialService)
	roomHandler := apiserver.NewRoomHandler(roomService)
	messageHandler := apiserver.NewMessageHandler(messageService, unreadService)
	uploadHandler := apiserver.NewUploadHandler(blobStore, cfg.Storage)

	r := mux.NewRouter()

	authRouter := r.PathPrefix("/auth").Subrouter()
	authRouter.HandleFunc("/register", authHandler.Register).Methods(http.MethodPost)
	authRouter.HandleFunc("/login", authHandler.Login).Methods(http.MethodPost)

	authMW := middleware.AuthMiddleware(cfg.Auth.JWTSecretKey, tokenBlacklist)

	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(authMW)

	apiRouter.HandleFunc("/auth/logout", authHandler.Logout).Methods(http.MethodPost)

	// Profile
	apiRouter.HandleFunc("/users/me", userHandler.GetMe).Methods(http.MethodGet)
	apiRouter.HandleFunc("/users/me", userHandler.UpdateProfile).Methods(http.MethodPut)
	apiRouter.HandleFunc("/users/{userID}", userHandler.GetUser).Methods(http.MethodGet)

	// Friends and blocks
	apiRouter.HandleFunc("/friends", friendHandler.ListFriends).Methods(http.MethodGet)
	apiRouter.HandleFunc("/friends/{userID}", friendHandler.AddFriend).Methods(http.MethodPost)
	apiRouter.HandleFunc("/friends/{userID}/block", friendHandler.BlockFriend).Methods(http.MethodPost)
	apiRouter.HandleFunc("/blocked", friendHandler.ListBlocked).Methods(http.MethodGet)
	apiRouter.HandleFunc("/blocked/{userID}", friendHandler.UnblockUser).Methods(http.MethodDelete)

	// Rooms
	apiRouter.HandleFunc("/rooms", roomHandler.ListRooms).Methods(http.MethodGet)
	apiRouter.HandleFunc("/rooms/direct", roomHandler.OpenDirectRoom).Methods(http.MethodPost)
	apiRouter.HandleFunc("/rooms/direct/{roomID}", roomHandler.DeleteDirectRoom).Methods(http.MethodDelete)
	apiRouter.HandleFunc("/rooms/group", roomHandler.CreateRoom).Methods(http.MethodPost)
	apiRouter.HandleFunc("/rooms/group/{roomID}", roomHandler.GetRoom).Methods(http.MethodGet)
	apiRouter.HandleFunc("/rooms/group/{roomID}/join", roomHandler.JoinRoom).Methods(http.MethodPost)
	apiRouter.HandleFunc("/rooms/group/{roomID}", roomHandler.DeleteRoom).Methods(http.MethodDelete)

	// Messages and unread counters
	apiRouter.HandleFunc("/rooms/{roomID}/messages", messageHandler.ListMessages).Methods(http.MethodGet)
	apiRouter.HandleFunc("/rooms/{roomID}/messages", messageHandler.SendMessage).Methods(http.MethodPost)
	apiRouter.HandleFunc("/rooms/{roomID}/read", messageHandler.MarkRead).Methods(http.MethodPost)
	apiRouter.HandleFunc("/messages/{messageID}", messageHandler.EditMessage).Methods(http.MethodPut)
	apiRouter.HandleFunc("/messages/{messageID}/like", messageHandler.ToggleLike).Methods(http.MethodPost)
	apiRouter.HandleFunc("/unread", messageHandler.UnreadCounts).Methods(http.MethodGet)

	// Uploads
	apiRouter.HandleFunc("/upload", uploadHandler.UploadFile).Methods(http.MethodPost)

	// Serve uploaded blobs.
	if cfg.Storage.Type == "local" {
		staticPath := strings.TrimSuffix(blobBaseURL, "/") + "/"
		localDir := http.Dir(cfg.Storage.LocalPath)
		r.PathPrefix(staticPath).Handler(http.StripPrefix(staticPath, http.FileServer(localDir)))
		log.Printf("Serving uploaded files at %s -> %s", staticPath, cfg.Storage.LocalPath)
	}

	serverAddr := fmt.Sprintf("%s:%s", cfg.APIServer.Host, cfg.APIServer.Port)

	corsOptions := []handlers.CORSOption{
		handlers.AllowedOrigins(cfg.APIServer.CORS.AllowedOrigins),
		handlers.AllowedMethods(cfg.APIServer.CORS.AllowedMethods),
		handlers.AllowedHeaders(cfg.APIServer.CORS.AllowedHeaders),
		handlers.ExposedHeaders(cfg.APIServer.CORS.ExposedHeaders),
		handlers.MaxAge(cfg.APIServer.CORS.MaxAge),
	}
	if cfg.APIServer.CORS.AllowCredentials {
		corsOptions = append(corsOptions, handlers.AllowCredentials())
	}
	corsHandler := handlers.CORS(corsOptions...)(r)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      corsHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  time.Second * 60,
	}

	go func() {
		log.Printf("API server listening on %s", serverAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("API server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutdown signal received, stopping API server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("API server forced shutdown: %v", err)
	}

	log.Println("API server stopped.")
}
