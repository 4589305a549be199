package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatcore/internal/chattypes"
	"chatcore/internal/config"
	"chatcore/internal/handlers/feedserver"
	appKafka "chatcore/internal/kafka"
	kafkahandlers "chatcore/internal/kafka/handlers"
	"chatcore/internal/livefeed"
	"chatcore/internal/messages"
	"chatcore/internal/recordstore"
	"chatcore/internal/rooms"
)

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	log.Println("Feed server config loaded.")

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
		log.Println("Feed server database connected.")
	default:
		log.Fatalf("unsupported store backend: %s", cfg.Store.Backend)
	}
	defer backend.Close()

	store := recordstore.New(backend, recordstore.Options{
		MaxRetries:   cfg.Store.MaxTxRetries,
		RetryBackoff: cfg.Store.TxRetryBackoff,
	})

	roomService := rooms.NewService(store)
	// The feed server only reads; room events come in over Kafka, so
	// the message service publishes nowhere.
	messageService := messages.NewService(store, roomService, chattypes.NopPublisher{})

	hub := livefeed.NewHub(messageService.List)
	hubCtx, cancelHub := context.WithCancel(context.Background())
	defer cancelHub()
	go hub.Run(hubCtx)
	log.Println("Live feed hub started.")

	wsHandler := feedserver.NewWebSocketHandler(hub, roomService, cfg)

	roomEventConsumer, err := appKafka.NewConfluentKafkaConsumer(cfg.Kafka)
	if err != nil {
		log.Fatalf("failed to create room event consumer: %v", err)
	}
	defer roomEventConsumer.Close()

	consumerLogic := kafkahandlers.NewRoomEventConsumerLogic(hub)

	consumerCtx, cancelConsumers := context.WithCancel(context.Background())
	defer cancelConsumers()

	go func() {
		topics := []string{cfg.Kafka.RoomEventsTopic}
		log.Printf("Room event consumer starting, topic: %s, group: %s", cfg.Kafka.RoomEventsTopic, cfg.Kafka.ConsumerGroup)
		err := roomEventConsumer.Consume(consumerCtx, topics, cfg.Kafka.ConsumerGroup, consumerLogic.HandleRoomEvent)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Room event consumer error: %v", err)
		}
		log.Println("Room event consumer stopped.")
	}()

	httpMux := http.NewServeMux()
	httpMux.HandleFunc(cfg.Server.WebSocketPath, wsHandler.ServeWS)

	serverAddr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:           serverAddr,
		Handler:        httpMux,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		log.Printf("Feed server listening on %s, WebSocket path: %s", serverAddr, cfg.Server.WebSocketPath)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Feed server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutdown signal received, stopping feed server...")

	cancelConsumers()
	cancelHub()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("Feed server forced shutdown: %v", err)
	}
	log.Println("Feed server stopped.")
}
