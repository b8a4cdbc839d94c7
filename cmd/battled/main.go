package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quizclash/internal/common/clock"
	"quizclash/internal/common/uuid"
	"quizclash/internal/handlers/api"
	"quizclash/internal/handlers/ws"
	battleRepo "quizclash/internal/repositories/battle"
	connectionRepo "quizclash/internal/repositories/connection"
	reactionRepo "quizclash/internal/repositories/reaction"
	resultsRepo "quizclash/internal/repositories/results"
	snapshotRepo "quizclash/internal/repositories/snapshot"
	tokenRepo "quizclash/internal/repositories/token"
	"quizclash/internal/services/aggregator"
	"quizclash/internal/services/reconnect"
	"quizclash/internal/services/statesync"
	tokenService "quizclash/internal/services/token"
	"quizclash/internal/services/tracker"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	// .env is optional; real deployments set the environment directly
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("failed to load .env")
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if getEnv("LOG_PRETTY", "") != "" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(getEnv("MONGO_URI", "mongodb://localhost:27017")))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to MongoDB")
	}
	if err := mongoClient.Ping(ctx, nil); err != nil {
		log.Fatal().Err(err).Msg("failed to ping MongoDB")
	}

	clk := clock.New()
	uuider := uuid.New()

	battles, err := battleRepo.NewRedis(&battleRepo.Config{
		RedisClient: redisClient,
		Clock:       clk,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create battle repository")
	}

	connections, err := connectionRepo.NewRedis(&connectionRepo.Config{
		RedisClient: redisClient,
		Clock:       clk,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create connection repository")
	}

	snapshots, err := snapshotRepo.NewRedis(&snapshotRepo.Config{
		RedisClient: redisClient,
		Clock:       clk,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create snapshot repository")
	}

	tokens, err := tokenRepo.NewRedis(&tokenRepo.Config{
		RedisClient: redisClient,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create token repository")
	}

	reactions, err := reactionRepo.NewRedis(&reactionRepo.Config{
		RedisClient: redisClient,
		Clock:       clk,
		UUID:        uuider,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create reaction repository")
	}

	results, err := resultsRepo.NewMongo(&resultsRepo.Config{
		Database: mongoClient.Database(getEnv("MONGO_DATABASE", "quizclash")),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create results repository")
	}

	trackerSvc, err := tracker.New(&tracker.Config{
		BattleRepo:     battles,
		ConnectionRepo: connections,
		Clock:          clk,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create connection tracker")
	}

	tokenSvc, err := tokenService.New(&tokenService.Config{
		TokenRepo:  tokens,
		BattleRepo: battles,
		Clock:      clk,
		UUID:       uuider,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create token service")
	}

	stateSvc, err := statesync.New(&statesync.Config{
		SnapshotRepo: snapshots,
		BattleRepo:   battles,
		Clock:        clk,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create state synchronizer")
	}

	aggregatorSvc, err := aggregator.New(&aggregator.Config{
		BattleRepo:  battles,
		ResultsRepo: results,
		Tracker:     trackerSvc,
		Clock:       clk,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create aggregator")
	}

	reconnectSvc, err := reconnect.New(&reconnect.Config{
		TokenService: tokenSvc,
		Tracker:      trackerSvc,
		StateSync:    stateSvc,
		BattleRepo:   battles,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create reconnect facade")
	}

	gateway, err := ws.New(&ws.Config{
		BattleRepo:   battles,
		ReactionRepo: reactions,
		Tracker:      trackerSvc,
		TokenService: tokenSvc,
		Reconnect:    reconnectSvc,
		StateSync:    stateSvc,
		Aggregator:   aggregatorSvc,
		Clock:        clk,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create websocket gateway")
	}

	rest, err := api.New(&api.Config{
		BattleRepo:   battles,
		ReactionRepo: reactions,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create rest handler")
	}

	// The sweeper runs for the life of the process; it commits lapsed
	// sessions and finalizes expired grace windows
	sweeperCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	if err := trackerSvc.StartSweeper(sweeperCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to start sweeper")
	}

	router := mux.NewRouter()
	gateway.Register(router)
	rest.Register(router)

	server := &http.Server{
		Addr:    getEnv("LISTEN_ADDR", ":8080"),
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("battle engine listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	trackerSvc.Teardown()
	stateSvc.Teardown()

	if err := mongoClient.Disconnect(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("mongo disconnect failed")
	}

	log.Info().Msg("battle engine stopped")
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
