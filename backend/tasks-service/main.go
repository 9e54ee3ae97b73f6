package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"trello-project/backend/tasks-service/config"
	"trello-project/backend/tasks-service/handlers"
	"trello-project/backend/tasks-service/hierarchy"
	"trello-project/backend/tasks-service/logging"
	"trello-project/backend/tasks-service/middleware"
	"trello-project/backend/tasks-service/repositories"
	"trello-project/backend/tasks-service/services"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		logging.Logger.Fatalf("Event ID: CONFIG_ERROR, Description: %v", err)
	}
	logging.InitLogger("tasks-service", cfg.LogFile, logrus.InfoLevel)
	logging.Logger.Info("Event ID: SERVICE_START, Description: Starting Tasks Service...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		logging.Logger.Fatalf("Event ID: DB_CONNECTION_FAILED, Description: Database connection for MongoDB failed: %v", err)
	}
	defer client.Disconnect(context.Background())

	if err := client.Ping(ctx, nil); err != nil {
		logging.Logger.Fatalf("Event ID: DB_PING_FAILED, Description: MongoDB connection ping error: %v", err)
	}
	logging.Logger.Infof("Event ID: DB_CONNECTED, Description: Successfully connected to MongoDB database %s", cfg.MongoDBName)

	db := client.Database(cfg.MongoDBName)
	taskRepo := repositories.NewMongoTaskRepository(db.Collection(cfg.MongoCollection))
	if err := taskRepo.EnsureIndexes(ctx); err != nil {
		logging.Logger.Warnf("Event ID: DB_INDEX_FAILED, Description: %v", err)
	}
	membership := repositories.NewMongoMembership(db.Collection(cfg.ProjectsCollection))

	var opts []services.Option
	if cfg.HierarchyEnabled() {
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURI, neo4j.BasicAuth(cfg.Neo4jUsername, cfg.Neo4jPassword, ""))
		if err != nil {
			logging.Logger.Fatalf("Event ID: NEO4J_DRIVER_FAILED, Description: Failed to create Neo4j driver: %v", err)
		}
		defer driver.Close(context.Background())
		if err := driver.VerifyConnectivity(ctx); err != nil {
			logging.Logger.Fatalf("Event ID: NEO4J_CONNECTION_FAILED, Description: %v", err)
		}
		opts = append(opts, services.WithHierarchyGraph(hierarchy.NewNeo4jGraph(driver)))
		logging.Logger.Info("Event ID: NEO4J_CONNECTED, Description: Task hierarchy mirrored to Neo4j")
	}

	taskService := services.NewTaskService(taskRepo, membership, opts...)
	taskHandler := handlers.NewTaskHandler(taskService, cfg.UpcomingDays)

	r := mux.NewRouter()
	taskHandler.Register(r)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{cfg.CORSOrigin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:      c.Handler(middleware.Authenticate([]byte(cfg.JWTSecret), r)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logging.Logger.Infof("Event ID: SERVER_START_INFO, Description: Server running on http://localhost%s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Logger.Fatalf("Event ID: SERVER_FATAL_ERROR, Description: Server failed to start: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Logger.Errorf("Event ID: SERVER_SHUTDOWN_FAILED, Description: %v", err)
	}
	logging.Logger.Info("Event ID: SERVICE_STOP, Description: Tasks Service stopped")
}
