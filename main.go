package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"

	"tonot_server/routes"
	"tonot_server/services"
	"tonot_server/socket"
	"tonot_server/telegram"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

func main() {
	// Initialize DynamoDB client and service
	log.Println("Initializing DynamoDB client...")
	dynamoClient := services.InitializeDynamoDBClient()
	dynamoService := &services.DynamoService{Client: dynamoClient}
	log.Println("DynamoDB client initialized.")

	// Initialize the Socket.IO notification dispatcher
	socketServer := socket.NewServer()
	go func() {
		if err := socketServer.IO().Serve(); err != nil {
			log.Fatalf("Socket.IO serve error: %v", err)
		}
	}()
	defer socketServer.IO().Close()

	// Initialize Services
	referralService := &services.ReferralService{Dynamo: dynamoService}
	userService := &services.UserService{Dynamo: dynamoService, Referrals: referralService}
	matchService := &services.MatchService{Dynamo: dynamoService, Notifier: socketServer, Referrals: referralService}
	poolService := &services.PoolService{Dynamo: dynamoService, Notifier: socketServer, Referrals: referralService}
	reaperService := &services.ReaperService{Matches: matchService, Pools: poolService, Dynamo: dynamoService}

	// Start the Telegram companion bot when a token is configured
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		bot, err := telegram.NewBot(token, os.Getenv("WEBAPP_URL"), userService)
		if err != nil {
			log.Fatalf("Failed to start Telegram bot: %v", err)
		}
		go bot.StartPolling(context.Background())
		log.Println("Telegram bot polling started.")
	}

	// Set up the server port
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("Using server port: %s\n", port)

	// Initialize the router
	r := mux.NewRouter()

	// Register a welcome route
	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "Welcome to TONOT Chance")
	}).Methods("GET")

	// Register a health check endpoint
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		response := map[string]string{"status": "healthy"}
		json.NewEncoder(w).Encode(response)
	}).Methods("GET")

	// Mount the Socket.IO endpoint
	r.Handle("/socket.io/", socketServer.IO())

	// Register routes
	routes.RegisterUserRoutes(r, userService)
	routes.RegisterMatchRoutes(r, matchService, reaperService)
	routes.RegisterPoolRoutes(r, poolService, reaperService)
	routes.RegisterReferralRoutes(r, referralService)
	routes.RegisterAvatarRoutes(r, userService)
	routes.RegisterAdminRoutes(r, reaperService)

	// Add CORS middleware
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // Adjust for specific domains if needed
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(r)

	// Start the HTTP server
	log.Printf("Starting server on port %s...\n", port)
	log.Fatal(http.ListenAndServe(":"+port, corsHandler))
}
