package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/vaultrag/bridge/controller"
	"github.com/vaultrag/bridge/services"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/gin-gonic/gin"
	"google.golang.org/genai"
)

func main() {
	httpClient := &http.Client{
		Timeout: 30 * time.Second,
	}

	vaultPath := os.Getenv("VAULT_PATH")
	if vaultPath == "" {
		log.Fatal("FATAL: VAULT_PATH is not set. Point it at the notes vault root.")
	}
	pluginPath := os.Getenv("PLUGIN_PATH")
	if pluginPath == "" {
		pluginPath = filepath.Join(vaultPath, ".obsidian", "plugins", "vault-rag")
	}
	if err := os.MkdirAll(pluginPath, 0755); err != nil {
		log.Fatalf("FATAL: Could not create plugin directory %s: %v", pluginPath, err)
	}

	// Create Chroma client using v2 API.
	chromaClient, err := chromago.NewHTTPClient()
	if err != nil {
		log.Fatalf("FATAL: Failed to create chroma client: %v", err)
	}
	defer func() {
		if err := chromaClient.Close(); err != nil {
			log.Printf("Warning: Failed to close chroma client: %v", err)
		}
	}()

	collection, err := getOrCreateCollection(chromaClient, "vault-embeddings")
	if err != nil {
		log.Fatalf("FATAL: Failed to get or create collection: %v", err)
	}

	geminiClient, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  os.Getenv("GEMINI_API_KEY"),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to create Gemini client: %v. Make sure GEMINI_API_KEY is set.", err)
	}
	log.Println("Successfully connected to Google Gemini.")

	fileActions, err := services.NewFileActions()
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	ragService := services.NewRAGService(httpClient, collection, geminiClient, fileActions)

	// The file bridge: mailbox store, dispatcher, poller, and the worker
	// that answers mailbox questions.
	vaultStore, err := services.NewVaultStore(vaultPath)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	lockStore := services.NewLockedStore()
	dispatcher := services.NewDispatcher(lockStore, pluginPath)
	poller := services.NewPoller(lockStore, vaultStore, services.LogNotifier{})
	bridge := services.NewBridge(dispatcher, poller, vaultStore)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	indexer := services.NewFileIndexingService(collection, ragService, vaultPath)
	go func() {
		indexer.ScanAndIndexDirectory(ctx, vaultPath)
		indexer.WatchDirectory(ctx, vaultPath)
	}()

	worker := services.NewAnswerWorker(lockStore, dispatcher, ragService)
	go worker.Run(ctx)

	ragController := controller.NewRAGController(ragService, bridge)

	router := gin.Default()

	// CORS for the host plugin's dev server.
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "Vault RAG Bridge",
			"version": "1.0.0",
		})
	})

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/notes", ragController.IngestNote) // Create a new note
		apiV1.GET("/notes", ragController.GetAllNotes) // List indexed notes
		apiV1.POST("/query", ragController.QueryRAG)   // Synchronous question
		apiV1.POST("/ask", ragController.Ask)          // File-bridge question
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("Vault RAG bridge starting on http://localhost:%s", port)
	log.Printf("Watching vault: %s", vaultPath)
	log.Printf("Mailbox directory: %s", pluginPath)

	if err := router.Run(":" + port); err != nil {
		log.Fatalf("FATAL: Failed to start server: %v", err)
	}
}

// getOrCreateCollection ensures the vault embedding collection exists.
func getOrCreateCollection(client chromago.Client, collectionName string) (chromago.Collection, error) {
	ctx := context.Background()

	log.Printf("Getting or creating collection '%s'...", collectionName)

	collection, err := client.GetOrCreateCollection(
		ctx,
		collectionName,
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("description", "Vault RAG bridge collection"),
				chromago.NewStringAttribute("created_by", "vault_rag_bridge"),
			),
		),
	)
	if err != nil {
		return nil, err
	}

	log.Printf("Successfully got/created collection '%s'", collectionName)
	return collection, nil
}
