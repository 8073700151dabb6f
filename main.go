package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Shared server state: the provider registry, the deliberation engine and
// the model catalog cache.
var (
	registry     *Registry
	council      *Council
	catalogCache *CatalogCache
)

func main() {
	// Load configuration
	LoadConfig()

	registry = NewRegistryFromConfig()
	council = NewCouncil(registry, DefaultPrompts())
	catalogCache = NewCatalogCache(ModelCatalogTTL)

	router := setupRouter()

	// Start server
	log.Println("Starting LLM Council backend on port 8001...")
	if err := router.Run(":8001"); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// setupRouter builds the Gin router with middleware and all routes.
func setupRouter() *gin.Engine {
	router := gin.Default()

	// Request size limit middleware
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxRequestBodySize)
		c.Next()
	})

	// CORS middleware with dynamic origin validation
	router.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			// In production, use environment-configured origins
			if len(CORSAllowedOrigins) > 0 && CORSAllowedOrigins[0] != "" {
				for _, allowedOrigin := range CORSAllowedOrigins {
					if origin == allowedOrigin {
						return true
					}
				}
				return false
			}
			// In development, allow any localhost/127.0.0.1 origin
			return strings.HasPrefix(origin, "http://localhost") ||
				strings.HasPrefix(origin, "http://127.0.0.1")
		},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: true,
	}))

	// Routes
	router.GET("/", healthCheck)
	router.GET("/api/conversations", listConversationsHandler)
	router.POST("/api/conversations", createConversationHandler)
	router.GET("/api/conversations/:id", getConversationHandler)
	router.POST("/api/conversations/:id/message", sendMessageHandler)
	router.POST("/api/conversations/:id/message/stream", sendMessageStreamHandler)
	router.GET("/api/models", listModelsHandler)
	router.POST("/api/search", searchHandler)

	return router
}

// healthCheck returns a simple health check response.
// GET / - Returns service status information.
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "LLM Council API",
	})
}

// listConversationsHandler lists all conversations with metadata only.
// GET /api/conversations - Returns array of conversation metadata sorted by date.
func listConversationsHandler(c *gin.Context) {
	conversations, err := ListConversations()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to list conversations: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, conversations)
}

// createConversationHandler creates a new conversation.
// POST /api/conversations - Generates a new UUID and creates an empty conversation.
func createConversationHandler(c *gin.Context) {
	conversationID := uuid.New().String()

	conversation, err := CreateConversation(conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to create conversation: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, conversation)
}

// getConversationHandler gets a specific conversation by ID.
// GET /api/conversations/:id - Returns full conversation including all messages.
func getConversationHandler(c *gin.Context) {
	conversationID := c.Param("id")

	conversation, err := GetConversation(conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to get conversation: %v", err),
		})
		return
	}

	if conversation == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Conversation not found",
		})
		return
	}

	c.JSON(http.StatusOK, conversation)
}

// buildCouncilConfig assembles the per-request council from defaults plus
// any overrides in the request body.
func buildCouncilConfig(request SendMessageRequest) CouncilConfig {
	config := DefaultCouncilConfig()
	if len(request.Members) > 0 {
		config.Members = request.Members
	}
	if request.Chairman != "" {
		config.Chairman = request.Chairman
	}
	if request.Mode != "" {
		config.Mode = request.Mode
	}
	return config
}

// sendMessageHandler sends a message and runs the deliberation to completion.
// POST /api/conversations/:id/message - Returns all stages at once.
// Use sendMessageStreamHandler for the SSE streaming version.
func sendMessageHandler(c *gin.Context) {
	conversationID := c.Param("id")

	var request SendMessageRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	conversation, err := GetConversation(conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to get conversation: %v", err),
		})
		return
	}
	if conversation == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Conversation not found",
		})
		return
	}

	isFirstMessage := len(conversation.Messages) == 0

	if err := AddUserMessage(conversationID, request.Content); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to add user message: %v", err),
		})
		return
	}

	if isFirstMessage {
		go func() {
			title := GenerateConversationTitle(context.Background(), registry, request.Content)
			if err := UpdateConversationTitle(conversationID, title); err != nil {
				log.Printf("Failed to update title: %v", err)
			}
		}()
	}

	ctx := c.Request.Context()

	var searchContext string
	if request.UseSearch {
		searchContext, err = FetchSearchContext(ctx, request.Content)
		if err != nil {
			log.Printf("Web search failed, continuing without context: %v", err)
		}
	}

	deliberation, err := council.StartDeliberation(ctx, DeliberationRequest{
		Query:         request.Content,
		Council:       buildCouncilConfig(request),
		SearchContext: searchContext,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid council configuration: %v", err),
		})
		return
	}

	// Drain the stream; the blocking endpoint only reports the final state.
	for range deliberation.Events() {
	}
	result, err := deliberation.Wait()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Council process failed: %v", err),
		})
		return
	}

	if err := AddAssistantMessage(conversationID, result); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to add assistant message: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, SendMessageResponse{
		Stage1:   result.Stage1,
		Stage2:   result.Stage2,
		Stage3:   result.Stage3,
		Metadata: result.Metadata,
	})
}

// sendMessageStreamHandler sends a message and streams the deliberation via SSE.
// POST /api/conversations/:id/message/stream - Streams each event as it happens.
// Client disconnect cancels the deliberation; partial results are preserved.
func sendMessageStreamHandler(c *gin.Context) {
	conversationID := c.Param("id")

	var request SendMessageRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	conversation, err := GetConversation(conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to get conversation: %v", err),
		})
		return
	}
	if conversation == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Conversation not found",
		})
		return
	}

	// Set SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	isFirstMessage := len(conversation.Messages) == 0

	if err := AddUserMessage(conversationID, request.Content); err != nil {
		sendSSEError(c, fmt.Sprintf("Failed to add user message: %v", err))
		return
	}

	// The request context is the cancellation scope: a client disconnect
	// aborts every in-flight provider call.
	ctx := c.Request.Context()

	var titleChan chan string
	if isFirstMessage {
		titleChan = make(chan string, 1)
		go func() {
			title := GenerateConversationTitle(context.Background(), registry, request.Content)
			if err := UpdateConversationTitle(conversationID, title); err != nil {
				log.Printf("Failed to update title: %v", err)
			} else {
				titleChan <- title
			}
			close(titleChan)
		}()
	}

	var searchContext string
	if request.UseSearch {
		sendSSEEvent(c, gin.H{"type": "search_start"})
		searchContext, err = FetchSearchContext(ctx, request.Content)
		if err != nil {
			log.Printf("Web search failed, continuing without context: %v", err)
		}
		sendSSEEvent(c, gin.H{"type": "search_complete", "data": gin.H{"search_context": searchContext}})
	}

	deliberation, err := council.StartDeliberation(ctx, DeliberationRequest{
		Query:         request.Content,
		Council:       buildCouncilConfig(request),
		SearchContext: searchContext,
	})
	if err != nil {
		sendSSEError(c, fmt.Sprintf("Invalid council configuration: %v", err))
		return
	}

	for event := range deliberation.Events() {
		sendSSEEvent(c, event)
	}

	result, err := deliberation.Wait()
	switch {
	case errors.Is(err, context.Canceled):
		log.Printf("Deliberation aborted for conversation %s", conversationID)
		return
	case err != nil:
		// Fatal errors already produced an error event; nothing to save.
		return
	}

	// Wait for title if it was being generated
	if titleChan != nil {
		if title := <-titleChan; title != "" {
			sendSSEEvent(c, gin.H{"type": "title_complete", "data": gin.H{"title": title}})
		}
	}

	if err := AddAssistantMessage(conversationID, result); err != nil {
		sendSSEError(c, fmt.Sprintf("Failed to save message: %v", err))
		return
	}
}

// sendSSEEvent sends a Server-Sent Event.
// Marshals data to JSON and writes as SSE format with "data: " prefix.
func sendSSEEvent(c *gin.Context, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("Failed to marshal SSE event: %v", err)
		return
	}
	c.Writer.WriteString(fmt.Sprintf("data: %s\n\n", string(jsonData)))
	c.Writer.Flush()
}

// sendSSEError sends an error event via SSE.
// Convenience wrapper for sending error-type SSE events.
func sendSSEError(c *gin.Context, message string) {
	sendSSEEvent(c, gin.H{"type": "error", "message": message})
}

// listModelsHandler returns the selectable model catalog with caching.
// GET /api/models - Query params: ?refresh=true (force cache refresh)
func listModelsHandler(c *gin.Context) {
	forceRefresh := c.Query("refresh") == "true"

	if !forceRefresh {
		if cached, ok := catalogCache.Get(); ok {
			c.JSON(http.StatusOK, gin.H{
				"models":       cached,
				"last_updated": catalogCache.GetLastUpdated(),
			})
			return
		}
	}

	models, err := FetchOpenRouterModels(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to fetch models: %v", err),
		})
		return
	}

	catalogCache.Set(models)
	log.Printf("Cached %d models", len(models))

	c.JSON(http.StatusOK, gin.H{
		"models":       models,
		"last_updated": catalogCache.GetLastUpdated(),
	})
}

// searchHandler runs a web search and returns the formatted context string.
// POST /api/search - Body: {"query": "..."}
func searchHandler(c *gin.Context) {
	var request struct {
		Query string `json:"query" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	searchContext, err := FetchSearchContext(c.Request.Context(), request.Query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Search failed: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"search_context": searchContext,
	})
}
