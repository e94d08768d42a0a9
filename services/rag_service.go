package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/vaultrag/bridge/models"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"github.com/google/uuid"
	"google.golang.org/genai"
)

const (
	geminiModel    = "gemini-2.5-flash"
	embeddingModel = "nomic-embed-text:v1.5"
	defaultTopN    = 10
)

// RAGService interface defines methods for RAG operations.
type RAGService interface {
	IngestNote(c context.Context, req models.IngestDataRequest) error
	QueryRAG(c context.Context, req models.QueryTextRequest) (*models.QueryRAGResponse, error)
	// Answer runs the full pipeline for a mailbox question: retrieve the
	// most relevant vault chunks, generate an answer over them, and
	// report the source file paths the answer drew on.
	Answer(c context.Context, question string) (string, []string, error)
	GetAllNotes(c context.Context) (*models.GetAllNotesResponse, error)
	EmbedTextWithOllama(ctx context.Context, textToEmbed string) ([]float32, error)
	GetTotalChunks(c context.Context) (int, error)
}

// ragServiceImpl holds the dependencies it needs to do its job.
type ragServiceImpl struct {
	httpClient   *http.Client
	collection   chromago.Collection
	geminiClient *genai.Client
	FileActions  *FileActions
	ollamaURL    string
	chatSessions map[string]*genai.Chat
	mu           sync.Mutex
}

// NewRAGService creates a new RAG service instance. The Ollama endpoint
// comes from OLLAMA_URL, defaulting to the local daemon.
func NewRAGService(client *http.Client, collection chromago.Collection, geminiClient *genai.Client, fileActions *FileActions) RAGService {
	ollamaURL := os.Getenv("OLLAMA_URL")
	if ollamaURL == "" {
		ollamaURL = "http://localhost:11434"
	}
	return &ragServiceImpl{
		httpClient:   client,
		collection:   collection,
		geminiClient: geminiClient,
		FileActions:  fileActions,
		ollamaURL:    ollamaURL,
		chatSessions: make(map[string]*genai.Chat),
	}
}

// GetTotalChunks counts all the document chunks in the collection.
func (r *ragServiceImpl) GetTotalChunks(c context.Context) (int, error) {
	count, err := r.collection.Count(c)
	if err != nil {
		return 0, fmt.Errorf("failed to count items in collection: %w", err)
	}
	return int(count), nil
}

// GetAllNotes retrieves every indexed chunk from the collection.
func (r *ragServiceImpl) GetAllNotes(c context.Context) (*models.GetAllNotesResponse, error) {
	log.Printf("SERVICE: Getting all notes from ChromaDB...")

	results, err := r.collection.Get(c)
	if err != nil {
		return nil, fmt.Errorf("failed to get documents from chromadb: %w", err)
	}

	ids := results.GetIDs()
	documents := results.GetDocuments()
	metadatas := results.GetMetadatas()

	if len(ids) == 0 {
		log.Printf("SERVICE: No notes found in the collection.")
		return &models.GetAllNotesResponse{Count: 0, Notes: []models.Note{}}, nil
	}

	notes := make([]models.Note, 0, len(documents))
	for i := range documents {
		var metadataMap map[string]interface{}
		if len(metadatas) > i && metadatas[i] != nil {
			metadataMap = metadataToMap(metadatas[i])
		}
		notes = append(notes, models.Note{
			ID:       string(ids[i]),
			Text:     documents[i].ContentString(),
			Metadata: metadataMap,
		})
	}

	log.Printf("SERVICE: Successfully retrieved %d notes", len(notes))
	return &models.GetAllNotesResponse{Count: len(notes), Notes: notes}, nil
}

// IngestNote embeds a single note text and stores it in the collection.
func (r *ragServiceImpl) IngestNote(c context.Context, req models.IngestDataRequest) error {
	log.Printf("SERVICE: Ingesting note: '%s'", req.Text)

	embeddingVector, err := r.EmbedTextWithOllama(c, req.Text)
	if err != nil {
		return fmt.Errorf("could not generate embedding for note: %w", err)
	}

	embedding := embeddings.NewEmbeddingFromFloat32(embeddingVector)
	metadata := chromago.NewDocumentMetadata(
		chromago.NewStringAttribute("source", "user_input"),
	)

	err = r.collection.Add(c,
		chromago.WithIDs(chromago.DocumentID(uuid.New().String())),
		chromago.WithTexts(req.Text),
		chromago.WithEmbeddings(embedding),
		chromago.WithMetadatas(metadata),
	)
	if err != nil {
		return fmt.Errorf("failed to add record to chromadb: %w", err)
	}

	log.Printf("SERVICE: Successfully added document")
	return nil
}

// Answer implements the mailbox question pipeline: top-N retrieval, then
// one Gemini generation over the retrieved context. Sources are the
// distinct vault file paths of the retrieved chunks, in retrieval order.
func (r *ragServiceImpl) Answer(c context.Context, question string) (string, []string, error) {
	log.Printf("SERVICE: Answering question: '%s'", question)

	docs, err := r.retrieveDocuments(c, question, defaultTopN)
	if err != nil {
		return "", nil, fmt.Errorf("could not retrieve documents: %w", err)
	}

	var contextSnippets strings.Builder
	for i, doc := range docs {
		if i > 0 {
			contextSnippets.WriteString("\n\n")
		}
		if name, ok := doc.Metadata["file_name"].(string); ok {
			rel, _ := doc.Metadata["relative_path"].(string)
			contextSnippets.WriteString(fmt.Sprintf("File: %s (Path: %s)\n", name, rel))
		}
		contextSnippets.WriteString(doc.Text)
	}

	prompt := BuildAnswerPrompt(question, contextSnippets.String())
	result, err := r.geminiClient.Models.GenerateContent(c, geminiModel, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: GetSystemPrompt(),
	})
	if err != nil {
		return "", nil, fmt.Errorf("gemini api call failed: %w", err)
	}

	answer := cleanGeneratedText(result.Text())
	if answer == "" {
		return "", nil, fmt.Errorf("gemini returned an empty answer")
	}
	return answer, sourcePaths(docs), nil
}

// sourcePaths collects the distinct source file paths of retrieved chunks,
// preserving retrieval order.
func sourcePaths(docs []models.SourceDocument) []string {
	seen := make(map[string]bool)
	paths := []string{}
	for _, doc := range docs {
		path, ok := doc.Metadata["source_file"].(string)
		if !ok || path == "" || seen[path] {
			continue
		}
		seen[path] = true
		paths = append(paths, path)
	}
	return paths
}

// cleanGeneratedText strips a stray markdown fence the model sometimes
// wraps its whole answer in.
func cleanGeneratedText(text string) string {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") {
		if _, after, found := strings.Cut(cleaned, "\n"); found {
			cleaned = strings.TrimSpace(after)
		}
		cleaned = strings.TrimSpace(strings.TrimSuffix(cleaned, "```"))
	}
	return cleaned
}

// QueryRAG answers an interactive query through a tool-enabled chat
// session, keeping conversational memory per session ID.
func (r *ragServiceImpl) QueryRAG(c context.Context, req models.QueryTextRequest) (*models.QueryRAGResponse, error) {
	log.Printf("SERVICE: Querying RAG with: '%s' (SessionID: '%s')", req.Query, req.SessionID)

	r.mu.Lock()
	defer r.mu.Unlock()

	var session *genai.Chat
	sessionID := req.SessionID

	if sessionID != "" {
		session = r.chatSessions[sessionID]
	}

	// No session ID, or the session did not survive a restart: start fresh.
	if session == nil {
		log.Println("SERVICE: No active session found. Creating a new one.")
		var err error
		session, err = r.geminiClient.Chats.Create(c, geminiModel, &genai.GenerateContentConfig{
			Tools:             GetAllTools(),
			SystemInstruction: GetSystemPrompt(),
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("could not start new chat session: %w", err)
		}
		sessionID = uuid.New().String()
		r.chatSessions[sessionID] = session
	}

	geminiAnswer, retrievedDocs, err := r.generateResponseWithGemini(c, session, req.Query)
	if err != nil {
		return nil, fmt.Errorf("could not generate response from gemini: %w", err)
	}

	return &models.QueryRAGResponse{
		Answer:     geminiAnswer,
		SourceDocs: retrievedDocs,
		SessionID:  sessionID,
	}, nil
}

// retrieveDocuments queries ChromaDB for the chunks most similar to query.
func (r *ragServiceImpl) retrieveDocuments(c context.Context, query string, nResults int) ([]models.SourceDocument, error) {
	log.Printf("SERVICE-HELPER: Retrieving documents from ChromaDB...")

	queryEmbedding, err := r.EmbedTextWithOllama(c, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query text: %w", err)
	}
	embedding := embeddings.NewEmbeddingFromFloat32(queryEmbedding)

	results, err := r.collection.Query(
		c,
		chromago.WithQueryEmbeddings(embedding),
		chromago.WithNResults(nResults),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chromadb: %w", err)
	}

	var documents []models.SourceDocument
	documentGroups := results.GetDocumentsGroups()
	metadataGroups := results.GetMetadatasGroups()

	if len(documentGroups) > 0 {
		for i, doc := range documentGroups[0] {
			if doc.ContentString() == "" {
				continue
			}
			var metadataMap map[string]interface{}
			if len(metadataGroups) > 0 && metadataGroups[0][i] != nil {
				metadataMap = metadataToMap(metadataGroups[0][i])
			}
			documents = append(documents, models.SourceDocument{
				Text:     doc.ContentString(),
				Metadata: metadataMap,
			})
		}
	}
	log.Printf("SERVICE-HELPER: Retrieved %d documents", len(documents))
	return documents, nil
}

// metadataToMap converts chroma document metadata to a plain map. The
// DocumentMetadata type exposes no accessor for its values, so it goes
// through a JSON round trip.
func metadataToMap(metadata chromago.DocumentMetadata) map[string]interface{} {
	jsonBytes, err := json.Marshal(metadata)
	if err != nil {
		log.Printf("WARN: could not marshal document metadata: %v", err)
		return make(map[string]interface{})
	}
	var metadataMap map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &metadataMap); err != nil {
		log.Printf("WARN: could not unmarshal document metadata: %v", err)
		return make(map[string]interface{})
	}
	return metadataMap
}

// generateResponseWithGemini drives a chat turn, looping through any tool
// calls the model makes until it produces a final text answer.
func (r *ragServiceImpl) generateResponseWithGemini(c context.Context, chatSession *genai.Chat, prompt string) (string, []models.SourceDocument, error) {
	log.Printf("SERVICE-HELPER: Sending prompt to Gemini with tool support...")

	currentPart := genai.Part{Text: prompt}
	var allRetrievedDocs []models.SourceDocument

	for {
		result, err := chatSession.SendMessage(c, currentPart)
		if err != nil {
			return "", nil, fmt.Errorf("gemini api call failed: %w", err)
		}

		if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
			return "I'm sorry, I couldn't generate a response.", nil, nil
		}

		part := result.Candidates[0].Content.Parts[0]

		if part.FunctionCall != nil {
			call := part.FunctionCall
			log.Printf("AGENT: Wants to call function: %s with args: %v", call.Name, call.Args)

			var toolResult string
			switch call.Name {
			case "retrieveDocuments":
				query, ok := call.Args["query"].(string)
				if !ok {
					toolResult = "Error: 'query' argument must be a string."
				} else {
					docs, err := r.retrieveDocuments(c, query, 3)
					if err != nil {
						toolResult = fmt.Sprintf("Error retrieving documents: %v", err)
					} else {
						allRetrievedDocs = append(allRetrievedDocs, docs...)
						jsonBytes, err := json.Marshal(docs)
						if err != nil {
							toolResult = "Error: Could not format the retrieved documents."
						} else {
							toolResult = string(jsonBytes)
						}
					}
				}

			case "createMarkdownFile":
				toolResult = r.FileActions.CreateMarkdownFile(stringArg(call.Args, "filename"), stringArg(call.Args, "content"))

			case "deleteMarkdownFile":
				toolResult = r.FileActions.DeleteMarkdownFile(stringArg(call.Args, "filename"))

			case "editMarkdownFile":
				toolResult = r.FileActions.EditMarkdownFile(stringArg(call.Args, "filename"), stringArg(call.Args, "content"))

			default:
				toolResult = fmt.Sprintf("Error: Unknown function '%s' requested.", call.Name)
			}

			currentPart = genai.Part{FunctionResponse: &genai.FunctionResponse{
				Name:     call.Name,
				Response: map[string]interface{}{"result": toolResult},
			}}
			continue
		}

		// No function call: the model produced its final answer.
		var responseText strings.Builder
		for _, p := range result.Candidates[0].Content.Parts {
			if p.Text != "" {
				responseText.WriteString(p.Text)
			}
		}
		return responseText.String(), allRetrievedDocs, nil
	}
}

// stringArg reads a string tool argument, tolerating a missing or
// mis-typed value.
func stringArg(args map[string]any, key string) string {
	val, _ := args[key].(string)
	return val
}

// EmbedTextWithOllama generates embeddings using Ollama.
func (r *ragServiceImpl) EmbedTextWithOllama(c context.Context, textToEmbed string) ([]float32, error) {
	reqBody, err := json.Marshal(models.OllamaEmbedRequest{
		Model:  embeddingModel,
		Prompt: textToEmbed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(c, http.MethodPost, r.ollamaURL+"/api/embeddings", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call ollama embedding api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama api returned non-200 status: %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	var ollamaResp models.OllamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return nil, fmt.Errorf("failed to decode ollama response: %w", err)
	}
	return ollamaResp.Embedding, nil
}
