package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/yourusername/optout/internal/config"
	"github.com/yourusername/optout/internal/db"
	"github.com/yourusername/optout/internal/handlers"
	"github.com/yourusername/optout/internal/middleware"
	"github.com/yourusername/optout/internal/services/discord"
	"github.com/yourusername/optout/internal/services/encryption"
	"github.com/yourusername/optout/internal/services/logging"
	"github.com/yourusername/optout/internal/services/monitoring"
	"github.com/yourusername/optout/internal/services/optout"
	"github.com/yourusername/optout/internal/services/secrets"
	"github.com/yourusername/optout/internal/services/twitch"
	"github.com/yourusername/optout/internal/store/firestore"
)

// Router maps HTTP routes to handlers.
type Router struct {
	routes []route
}

type route struct {
	method  string
	path    string
	handler http.HandlerFunc
}

// NewRouter creates a new router.
func NewRouter() *Router {
	return &Router{}
}

// Handle registers a handler for a method and path.
func (router *Router) Handle(method, path string, handler http.HandlerFunc) {
	router.routes = append(router.routes, route{
		method:  method,
		path:    path,
		handler: handler,
	})
}

// ServeHTTP handles incoming HTTP requests.
func (router *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	for _, rt := range router.routes {
		if rt.method == r.Method && rt.path == r.URL.Path {
			rt.handler(w, r)
			return
		}
	}
	http.Error(w, "Not found", http.StatusNotFound)
}

// appServices holds all initialized services for the application.
type appServices struct {
	cfg                *config.Config
	securityLogger     *logging.SecurityLogger
	monitor            *monitoring.CloudWatchMonitor
	store              optout.Store
	credentials        *twitch.CredentialManager
	webhookProtection  *middleware.WebhookProtection
	globalRL           *middleware.GlobalRateLimiter
	perIPRL            *middleware.RateLimiter
	webhookHandler     *handlers.WebhookHandler
	interactionHandler *handlers.InteractionHandler
}

// initServices loads configuration and initializes all services.
func initServices() (*appServices, error) {
	// Load centralized configuration (Secrets Manager in prod, env vars in dev)
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	securityLogger := logging.NewSecurityLogger()

	monitor, err := monitoring.NewCloudWatchMonitor(cfg.IsProduction())
	if err != nil {
		log.Printf("[MONITOR_WARN] Failed to init CloudWatch monitor: %v", err)
	}

	// Same singletons config.Load built; passing the encryptor again keeps
	// token encryption wired even if the load order ever changes.
	encryptor, err := encryption.NewService(cfg.KMSKeyID)
	if err != nil {
		return nil, err
	}
	secretsMgr, err := secrets.NewManager(encryptor)
	if err != nil {
		return nil, err
	}

	// Webhook signature secret from config
	twitch.SetWebhookSecret(cfg.TwitchWebhookSecret)

	// Opt-out record store
	store, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}

	// Credential lifecycle: seed from the persisted token, rotate through
	// the secrets manager.
	seed, err := secretsMgr.GetUserToken()
	if err != nil {
		return nil, err
	}
	oauth := twitch.NewOAuthService(cfg.TwitchClientID, cfg.TwitchClientSecret, cfg.APIBaseURL+"/setup/callback")
	credentials := twitch.NewCredentialManager(oauth, secretsMgr, seed)
	credentials.SecurityLogger = securityLogger
	whispers := twitch.NewWhisperClient(cfg.TwitchClientID, cfg.TwitchBotID, credentials)

	commandSvc := optout.NewService(store, whispers)

	globalRL := middleware.NewGlobalRateLimiter(100, 200)
	globalRL.SecurityLogger = securityLogger
	globalRL.Monitor = monitor
	perIPRL := middleware.NewRateLimiter(10, 20)
	perIPRL.SecurityLogger = securityLogger
	perIPRL.Monitor = monitor

	return &appServices{
		cfg:                cfg,
		securityLogger:     securityLogger,
		monitor:            monitor,
		store:              store,
		credentials:        credentials,
		webhookProtection:  middleware.NewWebhookProtection(twitch.HeaderMessageID),
		globalRL:           globalRL,
		perIPRL:            perIPRL,
		webhookHandler:     handlers.NewWebhookHandler(commandSvc, securityLogger, monitor),
		interactionHandler: handlers.NewInteractionHandler(cfg.DiscordPublicKey, discord.NewInteractionService(store), securityLogger, monitor),
	}, nil
}

// buildStore selects the record store backend.
func buildStore(cfg *config.Config) (optout.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendPostgres:
		if db.Pool == nil {
			if err := db.Connect(cfg.DatabaseURL); err != nil {
				return nil, err
			}
		}
		return db.NewOptOutStore(), nil
	default:
		account, err := firestore.ParseServiceAccount([]byte(cfg.ServiceAccountJSON))
		if err != nil {
			return nil, err
		}
		return firestore.New(account)
	}
}

// setupRoutes configures all routes.
func setupRoutes(router *Router, svc *appServices) {
	router.Handle("GET", "/api/health", svc.globalRL.Middleware(healthHandler))

	// Webhook endpoints: signature-verified, rate limited, replay-deduped.
	router.Handle("POST", "/webhooks/twitch",
		svc.globalRL.Middleware(svc.webhookProtection.Middleware(svc.webhookHandler.HandleTwitchWebhook)))
	router.Handle("POST", "/webhooks/discord",
		svc.globalRL.Middleware(svc.perIPRL.PerIPMiddleware(svc.interactionHandler.HandleDiscordInteraction)))
}

// healthHandler returns API health status.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "ok",
		"message": "Optout webhook service",
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// services and router are initialized once per execution environment and
// reused across invocations; all remote state lives behind singletons that
// tolerate this.
var (
	services *appServices
	router   *Router
)

// Handler is the Lambda function handler (API Gateway HTTP API v2 payload format).
func Handler(ctx context.Context, request events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	if services == nil {
		svc, err := initServices()
		if err != nil {
			log.Printf("[INIT_ERROR] %v", err)
			return events.APIGatewayV2HTTPResponse{
				StatusCode: http.StatusInternalServerError,
				Body:       `{"error": "Service initialization failed"}`,
			}, nil
		}
		services = svc
		router = NewRouter()
		setupRoutes(router, services)
	}

	httpReq, err := convertAPIGatewayV2Request(request)
	if err != nil {
		log.Printf("Failed to convert request: %v", err)
		return events.APIGatewayV2HTTPResponse{
			StatusCode: http.StatusInternalServerError,
			Body:       `{"error": "Internal server error"}`,
		}, nil
	}
	httpReq = httpReq.WithContext(ctx)

	rw := newResponseWriter()
	router.ServeHTTP(rw, httpReq)

	respHeaders := make(map[string]string)
	for key, values := range rw.headers {
		if len(values) > 0 {
			respHeaders[key] = values[len(values)-1]
		}
	}

	return events.APIGatewayV2HTTPResponse{
		StatusCode: rw.statusCode,
		Headers:    respHeaders,
		Body:       rw.body.String(),
	}, nil
}

// convertAPIGatewayV2Request converts an API Gateway v2 HTTP request to http.Request.
func convertAPIGatewayV2Request(req events.APIGatewayV2HTTPRequest) (*http.Request, error) {
	method := req.RequestContext.HTTP.Method
	path := req.RawPath
	if path == "" {
		path = req.RequestContext.HTTP.Path
	}

	// Signature verification needs the body bytes exactly as Twitch sent
	// them, so decode before handing off.
	body := req.Body
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return nil, err
		}
		body = string(decoded)
	}

	httpReq, err := http.NewRequest(method, path, strings.NewReader(body))
	if err != nil {
		return nil, err
	}

	// Copy headers (v2 sends single string per header, multi-values are comma-joined)
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	httpReq.RemoteAddr = req.RequestContext.HTTP.SourceIP

	// Copy query parameters
	q := httpReq.URL.Query()
	for key, value := range req.QueryStringParameters {
		q.Set(key, value)
	}
	httpReq.URL.RawQuery = q.Encode()

	return httpReq, nil
}

// responseWriter captures the handler's response for the Lambda reply.
type responseWriter struct {
	headers    http.Header
	body       *bytes.Buffer
	statusCode int
}

func newResponseWriter() *responseWriter {
	return &responseWriter{
		headers:    make(http.Header),
		body:       &bytes.Buffer{},
		statusCode: http.StatusOK,
	}
}

func (rw *responseWriter) Header() http.Header {
	return rw.headers
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	return rw.body.Write(b)
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
}

func main() {
	lambda.Start(Handler)
}
