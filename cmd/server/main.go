package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/yourorg/gateway-fallback/internal/adapter/astra"
	"github.com/yourorg/gateway-fallback/internal/adapter/brix"
	"github.com/yourorg/gateway-fallback/internal/adapter/koin"
	"github.com/yourorg/gateway-fallback/internal/adapter/mock"
	"github.com/yourorg/gateway-fallback/internal/adapter/vectra"
	"github.com/yourorg/gateway-fallback/internal/breaker"
	"github.com/yourorg/gateway-fallback/internal/config"
	"github.com/yourorg/gateway-fallback/internal/engine"
	"github.com/yourorg/gateway-fallback/internal/gateway"
	"github.com/yourorg/gateway-fallback/internal/idempotency"
	"github.com/yourorg/gateway-fallback/internal/metrics"
	"github.com/yourorg/gateway-fallback/internal/monitor"
	"github.com/yourorg/gateway-fallback/internal/policy"
	"github.com/yourorg/gateway-fallback/internal/recorder"
	"github.com/yourorg/gateway-fallback/internal/reporting"
)

// server holds the long-lived collaborators. The engine itself is built
// fresh per checkout so concurrent checkouts never share configuration
// state.
type server struct {
	configStore config.Store
	attempts    recorder.Store
	registry    *gateway.Registry
	enforcer    *policy.Enforcer
	breakers    *breaker.Board
	guard       idempotency.Guard
	contract    *monitor.ContractMonitor
	metrics     *metrics.Set
}

type cardBody struct {
	Token    string           `json:"token"`
	SaveCard bool             `json:"save_card"`
	Card     *gateway.RawCard `json:"card"`
}

type paymentRequestBody struct {
	SaleID         string           `json:"sale_id"`
	OrganizationID string           `json:"organization_id"`
	AmountCents    int64            `json:"amount_cents"`
	PaymentMethod  string           `json:"payment_method"`
	Installments   int              `json:"installments"`
	CallbackURL    string           `json:"callback_url"`
	Customer       gateway.Customer `json:"customer"`
	Card           *cardBody        `json:"card"`
}

func (b paymentRequestBody) toRequest() (gateway.PaymentRequest, error) {
	req := gateway.PaymentRequest{
		SaleID:         b.SaleID,
		OrganizationID: b.OrganizationID,
		AmountCents:    b.AmountCents,
		Installments:   b.Installments,
		Customer:       b.Customer,
		CallbackURL:    b.CallbackURL,
	}
	switch gateway.PaymentMethod(b.PaymentMethod) {
	case gateway.MethodPix:
		req.Data = gateway.PixData{}
	case gateway.MethodCard:
		if b.Card == nil {
			return req, fmt.Errorf("credit_card payments require the card object")
		}
		req.Data = gateway.CardData{Token: b.Card.Token, Raw: b.Card.Card, SaveCard: b.Card.SaveCard}
	case gateway.MethodBoleto:
		req.Data = gateway.BoletoData{}
	default:
		return req, fmt.Errorf("unknown payment method %q", b.PaymentMethod)
	}
	return req, nil
}

func (s *server) processPaymentHandler(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	valid, violations, err := s.contract.Validate(body)
	if err != nil {
		log.Printf("server: contract validation error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "request validation failed"})
		return
	}
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": monitor.FormatErrors(violations)})
		return
	}

	var reqBody paymentRequestBody
	if err := json.Unmarshal(body, &reqBody); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format: " + err.Error()})
		return
	}
	req, err := reqBody.toRequest()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	claimed, err := s.guard.Begin(ctx, req.SaleID)
	if err != nil {
		// The guard is advisory; a broken redis must not block checkouts.
		log.Printf("server: idempotency guard unavailable for sale %s: %v", req.SaleID, err)
	} else if !claimed {
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("sale %s is already being processed", req.SaleID)})
		return
	}

	eng := engine.New(s.configStore, s.registry, s.attempts)
	eng.Enforcer = s.enforcer
	eng.Breaker = s.breakers
	eng.Metrics = s.metrics

	if err := eng.Init(ctx, req.Method()); err != nil {
		log.Printf("server: engine init failed for sale %s: %v", req.SaleID, err)
		s.releaseGuard(ctx, req.SaleID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load gateway configuration"})
		return
	}

	result, err := eng.Process(ctx, req)
	if err != nil {
		log.Printf("server: processing failed for sale %s: %v", req.SaleID, err)
		s.releaseGuard(ctx, req.SaleID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "payment processing failed"})
		return
	}

	if result.Response.Success {
		if err := s.guard.Complete(ctx, req.SaleID); err != nil {
			log.Printf("server: marking sale %s completed: %v", req.SaleID, err)
		}
	} else {
		s.releaseGuard(ctx, req.SaleID)
	}

	c.JSON(http.StatusOK, result)
}

func (s *server) releaseGuard(ctx context.Context, saleID string) {
	if err := s.guard.Release(ctx, saleID); err != nil {
		log.Printf("server: releasing sale %s: %v", saleID, err)
	}
}

func (s *server) retrospectiveHandler(c *gin.Context) {
	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return
		}
		to = t
	}

	records, err := s.attempts.ListRange(c.Request.Context(), from, to)
	if err != nil {
		log.Printf("server: listing attempts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load attempt records"})
		return
	}
	c.JSON(http.StatusOK, reporting.GenerateRetrospective(records))
}

// saleAttemptsHandler returns the full attempt history for one sale, in the
// order the engine walked the fallback sequence.
func (s *server) saleAttemptsHandler(c *gin.Context) {
	saleID := c.Param("sale_id")
	records, err := s.attempts.ListBySale(c.Request.Context(), saleID)
	if err != nil {
		log.Printf("server: listing attempts for sale %s: %v", saleID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load attempt records"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sale_id": saleID, "attempts": records})
}

func (s *server) setupRouter(registry *prometheus.Registry) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware("gateway-fallback"))

	router.POST("/checkout/payments", s.processPaymentHandler)
	router.GET("/reports/retrospective", s.retrospectiveHandler)
	router.GET("/reports/sales/:sale_id", s.saleAttemptsHandler)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

func setupTracing() (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return tp, nil
}

// buildStores picks the storage backend: Postgres when CONN_STRING is set,
// otherwise a local SQLite attempt store with gateway configs seeded from
// the environment.
func buildStores(ctx context.Context) (config.Store, recorder.Store, func(), error) {
	if connString := os.Getenv("CONN_STRING"); connString != "" {
		pool, err := pgxpool.New(ctx, connString)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		return config.NewPostgresStore(pool), recorder.NewPostgresStore(pool), pool.Close, nil
	}

	path := os.Getenv("SQLITE_PATH")
	if path == "" {
		path = "gateway-fallback.db"
	}
	attempts, err := recorder.NewSQLiteStore(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening sqlite store: %w", err)
	}

	store := config.NewMemoryStore()
	seedGatewayConfigs(store)
	cleanup := func() {
		if err := attempts.Close(); err != nil {
			log.Printf("server: closing sqlite store: %v", err)
		}
	}
	return store, attempts, cleanup, nil
}

type credentialSeed struct {
	gw     gateway.GatewayType
	apiKey string
	secret string
}

func providerCredentialSeeds() []credentialSeed {
	return []credentialSeed{
		{gateway.Astra, os.Getenv("ASTRA_API_KEY"), ""},
		{gateway.Koin, "", os.Getenv("KOIN_SECRET_KEY")},
		{gateway.Vectra, os.Getenv("VECTRA_API_TOKEN"), ""},
		{gateway.Brix, os.Getenv("BRIX_API_KEY"), ""},
	}
}

// seedGatewayConfigs loads sandbox gateway configs from the environment for
// local runs without an administrative database. With no credentials at all
// it seeds every gateway active so the mock adapters can serve checkouts.
func seedGatewayConfigs(store *config.MemoryStore) {
	seeds := providerCredentialSeeds()
	priority := 1
	for _, seed := range seeds {
		if seed.apiKey == "" && seed.secret == "" {
			continue
		}
		store.AddGateway(gateway.GatewayConfig{
			Type:        seed.gw,
			Credentials: gateway.Credentials{APIKey: seed.apiKey, SecretKey: seed.secret},
			Sandbox:     true,
			Active:      true,
			Priority:    priority,
		})
		priority++
	}
	if priority > 1 {
		return
	}
	for i, seed := range seeds {
		store.AddGateway(gateway.GatewayConfig{
			Type:     seed.gw,
			Sandbox:  true,
			Active:   true,
			Priority: i + 1,
		})
	}
}

func anyProviderCredentials() bool {
	for _, seed := range providerCredentialSeeds() {
		if seed.apiKey != "" || seed.secret != "" {
			return true
		}
	}
	return false
}

// buildRegistry wires the real provider adapters, or scriptable mocks for
// local runs against neither a database nor provider credentials.
func buildRegistry() (*gateway.Registry, error) {
	if os.Getenv("CONN_STRING") == "" && !anyProviderCredentials() {
		log.Println("server: no provider credentials configured, using mock adapters")
		return gateway.NewRegistry(
			mock.New(gateway.Astra),
			mock.New(gateway.Koin),
			mock.New(gateway.Vectra),
			mock.New(gateway.Brix),
		)
	}
	httpClient := &http.Client{Timeout: 15 * time.Second}
	return gateway.NewRegistry(
		astra.New(httpClient),
		koin.New(httpClient),
		vectra.New(httpClient),
		brix.New(httpClient),
	)
}

func buildGuard() idempotency.Guard {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		log.Println("server: REDIS_ADDR not set, using in-process idempotency guard")
		return idempotency.NewMemoryGuard()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	return idempotency.NewRedisGuard(client)
}

func buildEnforcer() (*policy.Enforcer, error) {
	raw := os.Getenv("POLICY_RULES")
	if raw == "" {
		return policy.NewEnforcer(nil)
	}
	var rules []policy.RuleConfig
	if err := json.Unmarshal([]byte(raw), &rules); err != nil {
		return nil, fmt.Errorf("parsing POLICY_RULES: %w", err)
	}
	return policy.NewEnforcer(rules)
}

func main() {
	ctx := context.Background()

	tp, err := setupTracing()
	if err != nil {
		log.Fatalf("Failed to set up tracing: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("server: shutting down tracer provider: %v", err)
		}
	}()

	configStore, attemptStore, cleanup, err := buildStores(ctx)
	if err != nil {
		log.Fatalf("Failed to set up stores: %v", err)
	}
	defer cleanup()

	registry, err := buildRegistry()
	if err != nil {
		log.Fatalf("Failed to build adapter registry: %v", err)
	}

	enforcer, err := buildEnforcer()
	if err != nil {
		log.Fatalf("Failed to build policy enforcer: %v", err)
	}

	contract, err := monitor.NewContractMonitor()
	if err != nil {
		log.Fatalf("Failed to compile request schema: %v", err)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector())
	set := metrics.NewSet(promRegistry)

	srv := &server{
		configStore: configStore,
		attempts:    attemptStore,
		registry:    registry,
		enforcer:    enforcer,
		breakers:    breaker.NewBoard(),
		guard:       buildGuard(),
		contract:    contract,
		metrics:     set,
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("Starting gateway-fallback server on :%s", port)
	if err := srv.setupRouter(promRegistry).Run(":" + port); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}
