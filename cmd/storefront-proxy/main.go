// Command storefront-proxy is a small HTTP front for the storefront client:
// it exposes a /graphql pass-through backed by the response cache, plus
// health and Prometheus metrics endpoints.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quayside/storefront-client/pkg/cache"
	"github.com/quayside/storefront-client/pkg/client"
	"github.com/quayside/storefront-client/pkg/logging"
	"github.com/quayside/storefront-client/pkg/strategy"
)

func main() {
	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: os.Getenv("LOG_PRETTY") == "true",
		Output: os.Stderr,
	})

	apiURL := os.Getenv("STOREFRONT_API_URL")
	accessToken := os.Getenv("STOREFRONT_ACCESS_TOKEN")
	port := getEnv("PORT", "8080")

	if apiURL == "" || accessToken == "" {
		logger.Fatal().Msg("STOREFRONT_API_URL and STOREFRONT_ACCESS_TOKEN are required")
	}

	store, err := selectStore(logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to set up cache store")
	}

	sf, err := client.New(client.Config{
		APIURL:      apiURL,
		AccessToken: accessToken,
		Store:       store,
		Logger:      &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create storefront client")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/graphql", graphqlHandler(sf, strategy.Short()))

	srv := &http.Server{Addr: ":" + port, Handler: mux}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("Starting storefront proxy")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}
	// Drain in-flight background revalidations before exiting.
	if err := sf.Close(ctx); err != nil {
		logger.Warn().Err(err).Msg("Background work not fully drained")
	}
}

// selectStore picks Redis when REDIS_URL is set, the in-memory store
// otherwise.
func selectStore(logger zerolog.Logger) (cache.Store, error) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		logger.Info().Msg("Using in-memory cache store")
		return cache.NewMemoryStore(), nil
	}

	redisClient := redis.NewClient(&redis.Options{Addr: redisURL})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", redisURL, err)
	}
	logger.Info().Str("addr", redisURL).Msg("Using Redis cache store")
	return cache.NewRedisStore(redisClient), nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// graphqlRequest is the inbound request shape accepted on /graphql.
type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

// graphqlHandler proxies queries through the cached storefront client and
// advertises the caching policy downstream via Cache-Control.
func graphqlHandler(sf *client.Client, strat strategy.Strategy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req graphqlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Query == "" {
			http.Error(w, "query is required", http.StatusBadRequest)
			return
		}

		data, err := sf.Query(r.Context(), req.Query, &client.RequestOptions{
			Variables: req.Variables,
			Strategy:  strat,
		})

		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Cache-Control", strat.CacheControl())
		json.NewEncoder(w).Encode(map[string]json.RawMessage{"data": data})
	}
}

// writeError maps client errors to proxy responses. GraphQL-level errors
// stay 200 with an errors envelope, as GraphQL servers do; everything else
// is a gateway failure.
func writeError(w http.ResponseWriter, err error) {
	var gqlErr *client.GraphQLError
	if errors.As(err, &gqlErr) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"errors": toErrorList(gqlErr.Messages),
		})
		return
	}

	var httpErr *client.HTTPError
	if errors.As(err, &httpErr) {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"errors": toErrorList(httpErr.Messages),
		})
		return
	}

	w.WriteHeader(http.StatusBadGateway)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"errors": toErrorList([]string{err.Error()}),
	})
}

func toErrorList(messages []string) []map[string]string {
	list := make([]map[string]string, 0, len(messages))
	for _, m := range messages {
		list = append(list, map[string]string{"message": m})
	}
	return list
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
