package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quorumtrade/quorum-api/internal/agents"
	"github.com/quorumtrade/quorum-api/internal/auth"
	"github.com/quorumtrade/quorum-api/internal/database"
	"github.com/quorumtrade/quorum-api/internal/decision"
	"github.com/quorumtrade/quorum-api/internal/execution"
	"github.com/quorumtrade/quorum-api/internal/orders"
	"github.com/quorumtrade/quorum-api/internal/policy"
	"github.com/quorumtrade/quorum-api/internal/riskdata"
	"github.com/quorumtrade/quorum-api/internal/telemetry"
	"github.com/quorumtrade/quorum-api/internal/types"
)

const (
	minDecisions  = 15
	maxDecisions  = 100
	numWorkers    = 5
	serverAddress = "http://localhost:8080"
	jwtSecret     = "quorum-secret-key"
)

var (
	symbols = []string{"AAPL", "GOOGL", "MSFT", "AMZN", "META"}
	actions = []string{"BUY", "SELL"}
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the pipeline API
type simulationClient struct {
	baseURL   string
	authToken string
	client    *http.Client
	stats     map[string]*routeStats
}

// newSimulationClient creates and initializes a new simulation client
// It authenticates with the API and prepares performance tracking
func newSimulationClient() (*simulationClient, error) {
	client := &http.Client{
		Timeout: 15 * time.Second,
	}

	sc := &simulationClient{
		baseURL: serverAddress,
		client:  client,
		stats: map[string]*routeStats{
			"auth":     {name: "Authentication"},
			"decide":   {name: "Run Decision"},
			"execute":  {name: "Execute Order"},
			"getOrder": {name: "Get Order"},
		},
	}

	token, err := sc.authenticate()
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	sc.authToken = token

	return sc, nil
}

// authenticate performs API authentication and returns a JWT token
func (sc *simulationClient) authenticate() (string, error) {
	start := time.Now()
	defer func() {
		sc.stats["auth"].addDuration(time.Since(start))
	}()

	credentials := map[string]string{
		"api_key":    auth.TestAPIKey,
		"api_secret": auth.TestAPISecret,
	}

	body, err := json.Marshal(credentials)
	if err != nil {
		return "", err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/token", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("authentication failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Data struct {
			Token string `json:"jwt_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	return result.Data.Token, nil
}

// runDecision submits a proposed trade and returns the decision outcome
func (sc *simulationClient) runDecision(req *types.CreateDecisionRequest) (*decision.Result, error) {
	start := time.Now()
	defer func() {
		sc.stats["decide"].addDuration(time.Since(start))
	}()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(
		"POST",
		fmt.Sprintf("%s/api/v1/decisions", sc.baseURL),
		bytes.NewBuffer(body),
	)
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := sc.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("response", string(respBody)).Msg("Run decision response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("run decision failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool            `json:"success"`
		Data    decision.Result `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	if result.Data.Decision == nil {
		return nil, fmt.Errorf("no decision in response: %s", string(respBody))
	}

	return &result.Data, nil
}

// executeOrder triggers execution of a prepared order
func (sc *simulationClient) executeOrder(clientOrderID string) (*types.Order, error) {
	start := time.Now()
	defer func() {
		sc.stats["execute"].addDuration(time.Since(start))
	}()

	if clientOrderID == "" {
		return nil, fmt.Errorf("clientOrderID cannot be empty")
	}

	req, err := http.NewRequest(
		"POST",
		fmt.Sprintf("%s/api/v1/internal/execution/%s", sc.baseURL, clientOrderID),
		nil,
	)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))

	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("response", string(respBody)).Msg("Execute order response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("execute order failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool        `json:"success"`
		Data    types.Order `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	return &result.Data, nil
}

// getOrder retrieves the current status of an order
func (sc *simulationClient) getOrder(clientOrderID string) (*types.Order, error) {
	start := time.Now()
	defer func() {
		sc.stats["getOrder"].addDuration(time.Since(start))
	}()

	req, err := http.NewRequest(
		"GET",
		fmt.Sprintf("%s/api/v1/orders/%s", sc.baseURL, clientOrderID),
		nil,
	)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))

	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get order failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool        `json:"success"`
		Data    types.Order `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	return &result.Data, nil
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// main runs the decision pipeline simulation
// It starts a local API server and simulates multiple concurrent clients
// proposing trades, then executes every order that reached consensus
func main() {
	go func() {
		if err := startServer(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for server to start
	time.Sleep(2 * time.Second)

	simClient, err := newSimulationClient()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize simulation client")
	}

	targetDecisions := rand.Intn(maxDecisions-minDecisions) + minDecisions
	log.Info().Int("target_decisions", targetDecisions).Msg("Starting simulation")

	resultsChan := make(chan *decision.Result, targetDecisions)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			proposeDecisions(workerID, targetDecisions/numWorkers, simClient, resultsChan)
		}(i)
	}

	wg.Wait()
	close(resultsChan)

	stats := struct {
		TotalDecisions int
		Consensus      int
		Rejected       int
		RiskAdjusted   int
		Executed       int
		Filled         int
		FailedExec     int
		TotalValue     float64
		StartTime      time.Time
		Symbols        map[string]int
		Outcomes       map[string]int
	}{
		StartTime: time.Now(),
		Symbols:   make(map[string]int),
		Outcomes:  make(map[string]int),
	}

	var approved []*decision.Result
	for result := range resultsChan {
		stats.TotalDecisions++
		stats.Outcomes[result.Decision.ConsensusStatus]++
		stats.Symbols[result.Decision.Symbol]++
		if result.Order != nil {
			approved = append(approved, result)
			if result.Order.RiskAdjusted {
				stats.RiskAdjusted++
			}
		} else {
			stats.Rejected++
		}
	}
	stats.Consensus = len(approved)

	log.Info().
		Int("decisions", stats.TotalDecisions).
		Int("consensus_reached", stats.Consensus).
		Msg("All decisions processed")

	for _, result := range approved {
		clientOrderID := result.Decision.ClientOrderID
		order, err := simClient.executeOrder(clientOrderID)
		if err != nil {
			log.Error().Err(err).
				Str("client_order_id", clientOrderID).
				Msg("Failed to execute order")
			stats.FailedExec++
			continue
		}
		stats.Executed++

		final, err := simClient.getOrder(clientOrderID)
		if err == nil && final != nil {
			if final.ExecutionStatus == types.StatusFilled {
				stats.Filled++
			}
			for _, fill := range final.Fills {
				stats.TotalValue += fill.Price * float64(fill.Quantity)
			}
		}

		log.Info().
			Str("client_order_id", clientOrderID).
			Str("status", order.ExecutionStatus).
			Int("quantity", order.Quantity).
			Bool("dry_run", order.DryRun).
			Msg("Order executed")
	}

	duration := time.Since(stats.StartTime)
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("DECISION PIPELINE SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Printf(`
Decision Statistics
-------------------
Total Decisions:  %d
Consensus:        %d
Rejected:         %d
Risk Adjusted:    %d
Executed:         %d
Filled:           %d
Failed Execution: %d
Total Value:      $%.2f
Duration:         %v

Consensus Outcomes
------------------
`, stats.TotalDecisions, stats.Consensus, stats.Rejected, stats.RiskAdjusted,
		stats.Executed, stats.Filled, stats.FailedExec,
		stats.TotalValue, duration.Round(time.Millisecond))

	for outcome, count := range stats.Outcomes {
		barLength := int(float64(count) / float64(stats.TotalDecisions) * 20)
		bar := strings.Repeat("#", barLength)
		fmt.Printf("%-18s: %s (%d)\n", outcome, bar, count)
	}

	fmt.Println("\nSymbol Distribution")
	fmt.Println("-------------------")
	maxSymbolCount := 0
	for _, count := range stats.Symbols {
		if count > maxSymbolCount {
			maxSymbolCount = count
		}
	}
	for symbol, count := range stats.Symbols {
		barLength := int(float64(count) / float64(maxSymbolCount) * 20)
		bar := strings.Repeat("#", barLength)
		fmt.Printf("%-6s: %s (%d)\n", symbol, bar, count)
	}

	fmt.Println("\n" + strings.Repeat("=", 80))

	executionRate := 0.0
	if stats.Consensus > 0 {
		executionRate = float64(stats.Executed) / float64(stats.Consensus) * 100
	}
	log.Info().
		Float64("execution_rate", executionRate).
		Int("total_decisions", stats.TotalDecisions).
		Int("executed", stats.Executed).
		Float64("total_value", stats.TotalValue).
		Dur("duration", duration).
		Msg("Simulation completed")

	simClient.printPerformanceStats()
}

// proposeDecisions generates and submits random trade proposals
// Runs as a worker goroutine, sending outcomes to resultsChan
func proposeDecisions(workerID, numDecisions int, simClient *simulationClient, resultsChan chan<- *decision.Result) {
	for i := 0; i < numDecisions; i++ {
		req := &types.CreateDecisionRequest{
			ClientOrderID: uuid.New().String(),
			AccountID:     fmt.Sprintf("ACC_%d", workerID),
			Symbol:        symbols[rand.Intn(len(symbols))],
			Action:        actions[rand.Intn(len(actions))],
			OrderType:     "LMT",
			Quantity:      rand.Intn(50) + 1,
			LimitPrice:    float64(rand.Intn(400) + 100),
		}

		result, err := simClient.runDecision(req)
		if err != nil {
			log.Error().Err(err).
				Str("worker_id", fmt.Sprintf("%d", workerID)).
				Str("symbol", req.Symbol).
				Msg("Failed to run decision")
			continue
		}

		resultsChan <- result
		log.Info().
			Str("worker_id", fmt.Sprintf("%d", workerID)).
			Str("client_order_id", result.Decision.ClientOrderID).
			Str("symbol", req.Symbol).
			Str("action", req.Action).
			Str("status", result.Decision.ConsensusStatus).
			Int("approvals", result.Consensus.Approvals).
			Msg("Decision completed")

		// Random sleep between proposals
		time.Sleep(time.Duration(rand.Intn(300)) * time.Millisecond)
	}
}

// startServer initializes and starts the pipeline API server
// Sets up all required services, handlers and routes
func startServer() error {
	db, err := database.NewDatabase("simulation.db")
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	authService := auth.NewService(jwtSecret)
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)

	sink := telemetry.NewStore(db)
	riskStore := riskdata.NewStore(db)
	policyService := policy.NewService(db, riskStore, sink)
	orderStore := orders.NewStore(db)

	gateway := execution.NewSimulatedGateway(0)
	breaker := execution.NewCircuitBreaker(sink)
	adapter := execution.NewAdapter(orderStore, gateway, breaker, policyService, sink)
	policyService.RegisterEmergencyStop(adapter.EmergencyStop)

	signals := agents.NewSimulatedSignalProvider(0)
	calendar := agents.NewSessionCalendar()
	decisionService := decision.NewService(
		db,
		policyService,
		agents.NewStrategyAgent(signals),
		agents.NewRiskAgent(riskStore),
		agents.NewValidationAgent(calendar, policyService, orderStore),
		signals,
		orderStore,
		sink,
	)

	router := gin.Default()
	authHandlers := auth.NewGinHandlers(authService)
	decisionHandlers := decision.NewGinHandlers(decisionService)
	orderHandlers := orders.NewGinHandlers(orderStore)
	executionHandlers := execution.NewGinHandlers(adapter)

	setupRoutes(router, authHandlers, decisionHandlers, orderHandlers, executionHandlers)

	return router.Run(":8080")
}

// setupRoutes configures all API endpoints and their handlers
// Groups routes by functionality; the simulation skips auth middleware
func setupRoutes(
	router *gin.Engine,
	authHandlers *auth.GinHandlers,
	decisionHandlers *decision.GinHandlers,
	orderHandlers *orders.GinHandlers,
	executionHandlers *execution.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		auth := v1.Group("/auth")
		{
			auth.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Decision routes
		decisions := v1.Group("/decisions")
		{
			decisions.POST("", decisionHandlers.CreateDecisionHandler())
			decisions.GET("/:client_order_id", decisionHandlers.GetDecisionHandler())
		}

		// Order routes
		ordersGroup := v1.Group("/orders")
		{
			ordersGroup.GET("/:client_order_id", orderHandlers.GetOrderHandler())
		}

		// Internal routes
		internal := v1.Group("/internal")
		{
			internal.POST("/execution/:client_order_id", executionHandlers.ExecuteOrderHandler())
		}
	}
}
