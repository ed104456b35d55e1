// Command execution for CLI commands.
//
// Information Hiding:
// - Service and registry wiring hidden behind newRuntime
// - Output formatting hidden

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/richinex/parallax/breaker"
	"github.com/richinex/parallax/config"
	"github.com/richinex/parallax/model"
	"github.com/richinex/parallax/orchestration"
	"github.com/richinex/parallax/ratelimit"
	"github.com/richinex/parallax/storage"
	"github.com/richinex/parallax/workflow"
)

// Options holds CLI execution options.
type Options struct {
	SettingsPath string
	Verbose      bool
	JSONOutput   bool
}

// runtime bundles the wired engine for one CLI invocation.
type runtime struct {
	settings config.Settings
	logger   *slog.Logger
	orch     *orchestration.Orchestrator
	service  *orchestration.Service
	ledger   storage.UsageLedger
}

func (r *runtime) close() {
	if r.ledger != nil {
		r.ledger.Close()
	}
}

// newRuntime loads settings and wires registries, orchestrator, and
// service for a single invocation.
func newRuntime(opts Options) (*runtime, error) {
	var settings config.Settings
	var err error
	if opts.SettingsPath != "" {
		settings, err = config.Load(opts.SettingsPath)
	} else {
		settings, err = config.New()
	}
	if err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	limiter, err := ratelimit.New(settings.RateLimitConfig())
	if err != nil {
		return nil, err
	}
	breakers := breaker.NewRegistry(settings.BreakerConfig())
	orch := orchestration.NewOrchestrator(limiter, breakers, settings.OrchestratorConfig()).WithLogger(logger)
	service := orchestration.NewService(orch, settings.Service.MaxTextLength, settings.Service.InputLimits)

	rt := &runtime{
		settings: settings,
		logger:   logger,
		orch:     orch,
		service:  service,
	}

	if settings.Service.LedgerPath != "" {
		ledger, err := storage.OpenSqlite(settings.Service.LedgerPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open usage ledger: %w", err)
		}
		rt.ledger = ledger
		service.WithLedger(ledger)
	}

	return rt, nil
}

// Analyze fans text out to the named providers and prints the results.
func Analyze(ctx context.Context, text string, providerNames []string, opts Options) error {
	rt, err := newRuntime(opts)
	if err != nil {
		return err
	}
	defer rt.close()

	if len(providerNames) == 0 {
		providerNames = config.SupportedProviders()
		sort.Strings(providerNames)
	}

	req := model.AnalyzeRequest{Text: text}
	for _, name := range providerNames {
		providerModel, err := config.ModelFor(name)
		if err != nil {
			return err
		}
		apiKey, err := config.APIKeyFor(name)
		if err != nil {
			return err
		}
		req.Providers = append(req.Providers, model.ProviderRequest{
			Provider: name,
			Enabled:  true,
			Model:    providerModel,
			APIKey:   apiKey,
		})
	}

	started := time.Now()
	resp, err := rt.service.Analyze(ctx, req)
	if err != nil {
		return err
	}
	rt.logger.Debug("analysis complete",
		"request_id", resp.RequestID,
		"elapsed", time.Since(started),
		"succeeded", resp.Metadata.Succeeded,
		"failed", resp.Metadata.Failed)

	if opts.JSONOutput {
		return printJSON(resp)
	}
	printAnalysis(resp)
	return nil
}

// RunWorkflow executes a YAML graph file and prints the node results.
// Inputs override input-node values and are given as node=value pairs.
func RunWorkflow(ctx context.Context, path string, inputPairs []string, opts Options) error {
	rt, err := newRuntime(opts)
	if err != nil {
		return err
	}
	defer rt.close()

	graph, err := workflow.Load(path)
	if err != nil {
		return err
	}

	inputs, err := parseInputPairs(inputPairs)
	if err != nil {
		return err
	}

	providers, err := resolveWorkflowProviders(rt.settings)
	if err != nil {
		return err
	}

	executor := workflow.NewExecutor(rt.orch, providers, rt.settings.Orchestrator.MaxConcurrent).
		WithLogger(rt.logger)

	results, err := executor.Execute(ctx, graph, inputs)
	if err != nil {
		return err
	}

	if opts.JSONOutput {
		return printJSON(workflowOutput(graph, results))
	}
	printWorkflow(graph, results)
	return nil
}

// ListProviders prints the supported providers with their models and
// configured input limits.
func ListProviders() {
	names := config.SupportedProviders()
	sort.Strings(names)
	limits := config.DefaultInputLimits()

	fmt.Println("Supported providers:")
	for _, name := range names {
		providerModel, err := config.ModelFor(name)
		if err != nil {
			continue
		}
		fmt.Printf("  %-10s model=%s input_limit=%d\n", name, providerModel, limits[name])
	}
}

// Usage prints per-provider usage aggregates from the ledger.
func Usage(ctx context.Context, ledgerPath string, since time.Duration) error {
	ledger, err := storage.OpenSqlite(ledgerPath)
	if err != nil {
		return fmt.Errorf("failed to open usage ledger: %w", err)
	}
	defer ledger.Close()

	cutoff := time.Time{}
	if since > 0 {
		cutoff = time.Now().Add(-since)
	}

	summaries, err := ledger.Summarize(ctx, cutoff)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("No usage recorded.")
		return nil
	}

	fmt.Printf("%-12s %8s %8s %8s %12s\n", "PROVIDER", "CALLS", "OK", "FAILED", "TOKENS")
	for _, s := range summaries {
		fmt.Printf("%-12s %8d %8d %8d %12d\n", s.Provider, s.TotalCalls, s.Succeeded, s.Failed, s.TotalTokens)
	}
	return nil
}

// resolveWorkflowProviders builds gated provider specs for every
// configured provider so graphs can reference any of them.
func resolveWorkflowProviders(settings config.Settings) (map[string]orchestration.ProviderSpec, error) {
	specs := make(map[string]orchestration.ProviderSpec)
	for _, name := range config.SupportedProviders() {
		apiKey, err := config.APIKeyFor(name)
		if err != nil {
			// Providers without keys are simply unavailable to graphs.
			continue
		}
		providerModel, err := config.ModelFor(name)
		if err != nil {
			return nil, err
		}
		adapter, err := orchestration.DefaultResolver(model.ProviderRequest{
			Provider: name,
			Model:    providerModel,
			APIKey:   apiKey,
		})
		if err != nil {
			return nil, err
		}
		specs[name] = orchestration.ProviderSpec{
			ID:         name,
			Adapter:    adapter,
			InputLimit: settings.Service.InputLimits[name],
		}
	}
	return specs, nil
}

// parseInputPairs converts node=value flags to the executor's input map.
func parseInputPairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	inputs := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid input %q: expected node=value", pair)
		}
		inputs[key] = value
	}
	return inputs, nil
}

func printAnalysis(resp *model.AnalyzeResponse) {
	fmt.Printf("Request %s: %d provider(s), %d succeeded, %d failed\n\n",
		resp.RequestID, resp.Metadata.TotalProviders, resp.Metadata.Succeeded, resp.Metadata.Failed)

	for _, r := range resp.Results {
		if r.Succeeded() {
			fmt.Printf("=== %s (%s, %d tokens) ===\n%s\n\n", r.Provider, r.Model, r.TokensUsed, r.Response)
		} else {
			fmt.Printf("=== %s (%s) ===\nerror: %s\n\n", r.Provider, r.Model, r.Error)
		}
	}
}

func printWorkflow(graph *workflow.Graph, results map[string]workflow.Result) {
	for _, id := range graph.NodeIDs() {
		res := results[id]
		if res.Failed() {
			fmt.Printf("%-16s error: %s\n", id, res.Err)
		} else {
			fmt.Printf("%-16s %s\n", id, res.Value)
		}
	}
}

// workflowOutput shapes workflow results for JSON printing.
func workflowOutput(graph *workflow.Graph, results map[string]workflow.Result) map[string]map[string]string {
	out := make(map[string]map[string]string, len(results))
	for _, id := range graph.NodeIDs() {
		res := results[id]
		entry := map[string]string{}
		if res.Failed() {
			entry["error"] = res.Err
		} else {
			entry["value"] = res.Value
		}
		out[id] = entry
	}
	return out
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
