package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"goalbreaker/internal/cache"
	"goalbreaker/internal/catalog"
	"goalbreaker/internal/client"
	"goalbreaker/internal/config"
	"goalbreaker/internal/domain"
	"goalbreaker/internal/domain/models/goal"
	engine "goalbreaker/internal/service/goal"
)

const flushTimeout = 30 * time.Second

// app is one goalctl invocation: the engine, its cache and where to print
type app struct {
	engine  *engine.Engine
	cache   *cache.Store
	catalog *catalog.Registry
	logger  *slog.Logger
	out     io.Writer
	logFile io.Closer
}

func newApp(ctx context.Context, cfg *config.ClientConfig, out, errOut io.Writer, verbose bool) (*app, error) {
	logger, logFile, err := newLogger(cfg, errOut, verbose)
	if err != nil {
		return nil, err
	}

	registry, err := catalog.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to load model catalog: %w", err)
	}

	pool := cfg.FallbackPool
	if len(pool) == 0 {
		pool = registry.FallbackPool()
	}

	store, err := cache.Open(cfg.CachePath)
	if err != nil {
		return nil, err
	}

	backend := client.New(cfg.APIURL, client.Options{Token: cfg.Token})
	eng := engine.NewEngine(backend, backend, store, newStreamNotifier(errOut), engine.Config{
		UserID:       cfg.UserID,
		Debounce:     cfg.SaveDebounce,
		FallbackPool: pool,
	}, logger)

	restored, err := eng.Restore(ctx)
	if err != nil {
		logger.Warn("could not restore cached conversation", "error", err)
	}
	logger.Debug("engine ready", "api_url", cfg.APIURL, "user", cfg.UserID, "restored", restored)

	return &app{
		engine:  eng,
		cache:   store,
		catalog: registry,
		logger:  logger,
		out:     out,
		logFile: logFile,
	}, nil
}

func newLogger(cfg *config.ClientConfig, errOut io.Writer, verbose bool) (*slog.Logger, io.Closer, error) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	w := errOut
	var closer io.Closer
	if cfg.LogDir != "" {
		f, err := config.SetupLogFile(cfg.LogDir, "goalctl", config.MaxLogFiles)
		if err != nil {
			return nil, nil, err
		}
		w, closer = f, f
		if !verbose {
			level = slog.LevelInfo
		}
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), closer, nil
}

// close saves pending changes and releases everything
func (a *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	err := a.engine.Flush(ctx)
	if err != nil {
		a.logger.Error("failed to save conversation", "error", err)
	}
	a.engine.Close()
	if cerr := a.cache.Close(); cerr != nil {
		a.logger.Warn("failed to close cache", "error", cerr)
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
	return err
}

// withApp runs fn against a fresh app and flushes it afterwards
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, clientConfig(), cmd.OutOrStdout(), cmd.ErrOrStderr(), viper.GetBool("verbose"))
	if err != nil {
		return err
	}

	runErr := fn(ctx, a)
	if err := a.close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("conversation not saved: %w", err)
	}
	return runErr
}

// wait blocks until every stream finished. Cancelling ctx (Ctrl-C) stops the
// active conversation first.
func (a *app) wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		a.engine.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if stopped := a.engine.Stop(); len(stopped) > 0 {
			fmt.Fprintf(a.out, "stopped: %s\n", strings.Join(stopped, ", "))
		}
		<-done
	}
}

// watch prints one line whenever an agent of the active conversation changes status
func (a *app) watch() {
	store := a.engine.Store()
	var mu sync.Mutex
	seen := map[string]goal.AgentStatus{}
	for _, t := range store.Turns() {
		for _, agent := range t.Agents {
			seen[t.ID+"/"+agent.ModelID] = agent.Status
		}
	}

	store.OnChange(func() {
		mu.Lock()
		defer mu.Unlock()
		for _, t := range store.Turns() {
			for _, agent := range t.Agents {
				key := t.ID + "/" + agent.ModelID
				if seen[key] == agent.Status {
					continue
				}
				seen[key] = agent.Status
				fmt.Fprintf(a.out, "  %-40s %s\n", agent.ModelID, agent.Status)
			}
		}
	})
}

// resolveModels falls back to the catalog defaults and rejects unknown ids
func (a *app) resolveModels(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return a.catalog.Defaults(), nil
	}
	for _, id := range ids {
		if len(id) > config.MaxModelIDLength {
			return nil, &domain.ValidationError{Message: "model id too long"}
		}
		if !a.catalog.Has(id) {
			a.logger.Warn("model is not in the catalog", "model", id)
		}
	}
	return ids, nil
}

// resolveTurn accepts a full turn id, a unique prefix, or "last"
func (a *app) resolveTurn(ref string) (goal.Turn, error) {
	store := a.engine.Store()
	if ref == "" || ref == "last" {
		if t, ok := store.LastTurn(); ok {
			return t, nil
		}
		return goal.Turn{}, &domain.NotFoundError{Message: "conversation is empty"}
	}
	if t, ok := store.Turn(ref); ok {
		return t, nil
	}

	var match *goal.Turn
	for _, t := range store.Turns() {
		if strings.HasPrefix(t.ID, ref) {
			if match != nil {
				return goal.Turn{}, &domain.ValidationError{Message: fmt.Sprintf("turn prefix %q is ambiguous", ref)}
			}
			t := t
			match = &t
		}
	}
	if match == nil {
		return goal.Turn{}, &domain.NotFoundError{Message: fmt.Sprintf("turn %s not found", ref)}
	}
	return *match, nil
}

// MainContext runs goalctl under ctx and returns the process exit code
func MainContext(ctx context.Context) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "goalctl:", err)
		return 1
	}
	return 0
}
