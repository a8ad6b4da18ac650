// Command kaflow-server hosts the agent-workflow engine's HTTP surface:
// it scans the configured directory for workflow YAML documents, wires the
// shared Mongo-or-memory checkpoint store, and serves the endpoints
// internal/httpapi registers. Grounded on showcases/ai-pdf-chatbot/backend's
// main.go + server.go split (flag/env-driven Config struct, NewServer,
// Start).
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/tmc/langchaingo/llms"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/devyk/kaflow-go/internal/checkpoint"
	"github.com/devyk/kaflow-go/internal/envconfig"
	"github.com/devyk/kaflow-go/internal/httpapi"
	"github.com/devyk/kaflow-go/internal/kflog"
	"github.com/devyk/kaflow-go/internal/llmhandle"
	"github.com/devyk/kaflow-go/internal/mcp"
	"github.com/devyk/kaflow-go/internal/registry"
	"github.com/devyk/kaflow-go/internal/tool"
	"github.com/devyk/kaflow-go/internal/workflow"
)

func main() {
	envFile := flag.String("env", "", "path to a .env file (optional)")
	flag.Parse()

	envconfig.Load(*envFile)
	kflog.SetDefault(kflog.New(kflog.LevelInfo))

	srvCfg := envconfig.LoadServerConfig()

	store, closeStore := buildCheckpointStore()
	defer closeStore()

	mcpMgr := mcp.NewManager()
	defer mcpMgr.CloseAll()

	toolRegistry := tool.NewRegistry()

	agentOpts := workflow.AgentNodeOptions{
		LLMFactory: func(cfg llmhandle.Config) llms.Model { return llmhandle.New(cfg) },
		Tools:      toolRegistry,
		MCP:        mcpMgr,
	}

	reg, err := registry.New(srvCfg.ConfigDir, agentOpts)
	if err != nil {
		kflog.Default().Error("failed to scan config dir %q: %v", srvCfg.ConfigDir, err)
		os.Exit(1)
	}

	srv := httpapi.New(reg, store, mcpMgr)
	mux := http.NewServeMux()
	srv.Routes(mux)

	addr := srvCfg.Host + ":" + strconv.Itoa(srvCfg.Port)
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE streams may run indefinitely
	}

	go func() {
		kflog.Default().Info("kaflow-server listening on %s", addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			kflog.Default().Error("server error: %v", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
}

// buildCheckpointStore selects the Mongo or in-process backend per
// KAFLOW_MEMORY_PROVIDER ("memory" default, "mongodb" otherwise), matching
// protocol.MemoryConfig.Provider's two known values.
func buildCheckpointStore() (checkpoint.Store, func()) {
	provider := envconfig.String("KAFLOW_MEMORY_PROVIDER", "memory")
	if provider != "mongodb" {
		return checkpoint.NewMemoryStore(), func() {}
	}

	mongoCfg := envconfig.LoadMongoConfig()
	ctx, cancel := context.WithTimeout(context.Background(), mongoCfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoCfg.URI))
	if err != nil {
		kflog.Default().Error("mongo connect failed, falling back to memory store: %v", err)
		return checkpoint.NewMemoryStore(), func() {}
	}
	if err := client.Ping(ctx, nil); err != nil {
		kflog.Default().Error("mongo ping failed, falling back to memory store: %v", err)
		return checkpoint.NewMemoryStore(), func() {}
	}

	coll := client.Database(mongoCfg.Database).Collection(mongoCfg.Collection)
	store := checkpoint.NewMongoStore(coll)
	return store, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(shutdownCtx)
	}
}

