package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kart-io/docrag/internal/docrag/handler"
	"github.com/kart-io/docrag/internal/docrag/router"
	"github.com/kart-io/docrag/pkg/infra/app"
	"github.com/kart-io/docrag/pkg/infra/server"
	"github.com/kart-io/docrag/pkg/utils/json"
	"github.com/kart-io/docrag/pkg/utils/validator"
)

const (
	appName        = "docrag"
	appDescription = `docrag answers questions about PDF documents.

Ingestion fuses the PDF text layer with OCR of every rendered page, splits the
result into overlapping chunks and indexes their embeddings in Milvus or
pgvector. Queries retrieve the closest chunks of one document and ask a chat
model to answer from them, either in a single call or through a tool-calling
agent.`
)

// NewApp creates a new application instance.
func NewApp() *app.App {
	opts := NewOptions()

	return app.NewApp(
		app.WithName(appName),
		app.WithShortDescription("PDF ingestion and retrieval-augmented answering"),
		app.WithDescription(appDescription),
		app.WithOptions(opts),
		app.WithCommands(
			newIngestCommand(opts),
			newSearchCommand(opts),
			newQueryCommand(opts),
			newAgenticQueryCommand(opts),
			newListIDsCommand(opts),
			newDeleteAllCommand(opts),
			newServeCommand(opts),
			newConfigCommand(opts),
		),
	)
}

// initLogger installs the global logger with the service identity.
func initLogger(opts *Options) error {
	opts.Log.AddInitialField("service.name", appName)
	opts.Log.AddInitialField("service.version", app.GetVersion())
	if err := opts.Log.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// withDeps runs fn with a signal-aware context and fully built deps.
func withDeps(opts *Options, withChat bool, fn func(ctx context.Context, deps *Deps) error) error {
	if err := initLogger(opts); err != nil {
		return err
	}
	defer func() { _ = logger.Flush() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := NewDeps(ctx, opts, withChat)
	if err != nil {
		logger.Errorw("failed to initialize docrag", "error", err.Error())
		return err
	}
	defer deps.Close()

	return fn(ctx, deps)
}

func printJSON(w io.Writer, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func newIngestCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <document-id> <pdf-path>",
		Short: "Extract, chunk and index a PDF",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(opts, false, func(ctx context.Context, deps *Deps) error {
				result, err := deps.Service.Ingest(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				logger.Infow("Document ingested",
					"document_id", result.DocumentID,
					"pages", result.Pages,
					"chunks", result.Chunks,
					"run_id", result.RunID,
				)
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
}

func newSearchCommand(opts *Options) *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "search <document-id> <query>",
		Short: "Return the raw nearest chunks of a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(opts, false, func(ctx context.Context, deps *Deps) error {
				results, err := deps.Service.Search(ctx, args[0], args[1], topK)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), results)
			})
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 0, "Results to return; 0 uses rag.top-k.")
	return cmd
}

func newQueryCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "query <document-id> <question>",
		Short: "Answer a question from a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(opts, true, func(ctx context.Context, deps *Deps) error {
				resp, err := deps.Service.Query(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp)
			})
		},
	}
}

func newAgenticQueryCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "agentic-query <document-id> <query>",
		Short: "Answer a query with the tool-calling agent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(opts, true, func(ctx context.Context, deps *Deps) error {
				result, err := deps.Service.AgenticQuery(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				if result.StepLimitReached {
					logger.Warnw("Agent stopped at the step limit", "steps", result.StepCount)
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
}

func newListIDsCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "list-ids",
		Short: "List every stored chunk id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(opts, false, func(ctx context.Context, deps *Deps) error {
				ids, err := deps.Service.ListIDs(ctx)
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				logger.Infof("Listed %d ids", len(ids))
				return nil
			})
		},
	}
}

func newDeleteAllCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-all",
		Short: "Delete every stored chunk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(opts, false, func(ctx context.Context, deps *Deps) error {
				n, err := deps.Service.DeleteAll(ctx)
				if err != nil {
					return err
				}
				logger.Infof("Deleted %d chunks", n)
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d\n", n)
				return nil
			})
		},
	}
}

func newServeCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return withDeps(opts, true, func(ctx context.Context, deps *Deps) error {
				return serve(ctx, opts, deps)
			})
		},
	}
}

// serve runs the HTTP server until ctx is cancelled, then drains it within
// server.shutdown-timeout.
func serve(ctx context.Context, opts *Options, deps *Deps) error {
	if !opts.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	h := handler.NewDocHandler(deps.Service, deps.Metrics, deps.Storage, validator.Global()).
		WithIngestRoot(opts.Extract.IngestRoot)
	srv := server.New(router.New(h, opts.Server.RequestTimeout), server.Options{
		Addr:            opts.Server.Addr,
		ShutdownTimeout: opts.Server.ShutdownTimeout,
	})

	logger.Infow("docrag service is ready", "addr", opts.Server.Addr, "ingest_root", opts.Extract.IngestRoot)
	return srv.Run(ctx)
}

func newConfigCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := effectiveConfig(opts)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

// effectiveConfig renders opts as YAML keyed like the config file. Secrets
// carry `json:"-"` and are left out.
func effectiveConfig(opts *Options) ([]byte, error) {
	b, err := json.Marshal(opts)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return yaml.Marshal(m)
}
