package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/youssefsiam38/legalpg"
	"github.com/youssefsiam38/legalpg/api"
	"github.com/youssefsiam38/legalpg/pipeline"
	"github.com/youssefsiam38/legalpg/rag"
)

var (
	bootstrap  bool
	askHTML    bool
	listenAddr string
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Create the document and embedding tables",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		return withClient(func(ctx context.Context, client *legalpg.Client) error {
			return client.Bootstrap(ctx)
		})
	},
}

var uploadDocumentsCmd = &cobra.Command{
	Use:   "upload-documents",
	Short: "Extract the articles of every source and upsert them",
	Long: `Extract the articles of every configured source and upsert them.

For each source this command will:
1. Read the page text, skipping the pages before start_page.
2. Read the table of contents CSV.
3. Cut the text into articles and upsert them into table_name.
`,
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		return withClient(func(ctx context.Context, client *legalpg.Client) error {
			if bootstrap {
				if err := client.Bootstrap(ctx); err != nil {
					return err
				}
			}
			p, err := client.Pipeline()
			if err != nil {
				return err
			}
			return p.UploadDocuments(ctx)
		})
	},
}

var uploadEmbeddingsCmd = &cobra.Command{
	Use:   "upload-embeddings",
	Short: "Chunk and embed the stored articles of every source",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		return withClient(func(ctx context.Context, client *legalpg.Client) error {
			p, err := client.Pipeline()
			if err != nil {
				return err
			}
			return p.UploadEmbeddings(ctx)
		})
	},
}

var priceEmbeddingsCmd = &cobra.Command{
	Use:   "price-embeddings",
	Short: "Estimate the cost of embedding the stored articles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(func(ctx context.Context, client *legalpg.Client) error {
			p, err := client.Pipeline()
			if err != nil {
				return err
			}
			costs, err := p.PriceEmbeddings(ctx)
			if err != nil {
				return err
			}
			return writeCosts(cmd.OutOrStdout(), costs)
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Count the stored documents and embeddings of every source",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(func(ctx context.Context, client *legalpg.Client) error {
			status, err := client.Status(ctx)
			if err != nil {
				return err
			}
			return writeStatus(cmd.OutOrStdout(), status)
		})
	},
}

var askCmd = &cobra.Command{
	Use:   "ask QUESTION",
	Short: "Answer a question about the stored legal texts",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		return withClient(func(ctx context.Context, client *legalpg.Client) error {
			a, err := client.Answerer()
			if err != nil {
				return err
			}
			answer, err := a.Answer(ctx, question)
			if err != nil {
				return err
			}
			return writeAnswer(cmd.OutOrStdout(), answer, askHTML)
		})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the JSON HTTP gateway",
	Long: `Serve answers and stored articles over HTTP.

POST /answer is only enabled when both API keys are configured.
`,
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		return withClient(func(ctx context.Context, client *legalpg.Client) error {
			return serve(ctx, client)
		})
	},
}

func serve(ctx context.Context, client *legalpg.Client) error {
	cfg := client.Config()
	logger := newLogger(log)

	routerCfg := &api.Config{
		Documents: client.Store(),
		Sources:   cfg.Sources,
		Logger:    logger,
	}
	if a, err := client.Answerer(); err == nil {
		routerCfg.Answerer = a
	} else {
		log.WithError(err).Warn("question answering disabled")
	}

	addr := cfg.Server.Addr
	if listenAddr != "" {
		addr = listenAddr
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.NewRouter(routerCfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("serving")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	log.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func init() {
	uploadDocumentsCmd.Flags().BoolVar(&bootstrap, "bootstrap", false, "create missing tables first")
	askCmd.Flags().BoolVar(&askHTML, "html", false, "render the answer as sanitized HTML")
	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "listen address, overrides server.addr")

	rootCmd.AddCommand(
		bootstrapCmd,
		uploadDocumentsCmd,
		uploadEmbeddingsCmd,
		priceEmbeddingsCmd,
		statusCmd,
		askCmd,
		serveCmd,
	)
}

func writeCosts(w io.Writer, costs []pipeline.EmbeddingCost) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tMODEL\tTOKENS\tPRICE\tBATCH PRICE")
	for _, c := range costs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t$%s\t$%s\n", c.Name, c.Model, c.Tokens, c.Pricing.StringFixed(6), c.BatchPricing.StringFixed(6))
	}
	return tw.Flush()
}

func writeStatus(w io.Writer, status []legalpg.SourceStatus) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tDOCUMENTS\tEMBEDDINGS")
	for _, s := range status {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", s.Name, s.Documents, s.Embeddings)
	}
	return tw.Flush()
}

func writeAnswer(w io.Writer, answer *rag.Answer, html bool) error {
	text := answer.Text
	if html {
		var err error
		if text, err = rag.RenderHTML(text); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w, text); err != nil {
		return err
	}
	if html || len(answer.Sources) == 0 {
		return nil
	}
	fmt.Fprintln(w, "\nSources:")
	for _, s := range answer.Sources {
		fmt.Fprintf(w, "  Article %s  %s  (distance %.4f)\n", s.Article, s.URL, s.Distance)
	}
	return nil
}
