package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/langfuse-nodes/server/internal/core"
	"github.com/langfuse-nodes/server/internal/credentials"
	"github.com/langfuse-nodes/server/internal/host"
	"github.com/langfuse-nodes/server/internal/runtime"
	"github.com/langfuse-nodes/server/internal/schema"
	"github.com/langfuse-nodes/server/internal/store"
	"github.com/langfuse-nodes/server/internal/telemetry"
	logx "github.com/langfuse-nodes/server/pkg/logger"
)

// session is the configuration and dependencies shared by one command invocation.
type session struct {
	envFile string
	cfg     AppConfig
	app     *app
}

func (s *session) open() (*app, error) {
	if s.app != nil {
		return s.app, nil
	}
	a, err := newApp(s.cfg)
	if err != nil {
		return nil, err
	}
	s.app = a
	return a, nil
}

func (s *session) close(ctx context.Context) {
	if s.app == nil {
		return
	}
	if err := s.app.Close(ctx); err != nil {
		logx.Warn().Err(err).Msg("shutdown was not clean")
	}
	s.app = nil
}

func newRootCommand() *cobra.Command {
	s := &session{}
	root := &cobra.Command{
		Use:           "lfnodes",
		Short:         "Run workflows built from Langfuse tracing nodes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(s.envFile)
			if err != nil {
				return fmt.Errorf("failed to process environment config: %w", err)
			}
			s.cfg = cfg
			logx.Init(logx.LoggerOpts{
				Environment: core.ParseEnvironment(cfg.Environment),
				Level:       cfg.LogLevel,
				Output:      cmd.ErrOrStderr(),
			})
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			s.close(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&s.envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	root.AddCommand(
		newNodesCommand(s),
		newSelftestCommand(s),
		newRunCommand(s),
		newExecutionsCommand(s),
		newCredentialsCommand(s),
	)
	return root
}

func kind(nt host.NodeType) string {
	switch nt.(type) {
	case host.Supplier:
		return "supplier"
	case host.Executor:
		return "executor"
	}
	return "unknown"
}

func versions(d host.Description) string {
	out := make([]string, len(d.Version))
	for i, v := range d.Version {
		out[i] = fmt.Sprint(v)
	}
	return strings.Join(out, ",")
}

func newNodesCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "nodes",
		Short: "List the registered node types",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := s.open()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TYPE\tNAME\tKIND\tVERSIONS")
			for _, id := range a.registry.IDs() {
				nt, _ := a.registry.Get(id)
				d := nt.Description()
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", id, d.DisplayName, kind(nt), versions(d))
			}
			return w.Flush()
		},
	}
}

// newSelftestCommand evaluates the ports of every node type. Node types whose
// schema patches no longer apply already fail registration.
func newSelftestCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "selftest",
		Short: "Build every node type and evaluate its ports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := s.open()
			if err != nil {
				return err
			}
			eval := schema.NewEvaluator()
			var errs []error
			for _, id := range a.registry.IDs() {
				nt, _ := a.registry.Get(id)
				d := nt.Description()
				in, err := eval.Ports(d.Inputs, nil)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s inputs: %w", id, err))
					continue
				}
				out, err := eval.Ports(d.Outputs, nil)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s outputs: %w", id, err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok  %s (%d inputs, %d outputs)\n", id, len(in), len(out))
			}
			return errors.Join(errs...)
		},
	}
}

// parseItems accepts one JSON object or a list of them.
func parseItems(raw string) ([]host.Item, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("input is not JSON: %w", err)
	}
	list, ok := v.([]any)
	if !ok {
		list = []any{v}
	}
	items := make([]host.Item, len(list))
	for i, e := range list {
		obj, ok := e.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("input item %d is not an object", i)
		}
		items[i] = host.Item{JSON: obj}
	}
	return items, nil
}

func newRunCommand(s *session) *cobra.Command {
	var (
		input       string
		metricsAddr string
		noStore     bool
	)
	cmd := &cobra.Command{
		Use:   "run <workflow.yaml>",
		Short: "Execute a workflow file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			wf, err := runtime.Load(args[0])
			if err != nil {
				return err
			}
			items, err := parseItems(input)
			if err != nil {
				return err
			}
			a, err := s.open()
			if err != nil {
				return err
			}

			tp, err := telemetry.New(ctx, s.cfg.Telemetry)
			if err != nil {
				return err
			}
			defer func() {
				if err := tp.Shutdown(context.Background()); err != nil {
					logx.Warn().Err(err).Msg("failed to shut down telemetry")
				}
			}()

			opts := []runtime.Option{
				runtime.WithCredentials(a.creds),
				runtime.WithPool(a.pool),
				runtime.WithTracer(tp.Tracer()),
				runtime.WithMode(core.ModeCLI),
				runtime.WithInstance(instance()),
			}
			if !noStore {
				st, err := store.Open(ctx, s.cfg.StorePath)
				if err != nil {
					return err
				}
				defer st.Close()
				opts = append(opts, runtime.WithRecorder(st))
			}

			if metricsAddr != "" {
				srv := &http.Server{
					Addr:              metricsAddr,
					Handler:           promhttp.HandlerFor(a.metrics, promhttp.HandlerOpts{}),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logx.Error().Err(err).Str("addr", metricsAddr).Msg("metrics server failed")
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			res, err := runtime.New(a.registry, opts...).Run(ctx, wf, items)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"executionId": res.ExecutionID,
				"items":       res.Last,
			})
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "JSON object or list of objects used as the start items")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the workflow runs")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "do not record the execution")
	return cmd
}

func instance() host.Instance {
	name, err := os.Hostname()
	if err != nil {
		name = "local"
	}
	return host.Instance{ID: name}
}

func newExecutionsCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "executions",
		Short: "Inspect recorded workflow executions",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent executions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := store.Open(cmd.Context(), s.cfg.StorePath)
			if err != nil {
				return err
			}
			defer st.Close()
			execs, err := st.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tWORKFLOW\tSTATUS\tSTARTED\tDURATION")
			for _, e := range execs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.WorkflowName, e.Status,
					e.StartedAt.Format(time.RFC3339), e.FinishedAt.Sub(e.StartedAt).Round(time.Millisecond))
			}
			return w.Flush()
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum number of executions to show, 0 for all")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print one execution as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(cmd.Context(), s.cfg.StorePath)
			if err != nil {
				return err
			}
			defer st.Close()
			e, err := st.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(e)
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

// parseFields turns key=value arguments into a credential object.
func parseFields(args []string) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", a)
		}
		out[k] = v
	}
	return out, nil
}

func newCredentialsCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage credentials stored in the OS keyring",
		Long: `Manage credentials stored in the OS keyring.

Environment variables (LANGFUSE_HOST, LANGFUSE_PUBLIC_KEY, LANGFUSE_SECRET_KEY,
GEMINI_API_KEY) take precedence over keyring entries.

Examples:
  lfnodes credentials set langfuseApi host=https://cloud.langfuse.com publicKey=pk-lf-... secretKey=sk-lf-...
  lfnodes credentials test
  lfnodes credentials delete langfuseApi`,
	}

	set := &cobra.Command{
		Use:   "set <name> key=value...",
		Short: "Store a credential",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := parseFields(args[1:])
			if err != nil {
				return err
			}
			if err := credentials.NewKeyringStore().Set(args[0], fields); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", args[0])
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := credentials.NewKeyringStore().Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}

	test := &cobra.Command{
		Use:   "test",
		Short: "Check the Langfuse credential against the API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := s.open()
			if err != nil {
				return err
			}
			keys, err := credentials.LangfuseKeys(cmd.Context(), credentials.StoreSource{Store: a.creds}, "credentials")
			if err != nil {
				return err
			}
			if err := credentials.Test(cmd.Context(), keys); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "langfuse credential ok (%s)\n", keys.Host)
			return nil
		},
	}

	cmd.AddCommand(set, del, test)
	return cmd
}
