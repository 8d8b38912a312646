package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zen-systems/finroute/pkg/config"
	"github.com/zen-systems/finroute/pkg/orchestrator"
	"github.com/zen-systems/finroute/pkg/server"
)

var (
	configFile string
	debugFlag  bool
	aliases    *config.ModelAliases
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "finroute",
		Short: "Financial query routing across specialist responders",
		Long: `finroute classifies financial questions, routes them to the best
	specialist responder, isolates failing responders behind failure gates and
	falls back to an alternate responder or a canned answer.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to responders config file")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "log selection scores and gate activity")

	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(collaborateCmd())
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(respondersCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func askCmd() *cobra.Command {
	var opts orchestrator.ProcessOptions
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "ask [query]",
		Short: "Answer a query with the best responder",
		Long: `Classifies the query, selects a responder by priority, jurisdiction
	affinity and recent health, and answers with it. A failing responder is
	replaced by an alternate; if none can answer, a canned reply is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.orch.Process(cmd.Context(), args[0], opts)
			if jsonOut {
				return printJSON(res)
			}
			printRouting(res)
			fmt.Println(res.Answer.Text)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Jurisdiction, "jurisdiction", "", "override the detected jurisdiction (CA, CA-QC, CA-ON, FR, US)")
	cmd.Flags().StringVar(&opts.Language, "language", "", "answer language (fr, en)")
	cmd.Flags().StringVar(&opts.Model, "model", "", "override model or alias")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the full result as JSON")
	return cmd
}

func collaborateCmd() *cobra.Command {
	var opts orchestrator.ProcessOptions
	var ids []string
	var synthesizer string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "collaborate [query]",
		Short: "Ask several responders and synthesize their answers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if len(ids) == 0 {
				ids = a.orch.Router().Classify(args[0]).SuggestedResponders
			}
			res := a.orch.Collaborate(cmd.Context(), args[0], ids, synthesizer, opts)
			if jsonOut {
				return printJSON(res)
			}
			printRouting(res)
			fmt.Println(res.Answer.Text)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&ids, "responders", nil, "responder ids to consult (default: classifier suggestions)")
	cmd.Flags().StringVar(&synthesizer, "synthesizer", "", "responder id that merges the answers")
	cmd.Flags().StringVar(&opts.Jurisdiction, "jurisdiction", "", "override the detected jurisdiction")
	cmd.Flags().StringVar(&opts.Language, "language", "", "answer language (fr, en)")
	cmd.Flags().StringVar(&opts.Model, "model", "", "override model or alias")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the full result as JSON")
	return cmd
}

func classifyCmd() *cobra.Command {
	var jurisdiction string

	cmd := &cobra.Command{
		Use:   "classify [query]",
		Short: "Show intents, jurisdiction and responder scores without answering",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			d := a.orch.Router().Route(args[0], jurisdiction)
			fmt.Printf("Intents:       %s\n", formatList(d.Analysis.DetectedIntents))
			fmt.Printf("Jurisdiction:  %s\n", orNone(d.Jurisdiction))
			fmt.Printf("Suggested:     %s\n", formatList(d.Analysis.SuggestedResponders))
			fmt.Printf("Collaborate:   %t\n", d.Analysis.RequiresCollaboration)
			if d.Selection.Widened {
				fmt.Println("Selection widened to all active responders")
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "\nRESPONDER\tSCORE\tPRIORITY\tAFFINITY\tHEALTH\tLATENCY\tREMOTE")
			for _, s := range d.Selection.Scores {
				fmt.Fprintf(w, "%s\t%.2f\t%d\t%+.0f\t%+.2f\t%+.0f\t%+.0f\n",
					s.ResponderID, s.Total, s.Priority, s.Affinity, s.Health, s.Latency, s.Remote)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&jurisdiction, "jurisdiction", "", "override the detected jurisdiction")
	return cmd
}

func respondersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "responders",
		Short: "List responders with their gate and health state",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			rep := a.orch.Status()
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKIND\tPRIORITY\tJURISDICTIONS\tLOCATION\tACTIVE\tGATE\tSUCCESS")
			for _, r := range rep.Responders {
				d := r.Descriptor
				location := "local"
				if !d.IsLocal {
					location = "remote"
				}
				success := "-"
				if r.Health != nil {
					success = fmt.Sprintf("%.0f%%", r.Health.Snapshot.SuccessRatePercent)
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%t\t%s\t%s\n",
					d.ID, d.Kind, d.StaticPriority, formatList(d.JurisdictionAffinity), location, d.Active, r.Gate.State, success)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Printf("\n%d responders (%d active, %d remote), system %s\n", rep.Total, rep.Active, rep.Remote, rep.System.Status)
			return nil
		},
	}

	cmd.AddCommand(responderSetCmd())
	cmd.AddCommand(responderActiveCmd("enable", true))
	cmd.AddCommand(responderActiveCmd("disable", false))
	cmd.AddCommand(responderRemoveCmd())
	return cmd
}

func modelsCmd() *cobra.Command {
	var resolveFlag bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List available adapters, models, and aliases",
		Long: `Lists adapters and their available models.

	Use --resolve to show aliases and what they resolve to.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if resolveFlag {
				return showAliases()
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tMODELS\tSTATUS")
			for _, provider := range aliases.ListProviders() {
				status := "no key"
				if cfg.HasAdapter(provider) {
					status = "ready"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", provider, formatList(aliases.ProviderModels(provider)), status)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&resolveFlag, "resolve", false, "show aliases and what they resolve to")
	return cmd
}

func showAliases() error {
	all := aliases.ListAliases()
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ALIAS\tMODEL")
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%s\n", name, all[name])
	}
	return w.Flush()
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the responders config and model aliases",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			errs := cfg.Orchestration.Validate()
			errs = append(errs, aliases.ValidateResponders(cfg.Orchestration)...)
			if len(errs) > 0 {
				for _, e := range errs {
					fmt.Fprintf(os.Stderr, "  - %v\n", e)
				}
				return fmt.Errorf("%d configuration errors", len(errs))
			}

			fmt.Printf("Configuration OK: %d responders, %d intents, %d jurisdictions\n",
				len(cfg.Orchestration.Responders), len(cfg.Orchestration.Intents), len(cfg.Orchestration.Jurisdictions))
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.cfg.ListenAddr
			}
			opts := []server.Option{server.WithDebug(debugFlag)}
			if a.store != nil {
				opts = append(opts, server.WithStore(a.store))
			}
			return server.New(a.orch, opts...).Run(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	return cmd
}

func printRouting(res *orchestrator.Result) {
	switch {
	case res.UsedFallback && res.SelectedResponderID != "":
		fmt.Fprintf(os.Stderr, "Routed to %s (fallback from %s)\n", res.SelectedResponderID, res.OriginalResponderID)
	case res.SelectedResponderID != "":
		fmt.Fprintf(os.Stderr, "Routed to %s\n", res.SelectedResponderID)
	}
	if res.Degraded() {
		fmt.Fprintf(os.Stderr, "Degraded: %s (%s)\n", res.FailureReason, res.FailureDetail)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
