// Package main implements an interactive terminal chat with the diagnosis
// engine. Memory lives in process unless another store backend is configured.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/WessleyAI/wessley-mechanic/engine/agent"
	"github.com/WessleyAI/wessley-mechanic/engine/app"
	"github.com/WessleyAI/wessley-mechanic/engine/domain"
	"github.com/WessleyAI/wessley-mechanic/pkg/config"
)

type turner interface {
	HandleTurn(ctx context.Context, in agent.TurnInput) domain.DiagnosticResponse
}

// session is the fixed context of one REPL run.
type session struct {
	chatID    string
	userID    string
	vehicleID string
	lat, lng  *float64
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.NewViper()
	var (
		configFile string
		verbose    bool
		lat, lng   float64
		s          session
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the vehicle diagnosis assistant",
		Long: `Start an interactive diagnosis chat in the terminal.

Each line is one message. Type "exit" or press Ctrl-D to quit. Configuration
comes from the environment, an optional .env file and --config; flags win.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)

			config.LoadEnv(".env", logger)
			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("lat") && cmd.Flags().Changed("lng") {
				s.lat, s.lng = &lat, &lng
			}
			if s.chatID == "" {
				s.chatID = uuid.NewString()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.Build(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "chat %s (%s via %s). Describe the problem.\n", s.chatID, cfg.LLM.Model, cfg.LLM.Provider)
			return repl(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), a.Engine, s)
		},
	}

	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "YAML config file")
	f.BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
	f.StringVar(&s.chatID, "chat", "", "resume an existing chat id")
	f.StringVar(&s.userID, "user", "cli", "user id recorded with each turn")
	f.StringVar(&s.vehicleID, "vehicle", "", "vehicle id for long-term issue memory")
	f.Float64Var(&lat, "lat", 0, "latitude for workshop lookups")
	f.Float64Var(&lng, "lng", 0, "longitude for workshop lookups")
	f.String("store", "", "memory store backend: memory, postgres or neo4j")
	f.String("provider", "", "model provider: groq, openai or ollama")
	f.String("model", "", "model name")
	for key, name := range map[string]string{
		"store_backend": "store",
		"llm_provider":  "provider",
		"llm_model":     "model",
	} {
		// Unchanged flags fall through to env and defaults.
		_ = v.BindPFlag(key, f.Lookup(name))
	}
	return cmd
}

func repl(ctx context.Context, in io.Reader, out io.Writer, eng turner, s session) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), domain.MaxMessageLength*4)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		resp := eng.HandleTurn(ctx, agent.TurnInput{
			UserInput: line,
			ChatID:    s.chatID,
			UserID:    s.userID,
			VehicleID: s.vehicleID,
			Lat:       s.lat,
			Lng:       s.lng,
		})
		printResponse(out, resp)
	}
}

func printResponse(out io.Writer, r domain.DiagnosticResponse) {
	fmt.Fprintf(out, "[%s] %s (confidence %.2f, severity %.2f)\n", r.Action, r.Diagnosis, r.Confidence, r.Severity)
	if r.Explanation != "" {
		fmt.Fprintln(out, r.Explanation)
	}
	list(out, "Steps", r.Steps, true)
	list(out, "Questions", r.FollowUpQuestions, false)
	list(out, "Videos", r.YouTubeURLs, false)
	list(out, "Workshops", r.WorkshopURLs, false)
	fmt.Fprintln(out)
}

func list(out io.Writer, title string, items []string, numbered bool) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(out, "%s:\n", title)
	for i, it := range items {
		if numbered {
			fmt.Fprintf(out, "  %d. %s\n", i+1, it)
		} else {
			fmt.Fprintf(out, "  - %s\n", it)
		}
	}
}
