package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"aiko-go/internal/config"
	"aiko-go/internal/model"
	"aiko-go/internal/repository"
	"aiko-go/internal/service"
	"aiko-go/pkg/events"
	"aiko-go/pkg/kafka"
	"aiko-go/pkg/token"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history [key]",
		Short: "打印会话快照，指定 key 时只打印该会话",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			store, _, err := openSnapshotStore(cfg)
			if err != nil {
				return err
			}
			snapshot, err := store.ReadAll(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to read snapshot from %s: %w", store.Location(), err)
			}
			var key model.ConversationKey
			if len(args) == 1 {
				key = model.ConversationKey(args[0])
			}
			return printHistory(cmd.OutOrStdout(), snapshot, key)
		},
	}
}

func personasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "personas",
		Short: "列出已加载的人格",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			personas, err := service.LoadPersonas(configPath, cfg.Personas.File)
			if err != nil {
				return err
			}
			printPersonas(cmd.OutOrStdout(), personas)
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token <discord-user-id>",
		Short: "为管理员签发管理 API 令牌",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if !isAdmin(cfg.Discord.AdminIDs, args[0]) {
				color.New(color.FgYellow).Fprintf(cmd.ErrOrStderr(), "警告: %s 不在 admin_ids 中，令牌会被管理 API 拒绝\n", args[0])
			}
			signed, err := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours).GenerateToken(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}
}

func eventsCmd() *cobra.Command {
	var groupID string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "从 Kafka 订阅并打印完成的问答",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.Kafka.Brokers == "" {
				return fmt.Errorf("kafka.brokers is not configured")
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			err = kafka.Consume(ctx, cfg.Kafka, groupID, func(ev events.ExchangeEvent) error {
				printEvent(out, ev)
				return nil
			})
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&groupID, "group", "aiko-cli", "Kafka consumer group")
	return cmd
}

func printHistory(w io.Writer, snapshot repository.Snapshot, only model.ConversationKey) error {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	faint := color.New(color.Faint)

	if only != "" {
		turns, ok := snapshot[only]
		if !ok {
			return fmt.Errorf("conversation %q not found", only)
		}
		snapshot = repository.Snapshot{only: turns}
	}
	if len(snapshot) == 0 {
		faint.Fprintln(w, "(empty)")
		return nil
	}

	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	for _, k := range keys {
		turns := snapshot[model.ConversationKey(k)]
		cyan.Fprintf(w, "== %s (%d) ==\n", k, len(turns))
		for _, turn := range turns {
			role := green
			if turn.Role == model.RoleAssistant {
				role = yellow
			}
			role.Fprintf(w, "%-9s ", turn.Role)
			fmt.Fprintln(w, turn.Content)
		}
	}
	return nil
}

func printPersonas(w io.Writer, personas map[string]model.Persona) {
	names := make([]string, 0, len(personas))
	for name := range personas {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, name := range names {
		prompt := strings.TrimSpace(personas[name].SystemPromptTemplate)
		if i := strings.IndexByte(prompt, '\n'); i >= 0 {
			prompt = prompt[:i] + " ..."
		}
		fmt.Fprintf(tw, "%s\t%s\n", name, prompt)
	}
	tw.Flush()
}

func printEvent(w io.Writer, ev events.ExchangeEvent) {
	cyan := color.New(color.FgCyan)
	cyan.Fprintf(w, "[%s] %s", ev.Timestamp, ev.ConversationKey)
	if ev.Persona != "" {
		fmt.Fprintf(w, " persona=%s", ev.Persona)
	}
	fmt.Fprintf(w, " model=%s %dms\n", ev.Model, ev.LatencyMillis)
	color.New(color.FgGreen).Fprint(w, "  Q: ")
	fmt.Fprintln(w, ev.Question)
	color.New(color.FgYellow).Fprint(w, "  A: ")
	fmt.Fprintln(w, ev.Answer)
}

func isAdmin(adminIDs []string, id string) bool {
	for _, a := range adminIDs {
		if a == id {
			return true
		}
	}
	return false
}
