package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ouvidor/internal/app"
	"ouvidor/internal/config"
	"ouvidor/internal/db"
	"ouvidor/internal/domain"
	"ouvidor/internal/engine"
	"ouvidor/internal/migrate"
	"ouvidor/internal/repo"
	"ouvidor/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "ouv",
	Short: "Ombudsman office CLI",
	Long: `Ouvidor tracks citizen manifestations from intake to final response.
Core concepts:
- Workspace: your .ouvidor directory holding the database; office config lives in the DB and is imported explicitly.
- Manifestation: a citizen report (praise, suggestion, complaint, denunciation, request) identified by a public protocol.
- Lifecycle: new -> analyzing -> forwarded/in_service/awaiting_return -> responded -> closed (canceled is an exit).
- Forwarding: routing a manifestation to a sector for treatment; denunciations are anonymized on the way out.
- Action plan: corrective work a sector commits to, with its own pending -> in_progress -> done flow.
- Deadline: every manifestation type has a default response deadline; 'ouv manifestation list' shows how close each one is.
- Audit log: every mutation is recorded, view with 'ouv log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("OUVIDOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("role", "ouvidor", "actor role when not registered in the users table")
	rootCmd.PersistentFlags().String("office", "", "office id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("role", rootCmd.PersistentFlags().Lookup("role"))
	_ = viper.BindPFlag("office", rootCmd.PersistentFlags().Lookup("office"))
}

func registerCommands() {
	rootCmd.AddCommand(manifestationCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(sectorCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(notificationCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func manifestationCmd() *cobra.Command {
	man := &cobra.Command{
		Use:     "manifestation",
		Aliases: []string{"man"},
		Short:   "Manage manifestations",
		Long:    "Manifestations are citizen reports. They enter as 'new', get analyzed and routed to sectors, and leave with a recorded response. Confidential and denunciation entries hide the complainant from everyone downstream.",
	}
	man.AddCommand(manCreateCmd())
	man.AddCommand(manListCmd())
	man.AddCommand(manShowCmd())
	man.AddCommand(manForwardCmd())
	man.AddCommand(manActionCmd("analyze", "Move to analysis", func(e engine.Engine) actionFn { return e.Analyze }))
	man.AddCommand(manActionCmd("start-service", "Start internal treatment", func(e engine.Engine) actionFn { return e.StartService }))
	man.AddCommand(manActionCmd("await-return", "Mark as waiting on a sector", func(e engine.Engine) actionFn { return e.AwaitReturn }))
	man.AddCommand(manActionCmd("close", "Close after response", func(e engine.Engine) actionFn { return e.Close }))
	man.AddCommand(manRespondCmd())
	man.AddCommand(manCancelCmd())
	man.AddCommand(manEditCmd())
	man.AddCommand(manDeleteCmd())
	man.AddCommand(manReturnCmd())
	man.AddCommand(manEmailCmd())
	return man
}

func manCreateCmd() *cobra.Command {
	var opts engine.CreateOptions
	var manType, priority, channel, deadline string
	var name, email, phone string
	var consent bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a manifestation",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Type = domain.Type(manType)
			opts.Priority = domain.Priority(priority)
			opts.Channel = domain.Channel(channel)
			if deadline != "" {
				opts.ResponseDeadline = &deadline
			}
			if cmd.Flags().Changed("complainant-name") {
				opts.Complainant = &engine.ComplainantInput{
					Name:    name,
					Email:   email,
					Phone:   phone,
					Consent: consent,
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.CreateManifestation(ctx, cliActor(ctx, e.Repo), opts)
				if err != nil {
					return err
				}
				return printJSONOrIndent(m)
			})
		},
	}
	cmd.Flags().StringVar(&manType, "type", "", "type (praise, suggestion, complaint, denunciation, request)")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&priority, "priority", "", "priority (low, medium, high, urgent)")
	cmd.Flags().StringVar(&channel, "channel", "in_person", "intake channel (web, phone, in_person, email)")
	cmd.Flags().BoolVar(&opts.Anonymous, "anonymous", false, "no complainant identity")
	cmd.Flags().BoolVar(&opts.Confidential, "confidential", false, "hide complainant from routing")
	cmd.Flags().StringVar(&deadline, "deadline", "", "response deadline (RFC3339, defaults per type)")
	cmd.Flags().StringVar(&name, "complainant-name", "", "complainant name")
	cmd.Flags().StringVar(&email, "complainant-email", "", "complainant email")
	cmd.Flags().StringVar(&phone, "complainant-phone", "", "complainant phone")
	cmd.Flags().BoolVar(&consent, "consent", false, "complainant consented to data storage")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func manListCmd() *cobra.Command {
	var f repo.ManifestationFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List manifestations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListManifestations(ctx, cliActor(ctx, e.Repo), f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Protocol", "Type", "Status", "Priority", "Sector", "Deadline"})
				for _, m := range items {
					sector := ""
					if m.ResponsibleSector != nil {
						sector = *m.ResponsibleSector
					}
					cls := e.ClassifyDeadline(m)
					deadline := string(cls.Bucket)
					if cls.Bucket == "overdue" {
						deadline = fmt.Sprintf("overdue (%dd)", cls.DaysLate)
					}
					tw.AppendRow(table.Row{m.Protocol, m.Type, m.Status, m.Priority, sector, deadline})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Type, "type", "", "type filter")
	cmd.Flags().StringVar(&f.SectorID, "sector", "", "responsible sector filter")
	cmd.Flags().StringVar(&f.UserID, "assignee", "", "responsible user filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max results")
	return cmd
}

func manShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a manifestation with its routing history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.Repo.GetManifestation(ctx, id)
				if err != nil {
					return err
				}
				forwardings, err := e.Repo.ListForwardings(ctx, id)
				if err != nil {
					return err
				}
				plans, err := e.Repo.ListPlans(ctx, id)
				if err != nil {
					return err
				}
				out := map[string]any{
					"manifestation": m,
					"deadline":      e.ClassifyDeadline(m),
					"forwardings":   forwardings,
					"plans":         plans,
				}
				return printJSONOrIndent(out)
			})
		},
	}
	return cmd
}

func manForwardCmd() *cobra.Command {
	var opts engine.ForwardOptions
	var destUser, deadline string
	cmd := &cobra.Command{
		Use:   "forward <id>",
		Short: "Forward to a sector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if destUser != "" {
				opts.DestinationUserID = &destUser
			}
			if deadline != "" {
				opts.Deadline = &deadline
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, fwd, err := e.Forward(ctx, cliActor(ctx, e.Repo), id, opts)
				if err != nil {
					return err
				}
				return printJSONOrIndent(map[string]any{"manifestation": m, "forwarding": fwd})
			})
		},
	}
	cmd.Flags().StringVar(&opts.DestinationSectorID, "sector", "", "destination sector id")
	cmd.Flags().StringVar(&destUser, "user", "", "destination user id")
	cmd.Flags().StringVar(&opts.Instructions, "instructions", "", "instructions for the sector")
	cmd.Flags().StringVar(&deadline, "deadline", "", "return deadline (RFC3339)")
	_ = cmd.MarkFlagRequired("sector")
	return cmd
}

type actionFn func(ctx context.Context, actor domain.Actor, id string) (domain.Manifestation, error)

func manActionCmd(use, short string, pick func(engine.Engine) actionFn) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := pick(e)(ctx, cliActor(ctx, e.Repo), id)
				if err != nil {
					return err
				}
				return printJSONOrIndent(m)
			})
		},
	}
	return cmd
}

func manRespondCmd() *cobra.Command {
	var response string
	cmd := &cobra.Command{
		Use:   "respond <id>",
		Short: "Record the final response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.Respond(ctx, cliActor(ctx, e.Repo), id, response)
				if err != nil {
					return err
				}
				return printJSONOrIndent(m)
			})
		},
	}
	cmd.Flags().StringVar(&response, "response", "", "response text")
	_ = cmd.MarkFlagRequired("response")
	return cmd
}

func manCancelCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a manifestation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.Cancel(ctx, cliActor(ctx, e.Repo), id, reason)
				if err != nil {
					return err
				}
				return printJSONOrIndent(m)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason")
	return cmd
}

func manEditCmd() *cobra.Command {
	var description, priority string
	var confidential bool
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit description, priority or confidentiality",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			var opts engine.EditOptions
			if cmd.Flags().Changed("description") {
				opts.Description = &description
			}
			if cmd.Flags().Changed("priority") {
				p := domain.Priority(priority)
				opts.Priority = &p
			}
			if cmd.Flags().Changed("confidential") {
				opts.Confidential = &confidential
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.EditContent(ctx, cliActor(ctx, e.Repo), id, opts)
				if err != nil {
					return err
				}
				return printJSONOrIndent(m)
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&priority, "priority", "", "new priority")
	cmd.Flags().BoolVar(&confidential, "confidential", false, "mark confidential (cannot be cleared)")
	return cmd
}

func manDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Permanently delete a manifestation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeletePermanently(ctx, cliActor(ctx, e.Repo), id)
			})
		},
	}
	return cmd
}

func manReturnCmd() *cobra.Command {
	var status, note string
	cmd := &cobra.Command{
		Use:   "return <id>",
		Short: "Record a sector's return on the open forwarding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, fwd, err := e.RecordReturn(ctx, cliActor(ctx, e.Repo), id, engine.ReturnOptions{
					Status: domain.ForwardingStatus(status),
					Note:   note,
				})
				if err != nil {
					return err
				}
				return printJSONOrIndent(map[string]any{"manifestation": m, "forwarding": fwd})
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "responded", "return status (responded, late)")
	cmd.Flags().StringVar(&note, "note", "", "return note")
	return cmd
}

func manEmailCmd() *cobra.Command {
	var recipient string
	cmd := &cobra.Command{
		Use:   "email <id>",
		Short: "Email the recorded response to the citizen",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				comm, err := e.SendResponseEmail(ctx, cliActor(ctx, e.Repo), id, recipient)
				if err != nil {
					if comm.ID != "" {
						fmt.Printf("delivery failed, attempt recorded as %s\n", comm.ID)
					}
					return err
				}
				return printJSONOrIndent(comm)
			})
		},
	}
	cmd.Flags().StringVar(&recipient, "to", "", "recipient email (defaults to the complainant)")
	return cmd
}

func planCmd() *cobra.Command {
	plan := &cobra.Command{
		Use:   "plan",
		Short: "Manage action plans",
		Long:  "Action plans track the corrective work a sector commits to for a manifestation. They flow pending -> in_progress -> done; canceling is allowed before completion.",
	}
	plan.AddCommand(planCreateCmd())
	plan.AddCommand(planListCmd())
	plan.AddCommand(planAdvanceCmd())
	plan.AddCommand(planNotesCmd())
	return plan
}

func planCreateCmd() *cobra.Command {
	var opts engine.PlanOptions
	var manifestationID, responsible, deadline string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an action plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			if responsible != "" {
				opts.ResponsibleUserID = &responsible
			}
			if deadline != "" {
				opts.Deadline = &deadline
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreatePlan(ctx, cliActor(ctx, e.Repo), manifestationID, opts)
				if err != nil {
					return err
				}
				return printJSONOrIndent(p)
			})
		},
	}
	cmd.Flags().StringVar(&manifestationID, "manifestation", "", "manifestation id")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.SectorID, "sector", "", "responsible sector")
	cmd.Flags().StringVar(&responsible, "user", "", "responsible user")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (RFC3339)")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "notes")
	_ = cmd.MarkFlagRequired("manifestation")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("sector")
	return cmd
}

func planListCmd() *cobra.Command {
	var manifestationID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List plans of a manifestation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListPlans(ctx, manifestationID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Sector", "Deadline"})
				for _, p := range items {
					deadline := ""
					if p.Deadline != nil {
						deadline = *p.Deadline
					}
					tw.AppendRow(table.Row{p.ID, p.Title, p.Status, p.SectorID, deadline})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&manifestationID, "manifestation", "", "manifestation id")
	_ = cmd.MarkFlagRequired("manifestation")
	return cmd
}

func planAdvanceCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "advance <id>",
		Short: "Advance plan status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.AdvancePlan(ctx, cliActor(ctx, e.Repo), id, domain.PlanStatus(status))
				if err != nil {
					return err
				}
				return printJSONOrIndent(p)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status (in_progress, done, canceled)")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func planNotesCmd() *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "notes <id>",
		Short: "Update plan notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.UpdatePlanNotes(ctx, cliActor(ctx, e.Repo), id, notes)
				if err != nil {
					return err
				}
				return printJSONOrIndent(p)
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "notes text")
	_ = cmd.MarkFlagRequired("notes")
	return cmd
}

func sectorCmd() *cobra.Command {
	sec := &cobra.Command{Use: "sector", Short: "Manage sectors"}
	sec.AddCommand(sectorUpsertCmd())
	sec.AddCommand(sectorListCmd())
	return sec
}

func sectorUpsertCmd() *cobra.Command {
	var s domain.Sector
	cmd := &cobra.Command{
		Use:   "upsert <id>",
		Short: "Create or update a sector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s.ID = args[0]
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if s.Name == "" {
					return fmt.Errorf("--name required")
				}
				s.CreatedAt = time.Now().UTC().Format(time.RFC3339)
				if err := r.UpsertSector(ctx, s); err != nil {
					return err
				}
				out, err := r.GetSector(ctx, s.ID)
				if err != nil {
					return err
				}
				return printJSONOrIndent(out)
			})
		},
	}
	cmd.Flags().StringVar(&s.Name, "name", "", "sector name")
	cmd.Flags().StringVar(&s.Description, "description", "", "description")
	return cmd
}

func sectorListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sectors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListSectors(ctx)
				if err != nil {
					return err
				}
				return printJSONOrIndent(items)
			})
		},
	}
	return cmd
}

func userCmd() *cobra.Command {
	usr := &cobra.Command{Use: "user", Short: "Manage users"}
	usr.AddCommand(userUpsertCmd())
	usr.AddCommand(userListCmd())
	return usr
}

func userUpsertCmd() *cobra.Command {
	var name, role, sectorID string
	cmd := &cobra.Command{
		Use:   "upsert <id>",
		Short: "Create or update a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			r := domain.Role(role)
			if !r.Valid() {
				return fmt.Errorf("unknown role %q", role)
			}
			u := domain.User{
				ID:        id,
				Name:      name,
				Role:      r,
				CreatedAt: time.Now().UTC().Format(time.RFC3339),
			}
			if sectorID != "" {
				u.SectorID = &sectorID
			}
			return withRepo(cmd.Context(), func(ctx context.Context, rep repo.Repo) error {
				if err := rep.UpsertUser(ctx, u); err != nil {
					return err
				}
				out, err := rep.GetUser(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrIndent(out)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", "", "role (admin, ouvidor, gestor, assistente, analista, consulta)")
	cmd.Flags().StringVar(&sectorID, "sector", "", "home sector")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func userListCmd() *cobra.Command {
	var sectorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListUsers(ctx, sectorID)
				if err != nil {
					return err
				}
				return printJSONOrIndent(items)
			})
		},
	}
	cmd.Flags().StringVar(&sectorID, "sector", "", "filter by sector")
	return cmd
}

func notificationCmd() *cobra.Command {
	not := &cobra.Command{Use: "notification", Short: "In-app notifications"}
	not.AddCommand(notificationListCmd())
	not.AddCommand(notificationReadCmd())
	return not
}

func notificationListCmd() *cobra.Command {
	var unreadOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List my notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListNotifications(ctx, viper.GetString("actor-id"), unreadOnly)
				if err != nil {
					return err
				}
				return printJSONOrIndent(items)
			})
		},
	}
	cmd.Flags().BoolVar(&unreadOnly, "unread", false, "only unread")
	return cmd
}

func notificationReadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <id>",
		Short: "Mark a notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.MarkNotificationRead(ctx, cliActor(ctx, e.Repo), id)
				if err != nil {
					return err
				}
				return printJSONOrIndent(n)
			})
		},
	}
	return cmd
}

func reportCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Office-wide summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				summary, err := e.Report(ctx, cliActor(ctx, e.Repo), days)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(summary)
				}
				fmt.Printf("Total: %d (overdue: %d)\n", summary.Total, summary.Overdue)
				fmt.Println("By status:")
				for status, c := range summary.ByStatus {
					fmt.Printf("  %s: %d\n", status, c)
				}
				fmt.Println("By type:")
				for t, c := range summary.ByType {
					fmt.Printf("  %s: %d\n", t, c)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "window for the daily intake series")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect office config",
		Long:  "Config is the office rulebook (stored in DB): default response deadlines per type, return routing policy, mail delivery and webhooks. Import from ouvidor.yml if desired.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configImportCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show office config stored in DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrIndent(e.Config)
			})
		},
	}
	return cmd
}

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import office config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			cfg, err := config.FromYAML(data)
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.UpsertOfficeConfig(ctx, cfg.Office.ID, cfg); err != nil {
					return err
				}
				return printJSONOrIndent(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Config.Validate()
			})
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Audit log",
		Long:  "The immutable record of every mutation: who did what, to which entity, with before and after snapshots.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var action, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				entries, err := r.LatestAuditEntries(ctx, n, action, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrIndent(entries)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	cmd.Flags().StringVar(&action, "action", "", "action filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "API keys for the HTTP server"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyRevokeCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var userID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue an API key for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if _, err := r.GetUser(ctx, userID); err != nil {
					return err
				}
				secret := uuid.NewString()
				key := domain.APIKey{
					ID:        uuid.NewString(),
					UserID:    userID,
					Name:      name,
					KeyHash:   repo.HashAPIKey(secret),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				// The plaintext secret is shown once and never stored.
				return printJSONOrIndent(map[string]any{"id": key.ID, "user_id": userID, "key": secret})
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, userID)
				if err != nil {
					return err
				}
				return printJSONOrIndent(items)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "filter by user")
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacyActor bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveOfficeAndConfig(cmd.Context(), workspace, viper.GetString("office"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("OUVIDOR_JWT_SECRET"),
				AllowLegacyActorHeader: allowLegacyActor,
			}
			if authCfg.JWTSecret == "" && !allowLegacyActor {
				return fmt.Errorf("OUVIDOR_JWT_SECRET is required for bearer auth (or pass --allow-legacy-actor-header for local use)")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Ouvidor API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&allowLegacyActor, "allow-legacy-actor-header", false, "accept X-Actor-Id header without auth")
	return cmd
}

// --- helpers ---

func cliActor(ctx context.Context, r repo.Repo) domain.Actor {
	id := viper.GetString("actor-id")
	actor := domain.Actor{ID: id, Role: domain.Role(viper.GetString("role"))}
	if u, err := r.GetUser(ctx, id); err == nil {
		actor.Role = u.Role
	}
	return actor
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveOfficeAndConfig(ctx, workspace, viper.GetString("office"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	return fn(ctx, r)
}

func printJSONOrIndent(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
