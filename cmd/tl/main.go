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
	"gopkg.in/yaml.v3"

	"teamline/internal/app"
	"teamline/internal/config"
	"teamline/internal/db"
	"teamline/internal/domain"
	"teamline/internal/engine"
	"teamline/internal/migrate"
	"teamline/internal/notify"
	"teamline/internal/repo"
	"teamline/internal/routing"
	"teamline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "tl",
	Short: "Teamline CLI",
	Long: `Teamline runs a members portal for client work assignments.
Concepts:
- Workspace: a .teamline directory holding the portal database.
- Portal: one members portal owning assignments, roster and directory.
- Assignment: a unit of client work routed to teammates via supervisors,
  moving through pending_review -> approved -> in_progress -> delivered.
- Roster: teammate name to supervisor mapping used to route new assignments.
- Members: actor ids mapped to a role (client, supervisor, teammate, administrator).
- Activity: the append-only per-assignment trail all roles read.
- Notifications: per-transition intents, delivered to webhooks in the background.`,
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
	viper.SetEnvPrefix("TEAMLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("portal", "", "portal id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("portal", rootCmd.PersistentFlags().Lookup("portal"))
}

func registerCommands() {
	rootCmd.AddCommand(portalCmd())
	rootCmd.AddCommand(memberCmd())
	rootCmd.AddCommand(rosterCmd())
	rootCmd.AddCommand(assignmentCmd())
	rootCmd.AddCommand(supervisorCmd())
	rootCmd.AddCommand(teammateCmd())
	rootCmd.AddCommand(messageCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(notifyCmd())
	rootCmd.AddCommand(keysCmd())
	rootCmd.AddCommand(serveCmd())
}

func portalCmd() *cobra.Command {
	portal := &cobra.Command{Use: "portal", Short: "Manage portals"}
	portal.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List portals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListPortals(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	})
	portal.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the active portal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Repo.GetPortal(ctx, e.PortalID)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	})
	portal.AddCommand(portalConfigCmd())
	return portal
}

func portalConfigCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Portal config"}
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show portal config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cfg, err := e.Repo.GetPortalConfig(ctx, e.PortalID)
				if err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	})
	var file string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import portal config from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				var parsed config.Config
				if err := yaml.Unmarshal(data, &parsed); err != nil {
					return fmt.Errorf("invalid config yaml: %w", err)
				}
				// UpsertPortalConfig pins portal.id and validates.
				if err := e.Repo.UpsertPortalConfig(ctx, e.PortalID, &parsed); err != nil {
					return err
				}
				fmt.Println("config imported")
				return nil
			})
		},
	}
	importCmd.Flags().StringVar(&file, "file", "", "config file path")
	_ = importCmd.MarkFlagRequired("file")
	cfgCmd.AddCommand(importCmd)
	return cfgCmd
}

func memberCmd() *cobra.Command {
	member := &cobra.Command{Use: "member", Short: "Manage the member directory"}
	member.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListMembers(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Actor", "Role", "Display Name", "Aliases"})
				for _, m := range items {
					tw.AppendRow(table.Row{m.ActorID, m.Role, m.DisplayName, strings.Join(m.Aliases, ", ")})
				}
				tw.Render()
				return nil
			})
		},
	})
	var actorID, role, displayName string
	var aliases []string
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add or update a member",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.UpsertMember(ctx, viper.GetString("actor-id"), domain.Member{
					ActorID:     actorID,
					Role:        domain.Role(role),
					DisplayName: displayName,
					Aliases:     aliases,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	addCmd.Flags().StringVar(&actorID, "id", "", "actor id")
	addCmd.Flags().StringVar(&role, "role", "", "role (client|supervisor|teammate|administrator)")
	addCmd.Flags().StringVar(&displayName, "name", "", "display name")
	addCmd.Flags().StringArrayVar(&aliases, "alias", []string{}, "teammate alias (repeatable)")
	_ = addCmd.MarkFlagRequired("id")
	_ = addCmd.MarkFlagRequired("role")
	member.AddCommand(addCmd)
	return member
}

func rosterCmd() *cobra.Command {
	roster := &cobra.Command{Use: "roster", Short: "Manage teammate routing"}
	roster.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List roster entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListRoster(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Teammate", "Supervisor", "Company"})
				for _, entry := range items {
					tw.AppendRow(table.Row{entry.ID, entry.TeammateName, entry.SupervisorID, entry.Company})
				}
				tw.Render()
				return nil
			})
		},
	})

	var name, supervisorID, company string
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add a roster entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entry, err := e.AddRosterEntry(ctx, viper.GetString("actor-id"), domain.RosterEntry{
					TeammateName: name,
					SupervisorID: supervisorID,
					Company:      company,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(entry)
			})
		},
	}
	addCmd.Flags().StringVar(&name, "teammate", "", "teammate display name")
	addCmd.Flags().StringVar(&supervisorID, "supervisor", "", "supervisor actor id")
	addCmd.Flags().StringVar(&company, "company", "", "company label")
	_ = addCmd.MarkFlagRequired("teammate")
	_ = addCmd.MarkFlagRequired("supervisor")
	roster.AddCommand(addCmd)

	var entryID, entryName string
	removeCmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a roster entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RemoveRosterEntry(ctx, viper.GetString("actor-id"), entryID, entryName)
			})
		},
	}
	removeCmd.Flags().StringVar(&entryID, "id", "", "roster entry id")
	removeCmd.Flags().StringVar(&entryName, "teammate", "", "teammate name (for cache invalidation)")
	_ = removeCmd.MarkFlagRequired("id")
	roster.AddCommand(removeCmd)

	var file string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import roster entries from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				var entries []struct {
					Teammate   string `yaml:"teammate"`
					Supervisor string `yaml:"supervisor"`
					Company    string `yaml:"company"`
				}
				if err := yaml.Unmarshal(data, &entries); err != nil {
					return fmt.Errorf("invalid roster yaml: %w", err)
				}
				actor := viper.GetString("actor-id")
				for _, entry := range entries {
					if _, err := e.AddRosterEntry(ctx, actor, domain.RosterEntry{
						TeammateName: entry.Teammate,
						SupervisorID: entry.Supervisor,
						Company:      entry.Company,
					}); err != nil {
						return fmt.Errorf("import %q: %w", entry.Teammate, err)
					}
				}
				fmt.Printf("imported %d roster entries\n", len(entries))
				return nil
			})
		},
	}
	importCmd.Flags().StringVar(&file, "file", "", "roster file path")
	_ = importCmd.MarkFlagRequired("file")
	roster.AddCommand(importCmd)
	return roster
}

func assignmentCmd() *cobra.Command {
	assignment := &cobra.Command{Use: "assignment", Short: "Manage assignments"}
	assignment.AddCommand(assignmentCreateCmd())
	assignment.AddCommand(assignmentListCmd())
	assignment.AddCommand(assignmentShowCmd())
	assignment.AddCommand(assignmentEditCmd())
	assignment.AddCommand(assignmentExtendCmd())
	assignment.AddCommand(assignmentCancelCmd())
	assignment.AddCommand(assignmentDeleteCmd())
	assignment.AddCommand(assignmentCompleteCmd())
	return assignment
}

func assignmentCreateCmd() *cobra.Command {
	var title, brief, steps, startDate, dueDate string
	var teammates, files []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an assignment",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				attachments, err := parseAttachments(files)
				if err != nil {
					return err
				}
				a, err := e.CreateAssignment(ctx, viper.GetString("actor-id"), engine.CreateOptions{
					Title:     title,
					Brief:     brief,
					Steps:     steps,
					StartDate: startDate,
					DueDate:   dueDate,
					Teammates: teammates,
					Files:     attachments,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "assignment title")
	cmd.Flags().StringVar(&brief, "brief", "", "free-text brief")
	cmd.Flags().StringVar(&steps, "steps", "", "step instructions")
	cmd.Flags().StringVar(&startDate, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&dueDate, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringArrayVar(&teammates, "teammate", []string{}, "teammate display name (repeatable)")
	cmd.Flags().StringArrayVar(&files, "file", []string{}, "attachment name=location (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("due")
	_ = cmd.MarkFlagRequired("teammate")
	return cmd
}

func assignmentListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assignments for the caller",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListForCaller(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Due", "Teammates"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.ID, a.Title, a.Status, a.DueDate, strings.Join(a.Teammates, ", ")})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func assignmentShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <assignment-id>",
		Short: "Show an assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.GetForCaller(ctx, viper.GetString("actor-id"), args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func assignmentEditCmd() *cobra.Command {
	var title, brief, steps, startDate, dueDate string
	var teammates []string
	cmd := &cobra.Command{
		Use:   "edit <assignment-id>",
		Short: "Edit an assignment (returns it to review)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var opts engine.EditOptions
				if cmd.Flags().Changed("title") {
					opts.Title = &title
				}
				if cmd.Flags().Changed("brief") {
					opts.Brief = &brief
				}
				if cmd.Flags().Changed("steps") {
					opts.Steps = &steps
				}
				if cmd.Flags().Changed("start") {
					opts.StartDate = &startDate
				}
				if cmd.Flags().Changed("due") {
					opts.DueDate = &dueDate
				}
				if cmd.Flags().Changed("teammate") {
					opts.Teammates = teammates
				}
				a, err := e.EditAssignment(ctx, viper.GetString("actor-id"), args[0], opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "assignment title")
	cmd.Flags().StringVar(&brief, "brief", "", "free-text brief")
	cmd.Flags().StringVar(&steps, "steps", "", "step instructions")
	cmd.Flags().StringVar(&startDate, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&dueDate, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringArrayVar(&teammates, "teammate", []string{}, "teammate display name (repeatable)")
	return cmd
}

func assignmentExtendCmd() *cobra.Command {
	var dueDate string
	cmd := &cobra.Command{
		Use:   "extend <assignment-id>",
		Short: "Request a new due date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.ExtendDueDate(ctx, viper.GetString("actor-id"), args[0], dueDate)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&dueDate, "due", "", "new due date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("due")
	return cmd
}

func assignmentCancelCmd() *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "cancel <assignment-id>",
		Short: "Cancel an assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CancelAssignment(ctx, viper.GetString("actor-id"), args[0], note)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "cancellation note")
	return cmd
}

func assignmentDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <assignment-id>",
		Short: "Soft-delete an assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.DeleteAssignment(ctx, viper.GetString("actor-id"), args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func assignmentCompleteCmd() *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "complete <assignment-id>",
		Short: "Mark an assignment complete (administrator)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.MarkComplete(ctx, viper.GetString("actor-id"), args[0], note)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "completion note")
	return cmd
}

func supervisorCmd() *cobra.Command {
	sup := &cobra.Command{Use: "supervisor", Short: "Supervisor actions"}
	var action, note, dueDate string
	var files []string
	act := &cobra.Command{
		Use:   "act <assignment-id>",
		Short: "Apply a review decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				attachments, err := parseAttachments(files)
				if err != nil {
					return err
				}
				a, err := e.SupervisorAct(ctx, viper.GetString("actor-id"), args[0], engine.SupervisorOptions{
					Action:     action,
					Note:       note,
					NewDueDate: dueDate,
					Files:      attachments,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	act.Flags().StringVar(&action, "action", "", "approve|decline|request_revision|approve_extension")
	act.Flags().StringVar(&note, "note", "", "note for the activity log")
	act.Flags().StringVar(&dueDate, "due", "", "new due date (approve_extension)")
	act.Flags().StringArrayVar(&files, "file", []string{}, "attachment name=location (repeatable)")
	_ = act.MarkFlagRequired("action")
	sup.AddCommand(act)
	return sup
}

func teammateCmd() *cobra.Command {
	tm := &cobra.Command{Use: "teammate", Short: "Teammate actions"}
	var action, note string
	var urgent bool
	var files []string
	act := &cobra.Command{
		Use:   "act <assignment-id>",
		Short: "Respond to an assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				attachments, err := parseAttachments(files)
				if err != nil {
					return err
				}
				a, err := e.TeammateAct(ctx, viper.GetString("actor-id"), args[0], engine.TeammateOptions{
					Action: action,
					Note:   note,
					Urgent: urgent,
					Files:  attachments,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	act.Flags().StringVar(&action, "action", "", "accept|decline|request_extension|request_cancel|request_update|deliver")
	act.Flags().StringVar(&note, "note", "", "note for the activity log")
	act.Flags().BoolVar(&urgent, "urgent", false, "flag the event urgent")
	act.Flags().StringArrayVar(&files, "file", []string{}, "delivery file name=location (repeatable)")
	_ = act.MarkFlagRequired("action")
	tm.AddCommand(act)
	return tm
}

func messageCmd() *cobra.Command {
	msg := &cobra.Command{Use: "message", Short: "Assignment replies"}
	var text, targetRole, targetID, targetName string
	var urgent bool
	send := &cobra.Command{
		Use:   "send <assignment-id>",
		Short: "Send a reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.SendMessage(ctx, viper.GetString("actor-id"), args[0], engine.MessageOptions{
					Text:       text,
					TargetRole: domain.Role(targetRole),
					TargetID:   targetID,
					TargetName: targetName,
					Urgent:     urgent,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	send.Flags().StringVar(&text, "text", "", "message text")
	send.Flags().StringVar(&targetRole, "target-role", "", "client|supervisor|teammate")
	send.Flags().StringVar(&targetID, "target-id", "", "recipient identity")
	send.Flags().StringVar(&targetName, "target-name", "", "recipient display name")
	send.Flags().BoolVar(&urgent, "urgent", false, "flag the mirrored event urgent")
	_ = send.MarkFlagRequired("text")
	_ = send.MarkFlagRequired("target-role")
	_ = send.MarkFlagRequired("target-id")
	msg.AddCommand(send)
	return msg
}

func activityCmd() *cobra.Command {
	activity := &cobra.Command{Use: "activity", Short: "Assignment activity trail"}
	list := &cobra.Command{
		Use:   "list <assignment-id>",
		Short: "List activity events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListActivity(ctx, viper.GetString("actor-id"), args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Timestamp", "Author", "Type", "Note"})
				for _, ev := range items {
					tw.AppendRow(table.Row{ev.ID, ev.TS, ev.Author, ev.Type, ev.Note})
				}
				tw.Render()
				return nil
			})
		},
	}
	activity.AddCommand(list)

	var eventID int64
	remove := &cobra.Command{
		Use:   "remove <assignment-id>",
		Short: "Remove an activity event (author teammate or administrator)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ev, err := e.DeleteActivityEvent(ctx, viper.GetString("actor-id"), args[0], engine.EventKey{ID: eventID})
				if err != nil {
					return err
				}
				return printJSONOrTable(ev)
			})
		},
	}
	remove.Flags().Int64Var(&eventID, "id", 0, "activity event id")
	_ = remove.MarkFlagRequired("id")
	activity.AddCommand(remove)
	return activity
}

func notifyCmd() *cobra.Command {
	n := &cobra.Command{Use: "notify", Short: "Notification feed"}
	n.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the caller's notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListNotifications(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Assignment", "Subject", "Created", "Read"})
				for _, item := range items {
					read := ""
					if item.ReadAt != "" {
						read = "yes"
					}
					tw.AppendRow(table.Row{item.ID, item.AssignmentID, item.Subject, item.CreatedAt, read})
				}
				tw.Render()
				return nil
			})
		},
	})
	read := &cobra.Command{
		Use:   "read <notification-id>",
		Short: "Mark a notification read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.MarkNotificationRead(ctx, viper.GetString("actor-id"), args[0])
			})
		},
	}
	n.AddCommand(read)
	n.AddCommand(&cobra.Command{
		Use:   "dispatch",
		Short: "Deliver pending notifications once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d := notify.Dispatcher{Repo: e.Repo, PortalID: e.PortalID, Webhooks: e.Config.Notify.Webhooks}
				d.DispatchPending(ctx)
				return nil
			})
		},
	})
	return n
}

func keysCmd() *cobra.Command {
	keys := &cobra.Command{Use: "keys", Short: "Manage API keys"}
	var actorID, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (prints the key once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				key := uuid.NewString()
				rec := domain.APIKey{
					ID:      uuid.NewString(),
					ActorID: actorID,
					Name:    name,
					KeyHash: repo.HashAPIKey(key),
				}
				if err := r.InsertAPIKey(ctx, rec); err != nil {
					return err
				}
				fmt.Println(key)
				return nil
			})
		},
	}
	create.Flags().StringVar(&actorID, "actor", "", "actor id the key authenticates")
	create.Flags().StringVar(&name, "name", "", "key label")
	_ = create.MarkFlagRequired("actor")
	keys.AddCommand(create)

	keys.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, "")
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	})

	remove := &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	keys.AddCommand(remove)
	return keys
}

func serveCmd() *cobra.Command {
	var addr, basePath string
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
			portalID, cfg, err := app.ResolvePortalAndConfig(cmd.Context(), viper.GetString("portal"), r)
			if err != nil {
				return err
			}
			router := routing.NewRosterResolver(r, portalID, cfg.Routing.CacheTTLSeconds)
			e := engine.New(conn, cfg, portalID, router)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("TEAMLINE_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("TEAMLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			dispatcher := notify.Start(r, portalID, cfg)
			if dispatcher != nil {
				defer dispatcher.Stop()
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Teamline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

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
	portalID, cfg, err := app.ResolvePortalAndConfig(ctx, viper.GetString("portal"), r)
	if err != nil {
		return err
	}
	router := routing.NewRosterResolver(r, portalID, cfg.Routing.CacheTTLSeconds)
	e := engine.New(conn, cfg, portalID, router)
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
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
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

func parseAttachments(in []string) ([]domain.Attachment, error) {
	var out []domain.Attachment
	for _, raw := range in {
		name, location, ok := strings.Cut(raw, "=")
		if !ok || name == "" || location == "" {
			return nil, fmt.Errorf("invalid attachment %q: expected name=location", raw)
		}
		out = append(out, domain.Attachment{Name: name, Location: location})
	}
	return out, nil
}
