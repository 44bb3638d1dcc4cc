package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"scavenger/internal/app"
	"scavenger/internal/config"
	"scavenger/internal/db"
	"scavenger/internal/domain"
	"scavenger/internal/engine"
	"scavenger/internal/migrate"
	"scavenger/internal/repo"
	"scavenger/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "scav",
	Short: "Scavenger CLI",
	Long: `Scavenger tracks recycling supply-chain participants and who owns each
waste unit. Collectors register and submit materials, then hand them off to
recyclers and manufacturers; every hand-off lands in an append-only transfer
ledger so the chain of custody for a material can always be replayed.
The acting participant is set with --address (or SCAVENGER_ADDRESS).`,
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
	viper.SetEnvPrefix("SCAVENGER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("address", "", "acting participant address")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("address", rootCmd.PersistentFlags().Lookup("address"))
}

func registerCommands() {
	rootCmd.AddCommand(participantCmd())
	rootCmd.AddCommand(materialCmd())
	rootCmd.AddCommand(transferCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func actingAddress() (string, error) {
	address := strings.TrimSpace(viper.GetString("address"))
	if address == "" {
		return "", fmt.Errorf("acting address required; use --address or SCAVENGER_ADDRESS")
	}
	return address, nil
}

func participantCmd() *cobra.Command {
	p := &cobra.Command{
		Use:   "participant",
		Short: "Manage participants",
		Long:  "Participants are the actors in the chain. Each address holds one role (recycler, collector or manufacturer) and registers itself before it can act.",
	}
	p.AddCommand(participantRegisterCmd())
	p.AddCommand(participantShowCmd())
	p.AddCommand(participantListCmd())
	p.AddCommand(participantRegisteredCmd())
	p.AddCommand(participantUpdateRoleCmd())
	return p
}

func participantRegisterCmd() *cobra.Command {
	var role, name string
	var lat, lon int64
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register the acting address",
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := actingAddress()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.RegisterParticipant(ctx, engine.RegisterOptions{
					Actor:     address,
					Address:   address,
					Role:      role,
					Name:      name,
					Latitude:  lat,
					Longitude: lon,
				})
				if err != nil {
					return err
				}
				return printJSONOrIndent(p)
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role (recycler, collector, manufacturer)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().Int64Var(&lat, "latitude", 0, "latitude (microdegrees)")
	cmd.Flags().Int64Var(&lon, "longitude", 0, "longitude (microdegrees)")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func participantShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <address>",
		Short: "Show a participant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GetParticipant(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrIndent(p)
			})
		},
	}
	return cmd
}

func participantListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List participants",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListParticipants(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Address", "Role", "Name", "Registered At"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.Address, p.Role, p.Name, p.RegisteredAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func participantRegisteredCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registered <address>",
		Short: "Check whether an address is registered",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ok, err := e.IsRegistered(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrIndent(map[string]any{
					"address":    args[0],
					"registered": ok,
				})
			})
		},
	}
	return cmd
}

func participantUpdateRoleCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "update-role <address>",
		Short: "Change a participant's role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actingAddress()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.UpdateRole(ctx, actor, args[0], role)
				if err != nil {
					return err
				}
				return printJSONOrIndent(p)
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "new role")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func materialCmd() *cobra.Command {
	m := &cobra.Command{
		Use:   "material",
		Short: "Manage materials",
		Long:  "Materials are tracked waste units. Only collectors submit new ones; ownership then moves through transfers.",
	}
	m.AddCommand(materialSubmitCmd())
	m.AddCommand(materialShowCmd())
	m.AddCommand(materialListCmd())
	return m
}

func materialSubmitCmd() *cobra.Command {
	var kind, description string
	var quantity int64
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a new material",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actingAddress()
			if err != nil {
				return err
			}
			if quantity <= 0 {
				return fmt.Errorf("--quantity must be positive")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.SubmitMaterial(ctx, engine.SubmitOptions{
					Actor:       actor,
					Kind:        kind,
					Quantity:    quantity,
					Description: description,
				})
				if err != nil {
					return err
				}
				return printJSONOrIndent(m)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "material kind (pet, glass, aluminium, ...)")
	cmd.Flags().Int64Var(&quantity, "quantity", 0, "quantity in base units")
	cmd.Flags().StringVar(&description, "description", "", "description")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("quantity")
	return cmd
}

func materialShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a material",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.GetMaterial(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrIndent(m)
			})
		},
	}
	return cmd
}

func materialListCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List materials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListMaterials(ctx, owner)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Owner", "Kind", "Quantity", "Submitted At"})
				for _, m := range items {
					tw.AppendRow(table.Row{m.ID, m.Owner, m.Kind, m.Quantity, m.SubmittedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "filter by owner address")
	return cmd
}

func transferCmd() *cobra.Command {
	var from, to, note string
	cmd := &cobra.Command{
		Use:   "transfer <waste-id>",
		Short: "Transfer material ownership",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			actor := strings.TrimSpace(viper.GetString("address"))
			if actor == "" {
				// Convenience for local use: act as the sender.
				actor = from
			}
			if actor == "" {
				return fmt.Errorf("--from or --address required")
			}
			if from == "" {
				from = actor
			}
			if to == "" {
				return fmt.Errorf("--to required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.TransferWaste(ctx, actor, id, from, to, note)
				if err != nil {
					return err
				}
				return printJSONOrIndent(m)
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "sender address (defaults to --address)")
	cmd.Flags().StringVar(&to, "to", "", "receiver address")
	cmd.Flags().StringVar(&note, "note", "", "note recorded with the transfer")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <waste-id>",
		Short: "Show a material's transfer history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				transfers, err := e.History(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(transfers)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"#", "From", "To", "Note", "Transferred At"})
				for i, t := range transfers {
					tw.AppendRow(table.Row{i + 1, t.From, t.To, t.Note, t.TransferredAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrIndent(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func apikeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	k.AddCommand(apikeyCreateCmd())
	k.AddCommand(apikeyListCmd())
	k.AddCommand(apikeyRevokeCmd())
	return k
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the acting address",
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := actingAddress()
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				secret := uuid.New().String()
				key := domain.APIKey{
					ID:        uuid.New().String(),
					Address:   address,
					Name:      name,
					KeyHash:   repo.HashAPIKey(secret),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				out := map[string]any{
					"id":      key.ID,
					"address": key.Address,
					"name":    key.Name,
					// Shown once; only the hash is stored.
					"key": secret,
				}
				return printJSONOrIndent(out)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, address)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Address", "Name", "Created At"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.Address, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "filter by address")
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

func configCmd() *cobra.Command {
	c := &cobra.Command{Use: "config", Short: "Manage ledger config"}
	c.AddCommand(configInitCmd())
	c.AddCommand(configShowCmd())
	return c
}

func configInitCmd() *cobra.Command {
	var ledgerID string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default scavenger.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(ledgerID)), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&ledgerID, "ledger-id", "scavenger", "ledger identifier")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the resolved config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrIndent(e.Config)
			})
		},
	}
	return cmd
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
			cfg, err := app.ResolveConfig(cmd.Context(), workspace, r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:          os.Getenv("SCAVENGER_JWT_SECRET"),
				AllowAddressHeader: cfg.Auth.AllowAddressHeader,
			}
			if authCfg.JWTSecret == "" && !authCfg.AllowAddressHeader {
				return fmt.Errorf("SCAVENGER_JWT_SECRET is required for bearer auth (or enable auth.allow_address_header for development)")
			}
			handler, err := server.New(cmd.Context(), server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
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
			fmt.Printf("Serving Scavenger API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
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
	cfg, err := app.ResolveConfig(ctx, workspace, r)
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

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid waste id %q", raw)
	}
	return id, nil
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
