package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rendis/blockrun/internal/store"
	"github.com/rendis/blockrun/internal/validation"
	blockmcp "github.com/rendis/blockrun/pkg/mcp"
	"github.com/rendis/blockrun/pkg/schema"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=v1.0.0" ./cmd/blockrun/
var version = "dev"

type cli struct {
	v   *viper.Viper
	cfg Config
	out io.Writer
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New(), out: os.Stdout}

	root := &cobra.Command{
		Use:           "blockrun",
		Short:         "Execute integration blocks against conversation sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setupConfig(cmd)
		},
	}
	root.PersistentFlags().String("config", "", "settings file (default ~/.blockrun/settings.json)")
	root.PersistentFlags().String("db-path", "", "database URI, e.g. file:/tmp/blockrun.db")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		c.runCmd(),
		c.validateCmd(),
		c.serveCmd(),
		c.credentialsCmd(),
		c.historyCmd(),
		c.vacuumCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			// No config needed.
			PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)
	return root
}

func (c *cli) setupConfig(cmd *cobra.Command) error {
	flags := cmd.Root().PersistentFlags()
	if err := c.v.BindPFlag("db_path", flags.Lookup("db-path")); err != nil {
		return err
	}
	if err := c.v.BindPFlag("log_level", flags.Lookup("log-level")); err != nil {
		return err
	}
	configFile, err := flags.GetString("config")
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c.v, configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	c.cfg = cfg
	c.out = cmd.OutOrStdout()
	return nil
}

// withApp wires the application for the duration of fn.
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, c.cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func (c *cli) runCmd() *cobra.Command {
	var blockPath, statePath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one block and print its execution result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			blockRaw, err := readInput(blockPath)
			if err != nil {
				return err
			}
			stateRaw, err := readInput(statePath)
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.validator.ValidateBlock(blockRaw); err != nil {
					return err
				}
				var block schema.Block
				if err := json.Unmarshal(blockRaw, &block); err != nil {
					return err
				}
				var state schema.SessionState
				if err := json.Unmarshal(stateRaw, &state); err != nil {
					return fmt.Errorf("invalid state: %w", err)
				}
				res, err := a.dispatcher.Dispatch(ctx, &block, &state)
				if err != nil {
					return err
				}
				return c.printJSON(res)
			})
		},
	}
	cmd.Flags().StringVar(&blockPath, "block", "", "block JSON file, - for stdin")
	cmd.Flags().StringVar(&statePath, "state", "", "session state JSON file, - for stdin")
	_ = cmd.MarkFlagRequired("block")
	_ = cmd.MarkFlagRequired("state")
	return cmd
}

func (c *cli) validateCmd() *cobra.Command {
	var blockPath, statePath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a block without executing it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			blockRaw, err := readInput(blockPath)
			if err != nil {
				return err
			}
			var state *schema.SessionState
			if statePath != "" {
				stateRaw, err := readInput(statePath)
				if err != nil {
					return err
				}
				state = &schema.SessionState{}
				if err := json.Unmarshal(stateRaw, state); err != nil {
					return fmt.Errorf("invalid state: %w", err)
				}
			}
			return c.withApp(cmd, func(_ context.Context, a *app) error {
				_, result, err := validation.Validate(a.validator, blockRaw, state, a.dispatcher.Registry())
				if err != nil {
					return err
				}
				if err := c.printJSON(result); err != nil {
					return err
				}
				return result.ToError()
			})
		},
	}
	cmd.Flags().StringVar(&blockPath, "block", "", "block JSON file, - for stdin")
	cmd.Flags().StringVar(&statePath, "state", "", "optional session state JSON file")
	_ = cmd.MarkFlagRequired("block")
	return cmd
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the MCP tools over stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				srv := blockmcp.NewBlockrunServer(blockmcp.BlockrunServerDeps{
					Dispatcher:  a.dispatcher,
					Validator:   a.validator,
					History:     a.store,
					Credentials: a.resolver,
					Logger:      a.logger,
				})
				a.logger.Info("serving MCP over stdio")
				return srv.Serve(ctx)
			})
		},
	}
}

func (c *cli) credentialsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "credentials", Short: "Manage encrypted workspace credentials"}

	var workspace, name, typ, token, secretPath string
	put := &cobra.Command{
		Use:   "put",
		Short: "Encrypt and store a new credential",
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret := map[string]any{}
			switch {
			case secretPath != "":
				raw, err := readInput(secretPath)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(raw, &secret); err != nil {
					return fmt.Errorf("invalid secret: %w", err)
				}
			case token != "":
				secret["token"] = token
			default:
				return fmt.Errorf("either --token or --secret is required")
			}
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				bt := schema.BlockType(typ)
				if err := a.validator.ValidateSecret(secret, validation.CredentialSchema(bt)); err != nil {
					return err
				}
				rec, err := a.resolver.Seal(ctx, workspace, bt, name, secret)
				if err != nil {
					return err
				}
				return c.printJSON(map[string]any{"id": rec.ID, "workspaceId": rec.WorkspaceID, "name": rec.Name})
			})
		},
	}
	put.Flags().StringVar(&workspace, "workspace", "", "workspace ID")
	put.Flags().StringVar(&name, "name", "", "display name")
	put.Flags().StringVar(&typ, "type", string(schema.BlockTypeHinova), "integration type")
	put.Flags().StringVar(&token, "token", "", "API token")
	put.Flags().StringVar(&secretPath, "secret", "", "secret JSON file, - for stdin")
	_ = put.MarkFlagRequired("workspace")

	var delWorkspace, delID string
	del := &cobra.Command{
		Use:   "delete",
		Short: "Delete a credential",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				return a.resolver.Delete(ctx, delID, delWorkspace)
			})
		},
	}
	del.Flags().StringVar(&delWorkspace, "workspace", "", "workspace ID")
	del.Flags().StringVar(&delID, "id", "", "credential ID")
	_ = del.MarkFlagRequired("workspace")
	_ = del.MarkFlagRequired("id")

	var listWorkspace string
	list := &cobra.Command{
		Use:   "list",
		Short: "List the credentials of a workspace",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				creds, err := a.resolver.List(ctx, listWorkspace)
				if err != nil {
					return err
				}
				out := make([]map[string]any, 0, len(creds))
				for _, cr := range creds {
					out = append(out, map[string]any{
						"id": cr.ID, "type": cr.Type, "name": cr.Name, "createdAt": cr.CreatedAt,
					})
				}
				return c.printJSON(out)
			})
		},
	}
	list.Flags().StringVar(&listWorkspace, "workspace", "", "workspace ID")
	_ = list.MarkFlagRequired("workspace")

	cmd.AddCommand(put, del, list)
	return cmd
}

func (c *cli) historyCmd() *cobra.Command {
	var filter store.ExecutionFilter
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded block executions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				records, err := a.store.ListExecutions(ctx, filter)
				if err != nil {
					return err
				}
				if records == nil {
					records = []*store.ExecutionRecord{}
				}
				return c.printJSON(records)
			})
		},
	}
	cmd.Flags().StringVar(&filter.WorkspaceID, "workspace", "", "workspace ID")
	cmd.Flags().StringVar(&filter.BlockID, "block", "", "only this block")
	cmd.Flags().Int64Var(&filter.Since, "since", 0, "only executions after this sequence of --block")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "maximum number of executions")
	_ = cmd.MarkFlagRequired("workspace")
	return cmd
}

func (c *cli) vacuumCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vacuum",
		Short: "Compact the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.store.Vacuum(ctx); err != nil {
					return err
				}
				a.logger.InfoContext(ctx, "database vacuumed", slog.String("db_path", a.cfg.DBPath))
				return nil
			})
		},
	}
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
