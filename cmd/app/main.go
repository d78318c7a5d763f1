package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	sqliteadapter "github.com/prathameshpawar06/stockbridge/internal/adapters/db/sqlite"
	httpadapter "github.com/prathameshpawar06/stockbridge/internal/adapters/http"
	rpcadapter "github.com/prathameshpawar06/stockbridge/internal/adapters/rpcjson"
	"github.com/prathameshpawar06/stockbridge/internal/application"
	"github.com/prathameshpawar06/stockbridge/internal/config"
	"github.com/prathameshpawar06/stockbridge/internal/domain"
	"github.com/prathameshpawar06/stockbridge/internal/logging"
	"github.com/urfave/cli/v3"
)

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	root := &cli.Command{
		Name:  "stockbridge",
		Usage: "Section, column and cell template server and CLI",
		Flags: append(clientFlags(), &cli.BoolFlag{Name: "json", Usage: "output raw JSON"}),
		Commands: []*cli.Command{
			serverCommand(),
			configCommand(),
			schemasCommand(),
			instancesCommand(),
			columnsCommand(),
			rowsCommand(),
			auditCommand(),
		},
	}

	if err := root.Run(context.Background(), args); err != nil {
		log.Fatal(err)
	}
}

func serverCommand() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "Run HTTP and JSON-RPC servers",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "YAML config path (default " + config.DefaultPath + ")"},
			&cli.StringFlag{Name: "addr", Usage: "HTTP listen address"},
			&cli.StringFlag{Name: "rpc-socket", Usage: "JSON-RPC unix socket path"},
			&cli.StringFlag{Name: "db-path", Usage: "SQLite database path"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			if c.IsSet("addr") {
				cfg.Server.Addr = c.String("addr")
			}
			if c.IsSet("rpc-socket") {
				cfg.Server.RPCSocket = c.String("rpc-socket")
			}
			if c.IsSet("db-path") {
				cfg.Database.Path = c.String("db-path")
			}
			if c.IsSet("log-level") {
				cfg.Logging.Level = c.String("log-level")
			}
			return runServer(ctx, cfg)
		},
	}
}

func runServer(ctx context.Context, cfg *config.Config) error {
	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	db, err := sqliteadapter.Open(config.ExpandHome(cfg.Database.Path), sqliteadapter.WithLogLevel(cfg.Database.LogLevel))
	if err != nil {
		return err
	}
	version, err := sqliteadapter.RunMigrations(ctx, db)
	if err != nil {
		return err
	}
	logger.Info("database ready", "path", cfg.Database.Path, "schema_version", version)

	service := application.NewTemplateService(
		sqliteadapter.NewSchemaRepository(db),
		sqliteadapter.NewInstanceRepository(db),
		sqliteadapter.NewAuditRepository(db),
		logger,
	)

	router := httpadapter.NewRouter(service, logger)
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	rpcSocket := config.ExpandHome(cfg.Server.RPCSocket)
	rpcSrv, err := rpcadapter.Start(rpcSocket, service, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = rpcSrv.Close()
	}()
	logger.Info("json-rpc listening", "socket", rpcSocket)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Client settings",
		Commands: []*cli.Command{
			{
				Name:  "set",
				Usage: "Save --transport, --server, --socket and --actor as defaults",
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := clientConfig(c)
					if err != nil {
						return err
					}
					if err := saveConfig(cfg); err != nil {
						return err
					}
					printKV([][2]string{{"transport", cfg.Transport}, {"server", cfg.Server}, {"socket", cfg.Socket}, {"actor", cfg.Actor}})
					return nil
				},
			},
			{
				Name:  "show",
				Usage: "Show effective client settings",
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := clientConfig(c)
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(cfg)
					}
					printKV([][2]string{{"transport", cfg.Transport}, {"server", cfg.Server}, {"socket", cfg.Socket}, {"actor", cfg.Actor}})
					return nil
				},
			},
		},
	}
}

func schemasCommand() *cli.Command {
	return &cli.Command{
		Name:  "schemas",
		Usage: "Schema definition commands",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List schema definitions",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "q", Usage: "name filter"},
					&cli.IntFlag{Name: "page", Value: 1},
					&cli.IntFlag{Name: "page-size", Value: 100},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := clientConfig(c)
					if err != nil {
						return err
					}
					var out domain.SchemaPage
					if err := doSchemasList(ctx, cfg, c.String("q"), c.Int("page"), c.Int("page-size"), &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printSchemaPage(out)
					return nil
				},
			},
			{
				Name:  "get",
				Usage: "Show a schema definition and its sections",
				Flags: []cli.Flag{&cli.UintFlag{Name: "id", Required: true}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := clientConfig(c)
					if err != nil {
						return err
					}
					var out domain.SchemaDefinition
					if err := doSchemaGet(ctx, cfg, c.Uint("id"), &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printSchema(out)
					return nil
				},
			},
			{
				Name:  "create",
				Usage: "Create a schema definition from a YAML or JSON file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Required: true, Usage: "document with name, description and sections"},
					&cli.StringFlag{Name: "request-key", Usage: "UUID that makes the create idempotent"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := clientConfig(c)
					if err != nil {
						return err
					}
					var in application.CreateSchemaInput
					if err := readTreeFile(c.String("file"), &in); err != nil {
						return err
					}
					in.RequestKey = c.String("request-key")
					var out domain.SchemaDefinition
					if err := doSchemaCreate(ctx, cfg, in, &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printSchema(out)
					return nil
				},
			},
			{
				Name:  "update",
				Usage: "Reconcile a schema definition with a YAML or JSON file",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "id", Required: true},
					&cli.StringFlag{Name: "file", Required: true},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := clientConfig(c)
					if err != nil {
						return err
					}
					var in domain.SchemaDefinition
					if err := readTreeFile(c.String("file"), &in); err != nil {
						return err
					}
					in.ID = c.Uint("id")
					var out domain.SchemaDefinition
					if err := doSchemaUpdate(ctx, cfg, in, &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printSchema(out)
					return nil
				},
			},
			{
				Name:  "delete",
				Usage: "Delete a schema definition",
				Flags: []cli.Flag{&cli.UintFlag{Name: "id", Required: true}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := clientConfig(c)
					if err != nil {
						return err
					}
					if err := doSchemaDelete(ctx, cfg, c.Uint("id")); err != nil {
						return err
					}
					fmt.Printf("schema %d deleted\n", c.Uint("id"))
					return nil
				},
			},
		},
	}
}

func instancesCommand() *cli.Command {
	return &cli.Command{
		Name:  "instances",
		Usage: "Instance commands",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Clone a schema definition into a new instance",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "schema-id", Required: true},
					&cli.StringFlag{Name: "owner", Usage: "external owner reference"},
					&cli.StringFlag{Name: "request-key", Usage: "UUID that makes the create idempotent"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := clientConfig(c)
					if err != nil {
						return err
					}
					in := application.CreateInstanceInput{
						SchemaID:   c.Uint("schema-id"),
						OwnerRef:   c.String("owner"),
						RequestKey: c.String("request-key"),
					}
					var out domain.Instance
					if err := doInstanceCreate(ctx, cfg, in, &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printInstance(out)
					return nil
				},
			},
			{
				Name:  "get",
				Usage: "Show an instance by id or owner reference",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "id"},
					&cli.StringFlag{Name: "owner"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					if c.Uint("id") == 0 && c.String("owner") == "" {
						return errors.New("one of --id or --owner is required")
					}
					cfg, err := clientConfig(c)
					if err != nil {
						return err
					}
					var out domain.Instance
					if err := doInstanceGet(ctx, cfg, c.Uint("id"), c.String("owner"), &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printInstance(out)
					return nil
				},
			},
			{
				Name:  "update",
				Usage: "Reconcile an instance with the sections in a YAML or JSON file",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "id", Required: true},
					&cli.StringFlag{Name: "file", Required: true},
					&cli.BoolFlag{Name: "allow-clear", Usage: "accept a file without sections, which deletes everything"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := clientConfig(c)
					if err != nil {
						return err
					}
					var in instanceTreeFile
					if err := readTreeFile(c.String("file"), &in); err != nil {
						return err
					}
					if len(in.Sections) == 0 && !c.Bool("allow-clear") {
						return errors.New("file has no sections; use --allow-clear or instances clear")
					}
					var out domain.Instance
					if len(in.Sections) == 0 {
						err = doInstanceClear(ctx, cfg, c.Uint("id"), &out)
					} else {
						err = doInstanceUpdate(ctx, cfg, c.Uint("id"), in.Sections, &out)
					}
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printInstance(out)
					return nil
				},
			},
			{
				Name:  "clear",
				Usage: "Delete every section, column and cell of an instance",
				Flags: []cli.Flag{&cli.UintFlag{Name: "id", Required: true}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := clientConfig(c)
					if err != nil {
						return err
					}
					var out domain.Instance
					if err := doInstanceClear(ctx, cfg, c.Uint("id"), &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					fmt.Printf("instance %d cleared\n", out.ID)
					return nil
				},
			},
			{
				Name:  "delete",
				Usage: "Delete an instance and its tree",
				Flags: []cli.Flag{&cli.UintFlag{Name: "id", Required: true}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := clientConfig(c)
					if err != nil {
						return err
					}
					if err := doInstanceDelete(ctx, cfg, c.Uint("id")); err != nil {
						return err
					}
					fmt.Printf("instance %d deleted\n", c.Uint("id"))
					return nil
				},
			},
			{
				Name:  "table",
				Usage: "Print each section of an instance as a table",
				Flags: []cli.Flag{&cli.UintFlag{Name: "id", Required: true}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := clientConfig(c)
					if err != nil {
						return err
					}
					var out []domain.Table
					if err := doInstanceTable(ctx, cfg, c.Uint("id"), &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printTables(out)
					return nil
				},
			},
		},
	}
}

func columnsCommand() *cli.Command {
	return &cli.Command{
		Name:  "columns",
		Usage: "Column commands",
		Commands: []*cli.Command{
			{
				Name:  "delete",
				Usage: "Delete instance columns and their cells",
				Flags: []cli.Flag{&cli.StringFlag{Name: "ids", Required: true, Usage: "comma separated column ids"}},
				Action: func(ctx context.Context, c *cli.Command) error {
					ids, err := parseIDList(c.String("ids"))
					if err != nil {
						return err
					}
					cfg, err := clientConfig(c)
					if err != nil {
						return err
					}
					var out deletedCount
					if err := doColumnsDelete(ctx, cfg, ids, &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					fmt.Printf("deleted %d columns\n", out.Deleted)
					return nil
				},
			},
		},
	}
}

func rowsCommand() *cli.Command {
	return &cli.Command{
		Name:  "rows",
		Usage: "Row commands",
		Commands: []*cli.Command{
			{
				Name:  "delete",
				Usage: "Delete one row index across the columns of a section",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "section-id", Required: true},
					&cli.IntFlag{Name: "row-index", Required: true},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := clientConfig(c)
					if err != nil {
						return err
					}
					var out deletedCount
					if err := doRowDelete(ctx, cfg, c.Uint("section-id"), c.Int("row-index"), &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					fmt.Printf("deleted %d cells\n", out.Deleted)
					return nil
				},
			},
		},
	}
}

func auditCommand() *cli.Command {
	return &cli.Command{
		Name:  "audit",
		Usage: "Audit log commands",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List audit logs",
				Flags: []cli.Flag{&cli.IntFlag{Name: "limit", Value: 200}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := clientConfig(c)
					if err != nil {
						return err
					}
					var out []domain.AuditLog
					if err := doAuditList(ctx, cfg, c.Int("limit"), &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printAuditLogs(out)
					return nil
				},
			},
		},
	}
}

func parseIDList(raw string) ([]uint, error) {
	parts := strings.Split(raw, ",")
	ids := make([]uint, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 64)
		if err != nil || id == 0 {
			return nil, fmt.Errorf("invalid column id %q", part)
		}
		ids = append(ids, uint(id))
	}
	if len(ids) == 0 {
		return nil, errors.New("no column ids given")
	}
	return ids, nil
}
