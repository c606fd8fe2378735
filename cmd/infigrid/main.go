// InfiGrid - permissioned device telemetry ledger.
//
// This is the main entry point for an InfiGrid node. A node keeps the
// authoritative ledger of registered devices, operator grants, telemetry
// readings, threshold triggers and device groups. Every accepted transaction
// is journalled to SQLite in a hash chain and replayed on start-up.
//
// Besides serving, the binary can issue bearer tokens for a principal and
// verify the journal's hash chain offline.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	_ "github.com/nerrad567/infigrid-core/migrations"

	"github.com/nerrad567/infigrid-core/internal/api"
	"github.com/nerrad567/infigrid-core/internal/auth"
	"github.com/nerrad567/infigrid-core/internal/infrastructure/config"
	"github.com/nerrad567/infigrid-core/internal/infrastructure/database"
	"github.com/nerrad567/infigrid-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/infigrid-core/internal/infrastructure/logging"
	"github.com/nerrad567/infigrid-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/infigrid-core/internal/journal"
	"github.com/nerrad567/infigrid-core/internal/ledger"
	"github.com/nerrad567/infigrid-core/internal/node"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// options holds the parsed command line.
type options struct {
	configPath    string
	issueToken    string
	verifyJournal bool
	showVersion   bool
}

func main() {
	// Cancel on Ctrl+C or SIGTERM so run can shut down gracefully.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags parses the command line into options.
func parseFlags(args []string, out io.Writer) (options, error) {
	var opts options

	flagSet := pflag.NewFlagSet("infigrid", pflag.ContinueOnError)
	flagSet.SetOutput(out)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "path to config file (default $INFIGRID_CONFIG or "+defaultConfigPath+")")
	flagSet.StringVar(&opts.issueToken, "issue-token", "", "print a bearer token for this principal and exit")
	flagSet.BoolVar(&opts.verifyJournal, "verify-journal", false, "verify the journal hash chain and exit")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version and exit")

	if err := flagSet.Parse(args); err != nil {
		return opts, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return opts, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	if opts.configPath == "" {
		opts.configPath = getConfigPath()
	}
	return opts, nil
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command line arguments without the program name
//   - out: Destination for command output (tokens, verification results)
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string, out io.Writer) error {
	opts, err := parseFlags(args, out)
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Fprintf(out, "infigrid %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if opts.issueToken != "" {
		token, tokenErr := auth.GenerateToken(ledger.Principal(opts.issueToken), cfg.Security.JWT.Secret, cfg.GetTokenTTL())
		if tokenErr != nil {
			return fmt.Errorf("issuing token: %w", tokenErr)
		}
		fmt.Fprintln(out, token)
		return nil
	}

	log := logging.New(cfg.Logging, version)
	log.Info("starting InfiGrid",
		"version", version,
		"commit", commit,
		"build_date", date,
		"site", cfg.Site.ID,
		"config", opts.configPath,
	)

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.GetBusyTimeout(),
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}

	j := journal.New(db.DB)

	if opts.verifyJournal {
		head, verifyErr := j.Verify(ctx)
		if verifyErr != nil {
			return fmt.Errorf("verifying journal: %w", verifyErr)
		}
		fmt.Fprintf(out, "journal ok: seq=%d hash=%s\n", head.Seq, head.Hash)
		return nil
	}

	// Sinks connect before the node opens so that, on shutdown, the node
	// drains its event queue before they are closed.
	sinks, closeSinks, err := connectSinks(cfg, log)
	if err != nil {
		return err
	}
	defer closeSinks()

	n, err := node.Open(ctx, j,
		node.WithLogger(log.Component("node")),
		node.WithEventBuffer(cfg.Node.EventBuffer),
		node.WithPublishTimeout(cfg.GetPublishTimeout()),
	)
	if err != nil {
		return fmt.Errorf("opening node: %w", err)
	}
	defer func() {
		log.Info("closing node")
		if closeErr := n.Close(); closeErr != nil {
			log.Error("error closing node", "error", closeErr)
		}
	}()
	for _, s := range sinks.list() {
		n.AddSink(s)
	}

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log.Component("api"),
		Node:     n,
		Journal:  j,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, sinks.mqtt, sinks.influx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// API server, node (drains events), InfluxDB, MQTT, database.
	return nil
}

// sinkSet holds the optional event sink clients.
type sinkSet struct {
	mqtt   *mqtt.Client
	influx *influxdb.Client
	qos    byte
}

// list returns a node sink for every connected client.
func (s sinkSet) list() []node.Sink {
	var out []node.Sink
	if s.mqtt != nil {
		out = append(out, mqtt.NewEventSink(s.mqtt, s.mqtt.Topics(), s.qos))
	}
	if s.influx != nil {
		out = append(out, influxdb.NewTelemetrySink(s.influx))
	}
	return out
}

// connectSinks connects the MQTT and InfluxDB clients that are enabled in
// cfg. The returned func closes whatever was connected.
func connectSinks(cfg *config.Config, log *logging.Logger) (sinkSet, func(), error) {
	set := sinkSet{qos: byte(cfg.MQTT.QoS)} //nolint:gosec // QoS validated to 0-2
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.MQTT.Enabled {
		client, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			return set, closeAll, fmt.Errorf("connecting to MQTT: %w", err)
		}
		client.SetLogger(log.Component("mqtt"))
		closers = append(closers, func() {
			log.Info("disconnecting from MQTT")
			if closeErr := client.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		})
		set.mqtt = client
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
			"topic_prefix", client.Topics().Prefix(),
		)
	} else {
		log.Info("MQTT disabled")
	}

	if cfg.InfluxDB.Enabled {
		client, err := influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			closeAll()
			return sinkSet{}, func() {}, fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		client.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		closers = append(closers, func() {
			log.Info("closing InfluxDB connection")
			if closeErr := client.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		})
		set.influx = client
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	return set, closeAll, nil
}

// getConfigPath returns the configuration file path.
// Uses INFIGRID_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("INFIGRID_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
