package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	audithelpers "github.com/metal-toolbox/auditevent/helpers"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/groupad/groupad/internal/api"
	"github.com/groupad/groupad/internal/config"
	"github.com/groupad/groupad/internal/eventbus"
	"github.com/groupad/groupad/internal/flatten"
	events "github.com/groupad/groupad/pkg/events/v1alpha1"
)

// serveCmd invokes the groupad api
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "starts the groupad api server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return startAPI(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", "0.0.0.0:3001", "address to listen on")
	viperBindFlag("api.listen", serveCmd.Flags().Lookup("listen"))
}

func startAPI(ctx context.Context) error {
	logger.Debug("initializing tracer and database")

	db := initTracingAndDB(ctx)

	// Run the embedded migration in the event that this is the first run or first run since a new migration was added.
	RunMigration(db.DB)

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	if cfg.Auth.BearerSecret == "" && cfg.Auth.CookieSecret == "" {
		logger.Fatalln("no auth scheme configured: set auth.bearer-secret and/or auth.cookie-secret")
	}

	graph, err := cfg.Build(db, logger.Desugar())
	if err != nil {
		return fmt.Errorf("building object graph: %w", err)
	}

	auditpath := viper.GetString("audit.log-dir")
	if auditpath == "" {
		return errors.New("failed starting server: audit log directory can't be empty") //nolint:err113
	}

	if err := os.MkdirAll(auditpath, 0o750); err != nil {
		return fmt.Errorf("creating audit log directory: %w", err)
	}

	requestAuditPath := auditpath + "/requests.log"

	// WARNING: this will block until the file is available;
	// make sure an initContainer creates the directory
	auf, auerr := audithelpers.OpenAuditLogFileUntilSuccess(requestAuditPath)
	if auerr != nil {
		return fmt.Errorf("couldn't open audit file: %w", auerr)
	}
	defer auf.Close()

	logger.Debugw("intializing nats connection",
		"nats.url", viper.GetString("nats.url"),
		"nats.subject-prefix", viper.GetString("nats.subject-prefix"),
	)

	nc, err := newNATSConnection(ctx, viper.GetViper())
	if err != nil {
		return err
	}

	defer nc.Close()

	eb := eventbus.NewClient(
		eventbus.WithLogger(logger.Desugar()),
		eventbus.WithNATSConn(nc),
		eventbus.WithNATSPrefix(viper.GetString("nats.subject-prefix")),
	)

	graph.Flatten.OnModified = func(item flatten.WorkItem) {
		evt := &events.Event{
			Version:  events.Version,
			Action:   events.ActionFlattened,
			SgroupID: item.ID,
			Mright:   item.Mright.String(),
		}

		if err := eb.Publish(context.Background(), events.SgroupsEventSubject, evt); err != nil {
			logger.Errorw("failed publishing flattened event", "sgroup", item.ID, "error", err)
		}
	}

	if graph.Syncer != nil {
		graph.Syncer.OnCommitted = func(remote, id string) {
			evt := &events.Event{
				Version:  events.Version,
				Action:   events.ActionSynced,
				SgroupID: id,
				Remote:   remote,
			}

			if err := eb.Publish(context.Background(), events.SgroupsEventSubject, evt); err != nil {
				logger.Errorw("failed publishing synced event", "sgroup", id, "remote", remote, "error", err)
			}
		}

		go graph.Scheduler.Run(ctx)
	}

	logger.Debug("building api server and router")

	conf := &api.Conf{
		Auth:   cfg.Auth,
		Debug:  viper.GetBool("logging.debug"),
		Listen: viper.GetString("api.listen"),
		Logger: logger.Desugar(),
	}

	apiServer := &api.Server{
		AuditLogWriter: auf,
		Conf:           conf,
		Service:        graph.Service,
		Syncer:         graph.Syncer,
		EventBus:       eb,
	}

	return apiServer.Run()
}
