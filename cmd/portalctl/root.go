package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/campus/portal/internal/apiclient"
	"github.com/campus/portal/internal/endpoint"
	"github.com/campus/portal/internal/infrastructure/config"
	"github.com/campus/portal/internal/infrastructure/credential"
	"github.com/campus/portal/internal/infrastructure/logger"
	"github.com/campus/portal/internal/infrastructure/telemetry"
	"github.com/campus/portal/internal/resource"
	"github.com/campus/portal/internal/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type rootFlags struct {
	configPath string
	role       string
	output     string
	logLevel   string
}

// app holds the wiring shared by every subcommand.
type app struct {
	flags   *rootFlags
	cfg     *config.Config
	log     *zap.Logger
	creds   credential.Store
	client  *apiclient.Client
	session *session.Service
	metrics *telemetry.ClientMetrics
	tracer  *telemetry.TracerProvider
	close   func() error

	releaseLog func() error
	tracerOpts []telemetry.TracerOption
}

// newRootCmd builds the command tree. Callers run it through execute so the
// app is shut down even when a command fails.
func newRootCmd() (*cobra.Command, *app) {
	a := &app{flags: &rootFlags{}}

	root := &cobra.Command{
		Use:   "portalctl",
		Short: "Role-scoped client for the campus portal API",
		Long: "portalctl signs in to the campus portal and lists, creates, updates\n" +
			"and deletes the records your role is allowed to manage.",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.Context())
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.flags.configPath, "config", "", "Config file (default: portal.toml in ., ./config or $HOME/.portal)")
	f.StringVar(&a.flags.role, "role", "", "Role to act as (admin, tutor, student, alumni); default: the signed-in user's role")
	f.StringVarP(&a.flags.output, "output", "o", formatJSON, "Output format: json or yaml")
	f.StringVar(&a.flags.logLevel, "log-level", "", "Override log.level")

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newListCmd(a),
		newGetCmd(a),
		newCreateCmd(a),
		newUpdateCmd(a),
		newDeleteCmd(a),
		newWatchCmd(a),
		newSummaryCmd(a),
	)
	return root, a
}

// execute runs root and then releases the app's resources. A command error
// takes precedence over a shutdown error.
func execute(ctx context.Context, root *cobra.Command, a *app) error {
	err := root.ExecuteContext(ctx)
	if serr := a.shutdown(ctx); err == nil {
		err = serr
	}
	return err
}

func (a *app) init(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := checkFormat(a.flags.output); err != nil {
		return err
	}

	cfg, err := config.LoadFile(a.flags.configPath)
	if err != nil {
		return err
	}
	if a.flags.logLevel != "" {
		cfg.Log.Level = a.flags.logLevel
	}
	a.cfg = cfg

	log, releaseLog, err := logger.Build(logger.FromConfig(cfg.Log, cfg.App.Env))
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.log = log
	a.releaseLog = releaseLog

	tracer, err := telemetry.NewTracerProvider(ctx, telemetry.TracerConfig{
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SamplingRatio:  cfg.Telemetry.SamplingRatio,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
	}, log, a.tracerOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracer = tracer

	creds, closeCreds, err := credential.NewFromConfig(ctx, cfg.Session, cfg.Redis, log)
	if err != nil {
		return err
	}
	a.creds = creds
	a.close = closeCreds

	a.metrics = telemetry.NewClientMetrics(telemetry.MetricsConfig{})
	client, err := apiclient.New(apiclient.Config{
		BaseURL:   cfg.API.BaseURL,
		Timeout:   cfg.API.Timeout,
		UserAgent: cfg.API.UserAgent,
		RateLimit: cfg.API.RateLimit,
		RateBurst: cfg.API.RateBurst,
	}, creds, apiclient.WithLogger(log), apiclient.WithMetrics(a.metrics))
	if err != nil {
		return err
	}
	a.client = client
	a.session = session.New(client, creds, session.WithLogger(log))

	log.Debug("portalctl initialized",
		zap.String("env", cfg.App.Env),
		zap.String("base_url", cfg.API.BaseURL),
		zap.String("session_store", cfg.Session.Store),
	)
	return nil
}

func (a *app) shutdown(ctx context.Context) error {
	var err error
	if a.close != nil {
		err = a.close()
		a.close = nil
	}
	if a.tracer != nil {
		if terr := a.tracer.Shutdown(context.WithoutCancel(ctx)); terr != nil && err == nil {
			err = terr
		}
		a.tracer = nil
	}
	if err != nil && a.log != nil {
		a.log.Warn("Shutdown failed", zap.Error(err))
	}
	if a.releaseLog != nil {
		_ = a.releaseLog()
		a.releaseLog = nil
	}
	return err
}

// role picks the acting role: the --role flag, then the stored token's
// claims, then app.role from config, then the server's view of the user.
func (a *app) role(ctx context.Context) (endpoint.Role, error) {
	if a.flags.role != "" {
		return endpoint.ParseRole(a.flags.role)
	}
	if claims, err := a.session.Claims(ctx); err == nil && claims.Role != "" {
		if role, err := endpoint.ParseRole(claims.Role); err == nil {
			return role, nil
		}
	}
	if a.cfg.App.Role != "" {
		return endpoint.ParseRole(a.cfg.App.Role)
	}

	user, err := a.session.CurrentUser(ctx)
	if err != nil {
		if apiclient.IsKind(err, apiclient.KindUnauthenticated) {
			return "", errors.New("not signed in: run 'portalctl login' or pass --role")
		}
		return "", err
	}
	return user.Role()
}

// store builds the access object for resName under the acting role.
func (a *app) store(ctx context.Context, resName string, opts ...resource.Option) (*resource.Store, error) {
	res, err := endpoint.ParseResource(resName)
	if err != nil {
		return nil, err
	}
	role, err := a.role(ctx)
	if err != nil {
		return nil, err
	}
	opts = append([]resource.Option{resource.WithLogger(a.log), resource.WithMetrics(a.metrics)}, opts...)
	return resource.New(a.client, nil, role, res, opts...), nil
}
