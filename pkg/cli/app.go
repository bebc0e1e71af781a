package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/harrisonrobin/tasklink/pkg/auth"
	"github.com/harrisonrobin/tasklink/pkg/config"
	"github.com/harrisonrobin/tasklink/pkg/google"
	"github.com/harrisonrobin/tasklink/pkg/membership"
	"github.com/harrisonrobin/tasklink/pkg/notify"
	"github.com/harrisonrobin/tasklink/pkg/scheduler"
	"github.com/harrisonrobin/tasklink/pkg/store"
	"github.com/harrisonrobin/tasklink/pkg/tasksync"
)

var errNotifyDisabled = errors.New("notifications are not configured: set gmail_key_file and notify_sender")

// app holds the components shared by every command.
type app struct {
	cfg      config.Config
	log      *slog.Logger
	store    *store.Store
	provider *auth.Provider
	dialer   tasksync.Dialer
	clientID string
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log := mustMakeLogger(cfg.LogLevel)

	st, err := store.Open(log, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}

	oauthCfg, err := auth.LoadConfig(log, cfg.ClientSecretsFile, auth.Scopes...)
	if err != nil {
		st.Close()
		return nil, err
	}

	tasksDialer := google.NewTasksDialer()
	return &app{
		cfg:      cfg,
		log:      log,
		store:    st,
		provider: auth.NewProvider(log, oauthCfg, st),
		clientID: oauthCfg.ClientID,
		dialer: tasksync.DialFunc(func(ctx context.Context, cred auth.Credential) (tasksync.TaskAPI, error) {
			client, err := tasksDialer.Dial(ctx, cred)
			if err != nil {
				return nil, err
			}
			return client, nil
		}),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func (a *app) orchestrator() *tasksync.Orchestrator {
	orch := tasksync.NewOrchestrator(a.log, a.store, a.cfg.PullBatchSize)
	orch.SetLeaseTTL(a.cfg.SyncLeaseTTL)
	return orch
}

func (a *app) service(orch *tasksync.Orchestrator) *tasksync.Service {
	return tasksync.NewService(
		a.log,
		a.store,
		orch,
		tasksync.NewPusher(a.log, a.store),
		a.provider,
		a.dialer,
		a.cfg.InteractiveTimeout,
	)
}

func (a *app) scheduler(orch *tasksync.Orchestrator) *scheduler.Scheduler {
	worker := membership.NewWorker(a.log, a.store, a.cfg.MemberJobAttempts)
	return scheduler.New(a.log, a.store, a.provider, a.dialer, orch, worker, a.cfg.SyncConcurrency)
}

func (a *app) notifier() (*notify.Notifier, error) {
	if !a.cfg.NotifyEnabled() {
		return nil, errNotifyDisabled
	}
	mailer := google.NewGmailMailer(a.log, a.cfg.NotifySender, google.ServiceAccountDialer(a.cfg.GmailKeyFile, a.cfg.NotifySender))
	return notify.NewNotifier(a.log, a.store, mailer), nil
}

func withApp(ctx context.Context, configPath string, fn func(a *app) error) error {
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.log.Error("failed to close store", "error", err)
		}
	}()
	return fn(a)
}
