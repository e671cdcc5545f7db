// Package app wires the store, services, transformers and orchestrator
// from an AppConfig. The CLI and the HTTP server share one App.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nhle/orgpulse/internal/credential"
	"github.com/nhle/orgpulse/internal/identity"
	"github.com/nhle/orgpulse/internal/ingest"
	"github.com/nhle/orgpulse/internal/insight"
	"github.com/nhle/orgpulse/internal/metrics"
	"github.com/nhle/orgpulse/internal/model"
	"github.com/nhle/orgpulse/internal/observability"
	"github.com/nhle/orgpulse/internal/project"
	"github.com/nhle/orgpulse/internal/resolve"
	"github.com/nhle/orgpulse/internal/source"
	"github.com/nhle/orgpulse/internal/source/email"
	"github.com/nhle/orgpulse/internal/source/github"
	"github.com/nhle/orgpulse/internal/source/jira"
	"github.com/nhle/orgpulse/internal/source/slack"
	"github.com/nhle/orgpulse/internal/store"
	orgsync "github.com/nhle/orgpulse/internal/sync"
)

// App holds every long-lived component.
type App struct {
	Config *model.AppConfig
	Log    zerolog.Logger

	Store        *store.SQLStore
	Identities   *identity.Service
	Projects     *project.Service
	Resolver     *resolve.Resolver
	Transformers source.Registry
	Orchestrator *orgsync.Orchestrator
	Metrics      *metrics.Service
	Insights     *insight.Builder
	Ingester     *ingest.Ingester
	Prometheus   *observability.Metrics
	Credentials  *credential.Store
}

// Option adjusts an App while it is built.
type Option func(*App)

// WithCredentials replaces the system keyring backed credential store.
func WithCredentials(c *credential.Store) Option {
	return func(a *App) { a.Credentials = c }
}

// WithStore uses an already open store instead of opening one from the
// database config.
func WithStore(s *store.SQLStore) Option {
	return func(a *App) { a.Store = s }
}

// New opens the store and builds the services. Close releases the store.
func New(ctx context.Context, cfg *model.AppConfig, log zerolog.Logger, opts ...Option) (*App, error) {
	a := &App{Config: cfg, Log: log}
	for _, opt := range opts {
		opt(a)
	}

	if a.Store == nil {
		st, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		a.Store = st
	}
	if a.Credentials == nil {
		a.Credentials = credential.New()
	}

	a.Identities = identity.New(a.Store, log)
	a.Projects = project.New(a.Store, log)
	a.Resolver = resolve.New(a.Identities, a.Projects, resolve.Options{
		AutoCreateIdentities: cfg.Resolve.AutoCreateIdentities,
		AutoCreateProjects:   cfg.Resolve.AutoCreateProjects,
	}, log)

	deps := source.Deps{
		Raw:        a.Store,
		Activities: a.Store,
		Resolver:   a.Resolver,
		Logger:     log,
	}
	a.Transformers = source.NewRegistry(
		email.NewTransformer(deps),
		slack.NewTransformer(deps),
		github.NewTransformer(deps),
		jira.NewTransformer(deps),
	)

	a.Prometheus = observability.New()
	a.Orchestrator = orgsync.New(a.Transformers, a.Store, orgsync.Options{
		LeaseTimeout:    cfg.Sync.LeaseTimeout(),
		InitialLookback: cfg.Sync.InitialLookback(),
		Parallel:        cfg.Sync.Parallel,
		Metrics:         a.Prometheus,
	}, log)

	a.Metrics = metrics.NewService(a.Store, a.Projects, a.Identities, log)
	a.Insights = insight.NewBuilder(a.Metrics, a.Store, a.Store, a.Store, log)
	a.Ingester = ingest.New(a.Store, cfg.OrgID, log)

	return a, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}

// JiraCollector builds the Jira collector, loading the API token from the
// environment or the keyring.
func (a *App) JiraCollector() (*jira.Collector, error) {
	jc := a.Config.Collectors.Jira
	if !jc.Enabled() {
		return nil, fmt.Errorf("jira collector is not configured (collectors.jira.base_url)")
	}
	token, err := a.Credentials.Get(credential.KeyJiraToken)
	if err != nil {
		return nil, err
	}
	client := jira.NewClient(jc.BaseURL, jc.Email, token)
	return jira.NewCollector(client, a.Store, a.Config.OrgID, jc.JQL, a.Log), nil
}

// EmailCollector builds the IMAP collector, loading the password from the
// environment or the keyring.
func (a *App) EmailCollector() (*email.Collector, error) {
	ec := a.Config.Collectors.Email
	if !ec.Enabled() {
		return nil, fmt.Errorf("email collector is not configured (collectors.email.host, collectors.email.username)")
	}
	password, err := a.Credentials.Get(credential.KeyIMAPPassword)
	if err != nil {
		return nil, err
	}
	client := email.NewIMAPClient(ec.Host, ec.Port, ec.Username, password, ec.TLS)
	return email.NewCollector(client, a.Store, a.Config.OrgID, ec.Mailbox, a.Log), nil
}

// Completer builds the text generator for insights.
func (a *App) Completer() (*insight.OpenAICompleter, error) {
	key, err := a.Credentials.Get(credential.KeyLLMAPIKey)
	if err != nil {
		return nil, err
	}
	return insight.NewOpenAICompleter(insight.OpenAIConfig{
		APIKey:    key,
		BaseURL:   a.Config.LLM.BaseURL,
		Model:     a.Config.LLM.Model,
		MaxTokens: a.Config.LLM.MaxTokens,
	}, a.Log)
}
