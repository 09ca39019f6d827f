// Package bootstrap turns the resolved configuration into the components the
// tracenotes commands share: environment, notes store, staging buffer,
// event publisher and recorder.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/tracenotes/pkg/attribution"
	"github.com/papercomputeco/tracenotes/pkg/cliui"
	"github.com/papercomputeco/tracenotes/pkg/config"
	"github.com/papercomputeco/tracenotes/pkg/dotdir"
	"github.com/papercomputeco/tracenotes/pkg/environment"
	"github.com/papercomputeco/tracenotes/pkg/eventstream"
	"github.com/papercomputeco/tracenotes/pkg/eventstream/kafka"
	"github.com/papercomputeco/tracenotes/pkg/eventstream/nop"
	"github.com/papercomputeco/tracenotes/pkg/git"
	"github.com/papercomputeco/tracenotes/pkg/logger"
	"github.com/papercomputeco/tracenotes/pkg/notes"
	"github.com/papercomputeco/tracenotes/pkg/query"
	"github.com/papercomputeco/tracenotes/pkg/recorder"
	"github.com/papercomputeco/tracenotes/pkg/staging"
)

// Root persistent flag names shared by every command.
const (
	FlagDebug     = "debug"
	FlagConfigDir = "config-dir"
	FlagRepo      = "repo"
)

// RepoFlags are the registry flags every repository command binds.
var RepoFlags = []string{
	config.FlagRef,
	config.FlagStagingPath,
	config.FlagGitBinary,
	config.FlagGitTimeout,
}

// Settings is the configuration resolved for one command invocation.
type Settings struct {
	Config    *config.Config
	Logger    *slog.Logger
	ConfigDir string
	RepoDir   string
}

// Load resolves configuration with flag > env > file > default precedence,
// binding the given registry flags of cmd.
func Load(cmd *cobra.Command, flagKeys ...string) (*Settings, error) {
	debug, _ := cmd.Flags().GetBool(FlagDebug)
	configDir, _ := cmd.Flags().GetString(FlagConfigDir)
	repoDir, _ := cmd.Flags().GetString(FlagRepo)

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, err
	}
	config.BindRegisteredFlags(v, cmd, config.Flags, append(append([]string{}, RepoFlags...), flagKeys...))

	cfg := config.FromViper(v)
	if _, err := cfg.Git.TimeoutDuration(); err != nil {
		return nil, err
	}

	return &Settings{
		Config: cfg,
		Logger: logger.New(
			logger.WithDebug(debug),
			logger.WithPretty(cliui.IsTerminal(os.Stderr)),
		),
		ConfigDir: configDir,
		RepoDir:   repoDir,
	}, nil
}

// App holds the components built from Settings.
type App struct {
	*Settings

	Env       *environment.Environment
	Store     *notes.Store
	Buffer    *staging.Buffer
	Publisher eventstream.Publisher
	Recorder  *recorder.Recorder
}

// Open locates the repository and builds the shared components.
func Open(ctx context.Context, s *Settings) (*App, error) {
	cfg := s.Config
	timeout, _ := cfg.Git.TimeoutDuration()

	env, err := environment.FromProcess(ctx, environment.Options{
		Dir:         s.RepoDir,
		StagingPath: cfg.Staging.Path,
		GitBinary:   cfg.Git.Binary,
		GitTimeout:  timeout,
		ToolName:    cfg.Tool.Name,
		ToolVersion: cfg.Tool.Version,
		Logger:      s.Logger,
	})
	if err != nil {
		return nil, err
	}

	store, err := notes.NewStore(env, notes.WithRef(cfg.Notes.Ref), notes.WithLogger(s.Logger))
	if err != nil {
		return nil, err
	}

	publisher, err := NewPublisher(cfg.Events, s.Logger)
	if err != nil {
		return nil, err
	}

	buffer := staging.NewBuffer(env, staging.WithLogger(s.Logger))
	source := eventstream.EventSource{
		Repository: git.RepoName(ctx, env.Git, env.Root),
		Ref:        store.Ref(),
		Tool:       env.Tool.Name,
	}

	return &App{
		Settings:  s,
		Env:       env,
		Store:     store,
		Buffer:    buffer,
		Publisher: publisher,
		Recorder: recorder.New(env, store, buffer,
			recorder.WithPublisher(publisher),
			recorder.WithSource(source),
			recorder.WithLogger(s.Logger),
		),
	}, nil
}

// Query returns the read side over the notes store.
func (a *App) Query() *query.Service {
	return query.NewService(a.Store, attribution.NewAnalyzer(a.Env.Git, a.Store, a.Logger))
}

// SaveFlush records a flush that moved staged traces into a commit, for
// "tracenotes status".
func (a *App) SaveFlush(o *recorder.Outcome) error {
	if o == nil || o.Flushed == 0 {
		return nil
	}
	return dotdir.NewManager().SaveFlushState(&dotdir.FlushState{
		Revision: o.Revision,
		Count:    o.Flushed,
		At:       a.Env.Clock().UTC(),
	}, a.Env.StateDir())
}

// Close releases the publisher.
func (a *App) Close() error {
	return a.Publisher.Close()
}

// NewPublisher selects the Kafka publisher when brokers are configured and
// the no-op publisher otherwise.
func NewPublisher(cfg config.EventsConfig, l *slog.Logger) (eventstream.Publisher, error) {
	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		return nop.NewPublisher(l), nil
	}

	p, err := kafka.NewPublisher(kafka.Config{Brokers: brokers, Topic: cfg.KafkaTopic})
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}
	logger.OrNop(l).Debug("publishing trace events to kafka", "brokers", brokers, "topic", cfg.KafkaTopic)
	return p, nil
}
