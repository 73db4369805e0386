package util

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sidkik/revsync/pkg/cache"
	"github.com/sidkik/revsync/pkg/checkout"
	"github.com/sidkik/revsync/pkg/config"
	"github.com/sidkik/revsync/pkg/errors"
	"github.com/sidkik/revsync/pkg/pathlock"
	"github.com/sidkik/revsync/pkg/session"
	"github.com/sidkik/revsync/pkg/sync"
	"github.com/sidkik/revsync/pkg/transport"
	"github.com/sidkik/revsync/pkg/tree"
)

// ProjectFlag is the name of the flag that overrides the configured project.
const ProjectFlag = "project"

// Mocked for unit testing.
var (
	parseUserConfig = config.ParseUser
	getPassword     = config.GetPassword
	newClient       = func(cfg transport.Config) (transport.Client, error) {
		return transport.New(cfg)
	}
)

// HandleFatalError prints the error and exits.
func HandleFatalError(err error) {
	log.WithError(err).Debug("Fatal error")
	fmt.Fprintf(os.Stderr, "ERROR: %s\n", errors.GetPrintableMessage(err))
	os.Exit(1)
}

// HandlePanic logs the stack trace of a panic before re-raising it, so that
// the trace shows up in verbose logs.
func HandlePanic() {
	if r := recover(); r != nil {
		log.WithField("stack", string(debug.Stack())).Error("Unexpected panic")
		panic(r)
	}
}

// SignalContext returns a context that's cancelled when the process receives
// an interrupt.
func SignalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx, cancel
}

// Deps contains everything the commands need to talk to the server and the
// local cache.
type Deps struct {
	Config      config.User
	Session     session.Session
	Client      transport.Client
	Store       *cache.Store
	Engine      *sync.Engine
	Coordinator *checkout.Coordinator
	Mutator     *tree.Mutator
}

// NewDeps connects to the configured server as the configured user. If
// `project` is empty, the project from the user config is used.
func NewDeps(project string) (*Deps, error) {
	cfg, err := parseUserConfig()
	if err != nil {
		return nil, errors.WithContext(err, "parse user config")
	}

	password, err := getPassword(cfg.Username)
	if err != nil {
		return nil, errors.WithContext(err, "get password")
	}

	transportCfg, err := cfg.TransportConfig(password)
	if err != nil {
		return nil, err
	}

	client, err := newClient(transportCfg)
	if err != nil {
		return nil, errors.WithContext(err, "create client")
	}

	if project == "" {
		project = cfg.Project
	}
	return Wire(cfg, client, project), nil
}

// Wire builds the Deps around an existing client.
func Wire(cfg config.User, client transport.Client, project string) *Deps {
	store := cache.New(cfg.CacheDir)
	engine := sync.New(client, store)
	locks := &pathlock.Locker{}
	return &Deps{
		Config:      cfg,
		Session:     session.New(cfg.Username, project),
		Client:      client,
		Store:       store,
		Engine:      engine,
		Coordinator: checkout.New(client, engine, store, locks),
		Mutator:     tree.New(client, engine, store, locks, afero.NewOsFs()),
	}
}

// RequireProject returns a friendly error if no project has been selected.
func (d *Deps) RequireProject() error {
	if d.Session.Project == "" {
		return errors.NewFriendlyError("No project is selected. " +
			"Run `revsync project open <name>`, or pass --project.")
	}
	return nil
}

// ParsePath converts a slash separated path within the current project into
// manifest segments. The empty path and "/" refer to the project root.
func (d *Deps) ParsePath(path string) []string {
	segments := []string{d.Session.Project}
	for _, segment := range strings.Split(path, "/") {
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	return segments
}

// AddProjectFlag registers the --project flag on `cmd`.
func AddProjectFlag(cmd *cobra.Command, project *string) {
	cmd.Flags().StringVarP(project, ProjectFlag, "p", "",
		"The project to operate on. Defaults to the project in the user config.")
}

// Run connects to the server and invokes `fn`. Errors are fatal.
func Run(project string, fn func(context.Context, *Deps) error) {
	ctx, cancel := SignalContext()
	defer cancel()

	deps, err := NewDeps(project)
	if err == nil {
		err = fn(ctx, deps)
	}

	if err != nil {
		HandleFatalError(err)
	}
}

// RunInProject is like Run, but first ensures that a project is selected and
// opens it.
func RunInProject(project string, fn func(context.Context, *Deps) error) {
	Run(project, func(ctx context.Context, deps *Deps) error {
		if err := deps.RequireProject(); err != nil {
			return err
		}

		if _, err := deps.Engine.Open(ctx, deps.Session); err != nil {
			return errors.WithContext(err, "open project")
		}
		return fn(ctx, deps)
	})
}
