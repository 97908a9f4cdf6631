package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/emmapowers/trellis-sub001/internal/config"
	"github.com/emmapowers/trellis-sub001/internal/errors"
	"github.com/emmapowers/trellis-sub001/internal/watch"
	"github.com/emmapowers/trellis-sub001/pkg/client"
	"github.com/emmapowers/trellis-sub001/pkg/worker"
)

type runFlags struct {
	interpreter []string
	dir         string
	env         []string
	install     []string
	indexURL    string
	initTimeout time.Duration
	entry       string
	path        string
	theme       string
	watch       bool
	verbose     bool
}

func runCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run <source>",
		Short: "Boot an application in a sandboxed worker and attach",
		Long: `Boot a Trellis application inside a sandboxed interpreter and attach
a session to it.

The source may be a single application file, a directory, or a package
archive reference: a local archive, an http(s) URL, or s3://bucket/key.

Worker settings come from trellis.json when present; flags override.

Examples:
  trellis-client run app.py
  trellis-client run app.py --watch
  trellis-client run ./myapp --entry=myapp.main:app
  trellis-client run https://pkg.example.com/dashboard.tar.gz
  trellis-client run app.py --install=pandas --install=numpy`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(args[0], flags)
		},
	}

	cmd.Flags().StringSliceVar(&flags.interpreter, "interpreter", nil, "Interpreter argv (default from trellis.json)")
	cmd.Flags().StringVar(&flags.dir, "dir", "", "Worker working directory")
	cmd.Flags().StringArrayVar(&flags.env, "env", nil, "Worker environment entry (KEY=VALUE, repeatable)")
	cmd.Flags().StringArrayVar(&flags.install, "install", nil, "Package to preinstall (repeatable)")
	cmd.Flags().StringVar(&flags.indexURL, "index-url", "", "Package index URL")
	cmd.Flags().DurationVar(&flags.initTimeout, "init-timeout", 0, "Bootstrap timeout (default from trellis.json)")
	cmd.Flags().StringVar(&flags.entry, "entry", "", "Application entry point (module:attribute)")
	cmd.Flags().StringVar(&flags.path, "path", "", "Initial route path")
	cmd.Flags().StringVar(&flags.theme, "theme", "", "Theme mode: system, light or dark")
	cmd.Flags().BoolVarP(&flags.watch, "watch", "w", false, "Restart the application when the source changes")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "Log worker and session internals to stderr")

	return cmd
}

func runRun(source string, flags runFlags) error {
	// Running a one-off file outside a project is fine.
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	if flags.theme != "" {
		cfg.Theme.Mode = flags.theme
	}

	printBanner()
	fmt.Println("  run")
	fmt.Println()

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	metricsOpts := startMetrics(ctx, cfg)

	if flags.watch {
		return runWatch(ctx, cfg, flags, source, metricsOpts)
	}
	return runSession(ctx, cfg, flags, source, metricsOpts)
}

// runSession boots one worker, attaches a session and observes it until
// the session ends or ctx is canceled.
func runSession(ctx context.Context, cfg *config.Config, flags runFlags, source string, extra []client.Option) error {
	src, err := loadSource(source, flags.entry)
	if err != nil {
		return err
	}

	workerOpts, err := workerOptions(cfg, flags)
	if err != nil {
		return err
	}

	runner := worker.NewRunner(workerOpts...)
	defer runner.Terminate()

	info("Booting sandboxed interpreter...")
	if err := runner.Create(ctx); err != nil {
		return bootstrapError(err)
	}
	success("Worker ready (runtime %s)", runner.RuntimeVersion())

	info("Submitting application source...")
	if err := runner.Run(ctx, src); err != nil {
		return bootstrapError(err)
	}

	opts, err := clientOptions(cfg, flags.path, flags.verbose)
	if err != nil {
		return err
	}
	opts = append(opts, extra...)

	c := client.NewClient(runner.Transport(), opts...)
	defer c.Disconnect()

	connectCtx, connectCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connectCancel()
	if err := c.Connect(connectCtx); err != nil {
		return errors.FromError(err, "T308")
	}

	snap := c.Store().Snapshot()
	success("Application started (session %s)", snap.SessionID)

	return observeSession(ctx, c)
}

// runWatch reruns the session whenever the source changes. Session
// failures are printed and the loop keeps watching; only ctx ends it.
func runWatch(ctx context.Context, cfg *config.Config, flags runFlags, source string, extra []client.Option) error {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") ||
		strings.HasPrefix(source, "s3://") {
		return errors.Newf(errors.CategoryCLI,
			"--watch requires a local source file or directory")
	}

	w := watch.New(watch.Config{Paths: []string{source}})
	defer w.Stop()
	changeCh := make(chan watch.Change, 64)
	w.OnChange(func(c watch.Change) {
		select {
		case changeCh <- c:
		default:
		}
	})
	go w.Start(ctx)

	for {
		sessCtx, cancelSess := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- runSession(sessCtx, cfg, flags, source, extra) }()

		select {
		case err := <-done:
			cancelSess()
			if ctx.Err() != nil {
				return nil
			}
			if err != nil {
				errors.PrintError(err)
			}
			info("Watching %s for changes...", source)
			select {
			case <-ctx.Done():
				return nil
			case c := <-changeCh:
				drainChanges(changeCh)
				info("%s changed, restarting...", c.Path)
			}

		case c := <-changeCh:
			drainChanges(changeCh)
			info("%s changed, restarting...", c.Path)
			cancelSess()
			<-done

		case <-ctx.Done():
			cancelSess()
			<-done
			return nil
		}
	}
}

// drainChanges coalesces a burst of changes into one restart.
func drainChanges(ch chan watch.Change) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

// workerOptions assembles the worker's boot parameters: configuration
// first, flags override.
func workerOptions(cfg *config.Config, flags runFlags) ([]worker.Option, error) {
	var opts []worker.Option

	argv := cfg.WorkerArgv()
	if len(flags.interpreter) > 0 {
		argv = flags.interpreter
	}
	if len(argv) > 0 {
		opts = append(opts, worker.WithInterpreter(argv...))
	}

	// Preflight the interpreter binary; failing here beats waiting out a
	// bootstrap timeout.
	bin := "python3" // the runner's default interpreter
	if len(argv) > 0 {
		bin = argv[0]
	}
	if _, err := exec.LookPath(bin); err != nil {
		return nil, errors.New("T502").
			WithDetail(fmt.Sprintf("%q is not installed or not in PATH", bin)).
			WithSuggestion("Install it, set worker.interpreter in trellis.json, or pass --interpreter").
			Wrap(err)
	}

	dir := cfg.Worker.Dir
	if flags.dir != "" {
		dir = flags.dir
	}
	if dir != "" {
		opts = append(opts, worker.WithDir(dir))
	}

	env := make(map[string]string, len(cfg.Worker.Env)+len(flags.env))
	for name, value := range cfg.Worker.Env {
		env[name] = value
	}
	for _, pair := range flags.env {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, errors.Newf(errors.CategoryCLI,
				"malformed env entry %q, want KEY=VALUE", pair)
		}
		env[name] = value
	}
	if len(env) > 0 {
		opts = append(opts, worker.WithEnv(env))
	}

	packages := cfg.Worker.Packages
	if len(flags.install) > 0 {
		packages = append(packages[:len(packages):len(packages)], flags.install...)
	}
	if len(packages) > 0 {
		opts = append(opts, worker.WithPackages(packages...))
	}

	indexURL := cfg.Worker.IndexURL
	if flags.indexURL != "" {
		indexURL = flags.indexURL
	}
	if indexURL != "" {
		opts = append(opts, worker.WithIndexURL(indexURL))
	}

	initTimeout, err := cfg.InitTimeout()
	if err != nil {
		return nil, err
	}
	if flags.initTimeout > 0 {
		initTimeout = flags.initTimeout
	}
	if initTimeout > 0 {
		opts = append(opts, worker.WithInitTimeout(initTimeout))
	}

	if flags.verbose {
		opts = append(opts, worker.WithLogger(newLogger(true)))
	}
	return opts, nil
}

// loadSource reads the application source argument: a file becomes inline
// code, a directory becomes a module upload, anything else is treated as a
// package archive reference.
func loadSource(arg, entry string) (worker.Source, error) {
	src := worker.Source{Entry: entry}

	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") ||
		strings.HasPrefix(arg, "s3://") {
		src.Package = arg
		return src, nil
	}

	fi, err := os.Stat(arg)
	if err != nil {
		return worker.Source{}, errors.New("T501").
			WithDetail("'" + arg + "' does not exist").
			WithSuggestion("Check the path, or pass a package URL").
			Wrap(err)
	}

	if fi.IsDir() {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return worker.Source{}, err
		}
		files, err := collectModuleFiles(arg)
		if err != nil {
			return worker.Source{}, err
		}
		if len(files) == 0 {
			return worker.Source{}, errors.New("T501").
				WithDetail("'" + arg + "' contains no source files")
		}
		src.Module = filepath.Base(abs)
		src.Files = files
		return src, nil
	}

	if isArchive(arg) {
		src.Package = arg
		return src, nil
	}

	code, err := os.ReadFile(arg)
	if err != nil {
		return worker.Source{}, err
	}
	src.Code = string(code)
	return src, nil
}

// isArchive reports whether the file looks like a package archive rather
// than source.
func isArchive(path string) bool {
	switch {
	case strings.HasSuffix(path, ".zip"),
		strings.HasSuffix(path, ".whl"),
		strings.HasSuffix(path, ".tar.gz"),
		strings.HasSuffix(path, ".tgz"):
		return true
	}
	return false
}

// collectModuleFiles gathers a module's source files keyed by their path
// relative to root, skipping hidden directories and caches.
func collectModuleFiles(root string) (map[string]string, error) {
	files := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (strings.HasPrefix(d.Name(), ".") || d.Name() == "__pycache__") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".py") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = string(content)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// bootstrapError maps a worker bootstrap failure onto the error catalog.
func bootstrapError(err error) error {
	var be *worker.BootstrapError
	if !stderrors.As(err, &be) {
		return err
	}

	code := "T302"
	switch {
	case be.Cause == worker.CauseTimeout:
		code = "T307"
	case be.Phase == worker.PhaseSpawn:
		code = "T301"
	case be.Phase == worker.PhasePackages:
		switch be.Cause {
		case worker.CauseNetwork:
			code = "T304"
		case worker.CausePolicy:
			code = "T305"
		case worker.CauseNotFound, worker.CauseUnavailable:
			code = "T306"
		default:
			code = "T303"
		}
	case be.Phase == worker.PhaseRun:
		code = "T308"
	}

	te := errors.New(code).WithDetail(be.Message).Wrap(err)
	if be.Hint != "" {
		te = te.WithSuggestion(be.Hint)
	}
	return te
}
