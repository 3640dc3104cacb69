// Command sagctl is an external consumer of the core: it parses and
// minifies .sag wire files, validates deployment config, and runs a grove
// against a config-declared tree with an echo runner for smoke-testing
// topology without a real agent backend. None of this is part of the core
// module; sagctl imports pkg/sag/..., never the reverse.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/sag-project/sag/internal/logging"
	"github.com/sag-project/sag/pkg/sag/grove"
	"github.com/sag-project/sag/pkg/sag/metrics"
	"github.com/sag-project/sag/pkg/sag/minify"
	"github.com/sag-project/sag/pkg/sag/model"
	"github.com/sag-project/sag/pkg/sag/parse"
	"github.com/sag-project/sag/pkg/sag/sagconfig"
	"github.com/sag-project/sag/pkg/sag/sanitize"
	"github.com/sag-project/sag/pkg/sag/transport"
	"github.com/sag-project/sag/pkg/sag/tree"
)

// CLI defines sagctl's subcommands.
type CLI struct {
	Minify   MinifyCmd   `cmd:"" help:"Parse a wire file and print its canonical minified form."`
	Validate ValidateCmd `cmd:"" help:"Load a deployment config and report topology/schema errors."`
	Run      RunCmd      `cmd:"" help:"Run a grove against a config-declared tree with an echo runner."`
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP transport adapter for a config-declared tree."`

	LogLevel string `help:"Log level (debug, info, warn, error)." default:"warn"`
}

type MinifyCmd struct {
	File string `arg:"" help:"Path to a .sag wire file." type:"path"`
}

func (c *MinifyCmd) Run() error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}
	msg, err := parse.Parse(string(data))
	if err != nil {
		return err
	}
	cmp, err := minify.Compare(msg)
	if err != nil {
		return err
	}
	fmt.Println(cmp.SAGText)
	fmt.Fprintf(os.Stderr, "sag=%d tokens json=%d tokens saved=%.1f%%\n", cmp.SAGTokens, cmp.JSONTokens, cmp.PercentSaved)
	return nil
}

type ValidateCmd struct {
	Config string `arg:"" help:"Path to a sagconfig YAML document." type:"path"`
}

func (c *ValidateCmd) Run() error {
	cfg, err := sagconfig.Load(c.Config)
	if err != nil {
		return err
	}
	if _, err := cfg.BuildTree(); err != nil {
		return fmt.Errorf("tree: %w", err)
	}
	if _, err := cfg.BuildSchemaRegistry(); err != nil {
		return fmt.Errorf("schemas: %w", err)
	}
	fmt.Println("config is valid")
	return nil
}

type RunCmd struct {
	Config string `arg:"" help:"Path to a sagconfig YAML document." type:"path"`
	Task   string `help:"Task description passed to the echo runner."`
}

func (c *RunCmd) Run() error {
	cfg, err := sagconfig.Load(c.Config)
	if err != nil {
		return err
	}
	t, err := cfg.BuildTree()
	if err != nil {
		return err
	}

	g := grove.NewGrove(t, echoRunner{}, c.Task).WithMetrics(metrics.New())
	g.OnAgentStart = func(n *tree.AgentNode) { fmt.Printf("-> %s\n", n.ID) }
	g.OnAgentDone = func(n *tree.AgentNode) { fmt.Printf("<- %s\n", n.ID) }

	if err := g.Run(context.Background()); err != nil {
		return err
	}
	fmt.Println(tree.RenderASCII(t))
	return nil
}

type ServeCmd struct {
	Config string `arg:"" help:"Path to a sagconfig YAML document." type:"path"`
	Addr   string `help:"Address to listen on." default:":8080"`
}

func (c *ServeCmd) Run() error {
	cfg, err := sagconfig.Load(c.Config)
	if err != nil {
		return err
	}
	if _, err := cfg.BuildTree(); err != nil {
		return err
	}

	schemas, err := cfg.BuildSchemaRegistry()
	if err != nil {
		return err
	}
	agents := sanitize.NewAgentRegistry(cfg.AgentIDs()...)
	sanitizer := sanitize.NewSanitizer(schemas, agents, nil, false)

	m := metrics.New()
	handler := func(msg *model.Message) error {
		logging.Log().Info("received message", "src", msg.Header.Source, "dst", msg.Header.Destination)
		return nil
	}
	srv := transport.NewServer(sanitizer, handler, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Log().Info("shutting down")
		cancel()
	}()

	httpSrv := &http.Server{Addr: c.Addr, Handler: srv}
	go func() {
		<-ctx.Done()
		httpSrv.Close()
	}()
	return httpSrv.ListenAndServe()
}

// echoRunner is a no-op AgentRunner used by `sagctl run` to smoke-test a
// tree's topology and propagation without a real agent backend: it asserts
// nothing of its own and simply lets whatever its children already
// published propagate upward.
type echoRunner struct{}

func (echoRunner) Run(ctx context.Context, node *tree.AgentNode, childFacts map[string]any) (*grove.RunResult, error) {
	return &grove.RunResult{}, nil
}

func main() {
	cli := &CLI{}
	kctx := kong.Parse(cli, kong.Name("sagctl"), kong.Description("Semantic Action Grammar toolkit."))

	if level, err := logging.ParseLevel(cli.LogLevel); err == nil {
		logging.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	}

	kctx.FatalIfErrorf(kctx.Run())
}
