// Package host boots a set of service modules: it discovers bundles, loads
// configuration and drives the registry through the lifecycle.
package host

import (
	"bytes"
	"context"
	_ "embed"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/wisp/pkg/config"
	"github.com/go-go-golems/wisp/pkg/modules/broadcast"
	"github.com/go-go-golems/wisp/pkg/modules/bus"
	"github.com/go-go-golems/wisp/pkg/modules/echo"
	"github.com/go-go-golems/wisp/pkg/modules/journal"
	"github.com/go-go-golems/wisp/pkg/modules/logger"
	"github.com/go-go-golems/wisp/pkg/modules/metrics"
	"github.com/go-go-golems/wisp/pkg/plugin"
	"github.com/go-go-golems/wisp/pkg/websocket"
)

//go:embed boot.yaml
var bootYAML []byte

// EmbeddedConfigOrigin names the built-in configuration in errors.
const EmbeddedConfigOrigin = "embedded:boot.yaml"

// DefaultShutdownTimeout bounds Stop and Destroy after a signal.
const DefaultShutdownTimeout = 30 * time.Second

// DefaultCatalog holds every module compiled into wisp, in boot order.
// Observers and the bus come before the websocket server so they are stopped
// after it and still see the final session closes.
func DefaultCatalog() *plugin.Catalog {
	c := plugin.NewCatalog()
	c.MustAdd("logger", func() (plugin.Module, error) { return logger.New(), nil })
	c.MustAdd("bus", func() (plugin.Module, error) { return bus.New(), nil })
	c.MustAdd("journal", func() (plugin.Module, error) { return journal.New(), nil })
	c.MustAdd("metrics", func() (plugin.Module, error) { return metrics.New(), nil })
	c.MustAdd("websocket", func() (plugin.Module, error) { return websocket.NewServer(), nil })
	c.MustAdd("echo", func() (plugin.Module, error) { return echo.New(), nil })
	c.MustAdd("broadcast", func() (plugin.Module, error) { return broadcast.New(), nil })
	return c
}

type Options struct {
	// BaseDir is the installation root; <BaseDir>/modules is the default
	// module dir.
	BaseDir string
	// ModuleDir overrides the module dir. It must exist when set.
	ModuleDir string
	// ConfigFile is parsed by extension. Empty selects boot.yaml.
	ConfigFile string
	// Environ feeds the environment overlay, os.Environ() when nil.
	Environ []string
	// Overrides win over both the environment and the file.
	Overrides config.Source
	Catalog   *plugin.Catalog
}

type Host struct {
	opts     Options
	registry *plugin.Registry
	cfg      config.Configuration
	booted   bool
}

func New(opts Options) *Host {
	if opts.BaseDir == "" {
		opts.BaseDir = "."
	}
	if opts.Catalog == nil {
		opts.Catalog = DefaultCatalog()
	}
	if opts.Environ == nil {
		opts.Environ = os.Environ()
	}
	return &Host{opts: opts, registry: plugin.NewRegistry()}
}

func (h *Host) Registry() *plugin.Registry { return h.registry }

// Config is the configuration used by Boot, nil before it.
func (h *Host) Config() config.Configuration { return h.cfg }

// ModuleDir returns the directory bundles are discovered in. ok is false
// when no module dir applies and the catalog order should be used instead.
func (h *Host) ModuleDir() (string, bool, error) {
	if h.opts.ModuleDir != "" {
		fi, err := os.Stat(h.opts.ModuleDir)
		if err != nil {
			return "", false, errors.Wrap(err, "module dir")
		}
		if !fi.IsDir() {
			return "", false, errors.Errorf("module dir %s is not a directory", h.opts.ModuleDir)
		}
		return h.opts.ModuleDir, true, nil
	}
	dir := filepath.Join(h.opts.BaseDir, "modules")
	if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
		return dir, true, nil
	}
	return "", false, nil
}

// Bundles lists the bundles Boot will instantiate.
func (h *Host) Bundles() ([]plugin.Bundle, error) {
	dir, ok, err := h.ModuleDir()
	if err != nil {
		return nil, err
	}
	if !ok {
		return h.opts.Catalog.Bundles(), nil
	}
	return plugin.DiscoverBundles(dir)
}

// LoadConfig builds the layered configuration: overrides, then environment,
// then the file.
func (h *Host) LoadConfig() (config.Configuration, error) {
	var file config.Source
	origin := EmbeddedConfigOrigin
	if h.opts.ConfigFile != "" {
		src, err := config.OpenFile(h.opts.ConfigFile)
		if err != nil {
			return nil, err
		}
		file, origin = src, h.opts.ConfigFile
	} else {
		src, err := config.YAMLFactory{}.Parse(bytes.NewReader(bootYAML))
		if err != nil {
			return nil, errors.Wrap(err, "parse embedded boot.yaml")
		}
		file = src
	}
	return config.New(origin, config.Layered(h.opts.Overrides, config.NewEnv(h.opts.Environ), file)), nil
}

// Boot registers, links, configures and starts every module. When any step
// fails, started modules are stopped, all are destroyed and the error is
// returned.
func (h *Host) Boot(ctx context.Context) error {
	if h.booted {
		return errors.New("host already booted")
	}
	h.booted = true

	cfg, err := h.LoadConfig()
	if err != nil {
		return err
	}
	h.cfg = cfg

	bundles, err := h.Bundles()
	if err != nil {
		return err
	}
	modules, err := h.opts.Catalog.Instantiate(bundles)
	if err != nil {
		return err
	}
	for _, m := range modules {
		if _, err := h.registry.Register(m); err != nil {
			return err
		}
	}
	log.Info().Str("component", "host").Int("modules", len(modules)).Msg("modules registered")

	if err := h.start(ctx, cfg); err != nil {
		log.Error().Str("component", "host").Err(err).Msg("startup failed, shutting down")
		h.Shutdown(context.WithoutCancel(ctx))
		return err
	}
	log.Info().Str("component", "host").Msg("all modules started")
	return nil
}

func (h *Host) start(ctx context.Context, cfg config.Configuration) error {
	if err := h.registry.LinkAll(ctx); err != nil {
		return err
	}
	if err := h.registry.ConfigureAll(ctx, cfg); err != nil {
		return err
	}
	return h.registry.StartAll(ctx)
}

// Shutdown stops and destroys every module. Safe to call more than once.
func (h *Host) Shutdown(ctx context.Context) {
	h.registry.DestroyAll(ctx)
}

// Run boots the host and blocks until ctx is done or SIGINT/SIGTERM arrives,
// then shuts down within DefaultShutdownTimeout.
func (h *Host) Run(ctx context.Context) error {
	if err := h.Boot(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg := errgroup.Group{}
	eg.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().Str("component", "host").Str("signal", sig.String()).Msg("received signal, shutting down gracefully...")
			cancel()
		case <-runCtx.Done():
		}
		return nil
	})
	eg.Go(func() error {
		<-runCtx.Done()
		shutdownCtx, done := context.WithTimeout(context.WithoutCancel(ctx), DefaultShutdownTimeout)
		defer done()
		h.Shutdown(shutdownCtx)
		log.Info().Str("component", "host").Msg("shutdown complete")
		return nil
	})
	return eg.Wait()
}
