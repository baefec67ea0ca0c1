// Package servecmder provides the serve command that runs the injecting proxy.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/splice/pkg/cliui"
	"github.com/papercomputeco/splice/pkg/config"
	"github.com/papercomputeco/splice/pkg/eventstream"
	"github.com/papercomputeco/splice/pkg/eventstream/kafka"
	"github.com/papercomputeco/splice/pkg/eventstream/nop"
	"github.com/papercomputeco/splice/pkg/inject"
	"github.com/papercomputeco/splice/pkg/logger"
	"github.com/papercomputeco/splice/pkg/script"
	"github.com/papercomputeco/splice/pkg/utils"
	"github.com/papercomputeco/splice/proxy"
)

type serveCommander struct {
	listen        string
	upstream      string
	location      string
	policy        string
	script        string
	scriptFile    string
	nonce         string
	chunkSize     uint
	overflowLimit uint

	events       bool
	kafkaBrokers string
	kafkaTopic   string

	logFile string
	debug   bool

	// listener overrides listen when set.
	listener net.Listener

	// status receives startup step output.
	status io.Writer

	logger *slog.Logger
}

const serveLongDesc string = `Run the splice proxy.

The proxy forwards every request to the upstream origin. Successful GET
responses for HTML documents are streamed through the injection filter, which
inserts a <script> element right after the first (or every) <head> or <body>
tag. Everything else passes through untouched.

When --script-file is used the file is watched and reloaded on change; new
documents pick up the new script immediately.

Settings resolve in order: flags, SPLICE_* environment variables,
config.toml in the .splice/ directory, built-in defaults.

Examples:
  splice serve --upstream http://localhost:5173 --script-file ./dev/overlay.js
  splice serve -u https://staging.example.com --script 'console.log("hi")' --location body
  splice serve --events --kafka-brokers kafka:9092 --log-file splice.log`

const serveShortDesc string = "Run the splice proxy"

// serveFlagKeys are the registry flags the serve command binds to viper.
var serveFlagKeys = []string{
	config.FlagListen,
	config.FlagUpstream,
	config.FlagLocation,
	config.FlagPolicy,
	config.FlagScript,
	config.FlagScriptFile,
	config.FlagNonce,
	config.FlagChunkSize,
	config.FlagOverflowLimit,
	config.FlagEvents,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
}

func NewServeCmd() *cobra.Command {
	_, cmd := newServeCommander()
	return cmd
}

func newServeCommander() (*serveCommander, *cobra.Command) {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.Flags, serveFlagKeys)

			cmder.listen = v.GetString("proxy.listen")
			cmder.upstream = v.GetString("proxy.upstream")
			cmder.location = v.GetString("inject.location")
			cmder.policy = v.GetString("inject.policy")
			cmder.script = v.GetString("inject.script")
			cmder.scriptFile = v.GetString("inject.script_file")
			cmder.nonce = v.GetString("inject.nonce")
			cmder.chunkSize = v.GetUint("inject.chunk_size")
			cmder.overflowLimit = v.GetUint("inject.overflow_limit")
			cmder.events = v.GetBool("events.enabled")
			cmder.kafkaBrokers = v.GetString("events.brokers")
			cmder.kafkaTopic = v.GetString("events.topic")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.status = cmd.ErrOrStderr()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return cmder.run(ctx)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagUpstream, &cmder.upstream)
	config.AddStringFlag(cmd, config.Flags, config.FlagLocation, &cmder.location)
	config.AddStringFlag(cmd, config.Flags, config.FlagPolicy, &cmder.policy)
	config.AddStringFlag(cmd, config.Flags, config.FlagScript, &cmder.script)
	config.AddStringFlag(cmd, config.Flags, config.FlagScriptFile, &cmder.scriptFile)
	config.AddStringFlag(cmd, config.Flags, config.FlagNonce, &cmder.nonce)
	config.AddUintFlag(cmd, config.Flags, config.FlagChunkSize, &cmder.chunkSize)
	config.AddUintFlag(cmd, config.Flags, config.FlagOverflowLimit, &cmder.overflowLimit)
	config.AddBoolFlag(cmd, config.Flags, config.FlagEvents, &cmder.events)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaBrokers, &cmder.kafkaBrokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaTopic, &cmder.kafkaTopic)
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON logs to this file")

	return cmder, cmd
}

func (c *serveCommander) newLogger() (*slog.Logger, func() error, error) {
	console := logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(true),
		logger.WithWriter(os.Stderr),
	)

	if c.logFile == "" {
		return console, func() error { return nil }, nil
	}

	f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	file := logger.New(
		logger.WithDebug(c.debug),
		logger.WithJSON(true),
		logger.WithWriter(f),
	)

	return logger.Multi(console, file), f.Close, nil
}

func (c *serveCommander) newPublisher() (eventstream.Publisher, error) {
	if !c.events {
		return nop.NewPublisher(), nil
	}

	pub, err := kafka.NewPublisher(kafka.Config{
		Brokers: c.kafkaBrokers,
		Topic:   c.kafkaTopic,
		Logger:  c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}

	c.logger.Info("publishing injection events",
		"brokers", c.kafkaBrokers,
		"topic", c.kafkaTopic,
	)

	return pub, nil
}

func (c *serveCommander) run(ctx context.Context) error {
	if c.logger == nil {
		l, closeLog, err := c.newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = closeLog() }()
		c.logger = l
	}

	if c.status == nil {
		c.status = io.Discard
	}

	location, ok := inject.ParseLocation(c.location)
	if !ok {
		return fmt.Errorf("invalid location %q (expected head or body)", c.location)
	}

	policy, ok := inject.ParsePolicy(c.policy)
	if !ok {
		return fmt.Errorf("invalid policy %q (expected first or every)", c.policy)
	}

	var src script.Source
	err := cliui.Step(c.status, "Loading script", func() error {
		var err error
		src, err = script.FromConfig(c.script, c.scriptFile, c.logger)
		return err
	})
	if err != nil {
		return err
	}

	c.logger.Debug("script loaded",
		"file", c.scriptFile,
		"preview", utils.Truncate(src.Script(), 60),
	)

	publisher, err := c.newPublisher()
	if err != nil {
		return err
	}
	defer publisher.Close()

	p, err := proxy.New(proxy.Config{
		ListenAddr:    c.listen,
		UpstreamURL:   c.upstream,
		Script:        src,
		Location:      location,
		Policy:        policy,
		Nonce:         c.nonce,
		ChunkSize:     int(c.chunkSize),
		OverflowLimit: int(c.overflowLimit),
		Publisher:     publisher,
	}, c.logger)
	if err != nil {
		return fmt.Errorf("creating proxy: %w", err)
	}

	c.logger.Info("injecting script",
		"location", location.String(),
		"policy", policy.String(),
		"upstream", c.upstream,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if c.listener != nil {
			err = p.RunWithListener(c.listener)
		} else {
			err = p.Run()
		}
		if err != nil {
			return fmt.Errorf("proxy error: %w", err)
		}
		return nil
	})

	if fs, ok := src.(*script.FileSource); ok {
		g.Go(func() error {
			err := fs.Watch(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		c.logger.Info("shutting down")
		return p.Close()
	})

	return g.Wait()
}
