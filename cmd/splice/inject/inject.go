// Package injectcmder provides the inject command, which runs the injection
// filter over a file or stdin without a proxy in front of it.
package injectcmder

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/splice/pkg/config"
	"github.com/papercomputeco/splice/pkg/inject"
	"github.com/papercomputeco/splice/pkg/logger"
	"github.com/papercomputeco/splice/pkg/script"
)

// ErrInteractiveInput is returned when no file is given and stdin is a terminal.
var ErrInteractiveInput = errors.New("refusing to read a document from an interactive terminal; pass a file or pipe input")

type injectCommander struct {
	location      string
	policy        string
	script        string
	scriptFile    string
	nonce         string
	chunkSize     uint
	overflowLimit uint
	outSize       uint
	debug         bool

	logger *slog.Logger
}

const injectLongDesc string = `Inject a script into an HTML document.

Reads a document from the given file, or from stdin when no file is given,
streams it through the injection filter, and writes the result to stdout.
Input is read --chunk-size bytes at a time and written through an output
buffer of --out-size bytes, so arbitrarily large documents are filtered in
constant memory.

Examples:
  splice inject index.html --script 'console.log("hi")'
  curl -s https://example.com | splice inject --script-file overlay.js --location body
  splice inject page.html --script 'a()' --policy every --out-size 64`

const injectShortDesc string = "Inject a script into an HTML document"

// injectFlagKeys are the registry flags the inject command binds to viper.
var injectFlagKeys = []string{
	config.FlagLocation,
	config.FlagPolicy,
	config.FlagScript,
	config.FlagScriptFile,
	config.FlagNonce,
	config.FlagChunkSize,
	config.FlagOverflowLimit,
}

func NewInjectCmd() *cobra.Command {
	cmder := &injectCommander{}

	cmd := &cobra.Command{
		Use:   "inject [file]",
		Short: injectShortDesc,
		Long:  injectLongDesc,
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.Flags, injectFlagKeys)

			cmder.location = v.GetString("inject.location")
			cmder.policy = v.GetString("inject.policy")
			cmder.script = v.GetString("inject.script")
			cmder.scriptFile = v.GetString("inject.script_file")
			cmder.nonce = v.GetString("inject.nonce")
			cmder.chunkSize = v.GetUint("inject.chunk_size")
			cmder.overflowLimit = v.GetUint("inject.overflow_limit")
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			cmder.logger = logger.New(
				logger.WithDebug(cmder.debug),
				logger.WithPretty(true),
				logger.WithWriter(cmd.ErrOrStderr()),
			)

			in, closeIn, err := openInput(cmd, args)
			if err != nil {
				return err
			}
			defer closeIn()

			return cmder.run(in, cmd.OutOrStdout())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagLocation, &cmder.location)
	config.AddStringFlag(cmd, config.Flags, config.FlagPolicy, &cmder.policy)
	config.AddStringFlag(cmd, config.Flags, config.FlagScript, &cmder.script)
	config.AddStringFlag(cmd, config.Flags, config.FlagScriptFile, &cmder.scriptFile)
	config.AddStringFlag(cmd, config.Flags, config.FlagNonce, &cmder.nonce)
	config.AddUintFlag(cmd, config.Flags, config.FlagChunkSize, &cmder.chunkSize)
	config.AddUintFlag(cmd, config.Flags, config.FlagOverflowLimit, &cmder.overflowLimit)
	cmd.Flags().UintVar(&cmder.outSize, "out-size", inject.DefaultChunkSize, "Output buffer size in bytes")

	return cmd
}

// openInput returns the named file, or stdin when no file was given.
func openInput(cmd *cobra.Command, args []string) (io.Reader, func(), error) {
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return nil, nil, fmt.Errorf("opening document: %w", err)
		}
		return f, func() { _ = f.Close() }, nil
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return nil, nil, ErrInteractiveInput
	}

	return in, func() {}, nil
}

func (c *injectCommander) run(in io.Reader, out io.Writer) error {
	if c.logger == nil {
		c.logger = logger.Nop()
	}

	location, ok := inject.ParseLocation(c.location)
	if !ok {
		return fmt.Errorf("invalid location %q (expected head or body)", c.location)
	}

	policy, ok := inject.ParsePolicy(c.policy)
	if !ok {
		return fmt.Errorf("invalid policy %q (expected first or every)", c.policy)
	}

	src, err := script.FromConfig(c.script, c.scriptFile, c.logger)
	if err != nil {
		return err
	}

	if c.outSize == 0 {
		return errors.New("--out-size must be positive")
	}

	f := inject.New(src.Script(),
		inject.WithLocation(location),
		inject.WithPolicy(policy),
		inject.WithNonce(c.nonce),
		inject.WithOverflowLimit(int(c.overflowLimit)),
	)
	defer f.Close()

	r := inject.NewReader(in, f, int(c.chunkSize))
	buf := make([]byte, c.outSize)

	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return fmt.Errorf("writing output: %w", err)
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return fmt.Errorf("reading document: %w", readErr)
		}
	}

	c.logger.Debug("document filtered",
		"bytes_in", r.BytesIn(),
		"bytes_out", r.BytesOut(),
		"injections", f.Injections(),
	)

	return nil
}
