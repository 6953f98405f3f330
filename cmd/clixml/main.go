// clixml converts between CLIXML and readable forms.
//
// Subcommands:
//
//	clixml decode [flags] [FILE]   CLIXML to YAML (or an element tree)
//	clixml encode [flags] [FILE]   JSON with comments to CLIXML
//
// Input is read from FILE, or from stdin when FILE is omitted or "-".
// With --message NAME the payload is treated as the record of a PSRP message
// type such as PIPELINE_STATE and checked against its declared members.
// SecureString values need the session key given as hex with --key.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/smnsjas/go-psrpcore/messages"
	"github.com/smnsjas/go-psrpcore/serialization"
	"github.com/smnsjas/go-psrpcore/sessionkey"
)

// exitError carries a process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }
func (e *exitError) ExitCode() int { return e.code }

func usageError(format string, args ...interface{}) error {
	return &exitError{code: 2, err: fmt.Errorf(format, args...)}
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			os.Exit(coder.ExitCode())
		}
		os.Exit(1)
	}
}

const usage = `usage: clixml <command> [flags] [FILE]

commands:
  decode    convert CLIXML to YAML
  encode    convert JSON (comments allowed) to CLIXML

Run "clixml <command> --help" for the flags of a command.
`

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return usageError("no command given")
	}
	switch args[0] {
	case "decode":
		return runDecode(args[1:], stdin, stdout, stderr)
	case "encode":
		return runEncode(args[1:], stdin, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	}
	fmt.Fprint(stderr, usage)
	return usageError("unknown command %q", args[0])
}

// commonFlags are shared by both subcommands.
type commonFlags struct {
	key     string
	message string
	verbose bool
}

func (c *commonFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&c.key, "key", "k", "", "session key as hex, for SecureString values")
	fs.StringVarP(&c.message, "message", "m", "", "treat the payload as the record of a PSRP message type, e.g. PIPELINE_STATE")
	fs.BoolVarP(&c.verbose, "verbose", "v", false, "log debug records to stderr")
}

// options builds the serializer options the flags ask for.
func (c *commonFlags) options(stderr io.Writer) ([]serialization.Option, error) {
	level := slog.LevelWarn
	if c.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	opts := []serialization.Option{serialization.WithLogger(logger)}

	if c.key != "" {
		key, err := sessionkey.ParseHex(c.key)
		if err != nil {
			return nil, usageError("--key: %v", err)
		}
		opts = append(opts, serialization.WithEncryption(key))
	}
	return opts, nil
}

func (c *commonFlags) messageType() (messages.MessageType, bool, error) {
	if c.message == "" {
		return 0, false, nil
	}
	t, ok := messages.ParseMessageType(c.message)
	if !ok {
		return 0, false, usageError("--message: unknown message type %q", c.message)
	}
	if _, ok := messages.Descriptor(t); !ok {
		return 0, false, usageError("--message: %s has no declared record", t)
	}
	return t, true, nil
}

// parseFlags parses args and returns the single optional input path.
func parseFlags(fs *pflag.FlagSet, args []string, stdout io.Writer) (string, bool, error) {
	fs.SetOutput(stdout)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return "", true, nil
		}
		return "", false, usageError("%v", err)
	}
	switch rest := fs.Args(); len(rest) {
	case 0:
		return "-", false, nil
	case 1:
		return rest[0], false, nil
	default:
		return "", false, usageError("expected at most one input file, got %d", len(rest))
	}
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path) // #nosec G304 -- path given by the user
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}
