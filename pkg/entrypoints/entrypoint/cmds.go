package entrypoint

import (
	"context"
	"fmt"
	"io"

	"github.com/alecthomas/kong"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

type ErrCommand struct{}

func (e ErrCommand) Error() string {
	return "error while executing command"
}

type ErrCommandNotImplemented struct {
	Command string
}

func (e ErrCommandNotImplemented) Error() string {
	return fmt.Sprintf("%s not implemented", e.Command)
}

// CmdContext carries the process-level collaborators into command
// implementations so they can be exercised hermetically from tests.
type CmdContext struct {
	ctx    context.Context
	logger *zap.Logger
	stdIn  io.ReadCloser
	stdOut io.Writer
	stdErr io.Writer
	fs     afero.Fs
}

// Main command dispatcher for the program entrypoint. New commands should be added here, or they won't be
// invocable.
//
//nolint:revive
func dispatchCommands(ctx *kong.Context, cliCtx context.Context, stdIn io.ReadCloser, stdOut io.Writer, stdErr io.Writer) error {
	logger := zap.L().With(zap.String("command", ctx.Command()))

	cmdCtx := &CmdContext{
		ctx:    cliCtx,
		logger: logger,
		stdIn:  stdIn,
		stdOut: stdOut,
		stdErr: stdErr,
		fs:     afero.NewOsFs(),
	}

	var err error
	switch ctx.Command() {
	case "sign <input> <output>":
		err = Sign(cmdCtx)

	case "debug certmap <input>":
		err = DebugCertmap(cmdCtx)

	case "debug otakeys <input>":
		err = DebugOtakeys(cmdCtx)

	default:
		err = &ErrCommandNotImplemented{Command: ctx.Command()}
		logger.Error("Command not implemented")
	}

	return err
}
