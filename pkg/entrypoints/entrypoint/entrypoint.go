package entrypoint

import (
	"context"
	"fmt"
	"github.com/alecthomas/kong"
	"github.com/wrouesnel/kongutil"
	"os/signal"
	"syscall"

	"github.com/wrouesnel/apk-resigman/version"
	"go.uber.org/zap"
	"io"
	"os"
	"strings"
)

//nolint:gochecknoglobals
var CLI struct {
	Version kong.VersionFlag `help:"Show version number"`

	Logging struct {
		Level  string `help:"logging level" default:"info"`
		Format string `help:"logging format (${enum})" enum:"console,json" default:"console"`
	} `embed:"" prefix:"log-"`

	JavaPath   string `help:"Java launcher used to run the external tools" default:"java"`
	SignapkJar string `help:"Path to the signapk signing tool" default:"signapk.jar"`
	DumpkeyJar string `help:"Path to the dumpkey digest tool" default:"dumpkey.jar"`

	Sign SignConfig `cmd:"" help:"Re-sign the APKs in a target-files package with release keys"`

	Debug struct {
		Certmap CertmapConfig `cmd:"" help:"Show the resolved certificate map of a target-files package"`
		Otakeys OtakeysConfig `cmd:"" help:"Show the resolved OTA trust keys of a target-files package"`
	} `cmd:""`
}

// Entrypoint is the real application entrypoint. This structure allows test packages to E2E-style tests invoking commmands
// as though they are on the command line, but using built-in coverage tools. Stub-main under the `cmd` package calls this
// function.
func Entrypoint(stdIn io.ReadCloser, stdOut io.Writer, stdErr io.Writer) int {
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	var configDirs []string
	deferredLogs := []string{}

	configfileEnvVar := fmt.Sprintf("%s_%s", strings.ToUpper(strings.ReplaceAll(version.Name, "-", "_")), "CONFIGFILE")
	if os.Getenv(configfileEnvVar) != "" {
		configDirs = []string{os.Getenv(configfileEnvVar)}
	} else {
		configDirs, deferredLogs = configDirListGet()
	}

	// Command line parsing can now happen
	vars := kong.Vars{"version": version.Version}
	ctx := kong.Parse(&CLI,
		kong.DefaultEnvars(version.Name),
		kong.Description(version.Description),
		kong.Configuration(kongutil.Hybrid, configDirs...), vars)

	// Initialize logging as soon as possible
	logConfig := zap.NewProductionConfig()
	if err := logConfig.Level.UnmarshalText([]byte(CLI.Logging.Level)); err != nil {
		deferredLogs = append(deferredLogs, err.Error())
	}
	logConfig.Encoding = CLI.Logging.Format

	logger, err := logConfig.Build()
	if err != nil {
		// Error unhandled since this is a very early failure
		_, _ = io.WriteString(stdErr, "Failure while building logger")
		return 1
	}

	logger.Debug("Configuring signal handling")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sigCtx, cancelFn := context.WithCancel(appCtx)
	go func() {
		sig := <-sigCh
		logger.Info("Caught signal - exiting", zap.String("signal", sig.String()))
		cancelFn()
	}()

	// Install as the global logger
	zap.ReplaceGlobals(logger)

	// Emit deferred logs
	logger.Debug("Using config paths", zap.Strings("configDirs", configDirs))
	for _, line := range deferredLogs {
		logger.Error(line)
	}

	if err := dispatchCommands(ctx, sigCtx, stdIn, stdOut, stdErr); err != nil {
		logger.Error("Error from command", zap.Error(err))
		fmt.Fprintf(stdErr, "%s: %s\n", version.Name, err.Error())
		return 1
	}

	logger.Debug("Exiting normally")
	return 0
}
