package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/mattjoyce/nodesync/internal/config"
	"github.com/mattjoyce/nodesync/internal/deploy"
	"github.com/mattjoyce/nodesync/internal/lock"
	"github.com/mattjoyce/nodesync/internal/node"
	"github.com/mattjoyce/nodesync/internal/nodeapi"
	"github.com/mattjoyce/nodesync/internal/templates"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// Exit statuses.
const (
	exitOK          = 0
	exitUsage       = 1
	exitConfig      = 2
	exitLoad        = 3
	exitPlaceholder = 4
	exitVariables   = 5
	exitSecrets     = 6
	exitDiffSource  = 7
	exitDeploy      = 8
	exitLockHeld    = 9
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

func execute(args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr, lookup: os.LookupEnv}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	printError(stderr, err)
	return exitCode(err)
}

// exitCode maps an error kind to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, config.ErrInvalid), errors.Is(err, deploy.ErrNoMasterAPI):
		return exitConfig
	case errors.Is(err, node.ErrLoad):
		return exitLoad
	case errors.Is(err, templates.ErrPlaceholder):
		return exitPlaceholder
	case errors.Is(err, node.ErrVariablesMissing):
		return exitVariables
	case errors.Is(err, node.ErrSecretsMissing):
		return exitSecrets
	case errors.Is(err, nodeapi.ErrDiffSourceUnavailable):
		return exitDiffSource
	case errors.Is(err, nodeapi.ErrDeploy):
		return exitDeploy
	case errors.Is(err, lock.ErrHeld):
		return exitLockHeld
	default:
		return exitUsage
	}
}

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
	if hint := errors.FlattenHints(err); hint != "" {
		for _, line := range strings.Split(hint, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				fmt.Fprintf(w, "Hint: %s\n", line)
			}
		}
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
}

func printVersion(w io.Writer, asJSON bool) error {
	info := currentVersionInfo()
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintf(w, "nodesync %s", info.Version)
	if info.Commit != "" {
		fmt.Fprintf(w, " (%s)", info.Commit)
	}
	if info.BuildTime != "" {
		fmt.Fprintf(w, " built %s", info.BuildTime)
	}
	fmt.Fprintln(w)
	return nil
}

func currentVersionInfo() versionInfo {
	info := versionInfo{Version: version}

	resolvedCommit := strings.TrimSpace(gitCommit)
	if resolvedCommit == "" || resolvedCommit == "unknown" {
		resolvedCommit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if resolvedCommit != "" {
		info.Commit = shortenCommit(resolvedCommit)
	}

	resolvedBuildTime := strings.TrimSpace(buildDate)
	if resolvedBuildTime == "" || resolvedBuildTime == "unknown" {
		resolvedBuildTime = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalized, ok := normalizeBuildTimeUTC(resolvedBuildTime); ok {
		info.BuildTime = normalized
	}
	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}
	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}
