package launchconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	dbgerrors "github.com/ctagard/gdbserver-dap/internal/errors"
	"github.com/ctagard/gdbserver-dap/pkg/types"
)

// Variable pattern matches ${...} expressions
var variablePattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveVariables replaces all ${...} variables in the given text
func ResolveVariables(text string, ctx *ResolutionContext) (string, error) {
	if ctx == nil {
		ctx = &ResolutionContext{}
	}

	var lastErr error
	result := variablePattern.ReplaceAllStringFunc(text, func(match string) string {
		expr := match[2 : len(match)-1]

		resolved, err := resolveVariable(expr, ctx)
		if err != nil {
			lastErr = err
			return match
		}
		return resolved
	})

	return result, lastErr
}

// resolveVariable resolves a single variable expression
func resolveVariable(expr string, ctx *ResolutionContext) (string, error) {
	switch {
	case expr == "workspaceFolder":
		return ctx.WorkspaceFolder, nil

	case expr == "workspaceFolderBasename":
		return filepath.Base(ctx.WorkspaceFolder), nil

	case expr == "userHome":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home: %w", err)
		}
		return home, nil

	case expr == "cwd":
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get cwd: %w", err)
		}
		return cwd, nil

	case expr == "pathSeparator":
		return string(os.PathSeparator), nil

	case strings.HasPrefix(expr, "env:"):
		varName := strings.TrimPrefix(expr, "env:")
		if ctx.EnvOverrides != nil {
			if val, ok := ctx.EnvOverrides[varName]; ok {
				return val, nil
			}
		}
		return os.Getenv(varName), nil

	default:
		return "", fmt.Errorf("unknown variable: ${%s}", expr)
	}
}

// ResolveStringSlice resolves variables in all strings in a slice
func ResolveStringSlice(values []string, ctx *ResolutionContext) ([]string, error) {
	if values == nil {
		return nil, nil
	}
	result := make([]string, len(values))
	for i, v := range values {
		resolved, err := ResolveVariables(v, ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve element %d: %w", i, err)
		}
		result[i] = resolved
	}
	return result, nil
}

// ResolveLaunchArguments substitutes variables in every path and argument
// of args, in place. The workspace folder defaults to the process working
// directory, and a relative executable is taken relative to cwd.
func ResolveLaunchArguments(args *types.LaunchArguments) error {
	ctx := &ResolutionContext{WorkspaceFolder: args.WorkspaceFolder}
	if ctx.WorkspaceFolder == "" {
		if wd, err := os.Getwd(); err == nil {
			ctx.WorkspaceFolder = wd
		}
	}

	fields := []struct {
		name  string
		value *string
	}{
		{"cwd", &args.Cwd},
		{"executable", &args.Executable},
		{"serverpath", &args.ServerPath},
		{"gdbPath", &args.GdbPath},
		{"objdumpPath", &args.ObjdumpPath},
		{"targetId", &args.TargetID},
	}
	for _, f := range fields {
		resolved, err := ResolveVariables(*f.value, ctx)
		if err != nil {
			return dbgerrors.InvalidParameter(f.name, *f.value, err.Error())
		}
		*f.value = resolved
	}

	var err error
	if args.ServerArgs, err = ResolveStringSlice(args.ServerArgs, ctx); err != nil {
		return dbgerrors.InvalidParameter("serverArgs", args.ServerArgs, err.Error())
	}
	if args.ConfigFiles, err = ResolveStringSlice(args.ConfigFiles, ctx); err != nil {
		return dbgerrors.InvalidParameter("configFiles", args.ConfigFiles, err.Error())
	}

	if args.Executable != "" && args.Cwd != "" && !filepath.IsAbs(args.Executable) {
		args.Executable = filepath.Join(args.Cwd, args.Executable)
	}
	return nil
}
