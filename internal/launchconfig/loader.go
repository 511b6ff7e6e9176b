package launchconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ctagard/gdbserver-dap/pkg/types"
)

// launchJSONRel is where an editor workspace keeps its debug configurations
var launchJSONRel = filepath.Join(".vscode", "launch.json")

// File is a loaded launch.json together with the workspace it belongs to
type File struct {
	Path string
	LaunchJSON
}

// Open reads the launch.json at path
func Open(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	f := &File{Path: path}
	if err := json.Unmarshal(data, &f.LaunchJSON); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return f, nil
}

// Find opens the launch.json of the workspace containing dir. An empty dir
// means the working directory; a file path starts from its directory.
func Find(dir string) (*File, error) {
	path, err := Locate(dir)
	if err != nil {
		return nil, err
	}
	return Open(path)
}

// Locate returns the first .vscode/launch.json found in dir or one of its
// parents
func Locate(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	start, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(start); err != nil {
		return "", err
	} else if !info.IsDir() {
		start = filepath.Dir(start)
	}

	for current := start; ; {
		candidate := filepath.Join(current, launchJSONRel)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", fmt.Errorf("no %s in %s or any parent directory", filepath.ToSlash(launchJSONRel), start)
		}
		current = parent
	}
}

// Workspace is the folder holding .vscode, with forward slashes
func (f *File) Workspace() string {
	return WorkspaceOf(f.Path)
}

// WorkspaceOf derives the workspace folder from a launch.json path
func WorkspaceOf(launchJSONPath string) string {
	return filepath.ToSlash(filepath.Dir(filepath.Dir(launchJSONPath)))
}

// Names lists the configuration names in file order
func (f *File) Names() []string {
	names := make([]string, 0, len(f.Configurations))
	for _, c := range f.Configurations {
		names = append(names, c.Name)
	}
	return names
}

// Configuration returns the configuration called name
func (f *File) Configuration(name string) (*DebugConfiguration, error) {
	for i := range f.Configurations {
		if f.Configurations[i].Name == name {
			return &f.Configurations[i], nil
		}
	}
	return nil, fmt.Errorf("%s has no configuration %q", f.Path, name)
}

// LaunchArguments validates the configuration called name and returns the
// launch request body it describes, variables substituted. The workspace
// folder defaults to the one holding this file.
func (f *File) LaunchArguments(name string) (types.LaunchArguments, error) {
	c, err := f.Configuration(name)
	if err != nil {
		return types.LaunchArguments{}, err
	}
	if err := c.Validate(); err != nil {
		return types.LaunchArguments{}, err
	}

	args := c.LaunchArguments
	if args.WorkspaceFolder == "" && f.Path != "" {
		args.WorkspaceFolder = f.Workspace()
	}
	if err := ResolveLaunchArguments(&args); err != nil {
		return types.LaunchArguments{}, err
	}
	return args, nil
}

// Validate checks the fields the bridge needs to start a session
func (c *DebugConfiguration) Validate() error {
	switch {
	case c.Name == "":
		return fmt.Errorf("configuration has no name")
	case c.Type == "":
		return fmt.Errorf("configuration %q has no type", c.Name)
	case c.Request != "launch" && c.Request != "attach":
		return fmt.Errorf("configuration %q: request must be launch or attach, got %q", c.Name, c.Request)
	case c.Executable == "":
		return fmt.Errorf("configuration %q has no executable", c.Name)
	}
	return nil
}
