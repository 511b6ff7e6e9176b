package launchconfig_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ctagard/gdbserver-dap/internal/launchconfig"
	"github.com/ctagard/gdbserver-dap/pkg/types"
)

const firmwareLaunchJSON = `{
	"version": "0.2.0",
	"configurations": [
		{
			"type": "gdbserver-dap",
			"request": "launch",
			"name": "Flash and debug",
			"executable": "${workspaceFolder}/build/firmware.elf",
			"cwd": "${workspaceFolder}",
			"servertype": "openocd",
			"configFiles": ["interface/stlink.cfg", "${workspaceFolder}/board.cfg"],
			"runToEntryPoint": "main"
		},
		{
			"type": "gdbserver-dap",
			"request": "attach",
			"name": "Attach with pyOCD",
			"executable": "build/firmware.elf",
			"servertype": "pyocd",
			"targetId": "nrf52840"
		}
	]
}`

func writeLaunchJSON(t *testing.T, content string) (string, string) {
	t.Helper()
	tmpDir := t.TempDir()
	vscodeDir := filepath.Join(tmpDir, ".vscode")
	if err := os.MkdirAll(vscodeDir, 0755); err != nil {
		t.Fatalf("failed to create .vscode dir: %v", err)
	}
	launchPath := filepath.Join(vscodeDir, "launch.json")
	if err := os.WriteFile(launchPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write launch.json: %v", err)
	}
	return tmpDir, launchPath
}

// TestOpen verifies that launch.json files can be loaded and parsed correctly.
func TestOpen(t *testing.T) {
	_, launchPath := writeLaunchJSON(t, firmwareLaunchJSON)

	lj, err := launchconfig.Open(launchPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if lj.Path != launchPath {
		t.Errorf("expected path %s, got %s", launchPath, lj.Path)
	}
	if lj.Version != "0.2.0" {
		t.Errorf("expected version 0.2.0, got %s", lj.Version)
	}
	if len(lj.Configurations) != 2 {
		t.Fatalf("expected 2 configurations, got %d", len(lj.Configurations))
	}

	first := lj.Configurations[0]
	if first.ServerType != types.ServerOpenOCD {
		t.Errorf("expected servertype openocd, got %q", first.ServerType)
	}
	if first.EntryPoint() != "main" {
		t.Errorf("expected entry point main, got %q", first.EntryPoint())
	}
	if len(first.ConfigFiles) != 2 {
		t.Errorf("expected 2 config files, got %d", len(first.ConfigFiles))
	}
}

// TestOpen_InvalidJSON verifies error handling for malformed JSON.
func TestOpen_InvalidJSON(t *testing.T) {
	_, launchPath := writeLaunchJSON(t, `{invalid json`)

	if _, err := launchconfig.Open(launchPath); err == nil {
		t.Error("expected error for invalid JSON, got nil")
	}
}

func TestFind_FromNestedDirectory(t *testing.T) {
	root, launchPath := writeLaunchJSON(t, firmwareLaunchJSON)
	nestedDir := filepath.Join(root, "src", "drivers")
	if err := os.MkdirAll(nestedDir, 0755); err != nil {
		t.Fatalf("failed to create nested dir: %v", err)
	}

	lj, err := launchconfig.Find(nestedDir)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if lj.Path != launchPath {
		t.Errorf("expected %s, got %s", launchPath, lj.Path)
	}
	if lj.Workspace() != filepath.ToSlash(root) {
		t.Errorf("workspace = %q, want %q", lj.Workspace(), filepath.ToSlash(root))
	}
}

func TestLocate_FromFile(t *testing.T) {
	root, launchPath := writeLaunchJSON(t, `{"version": "0.2.0", "configurations": []}`)
	source := filepath.Join(root, "main.c")
	if err := os.WriteFile(source, []byte("int main(void) { return 0; }\n"), 0644); err != nil {
		t.Fatalf("failed to write source: %v", err)
	}

	found, err := launchconfig.Locate(source)
	if err != nil {
		t.Fatalf("Locate failed: %v", err)
	}
	if found != launchPath {
		t.Errorf("expected %s, got %s", launchPath, found)
	}
}

func TestLocate_NotFound(t *testing.T) {
	if _, err := launchconfig.Locate(t.TempDir()); err == nil {
		t.Error("expected error when launch.json not found, got nil")
	}
}

func TestFile_Configuration(t *testing.T) {
	_, launchPath := writeLaunchJSON(t, firmwareLaunchJSON)
	lj, err := launchconfig.Open(launchPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	cfg, err := lj.Configuration("Attach with pyOCD")
	if err != nil {
		t.Fatalf("Configuration failed: %v", err)
	}
	if cfg.TargetID != "nrf52840" {
		t.Errorf("expected targetId nrf52840, got %q", cfg.TargetID)
	}

	if _, err := lj.Configuration("missing"); err == nil {
		t.Error("expected error for unknown configuration")
	}

	names := lj.Names()
	if len(names) != 2 || names[0] != "Flash and debug" || names[1] != "Attach with pyOCD" {
		t.Errorf("unexpected configuration names %v", names)
	}
}

func TestResolveVariables(t *testing.T) {
	ctx := &launchconfig.ResolutionContext{
		WorkspaceFolder: "/home/user/firmware",
		EnvOverrides: map[string]string{
			"BOARD": "nucleo",
		},
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"workspaceFolder", "${workspaceFolder}", "/home/user/firmware"},
		{"workspaceFolderBasename", "${workspaceFolderBasename}", "firmware"},
		{"env variable", "${env:BOARD}", "nucleo"},
		{"pathSeparator", "${pathSeparator}", string(os.PathSeparator)},
		{"mixed text", "${workspaceFolder}/boards/${env:BOARD}.cfg", "/home/user/firmware/boards/nucleo.cfg"},
		{"no variables", "interface/stlink.cfg", "interface/stlink.cfg"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := launchconfig.ResolveVariables(tc.input, ctx)
			if err != nil {
				t.Errorf("ResolveVariables(%q) error: %v", tc.input, err)
				return
			}
			if result != tc.expected {
				t.Errorf("ResolveVariables(%q) = %q, want %q", tc.input, result, tc.expected)
			}
		})
	}
}

func TestResolveVariables_Unknown(t *testing.T) {
	result, err := launchconfig.ResolveVariables("${file}", nil)
	if err == nil {
		t.Error("expected error for unknown variable")
	}
	if result != "${file}" {
		t.Errorf("expected unresolved text to be kept, got %q", result)
	}
}

func TestResolveVariables_EmptyEnv(t *testing.T) {
	result, err := launchconfig.ResolveVariables("${env:GDBSERVER_DAP_UNDEFINED_VAR}", nil)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if result != "" {
		t.Errorf("expected empty string for undefined env var, got %q", result)
	}
}

func TestResolveLaunchArguments(t *testing.T) {
	t.Setenv("GDBSERVER_DAP_TEST_TOOLCHAIN", "/opt/arm")

	args := types.LaunchArguments{
		Executable:      "build/firmware.elf",
		Cwd:             "${workspaceFolder}",
		GdbPath:         "${env:GDBSERVER_DAP_TEST_TOOLCHAIN}/bin/arm-none-eabi-gdb",
		ConfigFiles:     []string{"${workspaceFolder}/board.cfg"},
		ServerArgs:      []string{"-d${env:GDBSERVER_DAP_TEST_UNSET}"},
		WorkspaceFolder: "/work",
	}
	if err := launchconfig.ResolveLaunchArguments(&args); err != nil {
		t.Fatalf("ResolveLaunchArguments failed: %v", err)
	}

	if args.Cwd != "/work" {
		t.Errorf("cwd = %q, want /work", args.Cwd)
	}
	if args.Executable != filepath.Join("/work", "build/firmware.elf") {
		t.Errorf("executable = %q, want it joined with cwd", args.Executable)
	}
	if args.GdbPath != "/opt/arm/bin/arm-none-eabi-gdb" {
		t.Errorf("gdbPath = %q", args.GdbPath)
	}
	if args.ConfigFiles[0] != "/work/board.cfg" {
		t.Errorf("configFiles[0] = %q", args.ConfigFiles[0])
	}
	if args.ServerArgs[0] != "-d" {
		t.Errorf("serverArgs[0] = %q", args.ServerArgs[0])
	}
}

func TestResolveLaunchArguments_UnknownVariable(t *testing.T) {
	args := types.LaunchArguments{Executable: "${command:pickFile}"}
	if err := launchconfig.ResolveLaunchArguments(&args); err == nil {
		t.Error("expected error for unsupported variable")
	}
}

func TestFile_LaunchArguments(t *testing.T) {
	root, launchPath := writeLaunchJSON(t, firmwareLaunchJSON)
	lj, err := launchconfig.Open(launchPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	args, err := lj.LaunchArguments("Flash and debug")
	if err != nil {
		t.Fatalf("LaunchArguments failed: %v", err)
	}

	workspace := filepath.ToSlash(root)
	if args.WorkspaceFolder != workspace {
		t.Errorf("workspaceFolder = %q", args.WorkspaceFolder)
	}
	if args.Executable != workspace+"/build/firmware.elf" {
		t.Errorf("executable = %q", args.Executable)
	}
	if args.ConfigFiles[1] != workspace+"/board.cfg" {
		t.Errorf("configFiles[1] = %q", args.ConfigFiles[1])
	}
	if args.ServerType != types.ServerOpenOCD {
		t.Errorf("servertype = %q", args.ServerType)
	}

	if _, err := lj.LaunchArguments("missing"); err == nil {
		t.Error("expected error for unknown configuration")
	}
}

func TestFile_LaunchArgumentsInvalid(t *testing.T) {
	_, launchPath := writeLaunchJSON(t, `{"configurations": [{"name": "no image", "type": "gdbserver-dap", "request": "launch"}]}`)
	lj, err := launchconfig.Open(launchPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := lj.LaunchArguments("no image"); err == nil {
		t.Error("expected validation error for a configuration without executable")
	}
}

func TestDebugConfiguration_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     launchconfig.DebugConfiguration
		wantErr bool
	}{
		{
			name: "valid launch",
			cfg: launchconfig.DebugConfiguration{
				Name: "debug", Type: "gdbserver-dap", Request: "launch",
				LaunchArguments: types.LaunchArguments{Executable: "fw.elf"},
			},
		},
		{
			name:    "missing name",
			cfg:     launchconfig.DebugConfiguration{Type: "gdbserver-dap", Request: "launch"},
			wantErr: true,
		},
		{
			name: "missing type",
			cfg: launchconfig.DebugConfiguration{
				Name: "debug", Request: "launch",
				LaunchArguments: types.LaunchArguments{Executable: "fw.elf"},
			},
			wantErr: true,
		},
		{
			name: "bad request",
			cfg: launchconfig.DebugConfiguration{
				Name: "debug", Type: "gdbserver-dap", Request: "run",
				LaunchArguments: types.LaunchArguments{Executable: "fw.elf"},
			},
			wantErr: true,
		},
		{
			name:    "missing executable",
			cfg:     launchconfig.DebugConfiguration{Name: "debug", Type: "gdbserver-dap", Request: "attach"},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestWorkspaceOf(t *testing.T) {
	got := launchconfig.WorkspaceOf(filepath.Join("/home", "user", "fw", ".vscode", "launch.json"))
	if got != "/home/user/fw" {
		t.Errorf("WorkspaceOf() = %q, want /home/user/fw", got)
	}
}
