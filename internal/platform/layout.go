// Package platform isolates the OS-family differences the supervisor cares
// about: where tools are conventionally installed, how a worker is placed in
// its own process group, and how a worker tree is signalled or killed.
//
// Layout is pure data and can describe any OS family, which keeps the path
// tables testable from a single host. Host carries the process-control
// primitives and has one implementation per OS family, chosen at build time.
package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Tool names known to the layout tables.
const (
	ToolRunner = "uv"
	ToolNPM    = "npm"
	ToolNPX    = "npx"
	ToolCLI    = "claude"
)

// Layout describes the per-user install conventions of one OS family.
type Layout struct {
	GOOS         string
	Home         string
	AppData      string
	LocalAppData string
	ProgramFiles string
	NVMHome      string
}

// DetectLayout builds the layout for the running process.
func DetectLayout() Layout {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	programFiles := os.Getenv("ProgramFiles")
	if programFiles == "" {
		programFiles = `C:\Program Files`
	}
	return Layout{
		GOOS:         runtime.GOOS,
		Home:         home,
		AppData:      os.Getenv("APPDATA"),
		LocalAppData: os.Getenv("LOCALAPPDATA"),
		ProgramFiles: programFiles,
		NVMHome:      os.Getenv("NVM_HOME"),
	}
}

// Windows reports whether the layout describes a windows host.
func (l Layout) Windows() bool {
	return l.GOOS == "windows"
}

// PathListSeparator returns the separator used in PATH for the layout.
func (l Layout) PathListSeparator() string {
	if l.Windows() {
		return ";"
	}
	return ":"
}

// ExeName returns the on-disk file name of a tool.
func (l Layout) ExeName(tool string) string {
	if !l.Windows() {
		return tool
	}
	switch tool {
	case ToolRunner:
		return tool + ".exe"
	case ToolNPM, ToolNPX, ToolCLI:
		return tool + ".cmd"
	default:
		return tool + ".exe"
	}
}

// FixedPaths lists the conventional install locations for a tool, in probe
// order.
func (l Layout) FixedPaths(tool string) []string {
	exe := l.ExeName(tool)
	switch tool {
	case ToolRunner:
		if l.Windows() {
			return []string{
				filepath.Join(l.Home, ".local", "bin", exe),
				filepath.Join(l.Home, ".cargo", "bin", exe),
				filepath.Join(l.LocalAppData, "uv", exe),
				filepath.Join(l.AppData, "uv", exe),
				filepath.Join(l.LocalAppData, "Programs", "uv", exe),
			}
		}
		return []string{
			filepath.Join(l.Home, ".cargo", "bin", exe),
			filepath.Join(l.Home, ".local", "bin", exe),
			"/usr/local/bin/" + exe,
			"/opt/homebrew/bin/" + exe,
		}
	case ToolNPM:
		if l.Windows() {
			return []string{
				filepath.Join(l.ProgramFiles, "nodejs", exe),
				filepath.Join(l.AppData, "npm", exe),
				filepath.Join(l.LocalAppData, "npm", exe),
			}
		}
		return []string{"/usr/local/bin/" + exe, "/opt/homebrew/bin/" + exe}
	case ToolCLI:
		if l.Windows() {
			return []string{
				filepath.Join(l.AppData, "npm", exe),
				filepath.Join(l.ProgramFiles, "nodejs", exe),
				filepath.Join(l.Home, ".npm-global", exe),
			}
		}
		return []string{
			"/usr/local/bin/" + exe,
			"/opt/homebrew/bin/" + exe,
			filepath.Join(l.Home, ".npm-global", "bin", exe),
		}
	case ToolNPX:
		dirs := l.StandardBinDirs()
		paths := make([]string, 0, len(dirs))
		for _, dir := range dirs {
			paths = append(paths, filepath.Join(dir, exe))
		}
		return paths
	}
	return nil
}

// StandardBinDirs lists the directories a system-wide node install uses.
func (l Layout) StandardBinDirs() []string {
	if l.Windows() {
		return []string{
			filepath.Join(l.ProgramFiles, "nodejs"),
			filepath.Join(l.AppData, "npm"),
		}
	}
	return []string{"/usr/local/bin", "/opt/homebrew/bin"}
}

// VersionRoot returns the directory under which nvm stores one
// subdirectory per installed node version.
func (l Layout) VersionRoot() string {
	if l.Windows() {
		if l.NVMHome != "" {
			return l.NVMHome
		}
		return filepath.Join(l.AppData, "nvm")
	}
	return filepath.Join(l.Home, ".nvm", "versions", "node")
}

// VersionedPath returns where a tool lives inside one nvm version directory.
// nvm-windows keeps binaries directly in the version directory.
func (l Layout) VersionedPath(root, version, tool string) string {
	if l.Windows() {
		return filepath.Join(root, version, l.ExeName(tool))
	}
	return filepath.Join(root, version, "bin", tool)
}

// GlobalBinFromRoot maps the output of "npm root -g" to the directory that
// holds globally installed binaries.
func (l Layout) GlobalBinFromRoot(root string) string {
	root = strings.TrimSpace(root)
	if root == "" {
		return ""
	}
	if l.Windows() {
		return filepath.Dir(root)
	}
	const modules = "/lib/node_modules"
	trimmed := strings.TrimRight(root, "/")
	if strings.HasSuffix(trimmed, modules) {
		return strings.TrimSuffix(trimmed, modules) + "/bin"
	}
	return filepath.Join(trimmed, "bin")
}

// WhichCommand names the native PATH lookup utility.
func (l Layout) WhichCommand() string {
	if l.Windows() {
		return "where"
	}
	return "which"
}

// InstallCommand returns the command that fetches and installs the runner.
func (l Layout) InstallCommand() (string, []string) {
	if l.Windows() {
		return "powershell", []string{
			"-NoProfile",
			"-ExecutionPolicy", "Bypass",
			"-Command",
			"irm https://astral.sh/uv/install.ps1 | iex",
		}
	}
	return "sh", []string{"-c", "curl -LsSf https://astral.sh/uv/install.sh | sh"}
}

// InstallDir is where the runner installer places its binary when the
// resolver cannot find it afterwards.
func (l Layout) InstallDir() string {
	if l.Windows() {
		return filepath.Join(l.Home, ".local", "bin")
	}
	return filepath.Join(l.Home, ".cargo", "bin")
}

// EnvOverrides lists variables forced into the worker environment.
func (l Layout) EnvOverrides() map[string]string {
	if l.Windows() {
		return map[string]string{"PYTHONIOENCODING": "utf-8"}
	}
	return nil
}
