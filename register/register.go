// Package register adds a volindex server entry to an MCP client config, either
// a project's .mcp.json or the user-wide client config.
package register

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
)

// Scope selects which client config receives the entry.
type Scope string

const (
	ScopeProject Scope = "project"
	ScopeUser    Scope = "user"
)

const (
	projectConfigName = ".mcp.json"
	userConfigName    = ".claude.json"
	serversKey        = "mcpServers"
	serveCommand      = "serve"
)

// ErrUsage reports malformed register arguments.
var ErrUsage = errors.New("usage: register (project [directory] | user) [-- server flags]")

// pathFlags are server flags whose values are resolved against the
// directory register runs in. Clients start servers from arbitrary
// working directories.
var pathFlags = []string{"config", "root", "data-dir", "log-file"}

// ServerEntry is one server in a client config.
type ServerEntry struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// Request describes one registration.
type Request struct {
	Scope      Scope
	Directory  string // project scope only
	ServerName string
	Binary     string // empty uses the running executable
	ServerArgs []string
}

// Check validates the server flags a registration forwards and returns them,
// possibly rewritten. A failed check leaves the client config untouched.
type Check func(serverArgs []string) ([]string, error)

// Result reports what Register wrote.
type Result struct {
	ConfigPath string
	Entry      ServerEntry
	Replaced   bool
}

// ParseRequest builds a request from the words before "--" and the server
// flags after it.
func ParseRequest(positional, serverArgs []string) (Request, error) {
	if len(positional) == 0 {
		return Request{}, ErrUsage
	}
	req := Request{Scope: Scope(positional[0]), ServerArgs: serverArgs}
	rest := positional[1:]

	switch req.Scope {
	case ScopeProject:
		if len(rest) > 1 {
			return Request{}, fmt.Errorf("unexpected argument %q: %w", rest[1], ErrUsage)
		}
		req.Directory = "."
		if len(rest) == 1 {
			req.Directory = rest[0]
		}
	case ScopeUser:
		if len(rest) > 0 {
			return Request{}, fmt.Errorf("unexpected argument %q: %w", rest[0], ErrUsage)
		}
	default:
		return Request{}, fmt.Errorf("unknown scope %q (must be \"project\" or \"user\"): %w", req.Scope, ErrUsage)
	}
	return req, nil
}

// Register runs check over the forwarded server flags and writes the
// resulting entry into the client config selected by req.
func Register(fs afero.Fs, req Request, check Check) (Result, error) {
	serverArgs, err := PinPaths(req.ServerArgs)
	if err != nil {
		return Result{}, err
	}
	if check != nil {
		if serverArgs, err = check(serverArgs); err != nil {
			return Result{}, fmt.Errorf("refusing to register %q: %w", req.ServerName, err)
		}
	}

	binaryPath := req.Binary
	if binaryPath == "" {
		if binaryPath, err = detectBinaryPath(); err != nil {
			return Result{}, fmt.Errorf("detecting binary path: %w", err)
		}
	}

	configPath, err := resolveConfigPath(req.Scope, req.Directory)
	if err != nil {
		return Result{}, fmt.Errorf("resolving config path: %w", err)
	}

	entry := buildEntry(binaryPath, serverArgs)
	replaced, err := writeConfig(fs, configPath, req.ServerName, entry)
	if err != nil {
		return Result{}, fmt.Errorf("writing config: %w", err)
	}
	return Result{ConfigPath: configPath, Entry: entry, Replaced: replaced}, nil
}

// DeriveServerName extracts a server name from a binary path by stripping .exe and -mcp suffixes.
func DeriveServerName(binaryPath string) string {
	name := filepath.Base(binaryPath)
	name = strings.TrimSuffix(name, ".exe")
	name = strings.TrimSuffix(name, "-mcp")
	return name
}

// PinPaths makes the values of path flags absolute. Both "--flag value" and
// "--flag=value" forms are rewritten; values starting with "~" are left for
// the server to expand.
func PinPaths(args []string) ([]string, error) {
	out := make([]string, len(args))
	copy(out, args)
	for i := 0; i < len(out); i++ {
		name, value, inline := splitFlag(out[i])
		if !isPathFlag(name) {
			continue
		}
		if !inline {
			if i+1 >= len(out) {
				return nil, fmt.Errorf("flag --%s needs a value", name)
			}
			i++
			value = out[i]
		}
		if value == "" || strings.HasPrefix(value, "~") || filepath.IsAbs(value) {
			continue
		}
		abs, err := filepath.Abs(value)
		if err != nil {
			return nil, fmt.Errorf("resolving --%s %s: %w", name, value, err)
		}
		if inline {
			out[i] = "--" + name + "=" + abs
		} else {
			out[i] = abs
		}
	}
	return out, nil
}

func splitFlag(arg string) (name, value string, inline bool) {
	if !strings.HasPrefix(arg, "--") {
		return "", "", false
	}
	name = strings.TrimPrefix(arg, "--")
	if i := strings.IndexByte(name, '='); i >= 0 {
		return name[:i], name[i+1:], true
	}
	return name, "", false
}

func isPathFlag(name string) bool {
	for _, f := range pathFlags {
		if f == name {
			return true
		}
	}
	return false
}

func detectBinaryPath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("getting executable path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(exe)
	if err != nil {
		return "", fmt.Errorf("resolving symlinks for %s: %w", exe, err)
	}
	return resolved, nil
}

func resolveConfigPath(scope Scope, directory string) (string, error) {
	if scope == ScopeProject {
		absDir, err := filepath.Abs(directory)
		if err != nil {
			return "", fmt.Errorf("resolving directory %s: %w", directory, err)
		}
		return filepath.Join(absDir, projectConfigName), nil
	}
	homeDir, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigName), nil
}

// buildEntry launches the serve command explicitly so that forwarded flags
// always reach it.
func buildEntry(binaryPath string, serverArgs []string) ServerEntry {
	args := append([]string{serveCommand}, serverArgs...)
	if runtime.GOOS == "windows" {
		return ServerEntry{
			Command: "cmd",
			Args:    append([]string{"/C", binaryPath}, args...),
		}
	}
	return ServerEntry{Command: binaryPath, Args: args}
}

// writeConfig adds or replaces serverName in the client config at
// configPath, keeping every other key. It reports whether an entry of that
// name already existed.
func writeConfig(fs afero.Fs, configPath string, serverName string, entry ServerEntry) (bool, error) {
	config := map[string]any{}
	data, err := afero.ReadFile(fs, configPath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &config); err != nil {
			return false, fmt.Errorf("parsing existing config %s: %w", configPath, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return false, fmt.Errorf("reading %s: %w", configPath, err)
	}

	servers, ok := config[serversKey]
	if !ok {
		servers = map[string]any{}
		config[serversKey] = servers
	}
	serversMap, ok := servers.(map[string]any)
	if !ok {
		return false, fmt.Errorf("%s in %s is not an object", serversKey, configPath)
	}
	_, replaced := serversMap[serverName]
	serversMap[serverName] = entry

	output, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return false, fmt.Errorf("marshaling config: %w", err)
	}
	output = append(output, '\n')

	configDir := filepath.Dir(configPath)
	tmpFile, err := afero.TempFile(fs, configDir, ".mcp-*.tmp")
	if err != nil {
		return false, fmt.Errorf("creating temp file in %s: %w", configDir, err)
	}
	tmpPath := tmpFile.Name()
	if _, err := tmpFile.Write(output); err != nil {
		tmpFile.Close()
		fs.Remove(tmpPath)
		return false, fmt.Errorf("writing temp file %s: %w", tmpPath, err)
	}
	if err := tmpFile.Close(); err != nil {
		fs.Remove(tmpPath)
		return false, fmt.Errorf("closing temp file %s: %w", tmpPath, err)
	}
	if err := fs.Rename(tmpPath, configPath); err != nil {
		fs.Remove(tmpPath)
		return false, fmt.Errorf("renaming %s to %s: %w", tmpPath, configPath, err)
	}
	return replaced, nil
}
