package plugin

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"

	"github.com/nadscan/nadscan/pkg/defaults"
	"github.com/nadscan/nadscan/pkg/jsonutil"
)

// Modules a script may import. os and exec are deliberately absent.
var scriptModules = stdlib.GetModuleMap("text", "fmt", "math", "times", "json", "enum", "rand")

// ScriptTool runs a tengo script as a tool.
//
// The script sees three globals: target (string), meta (map) and emit (a
// function forwarding its arguments to the job log). It reports its output
// by assigning result, or fails by assigning failure a message:
//
//	// description: count dots in the target
//	text := import("text")
//	emit("counting")
//	result := {dots: len(text.split(target, ".")) - 1}
type ScriptTool struct {
	name        string
	path        string
	description string
	compiled    *tengo.Compiled
}

// LoadScript compiles the script at path. The tool is named after the file
// without its extension. A leading "// description:" comment becomes the
// tool description.
func LoadScript(path string) (*ScriptTool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", path, err)
	}

	script := tengo.NewScript(data)
	script.SetImports(scriptModules)
	script.SetMaxAllocs(defaults.ScriptMaxAllocs)
	_ = script.Add("target", "")
	_ = script.Add("meta", map[string]any{})
	_ = script.Add("emit", &tengo.UserFunction{Name: "emit", Value: discard})

	compiled, err := script.Compile()
	if err != nil {
		return nil, fmt.Errorf("compile script %s: %w", path, err)
	}

	return &ScriptTool{
		name:        ScriptName(path),
		path:        path,
		description: scriptDescription(data),
		compiled:    compiled,
	}, nil
}

// ScriptName derives the tool name for a script file.
func ScriptName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// Name returns the tool name.
func (s *ScriptTool) Name() string { return s.name }

// Path returns the script location.
func (s *ScriptTool) Path() string { return s.path }

// Description implements Describer.
func (s *ScriptTool) Description() string { return s.description }

// Run executes a private clone of the compiled script.
func (s *ScriptTool) Run(ctx context.Context, target string, emit EmitFunc, meta Meta) (any, error) {
	c := s.compiled.Clone()

	plain := map[string]any{}
	if err := jsonutil.Convert(meta, &plain); err != nil {
		return nil, fmt.Errorf("script %s: meta: %w", s.name, err)
	}
	if err := c.Set("target", target); err != nil {
		return nil, err
	}
	if err := c.Set("meta", plain); err != nil {
		return nil, fmt.Errorf("script %s: meta: %w", s.name, err)
	}
	err := c.Set("emit", &tengo.UserFunction{
		Name: "emit",
		Value: func(args ...tengo.Object) (tengo.Object, error) {
			for _, a := range args {
				emit(tengo.ToInterface(a))
			}
			return tengo.UndefinedValue, nil
		},
	})
	if err != nil {
		return nil, err
	}

	if err := c.RunContext(ctx); err != nil {
		return nil, fmt.Errorf("script %s: %w", s.name, err)
	}

	if f := c.Get("failure"); !f.IsUndefined() {
		return nil, fmt.Errorf("%w: %s", ErrScriptFailed, f.String())
	}
	if r := c.Get("result"); !r.IsUndefined() {
		return r.Value(), nil
	}
	return nil, nil
}

// LoadScriptDir compiles every script in dir. Broken scripts are reported
// but do not prevent the others from loading.
func LoadScriptDir(dir string) ([]*ScriptTool, []error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("read script dir %s: %w", dir, err)}
	}

	var tools []*ScriptTool
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !IsScript(entry.Name()) {
			continue
		}
		st, err := LoadScript(filepath.Join(dir, entry.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		tools = append(tools, st)
	}
	return tools, errs
}

// IsScript reports whether path names a script tool file.
func IsScript(path string) bool {
	return strings.HasSuffix(path, defaults.ScriptExt)
}

func discard(...tengo.Object) (tengo.Object, error) {
	return tengo.UndefinedValue, nil
}

func scriptDescription(src []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(src))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(line, "// description:"); ok {
			return strings.TrimSpace(rest)
		}
		return ""
	}
	return ""
}
