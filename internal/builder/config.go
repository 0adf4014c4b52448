package builder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"regexp"
	"runtime"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/pelletier/go-toml/v2"

	"github.com/qobs-build/rbuild/internal/task"
)

const ManifestFilename = "Build.toml"

var (
	errNoModules       = errors.New("manifest declares no modules")
	errDuplicateResult = errors.New("result name used twice")
)

// Manifest is the hand-declared description of a product: its modules in
// build order, where the tools live and which artifacts are delivered.
type Manifest struct {
	Package   PackageSection   `toml:"package"`
	Toolchain ToolchainSection `toml:"toolchain"`
	Reflect   ReflectSection   `toml:"reflect"`
	Paths     PathsSection     `toml:"paths"`
	Modules   []Module         `toml:"module"`
	Artifacts ArtifactsSection `toml:"artifacts"`
}

// PackageSection defines the [package] section
type PackageSection struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
}

// ToolchainSection defines the [toolchain] section
type ToolchainSection struct {
	Compiler     string `toml:"compiler"`
	SwitchPrefix string `toml:"switch_prefix"`
}

// ReflectSection defines the [reflect] section
type ReflectSection struct {
	Scanner string `toml:"scanner"`
	Include string `toml:"include"`
}

// PathsSection defines the [paths] section, relative to the project directory
type PathsSection struct {
	Root string `toml:"root"`
	Temp string `toml:"temp"`
	Obj  string `toml:"obj"`
}

// Module is one [[module]] entry. A module with a metaprogram goes through
// the reflect pass before its own compile.
type Module struct {
	Name string `toml:"name"`
	task.Task
	Metaprogram *task.Task `toml:"metaprogram"`
}

// FileCopy is a file delivered into the output directory. To defaults to the
// base name of From.
type FileCopy struct {
	From string `toml:"from"`
	To   string `toml:"to"`
}

// ArtifactsSection defines the [artifacts] section
type ArtifactsSection struct {
	// Optional names are copied from staging when present.
	Optional []string `toml:"optional"`
	// Relocate entries are moved from the project directory when present.
	Relocate []FileCopy `toml:"relocate"`
	// Required entries are copied from the project directory and must exist.
	Required []FileCopy `toml:"required"`
}

var defaultPaths = PathsSection{
	Root: "build",
	Temp: "build/temp",
	Obj:  "build/temp/obj",
}

// mergeStructs merges the fields of the src struct into the dst struct
func mergeStructs(dst, src any) error {
	dstVal := reflect.ValueOf(dst)
	if dstVal.Kind() != reflect.Pointer || dstVal.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("dst must be a pointer to a struct")
	}

	srcVal := reflect.ValueOf(src)
	if srcVal.Kind() == reflect.Pointer {
		srcVal = srcVal.Elem()
	}
	if srcVal.Kind() != reflect.Struct {
		return fmt.Errorf("src must be a struct or a pointer to a struct")
	}
	if dstVal.Elem().Type() != srcVal.Type() {
		return fmt.Errorf("dst and src must be of the same struct type")
	}

	mergeValue(dstVal.Elem(), srcVal)
	return nil
}

func mergeValue(dst, src reflect.Value) {
	for i := range src.NumField() {
		srcField := src.Field(i)
		dstField := dst.Field(i)

		if !dstField.CanSet() {
			continue
		}

		switch dstField.Kind() {
		case reflect.Struct:
			mergeValue(dstField, srcField)
		case reflect.Pointer:
			if srcField.IsNil() {
				continue
			}
			if dstField.IsNil() || dstField.Elem().Kind() != reflect.Struct {
				dstField.Set(srcField)
				continue
			}
			mergeValue(dstField.Elem(), srcField.Elem())
		case reflect.Slice:
			if !srcField.IsNil() {
				dstField.Set(reflect.AppendSlice(dstField, srcField))
			}
		case reflect.Map:
			if !srcField.IsNil() {
				if dstField.IsNil() {
					dstField.Set(reflect.MakeMap(dstField.Type()))
				}
				for _, key := range srcField.MapKeys() {
					dstField.SetMapIndex(key, srcField.MapIndex(key))
				}
			}
		case reflect.Bool:
			dstField.SetBool(dstField.Bool() || srcField.Bool())
		default:
			if !srcField.IsZero() {
				dstField.Set(srcField)
			}
		}
	}
}

func mustMarshal(v any) string {
	b, err := toml.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// unmarshalSection is a helper to parse sections without conditional logic
func unmarshalSection(rawCfg map[string]any, name string, dst any) error {
	if data, ok := rawCfg[name]; ok {
		if err := toml.Unmarshal([]byte(mustMarshal(data)), dst); err != nil {
			return fmt.Errorf("failed to parse [%s] section: %w", name, err)
		}
	}
	return nil
}

// unmarshalConditionalTable parses a table whose sub-tables keyed by an
// expression are merged in when the expression is true
func unmarshalConditionalTable[T any](sectionMap map[string]any, name string, dst *T, env ConfigEnv) error {
	baseFields := make(map[string]any)
	conditionalFields := make(map[string]map[string]any)

	for key, val := range sectionMap {
		if subMap, ok := val.(map[string]any); ok {
			_, err := expr.Compile(key, expr.Env(env))
			if err == nil {
				conditionalFields[key] = subMap
			} else {
				baseFields[key] = val
			}
		} else {
			baseFields[key] = val
		}
	}

	if len(baseFields) > 0 {
		if err := toml.Unmarshal([]byte(mustMarshal(baseFields)), dst); err != nil {
			return fmt.Errorf("failed to parse base %s: %w", name, err)
		}
	}

	for expression, condMap := range conditionalFields {
		program, err := expr.Compile(expression, expr.Env(env))
		if err != nil {
			return fmt.Errorf("failed to compile expression for %s.%q: %w", name, expression, err)
		}

		result, err := expr.Run(program, env)
		if err != nil {
			return fmt.Errorf("failed to run expression for %s.%q: %w", name, expression, err)
		}

		// merge sections if the result is true
		if matched, ok := result.(bool); !ok || !matched {
			continue
		}

		var condSection T
		if err := toml.Unmarshal([]byte(mustMarshal(condMap)), &condSection); err != nil {
			return fmt.Errorf("failed to parse conditional section %s.%q: %w", name, expression, err)
		}
		if err := mergeStructs(dst, condSection); err != nil {
			return fmt.Errorf("failed to merge conditional section %s.%q: %w", name, expression, err)
		}
	}

	return nil
}

var exprRegex = regexp.MustCompile(`\{\{(.+?)\}\}`)

// evaluateString finds and evaluates all {{...}} expressions in a string
func evaluateString(s string, env ConfigEnv) (string, error) {
	matches := exprRegex.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	var builder strings.Builder
	lastIndex := 0

	for _, matchIndexes := range matches {
		fullMatchStart := matchIndexes[0]
		fullMatchEnd := matchIndexes[1]
		expressionStart := matchIndexes[2]
		expressionEnd := matchIndexes[3]

		builder.WriteString(s[lastIndex:fullMatchStart])

		expression := strings.TrimSpace(s[expressionStart:expressionEnd])
		program, err := expr.Compile(expression, expr.Env(env))
		if err != nil {
			return "", fmt.Errorf("failed to compile expression %q: %w", expression, err)
		}

		result, err := expr.Run(program, env)
		if err != nil {
			return "", fmt.Errorf("failed to run expression %q: %w", expression, err)
		}

		builder.WriteString(fmt.Sprintf("%v", result))
		lastIndex = fullMatchEnd
	}

	builder.WriteString(s[lastIndex:])

	return builder.String(), nil
}

// processExpressions recursively walks the parsed TOML data and evaluates expressions in strings
func processExpressions(data any, env ConfigEnv) (any, error) {
	switch v := data.(type) {
	case map[string]any:
		for key, val := range v {
			processedVal, err := processExpressions(val, env)
			if err != nil {
				return nil, err
			}
			v[key] = processedVal
		}
		return v, nil
	case []any:
		for i, item := range v {
			processedItem, err := processExpressions(item, env)
			if err != nil {
				return nil, err
			}
			v[i] = processedItem
		}
		return v, nil
	case []map[string]any:
		for _, item := range v {
			if _, err := processExpressions(item, env); err != nil {
				return nil, err
			}
		}
		return v, nil
	case string:
		return evaluateString(v, env)
	default:
		return data, nil
	}
}

// moduleTables returns the raw [[module]] entries in declaration order
func moduleTables(rawCfg map[string]any) ([]map[string]any, error) {
	raw, ok := rawCfg["module"]
	if !ok {
		return nil, nil
	}
	switch v := raw.(type) {
	case []map[string]any:
		return v, nil
	case []any:
		tables := make([]map[string]any, 0, len(v))
		for i, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("module #%d: expected a table", i+1)
			}
			tables = append(tables, m)
		}
		return tables, nil
	}
	return nil, errors.New("invalid [[module]] format: expected an array of tables")
}

func ParseManifest(rdr io.Reader, env ConfigEnv) (*Manifest, error) {
	var rawConfig map[string]any
	dec := toml.NewDecoder(rdr)
	if err := dec.Decode(&rawConfig); err != nil {
		if derr, ok := err.(*toml.DecodeError); ok {
			return nil, errors.New(derr.String())
		}
		return nil, err
	}

	if env.Product == "" {
		if pkg, ok := rawConfig["package"].(map[string]any); ok {
			env.Product, _ = pkg["name"].(string)
		}
	}

	processedConfig, err := processExpressions(rawConfig, env)
	if err != nil {
		return nil, fmt.Errorf("error processing expressions in manifest: %w", err)
	}
	rawConfig = processedConfig.(map[string]any)

	// unset paths are derived from root by NewRunConfig
	m := new(Manifest)

	if err := unmarshalSection(rawConfig, "package", &m.Package); err != nil {
		return nil, err
	}
	if err := unmarshalSection(rawConfig, "toolchain", &m.Toolchain); err != nil {
		return nil, err
	}
	if err := unmarshalSection(rawConfig, "reflect", &m.Reflect); err != nil {
		return nil, err
	}
	if err := unmarshalSection(rawConfig, "paths", &m.Paths); err != nil {
		return nil, err
	}
	if err := unmarshalSection(rawConfig, "artifacts", &m.Artifacts); err != nil {
		return nil, err
	}

	tables, err := moduleTables(rawConfig)
	if err != nil {
		return nil, err
	}
	for i, table := range tables {
		var mod Module
		name := fmt.Sprintf("[[module]] #%d", i+1)
		if err := unmarshalConditionalTable(table, name, &mod, env); err != nil {
			return nil, err
		}
		m.Modules = append(m.Modules, mod)
	}

	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// ParseManifestFromFile parses and validates a manifest from a filepath
func ParseManifestFromFile(path string, env ConfigEnv) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ParseManifest(bufio.NewReader(f), env)
}

// validate checks what would otherwise silently corrupt a run: artifacts
// sharing a name overwrite each other in staging
func (m *Manifest) validate() error {
	if m.Package.Name == "" {
		return errors.New("[package] name is required")
	}
	if len(m.Modules) == 0 {
		return errNoModules
	}

	seen := make(map[string]string)
	claim := func(module, result string) error {
		if result == "" {
			return fmt.Errorf("module %q: result name is required", module)
		}
		key := strings.ToLower(result)
		if other, ok := seen[key]; ok {
			return fmt.Errorf("%w: %q (modules %q and %q)", errDuplicateResult, result, other, module)
		}
		seen[key] = module
		return nil
	}

	for i := range m.Modules {
		mod := &m.Modules[i]
		if mod.Name == "" {
			mod.Name = mod.ResultName
		}
		if err := claim(mod.Name, mod.ResultName); err != nil {
			return err
		}
		if mod.Metaprogram != nil {
			if err := claim(mod.Name, mod.Metaprogram.ResultName); err != nil {
				return err
			}
			if mod.Metaprogram.Kind != task.DynamicLibrary {
				return fmt.Errorf("module %q: metaprogram must be a dll", mod.Name)
			}
		}
	}
	return nil
}

// ConfigEnv is what manifest expressions can see
type ConfigEnv struct {
	Mode       string            `expr:"mode"`
	Product    string            `expr:"product"`
	Version    string            `expr:"version"`
	TargetOS   string            `expr:"target_os"`
	TargetArch string            `expr:"target_arch"`
	Environ    map[string]string `expr:"environ"`
}

func NewConfigEnv(mode task.BuildMode, version string) ConfigEnv {
	environ := make(map[string]string)
	for _, e := range os.Environ() {
		if i := strings.Index(e, "="); i >= 0 {
			environ[e[:i]] = e[i+1:]
		}
	}

	return ConfigEnv{
		Mode:       mode.String(),
		Version:    version,
		TargetOS:   runtime.GOOS,
		TargetArch: runtime.GOARCH,
		Environ:    environ,
	}
}
