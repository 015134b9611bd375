// Package integrations loads per-game reward definitions: a scenario file
// plus the script sources it references. The two built-in fighters ship
// embedded; external directories add custom games at runtime.
package integrations

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/sevketcakir/retro/internal/scenario"
	"github.com/sevketcakir/retro/internal/scripting"
)

//go:embed data
var builtinFS embed.FS

// Integration is one game's reward definition.
type Integration struct {
	// Game is the integration's directory name, e.g.
	// "MortalKombatII-Genesis".
	Game string

	// Scenario binds the reward channels.
	Scenario *scenario.Scenario

	// Sources holds the script source per language, joined in the order the
	// scenario lists the files.
	Sources map[scripting.Language]string
}

// Builtins returns the embedded game integrations.
func Builtins() ([]Integration, error) {
	entries, err := fs.ReadDir(builtinFS, "data")
	if err != nil {
		return nil, fmt.Errorf("integrations: read builtins: %w", err)
	}

	var integrations []Integration
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sub, err := fs.Sub(builtinFS, path.Join("data", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("integrations: %s: %w", entry.Name(), err)
		}
		integ, err := load(sub, entry.Name())
		if err != nil {
			return nil, err
		}
		integrations = append(integrations, integ)
	}
	return integrations, nil
}

// LoadDir loads every subdirectory of dir as one game integration. The
// subdirectory name is the game ID.
func LoadDir(dir string) ([]Integration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("integrations: read dir %s: %w", dir, err)
	}

	var integrations []Integration
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		integ, err := load(os.DirFS(filepath.Join(dir, entry.Name())), entry.Name())
		if err != nil {
			return nil, err
		}
		integrations = append(integrations, integ)
	}
	return integrations, nil
}

// load reads one integration directory: scenario.json plus the script files
// it lists.
func load(fsys fs.FS, game string) (Integration, error) {
	sc, err := scenario.LoadFS(fsys, "scenario.json")
	if err != nil {
		return Integration{}, fmt.Errorf("integrations: %s: %w", game, err)
	}

	sources := make(map[scripting.Language]string)
	for _, name := range sc.Scripts {
		lang, err := languageOf(name)
		if err != nil {
			return Integration{}, fmt.Errorf("integrations: %s: %w", game, err)
		}
		code, err := fs.ReadFile(fsys, name)
		if err != nil {
			return Integration{}, fmt.Errorf("integrations: %s: read %s: %w", game, name, err)
		}
		if existing, ok := sources[lang]; ok {
			sources[lang] = existing + "\n" + string(code)
		} else {
			sources[lang] = string(code)
		}
	}

	integ := Integration{Game: game, Scenario: sc, Sources: sources}
	if err := integ.validate(); err != nil {
		return Integration{}, fmt.Errorf("integrations: %s: %w", game, err)
	}
	return integ, nil
}

func languageOf(name string) (scripting.Language, error) {
	switch path.Ext(name) {
	case ".lua":
		return scripting.LangLua, nil
	case ".js":
		return scripting.LangJS, nil
	}
	return "", fmt.Errorf("unsupported script file %q", name)
}

// validate checks that every script binding has a source to run against.
func (i *Integration) validate() error {
	for _, raw := range i.Scenario.ScriptBindings() {
		binding, err := scripting.ParseBinding(raw)
		if err != nil {
			return err
		}
		if _, ok := i.Sources[binding.Lang]; !ok {
			return fmt.Errorf("binding %q has no %s source", raw, binding.Lang)
		}
	}
	return nil
}
