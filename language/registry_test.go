package language

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdmx/coderunner/config"
)

func testRecipes() map[string]Recipe {
	return map[string]Recipe{
		CPP:    {Image: "gcc:13", SourceFile: "main.cpp", CompileCmd: "g++ -o program main.cpp", RunCmd: "./program"},
		Python: {Image: "python:3.12-slim", SourceFile: "main.py", RunCmd: "python main.py"},
		Java:   {Image: "eclipse-temurin:21-jdk", SourceFile: "Main.java", CompileCmd: "javac Main.java", RunCmd: "java Main"},
	}
}

func TestResolve(t *testing.T) {
	reg, err := NewRegistry(testRecipes())
	require.NoError(t, err)

	tests := []struct {
		language string
		expected string
		compiled bool
		hasError bool
	}{
		{"cpp", "main.cpp", true, false},
		{"python", "main.py", false, false},
		{"java", "Main.java", true, false},
		{"ruby", "", false, true},
		{"", "", false, true},
		{"Python", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.language, func(t *testing.T) {
			recipe, err := reg.Resolve(tt.language)
			if tt.hasError {
				require.ErrorIs(t, err, ErrUnsupported)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, recipe.SourceFile)
			assert.Equal(t, tt.compiled, recipe.Compiled())
		})
	}
}

func TestNewRegistryValidation(t *testing.T) {
	tests := []struct {
		name    string
		recipes map[string]Recipe
	}{
		{"Empty", map[string]Recipe{}},
		{"EmptyID", map[string]Recipe{"": {Image: "x", SourceFile: "a", RunCmd: "a"}}},
		{"MissingImage", map[string]Recipe{"go": {SourceFile: "main.go", RunCmd: "go run main.go"}}},
		{"MissingRun", map[string]Recipe{"go": {Image: "golang:1.23", SourceFile: "main.go"}}},
		{"NestedSource", map[string]Recipe{"go": {Image: "golang:1.23", SourceFile: "../main.go", RunCmd: "go run main.go"}}},
		{"DotSource", map[string]Recipe{"go": {Image: "golang:1.23", SourceFile: "..", RunCmd: "go run ."}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.recipes)
			require.Error(t, err)
		})
	}
}

func TestRegistryIsImmutable(t *testing.T) {
	recipes := testRecipes()
	reg, err := NewRegistry(recipes)
	require.NoError(t, err)

	// mutating the input or the returned copies must not leak into the registry
	recipes["ruby"] = Recipe{Image: "ruby", SourceFile: "main.rb", RunCmd: "ruby main.rb"}
	reg.Recipes()["python"] = Recipe{}
	ids := reg.Languages()
	ids[0] = "brainfuck"

	assert.Equal(t, []string{"cpp", "java", "python"}, reg.Languages())
	recipe, err := reg.Resolve("python")
	require.NoError(t, err)
	assert.Equal(t, "python main.py", recipe.RunCmd)
	_, err = reg.Resolve("ruby")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestNewFromConfig(t *testing.T) {
	cfg := &config.Config{
		Languages: map[string]config.Language{
			"python": {Image: "python:3.12-slim", SourceFile: "main.py", RunCmd: "python main.py"},
			"cpp":    {Image: "gcc:13", SourceFile: "main.cpp", CompileCmd: "g++ -o program main.cpp", RunCmd: "./program"},
		},
	}

	reg, err := NewFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"cpp", "python"}, reg.Languages())

	recipe, err := reg.Resolve("cpp")
	require.NoError(t, err)
	assert.Equal(t, "gcc:13", recipe.Image)
	assert.Equal(t, "g++ -o program main.cpp", recipe.CompileCmd)
}
