package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/isdmx/coderunner/language"
)

func TestGuessLanguage(t *testing.T) {
	registry, err := language.NewRegistry(map[string]language.Recipe{
		"cpp":    {Image: "gcc:13", SourceFile: "main.cpp", CompileCmd: "g++ -o program main.cpp", RunCmd: "./program"},
		"python": {Image: "python:3.12-slim", SourceFile: "main.py", RunCmd: "python main.py"},
		"pypy":   {Image: "pypy:3", SourceFile: "prog.pypy", RunCmd: "pypy prog.pypy"},
		"java":   {Image: "eclipse-temurin:21-jdk", SourceFile: "Main.java", CompileCmd: "javac Main.java", RunCmd: "java Main"},
	})
	require.NoError(t, err)

	tests := []struct {
		file     string
		expected string
	}{
		{"hello.py", "python"},
		{"dir/sum.cpp", "cpp"},
		{"Main.java", "java"},
		{"script.rb", ""},
		{"-", ""},
		{"Makefile", ""},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			assert.Equal(t, tt.expected, guessLanguage(registry, tt.file))
		})
	}
}

func TestLanguagesCommand(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetArgs([]string{"languages"})
		require.NoError(t, rootCmd.Execute())

		var doc struct {
			Languages map[string]language.Recipe `yaml:"languages"`
		}
		require.NoError(t, yaml.Unmarshal(out.Bytes(), &doc))
		assert.Equal(t, "javac Main.java", doc.Languages["java"].CompileCmd)
		assert.Equal(t, "main.py", doc.Languages["python"].SourceFile)
		assert.Len(t, doc.Languages, 3)
	})

	t.Run("names", func(t *testing.T) {
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetArgs([]string{"languages", "--names"})
		defer func() { namesOnlyFlag = false }()
		require.NoError(t, rootCmd.Execute())

		assert.Equal(t, []string{"cpp", "java", "python"}, strings.Fields(out.String()))
	})
}

func TestExitCodeError(t *testing.T) {
	assert.Equal(t, "exit status 2", exitCodeError(2).Error())
}
