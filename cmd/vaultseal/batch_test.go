package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func labels(files []batchFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Label
	}
	return out
}

func TestCollectFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "config", "prod.env"), "A=1")
	writeFile(t, filepath.Join(root, "config", "nested", "dev.env"), "B=2")
	writeFile(t, filepath.Join(root, "config", "readme.md"), "docs")
	writeFile(t, filepath.Join(root, ".vaultseal", "secrets", "x.env"), "sealed")

	t.Run("double star", func(t *testing.T) {
		files, err := collectFiles(root, []string{"**/*.env"}, "", filepath.Join(root, ".vaultseal"))
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"config/prod.env", "config/nested/dev.env"}, labels(files))
	})

	t.Run("prefix and dedupe", func(t *testing.T) {
		files, err := collectFiles(root, []string{"config/*.env", "config/prod.env"}, "prod/", "")
		require.NoError(t, err)
		assert.Equal(t, []string{"prod/config/prod.env"}, labels(files))
	})

	t.Run("directories skipped", func(t *testing.T) {
		files, err := collectFiles(root, []string{"config/*"}, "", "")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"config/prod.env", "config/readme.md"}, labels(files))
	})

	t.Run("no match", func(t *testing.T) {
		files, err := collectFiles(root, []string{"*.pem"}, "", "")
		require.NoError(t, err)
		assert.Empty(t, files)
	})

	t.Run("bad pattern", func(t *testing.T) {
		_, err := collectFiles(root, []string{"config/[.env"}, "", "")
		assert.Error(t, err)
	})
}

func TestEnvelopeFormat(t *testing.T) {
	tests := []struct {
		flag, path string
		want       string
		wantErr    bool
	}{
		{"", "", formatJSON, false},
		{"", "secret.yaml", formatYAML, false},
		{"", "secret.YML", formatYAML, false},
		{"", "secret.json", formatJSON, false},
		{"yaml", "secret.json", formatYAML, false},
		{"yml", "", formatYAML, false},
		{"toml", "", "", true},
	}

	for _, tt := range tests {
		got, err := envelopeFormat(tt.flag, tt.path)
		if tt.wantErr {
			assert.Error(t, err, "flag=%q path=%q", tt.flag, tt.path)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "flag=%q path=%q", tt.flag, tt.path)
	}
}
