package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestModelsLatest(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "0"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "4"), 0o755))

	out, err := execute(t, "models", "latest", "--registry", root)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, filepath.Join(root, "4")+"\n"), out)
	assert.Contains(t, out, filepath.Join(root, "4", "model", "model.json"))

	out, err = execute(t, "models", "latest", "--registry", root, "--next")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "5")+"\n", out)
	latestNext = false
}

func TestPredictCommand(t *testing.T) {
	root := t.TempDir()
	registry := filepath.Join(root, "saved_models")
	writeFile(t, filepath.Join(registry, "0", "transformer", "transformer.json"),
		`{"feature_names_in": ["age", "smoker"], "imputer": {"strategy": "constant", "fill_value": 0}}`)
	writeFile(t, filepath.Join(registry, "0", "target_encoder", "target_encoder.json"),
		`{"kind": "label", "classes": {"smoker": ["no", "yes"]}}`)
	writeFile(t, filepath.Join(registry, "0", "model", "model.json"),
		`{"kind": "linear", "coef": [100, 20000], "intercept": 500}`)
	input := filepath.Join(root, "insurance.csv")
	writeFile(t, input, "age,smoker\n30,no\n40,yes\nna,no\n")
	textfile := filepath.Join(root, "insurekit.prom")

	out, err := execute(t, "predict", input,
		"--registry", registry,
		"--output-dir", filepath.Join(root, "prediction"),
		"--chunk-size", "2", "--concurrency", "2",
		"--metrics-textfile", textfile)
	require.NoError(t, err)

	output := strings.TrimSpace(out)
	assert.Equal(t, filepath.Join(root, "prediction"), filepath.Dir(output))
	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "age,smoker,prediction\n30.0,0,3500.0\n40.0,1,24500.0\n,0,500.0\n", string(data))

	prom, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "insurekit_batch_rows_predicted 3")
}

func TestDataDump_RequiresURI(t *testing.T) {
	t.Setenv("INSUREKIT_MONGO_URI", "")
	_, err := execute(t, "datadump", filepath.Join(t.TempDir(), "insurance.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mongo uri is required")
}

func TestModelsPromote_FSBackend(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "1"), 0o755))

	_, err := execute(t, "models", "promote", "1", "--registry", root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pointer store")
}
