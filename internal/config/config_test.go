package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t77yq/outbreak-sentinel/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	path := writeFile(t, "config.yaml", `
app:
  name: sentinel-test
nats:
  urls:
    - nats://10.0.0.1:4222
engine:
  workers: 4
  message_templates:
    fever-cluster: "Fever in {location}"
  recommendations:
    by_condition:
      water_ph:
        - Retest tomorrow
schedule:
  evaluation: "*/30 * * * * *"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sentinel-test", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, []string{"nats://10.0.0.1:4222"}, cfg.NATS.URLs)
	assert.Equal(t, 2*time.Second, cfg.NATS.ReconnectWait)
	assert.Equal(t, 4, cfg.Engine.Workers)
	assert.Equal(t, "*/30 * * * * *", cfg.Schedule.Evaluation)
	assert.Equal(t, "0 0 3 * * *", cfg.Schedule.Cleanup)
	assert.Equal(t, 30*24*time.Hour, cfg.Storage.Retention)
	assert.Equal(t, model.AlertSeverityHigh, cfg.Notify.MinSeverity)

	templates := cfg.Engine.Templates()
	assert.Equal(t, "Fever in {location}", templates["fever-cluster"])
	assert.Contains(t, templates, "diarrhea-outbreak")

	recs := cfg.Engine.RecommendationTable()
	assert.Equal(t, []string{"Retest tomorrow"}, recs.For(model.Rule{Condition: model.ConditionWaterPH}))
	assert.Len(t, recs.For(model.Rule{Condition: model.ConditionSeverityCount}), 5)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeFile(t, "config.yaml", "app:\n  name: from-file\n")
	t.Setenv("SENTINEL_APP_NAME", "from-env")
	t.Setenv("SENTINEL_STORAGE_PATH", "/tmp/env.db")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.App.Name)
	assert.Equal(t, "/tmp/env.db", cfg.Storage.Path)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadRules(t *testing.T) {
	path := writeFile(t, "rules.yaml", `
rules:
  - id: cholera-watch
    name: Cholera Watch
    condition: symptom_count
    threshold: 2
    severity: critical
    window_hours: 12
    active: true
    trigger_symptoms: [Diarrhea, Vomiting]
    alert_type: disease_outbreak
  - id: ph-watch
    name: pH Watch
    condition: water_ph
    threshold: 1
    severity: low
    window_hours: 6
    active: false
`)

	rules, err := LoadRules(path)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, "cholera-watch", rules[0].ID)
	assert.Equal(t, model.ConditionSymptomCount, rules[0].Condition)
	assert.Equal(t, []string{"Diarrhea", "Vomiting"}, rules[0].TriggerSymptoms)
	assert.Equal(t, model.AlertTypeDiseaseOutbreak, rules[0].AlertType)
	assert.Equal(t, 12*time.Hour, rules[0].Window())
	assert.False(t, rules[1].Active)
}

func TestLoadRules_DefaultsAndErrors(t *testing.T) {
	rules, err := LoadRules("")
	require.NoError(t, err)
	assert.Len(t, rules, 5)

	_, err = LoadRules(writeFile(t, "bad.yaml", "rules:\n  - name: no id\n"))
	require.Error(t, err)

	_, err = LoadRules(writeFile(t, "broken.yaml", "rules: [\n"))
	require.Error(t, err)
}
