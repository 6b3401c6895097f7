package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigPlaceholders(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.yaml"), []byte(`
jwt:
  secret: ${TRACKER_TEST_JWT}
db:
  password: ${TRACKER_TEST_DB}
  hosts: ["${TRACKER_TEST_HOST}", "static"]
mq:
  url: ${TRACKER_TEST_UNSET}
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secrets.env"), []byte("# local\nTRACKER_TEST_DB=\"from-file\"\n"), 0o600))
	t.Setenv("TRACKER_TEST_JWT", "from-env")
	t.Setenv("TRACKER_TEST_DB", "env-loses")
	t.Setenv("TRACKER_TEST_HOST", "db1")

	cfg, err := LoadConfig("missing-overlay", dir)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg["jwt"].(map[string]interface{})["secret"])
	db := cfg["db"].(map[string]interface{})
	assert.Equal(t, "from-file", db["password"])
	assert.Equal(t, []interface{}{"db1", "static"}, db["hosts"])
	assert.Equal(t, "", cfg["mq"].(map[string]interface{})["url"])
}

func TestMergeMaps(t *testing.T) {
	base := map[string]interface{}{
		"db":     map[string]interface{}{"host": "localhost", "port": 5432},
		"server": map[string]interface{}{"port": "8080"},
	}
	overlay := map[string]interface{}{
		"db":      map[string]interface{}{"host": "postgres"},
		"storage": "memory",
	}

	got := mergeMaps(base, overlay)
	assert.Equal(t, map[string]interface{}{"host": "postgres", "port": 5432}, got["db"])
	assert.Equal(t, map[string]interface{}{"port": "8080"}, got["server"])
	assert.Equal(t, "memory", got["storage"])
	assert.Equal(t, "localhost", base["db"].(map[string]interface{})["host"])
}
