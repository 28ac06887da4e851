package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/booking-record-engine/internal/model"
	"github.com/iliyamo/booking-record-engine/internal/utils"
)

func TestParseDefinitions(t *testing.T) {
	items, err := parseDefinitions([]byte(`[{"key":"visa_number","label":"Visa","type":"string"},
		{"key":"pickup","label":"Pickup","type":"boolean","is_active":false}]`))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "visa_number", items[0].Key)
	assert.Nil(t, items[0].Active)
	require.NotNil(t, items[1].Active)
	assert.False(t, *items[1].Active)

	items, err = parseDefinitions([]byte(`{"definitions":[{"key":"room","label":"Room","type":"string"}]}`))
	require.NoError(t, err)
	assert.Len(t, items, 1)

	_, err = parseDefinitions([]byte(`[]`))
	assert.Error(t, err)
	_, err = parseDefinitions([]byte(`{nope`))
	assert.Error(t, err)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recordctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db_host: db.internal\ndb_name: bookings\n"), 0o644))
	t.Setenv("DB_NAME", "bookings_env")

	v, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "db.internal", v.GetString(keyDBHost))
	assert.Equal(t, "bookings_env", v.GetString(keyDBName))
	assert.Equal(t, "3306", v.GetString(keyDBPort))

	_, err = loadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs([]string{"token", "--actor", "kim", "--role", "admin", "--ttl", "1h"})
	require.NoError(t, rootCmd.Execute())

	claims, err := utils.ParseAccessToken("s3cret", strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, utils.Claims{Actor: "kim", Role: "admin"}, claims)
	assert.Contains(t, errOut.String(), "expires")
}

func TestPrintDefinitionsTable(t *testing.T) {
	var buf bytes.Buffer
	defs := []model.FieldDefinition{{Key: "visa_number", Label: "Visa", Type: "string", Category: "general", IsActive: true,
		CreatedAt: time.Unix(0, 0)}}
	require.NoError(t, printDefinitions(&buf, defs, false))
	assert.Contains(t, buf.String(), "KEY")
	assert.Contains(t, buf.String(), "visa_number")
}
