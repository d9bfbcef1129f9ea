package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/betareaderbr/betareader/models"
)

func TestLoadFileConfig_Grouped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  AppPort: "9090"
  JWTSecret: s3cret
  AllowedOrigins: ["https://betareader.com.br"]
redis:
  RedisHost: redis
  RedisPort: 6380
reader:
  DefaultMonthlyGoal: "300"
  ReferralBonus: "12.50"
pixel:
  PixelID: "123"
`), 0o600))

	var c AppConfig
	found, err := loadFileConfig(path, &c)
	require.NoError(t, err)
	require.True(t, found)
	applyDefaults(&c)

	assert.Equal(t, "9090", c.AppPort)
	assert.Equal(t, "s3cret", c.JWTSecret)
	assert.Equal(t, []string{"https://betareader.com.br"}, c.AllowedOrigins)
	assert.Equal(t, 6380, c.RedisPort)
	assert.Equal(t, "300", c.DefaultMonthlyGoal.String())
	assert.Equal(t, "12.5", c.ReferralBonus.String())
	assert.Equal(t, "50", c.MinWithdraw.String())
	assert.Equal(t, "123", c.PixelID)
	assert.Equal(t, "v18.0", c.PixelAPIVersion)
	assert.Equal(t, "betareader", c.DBName)
}

func TestLoadFileConfig_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"app":{"AppPort":"7070"},"log":{"Level":"debug"}}`), 0o600))

	var c AppConfig
	found, err := loadFileConfig(path, &c)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "7070", c.AppPort)
	assert.Equal(t, "debug", c.LogLevel)
}

func TestLoadFileConfig_MissingAndInvalid(t *testing.T) {
	var c AppConfig
	found, err := loadFileConfig(filepath.Join(t.TempDir(), "nope.yaml"), &c)
	assert.NoError(t, err)
	assert.False(t, found)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("reader:\n  MinWithdraw: \"abc\"\n"), 0o600))
	_, err = loadFileConfig(path, &c)
	assert.Error(t, err)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.com, https://b.com ,")
	t.Setenv("MIN_WITHDRAW", "25")
	t.Setenv("FB_PIXEL_ID", "999")

	var c AppConfig
	applyDefaults(&c)
	applyEnvOverrides(&c)

	assert.Equal(t, "from-env", c.JWTSecret)
	assert.Equal(t, []string{"https://a.com", "https://b.com"}, c.AllowedOrigins)
	assert.Equal(t, "25", c.MinWithdraw.String())
	assert.Equal(t, "999", c.PixelID)
}

func TestSeedBooks_Idempotent(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:seed?mode=memory&cache=shared"), GormConfig("silent"))
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	require.NoError(t, SeedBooks(db))
	require.NoError(t, SeedBooks(db))

	var books []models.Book
	require.NoError(t, db.Order("id").Find(&books).Error)
	assert.Len(t, books, len(starterCatalog))

	ok, err := books[0].CheckAnswers([]int{0, 1})
	require.NoError(t, err)
	assert.True(t, ok)
}
