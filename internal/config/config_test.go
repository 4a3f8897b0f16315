package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	require.NotNil(t, c)

	assert.Equal(t, 120*time.Second, c.Polling.Interval)
	assert.Equal(t, "http://pbw.spaceempires.net/", c.PBW.BaseURL)
	assert.False(t, c.Host.Enabled)
	assert.True(t, c.Player.HidePlayerZero)
	assert.Equal(t, "sqlite", c.Database.Driver)
	assert.Equal(t, "./config/defaults.yaml", c.Paths.DefaultsFile)
	assert.Equal(t, "7z", c.Archive.Format)
	assert.Empty(t, c.Archive.SevenZip)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
pbw:
  username: admiral
  password: secret
  ignore_bad_certificates: true
polling:
  interval: 45s
host:
  enabled: true
player:
  auto_download: true
  auto_upload: true
archive:
  seven_zip: /usr/bin/7za
notify:
  telegram:
    enabled: true
    token: "123:abc"
    chat_id: 42
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "admiral", c.PBW.Username)
	assert.True(t, c.PBW.IgnoreBadCertificates)
	assert.Equal(t, 45*time.Second, c.Polling.Interval)
	assert.True(t, c.Host.Enabled)
	assert.True(t, c.Player.AutoDownload)
	assert.True(t, c.Player.AutoUpload)
	assert.Equal(t, int64(42), c.Notify.Telegram.ChatID)
	assert.Equal(t, "/usr/bin/7za", c.Archive.SevenZip)
	assert.Equal(t, "7z", c.Archive.Format)
	// 未出现的键保留默认值
	assert.Equal(t, "http://pbw.spaceempires.net/", c.PBW.BaseURL)
}

func TestValidate(t *testing.T) {
	c := Default()
	c.Polling.Interval = 0
	assert.Error(t, c.Validate())

	c = Default()
	c.Notify.Telegram.Enabled = true
	assert.Error(t, c.Validate())

	c = Default()
	c.PBW.BaseURL = ""
	assert.Error(t, c.Validate())

	c = Default()
	c.Archive.Format = "rar"
	assert.Error(t, c.Validate())
	c.Archive.Format = "ZIP"
	assert.NoError(t, c.Validate())
}
