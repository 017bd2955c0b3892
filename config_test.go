package oaifetch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig writes content to a file in a temporary directory.
func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, "config.txt", `# harvest settings
base_url=https://repo.example.org/oai
metadata_format=oai_dc
storage_directory=/tmp/oai
xpath=//dc:identifier/text()
set=physics
max_records=250
all_formats=true
window_split=monthly
http_timeout=10s
asset_rate=2.5
advance_on_failure=false
log_level=debug
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://repo.example.org/oai", cfg.BaseURL)
	assert.Equal(t, "oai_dc", cfg.MetadataFormat)
	assert.Equal(t, "/tmp/oai", cfg.StorageDirectory)
	assert.Equal(t, StrategyXPath, cfg.Strategy)
	assert.Equal(t, "oai_dc", cfg.FormatSelector)
	assert.Equal(t, "//dc:identifier/text()", cfg.XPath)
	assert.Equal(t, "physics", cfg.Set)
	assert.Equal(t, DefaultStateFile, cfg.StateFile)
	assert.Equal(t, 250, cfg.MaxRecords)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.True(t, cfg.AllFormats)
	assert.Equal(t, "monthly", cfg.WindowSplit)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 2.5, cfg.AssetRate)
	assert.False(t, cfg.AdvanceOnFailure)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "config.txt", `base_url=http://localhost:8080/oai
metadata_format=oai_dc
storage_directory=storage
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, StrategyScan, cfg.Strategy)
	assert.Equal(t, DefaultMaxRecords, cfg.MaxRecords)
	assert.Equal(t, DefaultTimeout, cfg.HTTPTimeout)
	assert.True(t, cfg.AdvanceOnFailure)
	assert.Equal(t, "info", cfg.LogLevel)

	ex, err := cfg.Extractor()
	require.NoError(t, err)
	assert.IsType(t, ScanExtractor{}, ex)
}

func TestLoadConfigAliases(t *testing.T) {
	path := writeConfig(t, "config.txt", `ENDPOINT=https://repo.example.org/oai
METADATA_FORMAT=oai_dc
Storage=/data/oai
FILES_METADATA=marcxml
FILES_XPATH=//subfield[@code='u']
unrelated=1
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://repo.example.org/oai", cfg.BaseURL)
	assert.Equal(t, "/data/oai", cfg.StorageDirectory)
	assert.Equal(t, "marcxml", cfg.FormatSelector)
	assert.Equal(t, StrategyXPath, cfg.Strategy)

	ex, err := cfg.Extractor()
	require.NoError(t, err)
	xe, ok := ex.(*XPathExtractor)
	require.True(t, ok)
	assert.Equal(t, "marcxml", xe.Format)
}

func TestLoadConfigYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `base_url: https://repo.example.org/oai
metadata_format: oai_dc
storage_directory: /tmp/oai
strategy: none
http_timeout: 5s
window_split: weekly
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, StrategyNone, cfg.Strategy)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "weekly", cfg.WindowSplit)
	assert.Equal(t, DefaultMaxRecords, cfg.MaxRecords)

	ex, err := cfg.Extractor()
	require.NoError(t, err)
	assert.Nil(t, ex)
}

func TestLoadConfigHomeDirectory(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	homedir.DisableCache = true
	defer func() { homedir.DisableCache = false }()

	path := writeConfig(t, "config.txt", `base_url=https://repo.example.org/oai
metadata_format=oai_dc
storage_directory=~/oai
state_file=~/oai/state.txt
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "oai"), cfg.StorageDirectory)
	assert.Equal(t, filepath.Join(home, "oai", "state.txt"), cfg.StateFile)
}

func TestLoadConfigErrors(t *testing.T) {
	var tests = []struct {
		about   string
		name    string
		content string
		want    string
	}{
		{"missing base url", "config.txt", "metadata_format=oai_dc\nstorage_directory=x\n", "BaseURL"},
		{"missing format", "config.txt", "base_url=http://x.org/oai\nstorage_directory=x\n", "MetadataFormat"},
		{"missing storage", "config.txt", "base_url=http://x.org/oai\nmetadata_format=oai_dc\n", "StorageDirectory"},
		{"no url", "config.txt", "base_url=not a url\nmetadata_format=oai_dc\nstorage_directory=x\n", "BaseURL"},
		{"xpath strategy without expression", "config.txt",
			"base_url=http://x.org/oai\nmetadata_format=oai_dc\nstorage_directory=x\nstrategy=xpath\n", "XPath"},
		{"unknown strategy", "config.txt",
			"base_url=http://x.org/oai\nmetadata_format=oai_dc\nstorage_directory=x\nstrategy=guess\n", "Strategy"},
		{"bad number", "config.txt",
			"base_url=http://x.org/oai\nmetadata_format=oai_dc\nstorage_directory=x\nmax_records=many\n", "max_records"},
		{"bad split", "config.txt",
			"base_url=http://x.org/oai\nmetadata_format=oai_dc\nstorage_directory=x\nwindow_split=daily\n", "WindowSplit"},
		{"missing ca bundle", "config.txt",
			"base_url=http://x.org/oai\nmetadata_format=oai_dc\nstorage_directory=x\nca_bundle=/does/not/exist.pem\n", "CABundle"},
		{"broken yaml", "config.yml", "base_url: [\n", "parse"},
	}
	for _, test := range tests {
		t.Run(test.about, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, test.name, test.content))
			require.Error(t, err)
			assert.True(t, IsKind(err, KindConfig))
			assert.Contains(t, err.Error(), test.want)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindConfig))
}

func TestConfigNewHarvest(t *testing.T) {
	path := writeConfig(t, "config.txt", `base_url=https://repo.example.org/oai
metadata_format=oai_dc
storage_directory=/tmp/oai
xpath=//dc:identifier
set=physics
max_records=10
all_formats=true
window_split=weekly
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	w := Window{From: mustParseDate("2024-01-01"), Until: mustParseDate("2024-01-02")}
	h, err := cfg.NewHarvest(w)
	require.NoError(t, err)
	assert.Equal(t, "https://repo.example.org/oai", h.Endpoint)
	assert.Equal(t, "oai_dc", h.Prefix)
	assert.Equal(t, "physics", h.Set)
	assert.Equal(t, "weekly", h.Split)
	assert.Equal(t, 10, h.MaxRecords)
	assert.Equal(t, w, h.Window)
	assert.Equal(t, "/tmp/oai", h.Materializer.Root)
	assert.True(t, h.Client.AllFormats)
	assert.NotNil(t, h.Fetcher)
	assert.IsType(t, &XPathExtractor{}, h.Extractor)

	cfg.XPath = "//dc:identifier["
	_, err = cfg.NewHarvest(w)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindConfig))
	assert.True(t, strings.Contains(err.Error(), "extractor"))
}
