package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirqtio/LeadFactory-v1-sub002/internal/config"
	"github.com/mirqtio/LeadFactory-v1-sub002/internal/enrich"
	"github.com/mirqtio/LeadFactory-v1-sub002/internal/matcher"
	"github.com/mirqtio/LeadFactory-v1-sub002/internal/model"
	"github.com/mirqtio/LeadFactory-v1-sub002/internal/similarity"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"enrich", "match", "dedupe", "serve"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "leadfactory", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestEnrichCommand_Flags(t *testing.T) {
	for _, name := range []string{"input", "output", "sources", "priority", "skip-existing", "timeout"} {
		assert.NotNil(t, enrichCmd.Flags().Lookup(name), "enrich should have --%s", name)
	}
	assert.Equal(t, "-", enrichCmd.Flags().Lookup("input").DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
}

func TestDecodeBusinesses(t *testing.T) {
	one, err := decodeBusinesses([]byte(` {"id":"a","name":"Acme"}`))
	require.NoError(t, err)
	assert.Equal(t, []model.Business{{ID: "a", Name: "Acme"}}, one)

	many, err := decodeBusinesses([]byte(`[{"id":"a"},{"id":"b","zip":"94105"}]`))
	require.NoError(t, err)
	require.Len(t, many, 2)
	assert.Equal(t, "94105", many[1].Zip)

	_, err = decodeBusinesses([]byte(`nope`))
	require.Error(t, err)
}

func TestMatcherConfig(t *testing.T) {
	mc := matcherConfig(config.MatchConfig{
		Weights:      map[string]float64{"business_name": 0.6, "phone": 0.4},
		Thresholds:   config.ThresholdConfig{Exact: 0.9, High: 0.8, Medium: 0.6, Low: 0.4},
		RequireName:  true,
		CacheTTLMins: 5,
	})
	assert.Equal(t, 0.6, mc.Weights[similarity.AttrName])
	assert.Len(t, mc.Weights, 2)
	assert.Equal(t, 0.4, mc.Thresholds.Low)
	assert.True(t, mc.RequireName)
	assert.Equal(t, 5*time.Minute, mc.CacheTTL)
	assert.Equal(t, matcher.DefaultConfig().MaxCandidates, mc.MaxCandidates)
	require.NoError(t, mc.Validate())

	def := matcherConfig(config.MatchConfig{})
	assert.Equal(t, matcher.DefaultThresholds(), def.Thresholds)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: ":memory:"},
		Places: config.PlacesConfig{
			Key:        "test-key",
			BaseURL:    "http://127.0.0.1:1",
			MaxResults: 5,
		},
		Match: config.MatchConfig{Thresholds: config.ThresholdConfig{Exact: 0.95, High: 0.85, Medium: 0.7, Low: 0.5}},
		Enrich: config.EnrichConfig{
			Sources:         []string{"internal"},
			MaxConcurrent:   2,
			FreshnessDays:   30,
			SearchCacheMins: 10,
		},
		Server: config.ServerConfig{Port: 8080},
	}
}

func TestInitEnv_Wiring(t *testing.T) {
	mr := miniredis.RunT(t)
	c := testConfig(t)
	c.Redis = config.RedisConfig{Addr: mr.Addr(), Prefix: "lf"}

	env, err := initEnv(context.Background(), c, "serve")
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Store)
	assert.NotNil(t, env.Metrics)
	assert.Equal(t, []model.Source{model.SourceInternal}, env.Registry.Sources())

	// The matcher cache lives in redis.
	env.Matcher.MatchRecords(model.Business{ID: "x", Name: "Acme"}, model.Business{ID: "y", Name: "Acme"})
	assert.NotEmpty(t, mr.Keys())
}

func TestInitEnv_Rejects(t *testing.T) {
	c := testConfig(t)
	c.Enrich.MaxConcurrent = 0
	_, err := initEnv(context.Background(), c, "enrich")
	require.Error(t, err)

	c = testConfig(t)
	c.Enrich.PolicyFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = initEnv(context.Background(), c, "enrich")
	require.Error(t, err)
}

func TestInitEnv_NoPlacesKey(t *testing.T) {
	c := testConfig(t)
	c.Places.Key = ""
	env, err := initEnv(context.Background(), c, "enrich")
	require.NoError(t, err)
	defer env.Close()

	assert.Empty(t, env.Registry.Sources())
	_, err = env.Coordinator.EnrichBatch(context.Background(), []model.Business{{ID: "a", Name: "Acme"}}, enrich.BatchOptions{})
	require.Error(t, err)
}

func TestLoadPolicy_FromConfig(t *testing.T) {
	p, err := loadPolicy(config.EnrichConfig{Sources: []string{"internal", " vendor "}, FreshnessDays: 3})
	require.NoError(t, err)
	assert.Equal(t, []model.Source{"internal", "vendor"}, p.Order())
	assert.Equal(t, 72*time.Hour, p.Freshness(time.Hour))
}

func TestMatchCommand(t *testing.T) {
	dir := t.TempDir()
	left := filepath.Join(dir, "left.json")
	right := filepath.Join(dir, "right.json")
	require.NoError(t, os.WriteFile(left, []byte(`{"id":"a","name":"Acme Corporation","phone":"+1-415-555-1234","zip":"94105"}`), 0o600))
	require.NoError(t, os.WriteFile(right, []byte(`{"id":"b","name":"ACME CORP.","phone":"(415) 555-1234","zip":"94105"}`), 0o600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"match", left, right})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.Execute())

	var res matcher.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, model.ConfidenceExact, res.Confidence)
	assert.Equal(t, "a", res.ID1)
}

func TestDedupeCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id":"1","name":"Acme Plumbing","phone":"415-555-1234","zip":"94105"},
		{"id":"2","name":"Acme Plumbing Inc","phone":"(415) 555-1234","zip":"94105"},
		{"id":"3","name":"Zeta Bakery","phone":"617-555-0000","zip":"02110"}
	]`), 0o600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"dedupe", path})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.Execute())

	var groups []matcher.DedupGroup
	require.NoError(t, json.Unmarshal(out.Bytes(), &groups))
	assert.Len(t, groups, 2)
}
