package config_test

import (
	"context"
	"testing"
	"time"

	"github.com/ark-network/raffle/internal/config"
	"github.com/ark-network/raffle/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	datadir := t.TempDir()
	t.Setenv("RAFFLE_DATADIR", datadir)
	t.Setenv("RAFFLE_OPERATOR", "operator")
	t.Setenv("RAFFLE_RANDOMNESS_TIMEOUT", "30m")
	t.Setenv("RAFFLE_VRF_KEY_HASH", "0xabc")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	require.Equal(t, datadir, cfg.Datadir)
	require.Equal(t, "operator", cfg.Operator)
	require.Equal(t, 30*time.Minute, cfg.RandomnessTimeout)
	require.Equal(t, "0xabc", cfg.VrfKeyHash)
	require.Equal(t, uint16(3), cfg.VrfRequestConfirmations)
	require.Equal(t, uint32(1000000), cfg.VrfCallbackGasLimit)
	require.Equal(t, uint32(1), cfg.VrfNumWords)
	require.Equal(t, "badger", cfg.DbType)
	require.Equal(t, "local", cfg.OracleType)
	require.NotContains(t, cfg.String(), "OracleSecret")
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		fixtures := []struct {
			dbType, eventDbType string
		}{
			{"badger", "badger"},
			{"sqlite", "watermill"},
		}
		for _, f := range fixtures {
			t.Run(f.dbType+"/"+f.eventDbType, func(t *testing.T) {
				cfg := validConfig(t)
				cfg.DbType = f.dbType
				cfg.EventDbType = f.eventDbType

				require.NoError(t, cfg.Validate())
				require.NotNil(t, cfg.OracleService())
				require.NotNil(t, cfg.TreasuryService())

				svc, err := cfg.AppService()
				require.NoError(t, err)
				require.Equal(t, "operator", svc.GetOperator())

				roundId, err := svc.OpenRound(context.Background(), "operator", domain.RoundParams{
					EntryPrice:     10,
					MaxEntries:     5,
					CommissionRate: 10,
					Expiration:     time.Now().Add(time.Hour).Unix(),
				})
				require.NoError(t, err)
				require.Equal(t, uint64(1), roundId)

				svc.Stop()
			})
		}
	})

	t.Run("invalid", func(t *testing.T) {
		fixtures := []struct {
			name   string
			modify func(*config.Config)
		}{
			{"event db", func(c *config.Config) { c.EventDbType = "postgres" }},
			{"db", func(c *config.Config) { c.DbType = "redis" }},
			{"scheduler", func(c *config.Config) { c.SchedulerType = "block" }},
			{"oracle", func(c *config.Config) { c.OracleType = "chainlink" }},
			{"operator", func(c *config.Config) { c.Operator = "" }},
			{"timeout", func(c *config.Config) { c.RandomnessTimeout = 0 }},
			{"sub_second_timeout", func(c *config.Config) { c.RandomnessTimeout = 500 * time.Millisecond }},
			{"num words", func(c *config.Config) { c.VrfNumWords = 0 }},
			{"relay url", func(c *config.Config) { c.OracleType = "relay"; c.OracleSecret = "secret" }},
			{"relay secret", func(c *config.Config) { c.OracleType = "relay"; c.OracleUrl = "http://localhost:7071" }},
		}
		for _, f := range fixtures {
			t.Run(f.name, func(t *testing.T) {
				cfg := validConfig(t)
				f.modify(cfg)
				require.Error(t, cfg.Validate())
			})
		}
	})

	t.Run("not validated", func(t *testing.T) {
		cfg := validConfig(t)
		svc, err := cfg.AppService()
		require.Error(t, err)
		require.Nil(t, svc)
	})
}

func validConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		Datadir:                 dir,
		DbDir:                   dir + "/db",
		EventDbDir:              dir + "/db",
		DbType:                  "badger",
		EventDbType:             "badger",
		SchedulerType:           "gocron",
		OracleType:              "local",
		Operator:                "operator",
		VrfRequestConfirmations: 3,
		VrfCallbackGasLimit:     1000000,
		VrfNumWords:             1,
		OracleBlockInterval:     time.Second,
		RandomnessTimeout:       time.Hour,
	}
}
