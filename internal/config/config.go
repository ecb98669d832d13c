package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ark-network/raffle/internal/core/application"
	"github.com/ark-network/raffle/internal/core/ports"
	"github.com/ark-network/raffle/internal/infrastructure/db"
	localoracle "github.com/ark-network/raffle/internal/infrastructure/oracle/local"
	relayoracle "github.com/ark-network/raffle/internal/infrastructure/oracle/relay"
	timescheduler "github.com/ark-network/raffle/internal/infrastructure/scheduler/gocron"
	"github.com/ark-network/raffle/internal/infrastructure/treasury"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var (
	supportedEventDbs = supportedType{
		"badger":    {},
		"watermill": {},
	}
	supportedDbs = supportedType{
		"badger": {},
		"sqlite": {},
	}
	supportedSchedulers = supportedType{
		"gocron": {},
	}
	supportedOracles = supportedType{
		"local": {},
		"relay": {},
	}
)

type Config struct {
	Datadir         string
	Port            uint32
	NoTLS           bool
	LogLevel        int
	TLSExtraIPs     []string
	TLSExtraDomains []string

	DbType        string
	EventDbType   string
	DbDir         string
	EventDbDir    string
	SchedulerType string
	OracleType    string
	OracleUrl     string
	OracleSecret  string `json:"-"`

	Operator                string
	VrfKeyHash              string
	VrfSubscriptionId       string
	VrfRequestConfirmations uint16
	VrfCallbackGasLimit     uint32
	VrfNumWords             uint32
	OracleBlockInterval     time.Duration
	RandomnessTimeout       time.Duration
	AutoDraw                bool
	RejectedRecipients      []string

	OtelCollectorEndpoint string

	repo      ports.RepoManager
	scheduler ports.SchedulerService
	treasury  ports.Treasury
	oracle    ports.RandomnessOracle
	svc       application.Service
}

func (c *Config) String() string {
	json, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("error while marshalling config JSON: %s", err)
	}
	return string(json)
}

var (
	Datadir                 = "DATADIR"
	Port                    = "PORT"
	NoTLS                   = "NO_TLS"
	LogLevel                = "LOG_LEVEL"
	TLSExtraIP              = "TLS_EXTRA_IP"
	TLSExtraDomain          = "TLS_EXTRA_DOMAIN"
	DbType                  = "DB_TYPE"
	EventDbType             = "EVENT_DB_TYPE"
	SchedulerType           = "SCHEDULER_TYPE"
	OracleType              = "ORACLE_TYPE"
	OracleUrl               = "ORACLE_URL"
	OracleSecret            = "ORACLE_SECRET"
	Operator                = "OPERATOR"
	VrfKeyHash              = "VRF_KEY_HASH"
	VrfSubscriptionId       = "VRF_SUBSCRIPTION_ID"
	VrfRequestConfirmations = "VRF_REQUEST_CONFIRMATIONS"
	VrfCallbackGasLimit     = "VRF_CALLBACK_GAS_LIMIT"
	VrfNumWords             = "VRF_NUM_WORDS"
	OracleBlockInterval     = "ORACLE_BLOCK_INTERVAL"
	RandomnessTimeout       = "RANDOMNESS_TIMEOUT"
	AutoDraw                = "AUTO_DRAW"
	RejectedRecipients      = "REJECTED_RECIPIENTS"
	OtelCollectorEndpoint   = "OTEL_COLLECTOR_ENDPOINT"

	defaultDatadir                 = appDataDir("raffled")
	DefaultPort                    = 7171
	defaultNoTLS                   = true
	defaultLogLevel                = 4
	defaultDbType                  = "badger"
	defaultEventDbType             = "badger"
	defaultSchedulerType           = "gocron"
	defaultOracleType              = "local"
	defaultVrfRequestConfirmations = 3
	defaultVrfCallbackGasLimit     = 1000000
	defaultVrfNumWords             = 1
	defaultOracleBlockInterval     = 2 * time.Second
	defaultRandomnessTimeout       = time.Hour
	defaultAutoDraw                = true
)

func LoadConfig() (*Config, error) {
	viper.SetEnvPrefix("RAFFLE")
	viper.AutomaticEnv()

	viper.SetDefault(Datadir, defaultDatadir)
	viper.SetDefault(Port, DefaultPort)
	viper.SetDefault(NoTLS, defaultNoTLS)
	viper.SetDefault(LogLevel, defaultLogLevel)
	viper.SetDefault(DbType, defaultDbType)
	viper.SetDefault(EventDbType, defaultEventDbType)
	viper.SetDefault(SchedulerType, defaultSchedulerType)
	viper.SetDefault(OracleType, defaultOracleType)
	viper.SetDefault(VrfRequestConfirmations, defaultVrfRequestConfirmations)
	viper.SetDefault(VrfCallbackGasLimit, defaultVrfCallbackGasLimit)
	viper.SetDefault(VrfNumWords, defaultVrfNumWords)
	viper.SetDefault(OracleBlockInterval, defaultOracleBlockInterval)
	viper.SetDefault(RandomnessTimeout, defaultRandomnessTimeout)
	viper.SetDefault(AutoDraw, defaultAutoDraw)

	if err := initDatadir(); err != nil {
		return nil, fmt.Errorf("error while creating datadir: %s", err)
	}

	dbPath := filepath.Join(viper.GetString(Datadir), "db")

	return &Config{
		Datadir:                 viper.GetString(Datadir),
		Port:                    viper.GetUint32(Port),
		NoTLS:                   viper.GetBool(NoTLS),
		LogLevel:                viper.GetInt(LogLevel),
		TLSExtraIPs:             viper.GetStringSlice(TLSExtraIP),
		TLSExtraDomains:         viper.GetStringSlice(TLSExtraDomain),
		DbType:                  viper.GetString(DbType),
		EventDbType:             viper.GetString(EventDbType),
		DbDir:                   dbPath,
		EventDbDir:              dbPath,
		SchedulerType:           viper.GetString(SchedulerType),
		OracleType:              viper.GetString(OracleType),
		OracleUrl:               viper.GetString(OracleUrl),
		OracleSecret:            viper.GetString(OracleSecret),
		Operator:                viper.GetString(Operator),
		VrfKeyHash:              viper.GetString(VrfKeyHash),
		VrfSubscriptionId:       viper.GetString(VrfSubscriptionId),
		VrfRequestConfirmations: viper.GetUint16(VrfRequestConfirmations),
		VrfCallbackGasLimit:     viper.GetUint32(VrfCallbackGasLimit),
		VrfNumWords:             viper.GetUint32(VrfNumWords),
		OracleBlockInterval:     viper.GetDuration(OracleBlockInterval),
		RandomnessTimeout:       viper.GetDuration(RandomnessTimeout),
		AutoDraw:                viper.GetBool(AutoDraw),
		RejectedRecipients:      viper.GetStringSlice(RejectedRecipients),
		OtelCollectorEndpoint:   viper.GetString(OtelCollectorEndpoint),
	}, nil
}

func (c *Config) Validate() error {
	if !supportedEventDbs.supports(c.EventDbType) {
		return fmt.Errorf("event db type not supported, please select one of: %s", supportedEventDbs)
	}
	if !supportedDbs.supports(c.DbType) {
		return fmt.Errorf("db type not supported, please select one of: %s", supportedDbs)
	}
	if !supportedSchedulers.supports(c.SchedulerType) {
		return fmt.Errorf("scheduler type not supported, please select one of: %s", supportedSchedulers)
	}
	if !supportedOracles.supports(c.OracleType) {
		return fmt.Errorf("oracle type not supported, please select one of: %s", supportedOracles)
	}
	if len(c.Operator) <= 0 {
		return fmt.Errorf("missing operator identity")
	}
	if c.RandomnessTimeout < time.Second {
		return fmt.Errorf("invalid randomness timeout, must be at least 1s")
	}
	if c.VrfNumWords == 0 {
		return fmt.Errorf("invalid number of random words, must be at least 1")
	}
	if c.OracleType == "relay" {
		if len(c.OracleUrl) <= 0 {
			return fmt.Errorf("missing oracle url for relay oracle")
		}
		if len(c.OracleSecret) <= 0 {
			return fmt.Errorf("missing oracle secret for relay oracle")
		}
	}

	// Services are built once, a second call only re-checks the fields above.
	if c.repo != nil {
		return nil
	}

	if err := c.repoManager(); err != nil {
		return err
	}
	if err := c.schedulerService(); err != nil {
		return err
	}
	if err := c.treasuryService(); err != nil {
		return err
	}
	if err := c.oracleService(); err != nil {
		return err
	}
	return nil
}

func (c *Config) AppService() (application.Service, error) {
	if c.svc == nil {
		if err := c.appService(); err != nil {
			return nil, err
		}
	}
	return c.svc, nil
}

func (c *Config) OracleService() ports.RandomnessOracle {
	return c.oracle
}

func (c *Config) TreasuryService() ports.Treasury {
	return c.treasury
}

func (c *Config) repoManager() error {
	var eventStoreConfig []interface{}
	var dataStoreConfig []interface{}
	logger := log.New()

	switch c.EventDbType {
	case "badger":
		eventStoreConfig = []interface{}{c.EventDbDir, logger}
	case "watermill":
		eventStoreConfig = []interface{}{c.LogLevel >= int(log.TraceLevel)}
	default:
		return fmt.Errorf("unknown event db type")
	}

	switch c.DbType {
	case "badger":
		dataStoreConfig = []interface{}{c.DbDir, logger}
	case "sqlite":
		if err := makeDirectoryIfNotExists(c.DbDir); err != nil {
			return err
		}
		dataStoreConfig = []interface{}{c.DbDir}
	default:
		return fmt.Errorf("unknown db type")
	}

	svc, err := db.NewService(db.ServiceConfig{
		EventStoreType:   c.EventDbType,
		DataStoreType:    c.DbType,
		EventStoreConfig: eventStoreConfig,
		DataStoreConfig:  dataStoreConfig,
	})
	if err != nil {
		return err
	}

	c.repo = svc
	return nil
}

func (c *Config) schedulerService() error {
	var svc ports.SchedulerService
	var err error
	switch c.SchedulerType {
	case "gocron":
		svc = timescheduler.NewScheduler()
	default:
		err = fmt.Errorf("unknown scheduler type")
	}
	if err != nil {
		return err
	}

	c.scheduler = svc
	return nil
}

func (c *Config) treasuryService() error {
	svc, err := treasury.NewService(
		c.Datadir, c.RejectedRecipients, log.New(),
		func() int64 { return c.scheduler.Now().Unix() },
	)
	if err != nil {
		return err
	}

	c.treasury = svc
	return nil
}

func (c *Config) oracleService() error {
	var svc ports.RandomnessOracle
	var err error
	switch c.OracleType {
	case "local":
		svc, err = localoracle.NewService(c.scheduler, c.OracleBlockInterval)
	case "relay":
		svc, err = relayoracle.NewService(c.OracleUrl, c.OracleSecret)
	default:
		err = fmt.Errorf("unknown oracle type")
	}
	if err != nil {
		return err
	}

	c.oracle = svc
	return nil
}

func (c *Config) appService() error {
	if c.repo == nil {
		return fmt.Errorf("config not validated")
	}

	svc, err := application.NewService(
		application.Config{
			Operator: c.Operator,
			OracleConfig: ports.OracleConfig{
				KeyHash:              c.VrfKeyHash,
				SubscriptionId:       c.VrfSubscriptionId,
				RequestConfirmations: c.VrfRequestConfirmations,
				CallbackGasLimit:     c.VrfCallbackGasLimit,
				NumWords:             c.VrfNumWords,
			},
			RandomnessTimeout: c.RandomnessTimeout,
			AutoDraw:          c.AutoDraw,
		},
		c.repo, c.oracle, c.treasury, c.scheduler,
	)
	if err != nil {
		return err
	}

	c.svc = svc
	return nil
}

func initDatadir() error {
	datadir := viper.GetString(Datadir)
	return makeDirectoryIfNotExists(datadir)
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

func appDataDir(appName string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + appName
	}
	return filepath.Join(home, "."+appName)
}

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	return strings.Join(types, " | ")
}

func (t supportedType) supports(typeStr string) bool {
	_, ok := t[typeStr]
	return ok
}
