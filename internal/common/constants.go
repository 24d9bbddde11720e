package common

// Symbols the dashboard knows about out of the box
const (
	ESSymbol  = "CON.F.US.EP.M25"
	NQSymbol  = "CON.F.US.ENQ.M25"
	MESSymbol = "CON.F.US.MES.M25"
)

// Environment variable keys
const (
	EnvConfigFile    = "CONFIG_FILE"
	EnvDotEnvFile    = "DOTENV_FILE"
	EnvWsURL         = "WS_URL"
	EnvHistoryURL    = "HISTORY_URL"
	EnvHistorySource = "HISTORY_SOURCE"
	EnvSymbol        = "SYMBOL"
	EnvTimeframe     = "TIMEFRAME"
	EnvDataPath      = "DATA_PATH"
	EnvMetricsPort   = "METRICS_PORT"
	EnvPingInterval  = "PING_INTERVAL"
	EnvWriteTimeout  = "WRITE_TIMEOUT"
	EnvReadLimit     = "READ_LIMIT"
	EnvRESTTimeout   = "REST_TIMEOUT"
	EnvReconnect     = "RECONNECT"
	EnvLogLevel      = "LOG_LEVEL"
	EnvLogPretty     = "LOG_PRETTY"
	EnvFeedAddr      = "FEED_ADDR"
	EnvFeedTick      = "FEED_TICK"
)

// Configuration defaults
const (
	DefaultWsURL         = "ws://127.0.0.1:8000/ws"
	DefaultHistoryURL    = "http://127.0.0.1:8000"
	DefaultHistorySource = HistorySourceMock
	DefaultSymbol        = ESSymbol
	DefaultTimeframe     = "5m"
	DefaultMetricsPort   = 8081
	DefaultReadLimit     = 512 * 1024 // 512KB
	DefaultLogLevel      = "info"
	DefaultFeedAddr      = ":8000"
)

// History sources
const (
	HistorySourceMock = "mock"
	HistorySourceREST = "rest"
)

// Protocol actions and data types
const (
	ActionSubscribeMarketData   = "subscribe_market_data"
	ActionUnsubscribeMarketData = "unsubscribe_market_data"
	DataTypeQuote               = "QUOTE"
)

// Validation constants
const (
	MinMetricsPort = 1024
	MaxMetricsPort = 65535
	MinReadLimit   = 1024
	MaxReadLimit   = 16 * 1024 * 1024
)
