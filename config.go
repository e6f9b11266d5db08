package ezib

import "time"

// Connection defaults, matching an IB Gateway running on the local machine.
const (
	DefaultHost     = "127.0.0.1"
	DefaultPort     = 4001
	DefaultClientID = 1
	DefaultTimeout  = 30 * time.Second
)

// Config carries the connection parameters passed through to the wrapped
// client and the behaviour switches applied at connection.
type Config struct {
	Host     string
	Port     int
	ClientID int64
	Account  string
	Timeout  time.Duration
	ReadOnly bool
	InSync   bool
}

// Option modifies a Config.
type Option func(*Config)

// NewConfig returns a Config with the gateway defaults, modified by the
// given options.
func NewConfig(options ...Option) *Config {
	config := &Config{
		Host:     DefaultHost,
		Port:     DefaultPort,
		ClientID: DefaultClientID,
		Timeout:  DefaultTimeout,
		InSync:   true,
	}
	for _, option := range options {
		option(config)
	}
	return config
}

// WithHost sets the host name or IP of the TWS or IB Gateway machine.
func WithHost(host string) Option {
	return func(c *Config) { c.Host = host }
}

// WithPort sets the API port. 7496/7497 for TWS live/paper, 4001/4002 for
// the gateway live/paper.
func WithPort(port int) Option {
	return func(c *Config) { c.Port = port }
}

// WithClientID sets the API client id. A client id of 0 also binds orders
// entered manually in TWS.
func WithClientID(clientID int64) Option {
	return func(c *Config) { c.ClientID = clientID }
}

// WithAccount selects the account used for the account update subscription
// when more than one account is managed.
func WithAccount(account string) Option {
	return func(c *Config) { c.Account = account }
}

// WithTimeout sets the timeout for receiving messages from TWS/IBG.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) { c.Timeout = timeout }
}

// WithReadOnly skips the open and completed order sync at connection.
func WithReadOnly() Option {
	return func(c *Config) { c.ReadOnly = true }
}

// WithoutSync connects without subscribing to anything. The cache stays
// empty until the application makes its own requests.
func WithoutSync() Option {
	return func(c *Config) { c.InSync = false }
}
