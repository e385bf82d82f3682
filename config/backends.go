package config

// Drive API defaults
const (
	DefaultDriveBaseURL           = "https://www.googleapis.com/drive/v2"
	DefaultDriveRequestsPerSecond = 10.0
	DefaultDriveBurst             = 20
	DefaultDriveTimeout           = 30.0
)

// DriveConfig configures the Drive backend. Credentials are acquired outside
// this program; either a stored OAuth2 token file or a bare access token is read.
type DriveConfig struct {
	BaseURL           string  // Drive v2 REST base URL
	ClientID          string  // OAuth2 client id used to refresh TokenFile
	ClientSecret      string  // OAuth2 client secret used to refresh TokenFile
	TokenFile         string  // JSON-encoded OAuth2 token
	AccessToken       string  // Static bearer token; used when TokenFile is empty
	RequestsPerSecond float64 // Sustained API request rate (Default 10)
	Burst             int     // API request burst (Default 20)
	Timeout           float64 // Per-request timeout in seconds (Default 30)
}

type DriveOverride struct {
	BaseURL           *string  `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	ClientID          *string  `yaml:"client_id,omitempty" json:"client_id,omitempty"`
	ClientSecret      *string  `yaml:"client_secret,omitempty" json:"client_secret,omitempty"`
	TokenFile         *string  `yaml:"token_file,omitempty" json:"token_file,omitempty"`
	AccessToken       *string  `yaml:"access_token,omitempty" json:"access_token,omitempty"`
	RequestsPerSecond *float64 `yaml:"requests_per_second,omitempty" json:"requests_per_second,omitempty"`
	Burst             *int     `yaml:"burst,omitempty" json:"burst,omitempty"`
	Timeout           *float64 `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

func newDefaultDriveConfig() DriveConfig {
	return DriveConfig{
		BaseURL:           DefaultDriveBaseURL,
		RequestsPerSecond: DefaultDriveRequestsPerSecond,
		Burst:             DefaultDriveBurst,
		Timeout:           DefaultDriveTimeout,
	}
}

func (c *DriveConfig) merge(o *DriveOverride) {
	if o.BaseURL != nil {
		c.BaseURL = *o.BaseURL
	}
	if o.ClientID != nil {
		c.ClientID = *o.ClientID
	}
	if o.ClientSecret != nil {
		c.ClientSecret = *o.ClientSecret
	}
	if o.TokenFile != nil {
		c.TokenFile = *o.TokenFile
	}
	if o.AccessToken != nil {
		c.AccessToken = *o.AccessToken
	}
	if o.RequestsPerSecond != nil {
		c.RequestsPerSecond = *o.RequestsPerSecond
	}
	if o.Burst != nil {
		c.Burst = *o.Burst
	}
	if o.Timeout != nil {
		c.Timeout = *o.Timeout
	}
}

// SFTP defaults
const (
	DefaultSFTPRoot    = "/"
	DefaultSFTPTimeout = 15.0
)

// SFTPConfig configures the SFTP backend. Object ids are absolute remote paths.
type SFTPConfig struct {
	Addr                     string  // host:port
	User                     string
	Password                 string
	KeyFile                  string  // PEM private key
	KnownHostsFile           string  // known_hosts used to verify the server key
	InsecureSkipHostKeyCheck bool    // Accept any host key; only for testing
	Root                     string  // Remote directory mounted as the volume root (Default /)
	Timeout                  float64 // Dial timeout in seconds (Default 15)
}

type SFTPOverride struct {
	Addr                     *string  `yaml:"addr,omitempty" json:"addr,omitempty"`
	User                     *string  `yaml:"user,omitempty" json:"user,omitempty"`
	Password                 *string  `yaml:"password,omitempty" json:"password,omitempty"`
	KeyFile                  *string  `yaml:"key_file,omitempty" json:"key_file,omitempty"`
	KnownHostsFile           *string  `yaml:"known_hosts_file,omitempty" json:"known_hosts_file,omitempty"`
	InsecureSkipHostKeyCheck *bool    `yaml:"insecure_skip_host_key_check,omitempty" json:"insecure_skip_host_key_check,omitempty"`
	Root                     *string  `yaml:"root,omitempty" json:"root,omitempty"`
	Timeout                  *float64 `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

func newDefaultSFTPConfig() SFTPConfig {
	return SFTPConfig{
		Root:    DefaultSFTPRoot,
		Timeout: DefaultSFTPTimeout,
	}
}

func (c *SFTPConfig) merge(o *SFTPOverride) {
	if o.Addr != nil {
		c.Addr = *o.Addr
	}
	if o.User != nil {
		c.User = *o.User
	}
	if o.Password != nil {
		c.Password = *o.Password
	}
	if o.KeyFile != nil {
		c.KeyFile = *o.KeyFile
	}
	if o.KnownHostsFile != nil {
		c.KnownHostsFile = *o.KnownHostsFile
	}
	if o.InsecureSkipHostKeyCheck != nil {
		c.InsecureSkipHostKeyCheck = *o.InsecureSkipHostKeyCheck
	}
	if o.Root != nil {
		c.Root = *o.Root
	}
	if o.Timeout != nil {
		c.Timeout = *o.Timeout
	}
}

// DefaultS3Region is used when neither the config nor the environment names one
const DefaultS3Region = "us-east-1"

// S3Config configures the S3 backend. Object ids are keys; directories are
// "/"-terminated prefixes.
type S3Config struct {
	Bucket          string
	Prefix          string // Key prefix mounted as the volume root
	Region          string
	Endpoint        string // Custom endpoint for S3-compatible stores
	AccessKeyID     string // Static credentials; the default chain is used when empty
	SecretAccessKey string
	UsePathStyle    bool
}

type S3Override struct {
	Bucket          *string `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Prefix          *string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	Region          *string `yaml:"region,omitempty" json:"region,omitempty"`
	Endpoint        *string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	AccessKeyID     *string `yaml:"access_key_id,omitempty" json:"access_key_id,omitempty"`
	SecretAccessKey *string `yaml:"secret_access_key,omitempty" json:"secret_access_key,omitempty"`
	UsePathStyle    *bool   `yaml:"use_path_style,omitempty" json:"use_path_style,omitempty"`
}

func newDefaultS3Config() S3Config {
	return S3Config{Region: DefaultS3Region}
}

func (c *S3Config) merge(o *S3Override) {
	if o.Bucket != nil {
		c.Bucket = *o.Bucket
	}
	if o.Prefix != nil {
		c.Prefix = *o.Prefix
	}
	if o.Region != nil {
		c.Region = *o.Region
	}
	if o.Endpoint != nil {
		c.Endpoint = *o.Endpoint
	}
	if o.AccessKeyID != nil {
		c.AccessKeyID = *o.AccessKeyID
	}
	if o.SecretAccessKey != nil {
		c.SecretAccessKey = *o.SecretAccessKey
	}
	if o.UsePathStyle != nil {
		c.UsePathStyle = *o.UsePathStyle
	}
}
