package ftpclient

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Mode selects which side opens the data connection.
type Mode int

const (
	// ModePassive asks the server to listen (EPSV/PASV). This is the default.
	ModePassive Mode = iota
	// ModeActive makes the client listen and the server connect (PORT/EPRT).
	ModeActive
)

func (m Mode) String() string {
	if m == ModeActive {
		return "active"
	}
	return "passive"
}

// ParseMode parses "passive" or "active" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "passive", "pasv":
		return ModePassive, nil
	case "active", "port":
		return ModeActive, nil
	}
	return ModePassive, fmt.Errorf("unknown transfer mode %q", s)
}

// TLSMode selects how much of the session is encrypted.
type TLSMode int

const (
	// TLSNone uses plain FTP.
	TLSNone TLSMode = iota
	// TLSOpportunistic tries AUTH TLS and continues in clear if the server
	// refuses. When TLS is negotiated both channels are protected.
	TLSOpportunistic
	// TLSControl requires TLS on the control connection only.
	TLSControl
	// TLSFull requires TLS on the control and data connections.
	TLSFull
)

func (m TLSMode) String() string {
	switch m {
	case TLSOpportunistic:
		return "opportunistic"
	case TLSControl:
		return "control"
	case TLSFull:
		return "full"
	default:
		return "none"
	}
}

// ParseTLSMode parses the names returned by TLSMode.String. The aliases
// "try" and "all" are accepted as well.
func ParseTLSMode(s string) (TLSMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return TLSNone, nil
	case "opportunistic", "try":
		return TLSOpportunistic, nil
	case "control":
		return TLSControl, nil
	case "full", "all":
		return TLSFull, nil
	}
	return TLSNone, fmt.Errorf("unknown TLS mode %q", s)
}

// Config is the connection configuration of a Client.
type Config struct {
	// Host is the server hostname or IP address
	Host string `validate:"required,hostname_rfc1123|ip"`

	// Port is the control port
	Port int `validate:"min=1,max=65535"`

	// Username and Password are sent with USER and PASS
	Username string `validate:"required"`
	Password string

	// Mode selects active or passive data connections
	Mode Mode `validate:"min=0,max=1"`

	// TLS selects the encryption level
	TLS TLSMode `validate:"min=0,max=3"`

	// ImplicitTLS starts TLS before the greeting instead of using AUTH TLS.
	// It requires TLS to be TLSControl or TLSFull.
	ImplicitTLS bool

	// VerifyCert enables server certificate verification
	VerifyCert bool

	// Timeout bounds each operation as a whole. Zero means no limit.
	Timeout time.Duration `validate:"min=0"`

	// ConnectTimeout bounds connection establishment
	ConnectTimeout time.Duration `validate:"min=0"`

	// Verbose logs the protocol conversation at debug level
	Verbose bool

	// DisableEPSV forces PASV in passive mode
	DisableEPSV bool

	// ActiveAddr is the local host:port to listen on in active mode. Port
	// 0 picks a free port. Empty means the local address of the control
	// connection.
	ActiveAddr string `validate:"omitempty,listen_addr"`

	// BufferSize is the copy chunk size; progress fires once per chunk
	BufferSize int `validate:"min=1"`

	// MaxListSize caps the size of a directory listing
	MaxListSize int64 `validate:"min=1"`

	// BandwidthLimit caps data transfer speed in bytes per second. Zero
	// means unlimited.
	BandwidthLimit int64 `validate:"min=0"`
}

const (
	defaultPort           = 21
	defaultUsername       = "anonymous"
	defaultPassword       = "user@example.com"
	defaultTimeout        = 60 * time.Second
	defaultConnectTimeout = 30 * time.Second
	defaultBufferSize     = 32 * 1024
	defaultMaxListSize    = 64 << 20
)

// DefaultConfig returns the configuration a new Client starts with.
func DefaultConfig() Config {
	return Config{
		Port:           defaultPort,
		Username:       defaultUsername,
		Password:       defaultPassword,
		Mode:           ModePassive,
		TLS:            TLSNone,
		VerifyCert:     true,
		Timeout:        defaultTimeout,
		ConnectTimeout: defaultConnectTimeout,
		BufferSize:     defaultBufferSize,
		MaxListSize:    defaultMaxListSize,
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("listen_addr", func(fl validator.FieldLevel) bool {
		host, port, err := net.SplitHostPort(fl.Field().String())
		if err != nil {
			return false
		}
		n, err := strconv.Atoi(port)
		if err != nil || n < 0 || n > 65535 {
			return false
		}
		return host == "" || net.ParseIP(host) != nil
	})
	return v
}

// Validate checks the configuration and returns the first problem found.
func (cfg Config) Validate() error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	if cfg.ImplicitTLS && cfg.TLS != TLSControl && cfg.TLS != TLSFull {
		return fmt.Errorf("ImplicitTLS requires TLS mode control or full, got %s", cfg.TLS)
	}
	return nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		e := verrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Field(), e.Tag(), e.Value())
	}
	return err
}
