package tenancy

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/odyssee/backend/internal/domain/shared"
)

// CredentialField names one encrypted credential slot of an agency
type CredentialField string

const (
	CredentialGoogleAPIKey      CredentialField = "google_api_key"
	CredentialStripeAPIKey      CredentialField = "stripe_api_key"
	CredentialMailConfig        CredentialField = "mail_config"
	CredentialPublicationConfig CredentialField = "publication_config"
)

// AllCredentialFields lists every credential slot in a stable order
func AllCredentialFields() []CredentialField {
	return []CredentialField{
		CredentialGoogleAPIKey,
		CredentialStripeAPIKey,
		CredentialMailConfig,
		CredentialPublicationConfig,
	}
}

// ErrCredentialNotConfigured is returned when an operation needs a credential the agency has not set
var ErrCredentialNotConfigured = shared.NewDomainError("CREDENTIAL_NOT_CONFIGURED", "Agency credential is not configured")

// NotConfigured returns an error matching ErrCredentialNotConfigured that names field
func NotConfigured(field CredentialField) error {
	return shared.NewDomainError(ErrCredentialNotConfigured.Code, fmt.Sprintf("Agency %s is not configured", strings.ReplaceAll(string(field), "_", " ")))
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Port is a TCP port that also accepts its JSON string form ("587"),
// which older agency configurations used.
type Port int

// UnmarshalJSON implements json.Unmarshaler
func (p *Port) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*p = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid port %q", s)
	}
	*p = Port(n)
	return nil
}

// MailConfig is an agency's SMTP account used for client mails
type MailConfig struct {
	Server   string `json:"server" validate:"required"`
	Port     Port   `json:"port" validate:"required,min=1,max=65535"`
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	UseTLS   bool   `json:"use_tls"`
	UseSSL   bool   `json:"use_ssl"`
	Sender   string `json:"sender,omitempty" validate:"omitempty,email"`
}

// Validate checks the configuration is complete enough to open an SMTP session
func (c MailConfig) Validate() error {
	return validationError("mail configuration", validate.Struct(c))
}

// PublicationKind selects the publication backend
type PublicationKind string

const (
	PublicationFTP PublicationKind = "ftp"
	PublicationS3  PublicationKind = "s3"
)

// FTPConfig is an FTP account trip sheets are uploaded to
type FTPConfig struct {
	Host     string `json:"host" validate:"required"`
	Port     Port   `json:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	User     string `json:"user" validate:"required"`
	Password string `json:"password" validate:"required"`
	Path     string `json:"path,omitempty"`
}

// Address returns host:port, defaulting to port 21
func (c FTPConfig) Address() string {
	port := c.Port
	if port == 0 {
		port = 21
	}
	if strings.Contains(c.Host, ":") {
		return c.Host
	}
	return c.Host + ":" + strconv.Itoa(int(port))
}

// S3Config is an S3-compatible bucket trip sheets are written to
type S3Config struct {
	Bucket        string `json:"bucket" validate:"required"`
	Region        string `json:"region,omitempty"`
	Endpoint      string `json:"endpoint,omitempty" validate:"omitempty,url"`
	AccessKey     string `json:"access_key" validate:"required"`
	SecretKey     string `json:"secret_key" validate:"required"`
	Prefix        string `json:"prefix,omitempty"`
	PublicBaseURL string `json:"public_base_url,omitempty" validate:"omitempty,url"`
	UsePathStyle  bool   `json:"use_path_style,omitempty"`
}

// PublicationConfig is a tagged variant: exactly the member matching Kind is set
type PublicationConfig struct {
	Kind PublicationKind `json:"kind"`
	FTP  *FTPConfig      `json:"ftp,omitempty"`
	S3   *S3Config       `json:"s3,omitempty"`
}

// UnmarshalJSON accepts the tagged form and the legacy flat FTP form
// ({"host","user","password","path"} without a kind).
func (c *PublicationConfig) UnmarshalJSON(data []byte) error {
	type tagged PublicationConfig
	var doc struct {
		tagged
		Host     string `json:"host"`
		Port     Port   `json:"port"`
		User     string `json:"user"`
		Password string `json:"password"`
		Path     string `json:"path"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*c = PublicationConfig(doc.tagged)
	if c.Kind == "" && c.FTP == nil && c.S3 == nil && doc.Host != "" {
		c.Kind = PublicationFTP
		c.FTP = &FTPConfig{
			Host:     doc.Host,
			Port:     doc.Port,
			User:     doc.User,
			Password: doc.Password,
			Path:     doc.Path,
		}
	}
	return nil
}

// Validate checks that the variant is consistent and complete
func (c PublicationConfig) Validate() error {
	switch c.Kind {
	case PublicationFTP:
		if c.FTP == nil || c.S3 != nil {
			return shared.NewDomainError("INVALID_PUBLICATION_CONFIG", "ftp publication requires only the ftp section")
		}
		return validationError("ftp configuration", validate.Struct(c.FTP))
	case PublicationS3:
		if c.S3 == nil || c.FTP != nil {
			return shared.NewDomainError("INVALID_PUBLICATION_CONFIG", "s3 publication requires only the s3 section")
		}
		return validationError("s3 configuration", validate.Struct(c.S3))
	default:
		return shared.NewDomainError("INVALID_PUBLICATION_CONFIG", fmt.Sprintf("unknown publication kind %q", c.Kind))
	}
}

func validationError(subject string, err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s (%s)", strings.ToLower(fe.Field()), fe.Tag()))
		}
		return shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("invalid %s: %s", subject, strings.Join(fields, ", ")))
	}
	return shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("invalid %s: %v", subject, err))
}
