package dbapi

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// ReadDeleted values control whether soft-deleted rows are visible.
const (
	ReadDeletedNo   = "no"
	ReadDeletedYes  = "yes"
	ReadDeletedOnly = "only"
)

// CallerContext identifies the requester of a data operation and its privilege level.
// It is built by the request-handling layer and treated as read-only here.
//
// A nil *CallerContext means the context is absent.
type CallerContext struct {
	// UserID and ProjectID identify an ordinary caller.
	UserID    string
	ProjectID string

	// IsAdmin grants administrative privilege.
	IsAdmin bool

	// Roles carries role names attached by the identity layer.
	Roles []string

	// ReadDeleted is one of ReadDeletedNo, ReadDeletedYes, ReadDeletedOnly.
	// Empty behaves as ReadDeletedNo.
	ReadDeleted string

	// RequestID correlates log entries of one request.
	RequestID uuid.UUID
}

// NewCallerContext creates an ordinary caller context with a fresh request ID.
func NewCallerContext(userID, projectID string) *CallerContext {
	return &CallerContext{
		UserID:      userID,
		ProjectID:   projectID,
		ReadDeleted: ReadDeletedNo,
		RequestID:   uuid.New(),
	}
}

// NewAdminContext creates an administrative caller context with a fresh request ID.
func NewAdminContext() *CallerContext {
	return &CallerContext{
		IsAdmin:     true,
		ReadDeleted: ReadDeletedNo,
		RequestID:   uuid.New(),
	}
}

// Elevated returns a copy of the context carrying administrative privilege.
func (c *CallerContext) Elevated() *CallerContext {
	clone := *c
	clone.IsAdmin = true
	clone.Roles = slices.Clone(c.Roles)
	return &clone
}

// WithReadDeleted returns a copy of the context with the given ReadDeleted mode.
func (c *CallerContext) WithReadDeleted(mode string) *CallerContext {
	clone := *c
	clone.ReadDeleted = mode
	clone.Roles = slices.Clone(c.Roles)
	return &clone
}

// HasRole reports whether the context carries the named role.
func (c *CallerContext) HasRole(role string) bool {
	return c != nil && slices.Contains(c.Roles, role)
}

// String returns a log-safe description.
func (c *CallerContext) String() string {
	if c == nil {
		return "CallerContext(<nil>)"
	}
	return fmt.Sprintf("CallerContext(user=%s, project=%s, admin=%t, request=%s)",
		c.UserID, c.ProjectID, c.IsAdmin, c.RequestID)
}

// ConnectionConfig represents parsed connection parameters.
type ConnectionConfig struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string

	// AuthMethod indicates the authentication mechanism to use
	AuthMethod AuthMethod

	// Additional connection parameters
	AppName          string
	ConnectTimeout   time.Duration
	AdditionalParams map[string]string

	// AWSRegion is required for AuthMethodAWSIAM.
	AWSRegion string

	// GoogleInstance is the Cloud SQL instance connection name (project:region:instance)
	// used with AuthMethodGoogleIAM.
	GoogleInstance string

	// Azure Entra ID authentication parameters (used when AuthMethod is AuthMethodAzureEntraID)
	// If all three are provided, Service Principal authentication is used.
	// If none are provided, DefaultAzureCredential chain is used (env vars, managed identity, CLI, etc.)
	AzureTenantID     string
	AzureClientID     string
	AzureClientSecret string
}

// AuthMethod represents the type of authentication to use.
type AuthMethod int

const (
	AuthMethodStandard     AuthMethod = iota // Username/Password
	AuthMethodAWSIAM                         // AWS IAM Database Authentication
	AuthMethodGoogleIAM                      // Google Cloud SQL IAM
	AuthMethodAzureEntraID                   // Azure Active Directory (Entra ID)
)

// String returns a human-readable string representation of the AuthMethod.
func (a AuthMethod) String() string {
	switch a {
	case AuthMethodStandard:
		return "Standard"
	case AuthMethodAWSIAM:
		return "AWS IAM"
	case AuthMethodGoogleIAM:
		return "Google IAM"
	case AuthMethodAzureEntraID:
		return "Azure Entra ID"
	default:
		return fmt.Sprintf("Unknown(%d)", a)
	}
}

// IsValid returns true if the AuthMethod is a valid, defined value.
func (a AuthMethod) IsValid() bool {
	return a >= AuthMethodStandard && a <= AuthMethodAzureEntraID
}

// ParseAuthMethod maps a configuration value ("standard", "aws", "google", "azure")
// to an AuthMethod.
func ParseAuthMethod(s string) (AuthMethod, error) {
	switch s {
	case "", "standard", "password":
		return AuthMethodStandard, nil
	case "aws", "aws-iam":
		return AuthMethodAWSIAM, nil
	case "google", "google-iam", "gcp":
		return AuthMethodGoogleIAM, nil
	case "azure", "entra", "azure-entra-id":
		return AuthMethodAzureEntraID, nil
	default:
		return AuthMethodStandard, fmt.Errorf("auth method %q: %w", s, ErrUnsupportedAuthMethod)
	}
}
