package dbapi_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

func TestNewCallerContext(t *testing.T) {
	cc := dbapi.NewCallerContext("alice", "proj-1")

	if cc.UserID != "alice" || cc.ProjectID != "proj-1" {
		t.Fatalf("unexpected identity: %v", cc)
	}
	if cc.IsAdmin {
		t.Error("ordinary context must not be admin")
	}
	if cc.RequestID == uuid.Nil {
		t.Error("expected a generated request ID")
	}
	if cc.ReadDeleted != dbapi.ReadDeletedNo {
		t.Errorf("expected ReadDeleted %q, got %q", dbapi.ReadDeletedNo, cc.ReadDeleted)
	}
}

func TestCallerContext_ElevatedDoesNotMutateOriginal(t *testing.T) {
	cc := dbapi.NewCallerContext("alice", "proj-1")
	cc.Roles = []string{"member"}

	admin := cc.Elevated()
	admin.Roles[0] = "changed"

	if cc.IsAdmin {
		t.Error("original context was elevated")
	}
	if !admin.IsAdmin {
		t.Error("elevated copy is not admin")
	}
	if cc.Roles[0] != "member" {
		t.Error("elevated copy shares the roles slice")
	}
	if admin.RequestID != cc.RequestID {
		t.Error("elevated copy should keep the request ID")
	}
}

func TestCallerContext_HasRoleNilSafe(t *testing.T) {
	var cc *dbapi.CallerContext
	if cc.HasRole("admin") {
		t.Error("nil context has no roles")
	}
	if got := cc.String(); got != "CallerContext(<nil>)" {
		t.Errorf("unexpected String(): %q", got)
	}
}

func TestParseAuthMethod(t *testing.T) {
	tests := []struct {
		in   string
		want dbapi.AuthMethod
	}{
		{"", dbapi.AuthMethodStandard},
		{"standard", dbapi.AuthMethodStandard},
		{"aws", dbapi.AuthMethodAWSIAM},
		{"google", dbapi.AuthMethodGoogleIAM},
		{"azure", dbapi.AuthMethodAzureEntraID},
	}
	for _, tt := range tests {
		got, err := dbapi.ParseAuthMethod(tt.in)
		if err != nil {
			t.Fatalf("ParseAuthMethod(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseAuthMethod(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := dbapi.ParseAuthMethod("kerberos"); !errors.Is(err, dbapi.ErrUnsupportedAuthMethod) {
		t.Errorf("expected ErrUnsupportedAuthMethod, got %v", err)
	}
}

func TestAuthMethod_String(t *testing.T) {
	if dbapi.AuthMethodAzureEntraID.String() != "Azure Entra ID" {
		t.Errorf("unexpected: %s", dbapi.AuthMethodAzureEntraID)
	}
	if dbapi.AuthMethod(42).IsValid() {
		t.Error("42 is not a valid auth method")
	}
	if dbapi.AuthMethod(42).String() != "Unknown(42)" {
		t.Errorf("unexpected: %s", dbapi.AuthMethod(42))
	}
}
