package tenant

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"simple", "acme", false},
		{"with separators", "acme-bakery_2.eu", false},
		{"uuid", "3f7c9a52-0d0e-4c1b-9d55-6f8f3f0b8e21", false},
		{"empty", "", true},
		{"leading dash", "-acme", true},
		{"colon", "tenant:acme", true},
		{"space", "acme bakery", true},
		{"too long", strings.Repeat("a", 65), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID(tt.id)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTenantID) {
					t.Errorf("ValidateID(%q) = %v, want ErrInvalidTenantID", tt.id, err)
				}
				return
			}
			if err != nil {
				t.Errorf("ValidateID(%q) unexpected error: %v", tt.id, err)
			}
		})
	}
}

func TestCheckAccess(t *testing.T) {
	if err := CheckAccess("acme", "acme"); err != nil {
		t.Errorf("same tenant: %v", err)
	}
	if err := CheckAccess("acme", "globex"); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("other tenant: got %v, want ErrAccessDenied", err)
	}
	if err := CheckAccess("", ""); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("empty tenant: got %v, want ErrAccessDenied", err)
	}
}

func TestSource_RoundTrip(t *testing.T) {
	tests := []struct {
		src  Source
		want string
	}{
		{TenantSource("acme"), "tenant:acme"},
		{TechnicianSource("tech-7"), "technician:tech-7"},
		{AISource(), "ai"},
		{TenantSource("acme").Anonymized(), "tenant"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.src.String(); got != tt.want {
				t.Fatalf("String() = %q, want %q", got, tt.want)
			}
			parsed, err := ParseSource(tt.want)
			if err != nil {
				t.Fatalf("ParseSource(%q): %v", tt.want, err)
			}
			if parsed != tt.src {
				t.Errorf("ParseSource(%q) = %+v, want %+v", tt.want, parsed, tt.src)
			}
		})
	}
}

func TestParseSource_Invalid(t *testing.T) {
	for _, tag := range []string{"", "vendor:x", "ai:gpt", "tenant:bad id"} {
		if _, err := ParseSource(tag); !errors.Is(err, ErrInvalidSource) {
			t.Errorf("ParseSource(%q) = %v, want ErrInvalidSource", tag, err)
		}
	}
}

func TestBadge(t *testing.T) {
	if got := Badge("acme", "acme"); got != BadgeCurrentBusiness {
		t.Errorf("own record badge = %q", got)
	}
	if got := Badge("acme", "globex"); got != BadgeOtherBusiness {
		t.Errorf("foreign record badge = %q", got)
	}
	if got := Badge("acme", "globex"); strings.Contains(got, "globex") {
		t.Errorf("badge leaks tenant identity: %q", got)
	}
	if got := Badge("acme", ""); got != BadgeAI {
		t.Errorf("ai badge = %q", got)
	}
}
