// Package tenant holds the isolation rules between businesses.
//
// Every equipment, problem and issue row belongs to exactly one tenant.
// Solutions carry a source tag naming who produced them. When a solution is
// shown to a different tenant the tag is stripped down to its kind, and the
// presentation badge never names the originating business.
package tenant

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Common errors.
var (
	ErrInvalidTenantID = errors.New("invalid tenant ID")
	ErrInvalidSource   = errors.New("invalid source tag")
	ErrAccessDenied    = errors.New("access denied")
)

// Badges shown next to a candidate solution.
const (
	BadgeCurrentBusiness = "used by your business"
	BadgeOtherBusiness   = "used by another business"
	BadgeAI              = "suggested by AI"
)

const maxIDLen = 64

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// ValidateID checks a tenant, user or technician identifier.
func ValidateID(id string) error {
	if id == "" || len(id) > maxIDLen || !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidTenantID, id)
	}
	return nil
}

// CheckAccess returns ErrAccessDenied unless the record belongs to the session's tenant.
func CheckAccess(sessionTenantID, recordTenantID string) error {
	if sessionTenantID == "" || sessionTenantID != recordTenantID {
		return ErrAccessDenied
	}
	return nil
}

// SourceKind says who produced a solution.
type SourceKind string

const (
	SourceTenant     SourceKind = "tenant"
	SourceTechnician SourceKind = "technician"
	SourceAI         SourceKind = "ai"
)

// Source is a parsed solution source tag: "tenant:<id>", "technician:<id>" or "ai".
type Source struct {
	Kind SourceKind
	ID   string
}

// TenantSource tags a solution written by a tenant.
func TenantSource(id string) Source { return Source{Kind: SourceTenant, ID: id} }

// TechnicianSource tags a solution written by a technician.
func TechnicianSource(id string) Source { return Source{Kind: SourceTechnician, ID: id} }

// AISource tags an AI-generated solution.
func AISource() Source { return Source{Kind: SourceAI} }

// String renders the tag form stored in the database.
func (s Source) String() string {
	if s.Kind == SourceAI || s.ID == "" {
		return string(s.Kind)
	}
	return string(s.Kind) + ":" + s.ID
}

// Anonymized drops the identity and keeps only the kind.
func (s Source) Anonymized() Source {
	return Source{Kind: s.Kind}
}

// ParseSource parses a stored source tag. Anonymized tags ("tenant") are accepted.
func ParseSource(tag string) (Source, error) {
	kind, id, _ := strings.Cut(tag, ":")
	switch SourceKind(kind) {
	case SourceAI:
		if id != "" {
			return Source{}, fmt.Errorf("%w: %q", ErrInvalidSource, tag)
		}
		return AISource(), nil
	case SourceTenant, SourceTechnician:
		if id != "" && ValidateID(id) != nil {
			return Source{}, fmt.Errorf("%w: %q", ErrInvalidSource, tag)
		}
		return Source{Kind: SourceKind(kind), ID: id}, nil
	default:
		return Source{}, fmt.Errorf("%w: %q", ErrInvalidSource, tag)
	}
}

// Badge returns the provenance label a viewer sees for a record owned by
// ownerTenantID. An empty owner means the record was AI generated.
func Badge(viewerTenantID, ownerTenantID string) string {
	switch {
	case ownerTenantID == "":
		return BadgeAI
	case ownerTenantID == viewerTenantID:
		return BadgeCurrentBusiness
	default:
		return BadgeOtherBusiness
	}
}
