package domain

import (
	"fmt"
	"strings"
)

// Role is the closed set of roles a directory user may hold.
type Role string

const (
	RolePatient       Role = "patient"
	RoleCaregiver     Role = "caregiver"
	RoleAdministrator Role = "administrator"
	RoleClinician     Role = "clinician"
)

// ParseRole maps a directory role string to a Role. Spanish role names used by
// the user directory ("paciente", "cuidador", "administrador", "medico") are
// accepted as aliases.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "patient", "paciente":
		return RolePatient, nil
	case "caregiver", "cuidador":
		return RoleCaregiver, nil
	case "administrator", "admin", "administrador":
		return RoleAdministrator, nil
	case "clinician", "medico", "médico", "doctor":
		return RoleClinician, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleCaregiver, RoleAdministrator, RoleClinician:
		return true
	}
	return false
}

// User is a resolved directory identity. Users are owned by an external
// directory service; this service never persists them.
type User struct {
	ID           string `json:"id"`
	Role         Role   `json:"role"`
	DisplayName  string `json:"display_name"`
	ContactEmail string `json:"contact_email"`

	// PatientIDs lists the patients associated with a caregiver.
	PatientIDs []string `json:"patient_ids,omitempty"`
	// ClinicianID is the clinician assigned to a patient, if any.
	ClinicianID string `json:"clinician_id,omitempty"`
}
