package model

import "time"

// Role values stored in users.role.  The role is fixed at registration and
// never changes afterwards.
const (
    RoleUser  = "user"
    RoleAdmin = "admin"
)

// Status values stored in users.status.  Only an admin moves an account
// between them.
const (
    StatusPending  = "pending"
    StatusApproved = "approved"
    StatusBanned   = "banned"
)

// AdminUsername is the reserved name that registers as an approved admin.
// The comparison is case-insensitive.
const AdminUsername = "admin"

// User represents an account record as stored in the `users` table.
// The password hash never leaves the repository layer in JSON form.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Username     – unique login name, case-sensitive as stored.
//  PasswordHash – bcrypt hash of the password.
//  Role         – user or admin.
//  Status       – pending, approved or banned.
//  UsageDaily   – successful analyses since the last admin reset.
//  LimitDaily   – ceiling for UsageDaily.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
    ID           uint64    `json:"id"`          // users.id
    Username     string    `json:"username"`    // users.username
    PasswordHash string    `json:"-"`           // users.password_hash
    Role         string    `json:"role"`        // users.role
    Status       string    `json:"status"`      // users.status
    UsageDaily   int       `json:"usage_daily"` // users.usage_daily
    LimitDaily   int       `json:"limit_daily"` // users.limit_daily
    CreatedAt    time.Time `json:"created_at"`  // users.created_at
    UpdatedAt    time.Time `json:"-"`           // users.updated_at
}

// Identity is the authenticated caller extracted from a session token.
type Identity struct {
    ID       uint64 `json:"id"`
    Role     string `json:"role"`
    Username string `json:"username"`
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// ValidStatus reports whether s is one of the known account states.
func ValidStatus(s string) bool {
    switch s {
    case StatusPending, StatusApproved, StatusBanned:
        return true
    }
    return false
}

// StatusSources lists the states an account may be in for an admin to move
// it to target.  Re-applying the current state is allowed.  Nothing moves
// back to pending.
func StatusSources(target string) []string {
    switch target {
    case StatusApproved:
        return []string{StatusPending, StatusApproved, StatusBanned}
    case StatusBanned:
        return []string{StatusPending, StatusApproved, StatusBanned}
    case StatusPending:
        return []string{StatusPending}
    }
    return nil
}
