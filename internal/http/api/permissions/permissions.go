package permissions

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/mealtracker/internal/config"
)

// Context keys set by the authentication middleware.
const (
	ContextUserID   = "userID"
	ContextUserName = "userName"
	ContextRoleID   = "roleID"
	ContextRoleName = "roleName"
)

// RoleSet is an ordered set of role names.
type RoleSet struct {
	names []string
	index map[string]struct{}
}

// NewRoleSet parses a comma separated role list.
func NewRoleSet(raw string) RoleSet {
	names := config.SplitRoles(raw)
	set := RoleSet{names: make([]string, 0, len(names)), index: make(map[string]struct{}, len(names))}
	for _, name := range names {
		if _, ok := set.index[name]; ok {
			continue
		}
		set.index[name] = struct{}{}
		set.names = append(set.names, name)
	}
	return set
}

// Contains reports whether role is in the set.
func (s RoleSet) Contains(role string) bool {
	_, ok := s.index[role]
	return ok
}

// Names returns the role names in configuration order.
func (s RoleSet) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// String joins the role names for error messages.
func (s RoleSet) String() string {
	return strings.Join(s.names, ", ")
}

// Policy holds the role sets of one collection.
// Users may call the collection; Admins may also act on other users' rows.
type Policy struct {
	Users  RoleSet
	Admins RoleSet
}

// Access is the resolved role policy of the service.
type Access struct {
	Administrator string
	DefaultRole   string
	Meals         Policy
	Users         Policy
	Roles         Policy
}

// FromConfig builds the access policy from service settings.
func FromConfig(cfg config.ServiceConfig) Access {
	return Access{
		Administrator: cfg.Roles.Administrator,
		DefaultRole:   cfg.Roles.User,
		Meals:         Policy{Users: NewRoleSet(cfg.Access.MealUsers), Admins: NewRoleSet(cfg.Access.MealAdmins)},
		Users:         Policy{Users: NewRoleSet(cfg.Access.UserUsers), Admins: NewRoleSet(cfg.Access.UserAdmins)},
		Roles:         Policy{Users: NewRoleSet(cfg.Access.RoleAdmins), Admins: NewRoleSet(cfg.Access.RoleAdmins)},
	}
}

// NotAuthorized formats the rejection for a role outside allowed.
func NotAuthorized(role string, allowed RoleSet) string {
	return fmt.Sprintf("Role %s is not authorized to run this API. Must be one of the following roles : %s", role, allowed)
}

// Caller is the authenticated user of a request.
type Caller struct {
	UserID   uint64
	UserName string
	RoleID   uint64
	RoleName string
}

// CallerFrom reads the caller stored by the authentication middleware.
func CallerFrom(c *gin.Context) Caller {
	return Caller{
		UserID:   c.GetUint64(ContextUserID),
		UserName: c.GetString(ContextUserName),
		RoleID:   c.GetUint64(ContextRoleID),
		RoleName: c.GetString(ContextRoleName),
	}
}

// IsAdmin reports whether the caller may act on other users' rows of p.
func (p Policy) IsAdmin(caller Caller) bool {
	return p.Admins.Contains(caller.RoleName)
}

// IsAdministrator reports whether the caller holds the administrator role.
func (a Access) IsAdministrator(caller Caller) bool {
	return caller.RoleName == a.Administrator
}

// OtherUsersDenied formats the rejection for acting on another user's rows.
func OtherUsersDenied(role string) string {
	return "No permission to execute this api for other users with Role <" + role + ">"
}
