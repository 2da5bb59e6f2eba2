package permissions

import (
	"strings"
	"testing"

	"github.com/router-for-me/mealtracker/internal/config"
)

func TestRoleSet(t *testing.T) {
	set := NewRoleSet("Administrator, User,Administrator,,")
	if !set.Contains("User") || !set.Contains("Administrator") {
		t.Fatalf("expected both roles in %v", set.Names())
	}
	if set.Contains("user") {
		t.Fatalf("expected role names to be case sensitive")
	}
	if got := set.String(); got != "Administrator, User" {
		t.Fatalf("unexpected joined names %q", got)
	}
	names := set.Names()
	names[0] = "changed"
	if set.Names()[0] != "Administrator" {
		t.Fatalf("expected Names to return a copy")
	}
}

func TestFromConfigDefaults(t *testing.T) {
	access := FromConfig(config.DefaultServiceConfig())

	user := Caller{RoleName: config.DefaultUserRole}
	dataManager := Caller{RoleName: config.DefaultDataManagerRole}
	userManager := Caller{RoleName: config.DefaultUserManagerRole}
	admin := Caller{RoleName: config.DefaultAdministratorRole}

	if !access.Meals.Users.Contains(user.RoleName) || access.Meals.IsAdmin(user) {
		t.Fatalf("expected plain users to manage only their own meals")
	}
	if !access.Meals.IsAdmin(dataManager) || access.Meals.IsAdmin(userManager) {
		t.Fatalf("unexpected meal admins %s", access.Meals.Admins)
	}
	if !access.Users.IsAdmin(userManager) || access.Users.IsAdmin(dataManager) {
		t.Fatalf("unexpected user admins %s", access.Users.Admins)
	}
	if access.Roles.Users.Contains(userManager.RoleName) || !access.Roles.IsAdmin(admin) {
		t.Fatalf("expected roles to be administrator only")
	}
	if !access.IsAdministrator(admin) || access.IsAdministrator(userManager) {
		t.Fatalf("unexpected administrator check")
	}
	if access.DefaultRole != config.DefaultUserRole {
		t.Fatalf("unexpected default role %q", access.DefaultRole)
	}
}

func TestMessages(t *testing.T) {
	msg := NotAuthorized("User", NewRoleSet("Administrator,DataManager"))
	if !strings.HasSuffix(msg, "Must be one of the following roles : Administrator, DataManager") || !strings.HasPrefix(msg, "Role User ") {
		t.Fatalf("unexpected message %q", msg)
	}
	if got := OtherUsersDenied("User"); got != "No permission to execute this api for other users with Role <User>" {
		t.Fatalf("unexpected message %q", got)
	}
}
