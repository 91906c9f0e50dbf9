package bot

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/BoardPipe/internal/messaging"
	"github.com/BTreeMap/BoardPipe/internal/models"
)

// Guard decides whether an update may run a command. It returns an error wrapping
// models.ErrForbidden when access is denied.
type Guard func(in messaging.Incoming) error

func (d *Dispatcher) public(in messaging.Incoming) error { return nil }

func (d *Dispatcher) manager(in messaging.Incoming) error {
	if d.isAdminUser(in.UserName) || d.role(in.UserName).AtLeast(models.RoleManager) {
		return nil
	}
	return fmt.Errorf("%w: %q is not a manager", models.ErrForbidden, in.UserName)
}

func (d *Dispatcher) admin(in messaging.Incoming) error {
	if d.isAdminUser(in.UserName) || d.role(in.UserName) == models.RoleAdmin {
		return nil
	}
	return fmt.Errorf("%w: %q is not an admin", models.ErrForbidden, in.UserName)
}

func (d *Dispatcher) isAdminUser(username string) bool {
	login := models.NormalizeLogin(username)
	return login != "" && d.admins[login]
}

// role returns the roster role of a user; unknown users are members.
func (d *Dispatcher) role(username string) models.Role {
	login := models.NormalizeLogin(username)
	if login == "" {
		return models.RoleMember
	}
	m, err := d.store.GetRosterMember(login)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			slog.Error("Dispatcher.role: roster lookup failed", "user", login, "error", err)
		}
		return models.RoleMember
	}
	return m.Role
}
