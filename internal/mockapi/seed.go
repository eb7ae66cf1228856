package mockapi

import "github.com/florianilch/claudine-auth/internal/session"

// DefaultUsers are the accounts seeded for offline development, one per dashboard area.
var DefaultUsers = []session.User{
	{ID: "usr_admin", Email: "admin@example.com", Name: "Dana Admin", Role: "admin", Permissions: []string{"*"}},
	{ID: "usr_fleet", Email: "fleet@example.com", Name: "Fleet Manager", Role: "fleet_manager", Permissions: []string{"fleet:read", "fleet:write"}},
	{ID: "usr_crm", Email: "sales@example.com", Name: "Sales Rep", Role: "sales", Permissions: []string{"crm:read", "crm:write"}},
	{ID: "usr_fin", Email: "finance@example.com", Name: "Finance Lead", Role: "finance", Permissions: []string{"finance:read", "finance:approve"}},
	{ID: "usr_hr", Email: "hr@example.com", Name: "HR Partner", Role: "hr", Permissions: []string{"hr:read"}},
}

// SeedDefaults registers DefaultUsers, all sharing password.
func (s *Server) SeedDefaults(password string) error {
	for _, u := range DefaultUsers {
		if err := s.AddUser(u, password); err != nil {
			return err
		}
	}
	return nil
}
