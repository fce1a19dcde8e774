package endpoint

// Authentication endpoints. They are role independent.
var (
	LoginPath    = MustCollection("/auth/login/")
	RegisterPath = MustCollection("/auth/register/")
	RefreshPath  = MustCollection("/auth/refresh/")
	UserPath     = MustCollection("/auth/user/")
)

// dashboardPaths is the only role to landing-route mapping in the module.
var dashboardPaths = map[Role]string{
	RoleAdmin:   "/admin/dashboard",
	RoleTutor:   "/tutor/dashboard",
	RoleStudent: "/student/dashboard",
	RoleAlumni:  "/alumni/dashboard",
}

// DashboardPath returns the landing route for role. Unknown roles land on
// the public login page.
func DashboardPath(role Role) string {
	if p, ok := dashboardPaths[role]; ok {
		return p
	}
	return "/login"
}
