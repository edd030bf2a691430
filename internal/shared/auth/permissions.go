package auth

// User types recognized by the platform.
const (
	RoleVeterinario   = "Veterinario"
	RoleRecepcionista = "Recepcionista"
	RoleAdministrador = "Administrador"
)

// Permission keys. Handlers guard routes with RequirePermissions using
// these values; the set granted to a user depends only on its role.
const (
	PermGestionarUsuarios   = "gestionar_usuarios"
	PermGestionarClientes   = "gestionar_clientes"
	PermGestionarMascotas   = "gestionar_mascotas"
	PermGestionarPersonal   = "gestionar_personal"
	PermGestionarCatalogos  = "gestionar_catalogos"
	PermRegistrarSolicitud  = "registrar_solicitudes"
	PermRealizarTriaje      = "realizar_triaje"
	PermRealizarConsultas   = "realizar_consultas"
	PermGestionarCitas      = "gestionar_citas"
	PermVerHistorial        = "ver_historial"
	PermVerReportes         = "ver_reportes"
	PermVerDashboard        = "ver_dashboard"
	PermConfigurarSistema   = "configurar_sistema"
)

var rolePermissions = map[string][]string{
	RoleAdministrador: {
		PermGestionarUsuarios,
		PermGestionarClientes,
		PermGestionarMascotas,
		PermGestionarPersonal,
		PermGestionarCatalogos,
		PermRegistrarSolicitud,
		PermRealizarTriaje,
		PermRealizarConsultas,
		PermGestionarCitas,
		PermVerHistorial,
		PermVerReportes,
		PermVerDashboard,
		PermConfigurarSistema,
	},
	RoleVeterinario: {
		PermRealizarTriaje,
		PermRealizarConsultas,
		PermGestionarCitas,
		PermVerHistorial,
		PermVerDashboard,
	},
	RoleRecepcionista: {
		PermGestionarClientes,
		PermGestionarMascotas,
		PermRegistrarSolicitud,
		PermGestionarCitas,
		PermVerDashboard,
	},
}

// PermissionsFor returns the permission set for a user role. Unknown
// roles get no permissions.
func PermissionsFor(role string) []string {
	perms, ok := rolePermissions[role]
	if !ok {
		return nil
	}
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

// HasPermission reports whether perm is in the granted set.
func HasPermission(granted []string, perm string) bool {
	for _, p := range granted {
		if p == perm {
			return true
		}
	}
	return false
}
