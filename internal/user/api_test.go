package user

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/colitas-felices/clinic/internal/shared/auth"
	"github.com/colitas-felices/clinic/internal/shared/config"
	"github.com/colitas-felices/clinic/internal/shared/errors"
	"github.com/colitas-felices/clinic/internal/shared/types"
	"github.com/colitas-felices/clinic/internal/staff"
)

type fakeUserRepo struct {
	users map[types.ID]*User
	vets  map[types.ID]*staff.Veterinarian
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users: make(map[types.ID]*User),
		vets:  make(map[types.ID]*staff.Veterinarian),
	}
}

func (f *fakeUserRepo) CreateWithVeterinarian(_ context.Context, u *User, v *staff.Veterinarian) error {
	for _, existing := range f.users {
		if existing.Username == u.Username {
			return errors.Conflict("el nombre de usuario ya existe")
		}
	}
	f.users[u.ID] = u
	f.vets[v.ID] = v
	return nil
}

func (f *fakeUserRepo) CreateWithReceptionist(_ context.Context, u *User, _ *staff.Receptionist) error {
	f.users[u.ID] = u
	return nil
}

func (f *fakeUserRepo) CreateWithAdministrator(_ context.Context, u *User, _ *staff.Administrator) error {
	f.users[u.ID] = u
	return nil
}

func (f *fakeUserRepo) FindByID(_ context.Context, id types.ID) (*User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, errors.NotFound("usuario", id.String())
	}
	return u, nil
}

func (f *fakeUserRepo) FindByUsername(_ context.Context, username string) (*User, error) {
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, errors.NotFound("usuario", username)
}

func (f *fakeUserRepo) List(_ context.Context, _ ListFilter) ([]User, int, error) {
	out := make([]User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (f *fakeUserRepo) UpdateStatus(_ context.Context, u *User) error {
	f.users[u.ID] = u
	return nil
}

func (f *fakeUserRepo) UpdatePassword(_ context.Context, u *User) error {
	f.users[u.ID] = u
	return nil
}

func (f *fakeUserRepo) Stats(_ context.Context) (*Stats, error) {
	return &Stats{Total: len(f.users), ByRole: map[string]int{}, ByStatus: map[string]int{}}, nil
}

// fakeStaffRepo resolves vet profiles from the user repo and reports
// everything else as missing.
type fakeStaffRepo struct {
	repo *fakeUserRepo
}

func (f *fakeStaffRepo) FindVeterinarian(_ context.Context, id types.ID) (*staff.Veterinarian, error) {
	if v, ok := f.repo.vets[id]; ok {
		return v, nil
	}
	return nil, errors.NotFound("veterinario", id.String())
}

func (f *fakeStaffRepo) FindVeterinarianByUser(_ context.Context, userID types.ID) (*staff.Veterinarian, error) {
	for _, v := range f.repo.vets {
		if v.UserID == userID {
			return v, nil
		}
	}
	return nil, errors.NotFound("veterinario", userID.String())
}

func (f *fakeStaffRepo) FindVeterinarianByCMVP(_ context.Context, code string) (*staff.Veterinarian, error) {
	return nil, errors.NotFound("veterinario", code)
}

func (f *fakeStaffRepo) ListVeterinarians(_ context.Context, _ staff.VetFilter) ([]staff.Veterinarian, int, error) {
	return nil, 0, nil
}

func (f *fakeStaffRepo) UpdateVeterinarian(_ context.Context, _ *staff.Veterinarian) error {
	return nil
}

func (f *fakeStaffRepo) SetAvailability(_ context.Context, _ types.ID, _ staff.Availability) error {
	return nil
}

func (f *fakeStaffRepo) FindReceptionist(_ context.Context, id types.ID) (*staff.Receptionist, error) {
	return nil, errors.NotFound("recepcionista", id.String())
}

func (f *fakeStaffRepo) FindReceptionistByUser(_ context.Context, userID types.ID) (*staff.Receptionist, error) {
	return nil, errors.NotFound("recepcionista", userID.String())
}

func (f *fakeStaffRepo) ListReceptionists(_ context.Context, _ string, _, _ int) ([]staff.Receptionist, int, error) {
	return nil, 0, nil
}

func (f *fakeStaffRepo) UpdateReceptionist(_ context.Context, _ *staff.Receptionist) error {
	return nil
}

func (f *fakeStaffRepo) FindAdministrator(_ context.Context, id types.ID) (*staff.Administrator, error) {
	return nil, errors.NotFound("administrador", id.String())
}

func (f *fakeStaffRepo) FindAdministratorByUser(_ context.Context, userID types.ID) (*staff.Administrator, error) {
	return nil, errors.NotFound("administrador", userID.String())
}

func (f *fakeStaffRepo) ListAdministrators(_ context.Context, _ string, _, _ int) ([]staff.Administrator, int, error) {
	return nil, 0, nil
}

func (f *fakeStaffRepo) UpdateAdministrator(_ context.Context, _ *staff.Administrator) error {
	return nil
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTL: time.Hour}
}

func seedVet(t *testing.T, repo *fakeUserRepo, username, password string) *User {
	t.Helper()
	u, err := New(username, password, auth.RoleVeterinario)
	if err != nil {
		t.Fatalf("building user: %v", err)
	}
	person, err := staff.NewPerson(types.PersonName{
		FirstName:    "Jorge",
		PaternalName: "Salas",
		MaternalName: "Rios",
	}, "12345678", username+"@clinic.pe", "912345678", "M", time.Date(1985, 6, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("building person: %v", err)
	}
	v, err := staff.NewVeterinarian(u.ID, person, "CMVP-1234", types.NewID(), staff.ShiftMorning)
	if err != nil {
		t.Fatalf("building vet: %v", err)
	}
	if err := repo.CreateWithVeterinarian(context.Background(), u, v); err != nil {
		t.Fatalf("seeding: %v", err)
	}
	return u
}

func TestLogin(t *testing.T) {
	repo := newFakeUserRepo()
	seedVet(t, repo, "jsalas", "secreto1")
	handler := NewHandler(repo, &fakeStaffRepo{repo: repo}, testAuthConfig(), nil)

	body := `{"username":"JSalas","password":"secreto1"}`
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.AuthRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp struct {
		Token    string   `json:"token"`
		PerfilID types.ID `json:"perfil_id"`
		Permisos []string `json:"permisos"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Token == "" {
		t.Error("expected a signed token")
	}
	if resp.PerfilID.IsZero() {
		t.Error("expected the vet profile ID in the response")
	}

	claims, err := auth.ParseToken(testAuthConfig(), resp.Token)
	if err != nil {
		t.Fatalf("parsing issued token: %v", err)
	}
	if claims.Role != auth.RoleVeterinario {
		t.Errorf("token role = %q, want %q", claims.Role, auth.RoleVeterinario)
	}
	if !auth.HasPermission(claims.Permissions, auth.PermRealizarConsultas) {
		t.Error("vet token missing consultation permission")
	}
	if auth.HasPermission(claims.Permissions, auth.PermGestionarUsuarios) {
		t.Error("vet token should not manage users")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	repo := newFakeUserRepo()
	seedVet(t, repo, "jsalas", "secreto1")
	handler := NewHandler(repo, &fakeStaffRepo{repo: repo}, testAuthConfig(), nil)

	body := `{"username":"jsalas","password":"incorrecta"}`
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.AuthRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestLoginInactiveUser(t *testing.T) {
	repo := newFakeUserRepo()
	u := seedVet(t, repo, "jsalas", "secreto1")
	u.Deactivate()
	handler := NewHandler(repo, &fakeStaffRepo{repo: repo}, testAuthConfig(), nil)

	body := `{"username":"jsalas","password":"secreto1"}`
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.AuthRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestChangePassword(t *testing.T) {
	repo := newFakeUserRepo()
	u := seedVet(t, repo, "jsalas", "secreto1")
	handler := NewHandler(repo, &fakeStaffRepo{repo: repo}, testAuthConfig(), nil)

	principal := auth.User{ID: u.ID, Username: u.Username, Role: u.Role}
	body := `{"actual":"secreto1","nueva":"nuevosecreto"}`
	req := httptest.NewRequest(http.MethodPost, "/password", strings.NewReader(body))
	req = req.WithContext(auth.WithUser(req.Context(), principal))
	rec := httptest.NewRecorder()
	handler.SessionRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusNoContent, rec.Body.String())
	}
	if !u.CheckPassword("nuevosecreto") {
		t.Error("password not updated")
	}

	// Wrong current password is rejected.
	body = `{"actual":"equivocada","nueva":"otracontrasena"}`
	req = httptest.NewRequest(http.MethodPost, "/password", strings.NewReader(body))
	req = req.WithContext(auth.WithUser(req.Context(), principal))
	rec = httptest.NewRecorder()
	handler.SessionRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestCreateUserWithVetProfile(t *testing.T) {
	repo := newFakeUserRepo()
	handler := NewHandler(repo, &fakeStaffRepo{repo: repo}, testAuthConfig(), nil)

	admin := auth.User{
		ID:          types.NewID(),
		Username:    "admin",
		Role:        auth.RoleAdministrador,
		Permissions: auth.PermissionsFor(auth.RoleAdministrador),
	}

	body := `{
		"username": "mvega",
		"password": "secreto1",
		"tipo": "Veterinario",
		"nombre": "Marta",
		"apellido_paterno": "Vega",
		"apellido_materno": "Luna",
		"dni": "87654321",
		"email": "mvega@clinic.pe",
		"telefono": "998877665",
		"genero": "F",
		"fecha_nacimiento": "1990-02-10",
		"codigo_cmvp": "CMVP-9876",
		"especialidad_id": "` + types.NewID().String() + `",
		"turno": "Tarde"
	}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req = req.WithContext(auth.WithUser(req.Context(), admin))
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	if len(repo.users) != 1 || len(repo.vets) != 1 {
		t.Errorf("users = %d, vets = %d, want 1 and 1", len(repo.users), len(repo.vets))
	}
}
