package capability

import (
	"errors"
	"testing"

	"ouvidor/internal/domain"
)

func TestRoleCapabilities(t *testing.T) {
	admin := For(domain.RoleAdmin)
	for _, capa := range []Capability{CreateManifestation, DeleteManifestation, ManageUsers, ManageSectors, ViewReports} {
		if !admin.Has(capa) {
			t.Errorf("admin missing %s", capa)
		}
	}
	if admin.Has(AssignedOnly) {
		t.Error("admin must not be scope-restricted")
	}

	ouvidor := For(domain.RoleOuvidor)
	if !ouvidor.Has(DeleteManifestation) || !ouvidor.Has(ViewReports) {
		t.Error("ouvidor missing delete or reports")
	}
	if ouvidor.Has(ManageUsers) {
		t.Error("ouvidor must not manage users")
	}

	gestor := For(domain.RoleGestor)
	if gestor.Has(DeleteManifestation) {
		t.Error("gestor must not delete")
	}
	if !gestor.Has(ManageManifestations) {
		t.Error("gestor must manage manifestations")
	}

	analista := For(domain.RoleAnalista)
	if !analista.Has(AssignedOnly) {
		t.Error("analista must be scope-restricted")
	}
	if analista.Has(CreateManifestation) || analista.Has(CloseManifestation) {
		t.Error("analista capabilities too broad")
	}

	consulta := For(domain.RoleConsulta)
	if len(consulta.List()) != 0 {
		t.Errorf("consulta capabilities = %v", consulta.List())
	}
	if unknown := For(domain.Role("intern")); len(unknown.List()) != 0 {
		t.Errorf("unknown role capabilities = %v", unknown.List())
	}
}

func TestRequire(t *testing.T) {
	err := For(domain.RoleConsulta).Require(ForwardManifestation)
	var ferr ForbiddenError
	if !errors.As(err, &ferr) {
		t.Fatalf("want ForbiddenError, got %v", err)
	}
	if ferr.Capability != ForwardManifestation {
		t.Fatalf("capability = %s", ferr.Capability)
	}
	if err := For(domain.RoleAssistente).Require(ForwardManifestation); err != nil {
		t.Fatalf("assistente forward: %v", err)
	}
}
