package auth

import (
	"context"

	"campusattend/internal/model"
	"campusattend/internal/store"
)

// Identity is an authenticated person with their role tag. Students,
// teachers, and admins live in disjoint collections keyed by email, so
// the (role, email) pair identifies exactly one document.
type Identity struct {
	Email      string
	Name       string
	Role       model.Role
	Department string
	Field      string
	Year       string
}

// ResolveIdentity loads the person for a claimed role. The role comes
// from the login request; there is no trial-and-error probing of the
// other collections. A miss surfaces as store.ErrNotFound.
func ResolveIdentity(ctx context.Context, st store.DocStore, role model.Role, email string) (Identity, error) {
	doc, err := st.GetByID(ctx, model.PeopleCollection(role), email)
	if err != nil {
		return Identity{}, err
	}
	p, err := model.PersonFromDoc(doc)
	if err != nil {
		return Identity{}, err
	}
	return Identity{
		Email:      p.Email,
		Name:       p.Name,
		Role:       role,
		Department: p.Department,
		Field:      p.Field,
		Year:       p.Year,
	}, nil
}
