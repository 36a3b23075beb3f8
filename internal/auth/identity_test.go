package auth

import (
	"context"
	"errors"
	"testing"

	"campusattend/internal/model"
	"campusattend/internal/store"
)

func TestResolveIdentity(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	student := model.Person{
		Email:      "s@uni.edu",
		Name:       "Sam",
		Department: "Engineering",
		Field:      "Computer Science",
		Year:       "2",
	}
	if err := mem.Put(ctx, model.ColStudents, student.Email, student.Doc()); err != nil {
		t.Fatal(err)
	}

	id, err := ResolveIdentity(ctx, mem, model.RoleStudent, "s@uni.edu")
	if err != nil {
		t.Fatal(err)
	}
	if id.Role != model.RoleStudent || id.Department != "Engineering" || id.Year != "2" {
		t.Errorf("identity = %+v", id)
	}

	// The collections are disjoint by role: a student email is not a teacher.
	if _, err := ResolveIdentity(ctx, mem, model.RoleTeacher, "s@uni.edu"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("cross-role lookup err = %v, want ErrNotFound", err)
	}
	if _, err := ResolveIdentity(ctx, mem, model.RoleStudent, "ghost@uni.edu"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown email err = %v, want ErrNotFound", err)
	}
}
