package auth

import (
	"testing"
	"time"

	"campusattend/internal/model"
)

func TestIssueAndParse(t *testing.T) {
	id := Identity{
		Email:      "s@uni.edu",
		Role:       model.RoleStudent,
		Department: "Engineering",
		Field:      "Computer Science",
		Year:       "2",
	}
	tokens, err := Issue(id, "campusattend", "secret", 15*time.Minute, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	claims, err := Parse(tokens.AccessToken, "secret", "campusattend", TokenUseAccess)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Email() != "s@uni.edu" || claims.Role != model.RoleStudent {
		t.Errorf("claims = %+v", claims)
	}
	if claims.Department != "Engineering" || claims.Field != "Computer Science" || claims.Year != "2" {
		t.Errorf("placement not carried: %+v", claims)
	}
}

func TestTokenUseSeparation(t *testing.T) {
	id := Identity{Email: "s@uni.edu", Role: model.RoleStudent}
	tokens, err := Issue(id, "campusattend", "secret", 15*time.Minute, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Parse(tokens.AccessToken, "secret", "campusattend", TokenUseRefresh); err == nil {
		t.Error("access token must not mint a new pair")
	}
	if _, err := Parse(tokens.RefreshToken, "secret", "campusattend", TokenUseAccess); err == nil {
		t.Error("refresh token must not authorize requests")
	}
	if _, err := Parse(tokens.RefreshToken, "secret", "campusattend", TokenUseRefresh); err != nil {
		t.Errorf("refresh token rejected on the refresh path: %v", err)
	}
}

func TestParseRejections(t *testing.T) {
	id := Identity{Email: "s@uni.edu", Role: model.RoleStudent}
	tokens, err := Issue(id, "campusattend", "secret", time.Minute, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Parse(tokens.AccessToken, "wrong-key", "campusattend", TokenUseAccess); err == nil {
		t.Error("wrong key must fail")
	}
	if _, err := Parse(tokens.AccessToken, "secret", "someone-else", TokenUseAccess); err == nil {
		t.Error("issuer mismatch must fail")
	}

	expired, err := Issue(id, "campusattend", "secret", -time.Minute, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(expired.AccessToken, "secret", "campusattend", TokenUseAccess); err == nil {
		t.Error("expired token must fail")
	}
}
