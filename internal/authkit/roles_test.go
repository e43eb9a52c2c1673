package authkit

import "testing"

func TestParseRole(t *testing.T) {
	t.Parallel()

	cases := []struct {
		input   string
		want    Role
		wantErr bool
	}{
		{input: "STUDENT", want: RoleStudent},
		{input: "tutor", want: RoleTutor},
		{input: " Admin ", want: RoleAdmin},
		{input: "teacher", wantErr: true},
		{input: "", wantErr: true},
	}
	for _, testCase := range cases {
		role, err := ParseRole(testCase.input)
		if testCase.wantErr {
			if err == nil {
				t.Fatalf("ParseRole(%q): expected error", testCase.input)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseRole(%q): unexpected error: %v", testCase.input, err)
		}
		if role != testCase.want {
			t.Fatalf("ParseRole(%q): expected %s, got %s", testCase.input, testCase.want, role)
		}
	}
}

func TestRoleSetContains(t *testing.T) {
	t.Parallel()

	set := NewRoleSet(RoleAdmin, RoleTutor)
	if !set.Contains(RoleAdmin) || !set.Contains(RoleTutor) {
		t.Fatalf("expected set to contain admin and tutor")
	}
	if set.Contains(RoleStudent) {
		t.Fatalf("expected set to exclude student")
	}
}
