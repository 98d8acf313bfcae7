package seed

import "testing"

func TestValidate(t *testing.T) {
	type contact struct {
		Email string `validate:"email"`
		Name  string `validate:"required"`
	}
	tests := []struct {
		name  string
		input contact
		want  string
	}{
		{"Valid", contact{Email: "ops@diversitus.io", Name: "Ops"}, ""},
		{"Required", contact{Email: "ops@diversitus.io"}, "contact[0]: name is required"},
		{"OtherTag", contact{Email: "not-an-address", Name: "Ops"}, `contact[0]: email failed on "email"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate("contact[0]", tt.input)
			if tt.want == "" {
				if err != nil {
					t.Fatalf("validate() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("validate() did not return an error")
			}
			if _, ok := err.(*InputError); !ok {
				t.Errorf("validate() error = %T, want %T", err, &InputError{})
			}
			if err.Error() != tt.want {
				t.Errorf("Error = %q, want %q", err.Error(), tt.want)
			}
		})
	}
}
