package core

import "testing"

func TestSanitizeAgentName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"add-login-form", "add_login_form"},
		{"123-fix-bug", "task_123_fix_bug"},
		{"valid_name", "valid_name"},
		{"_already_ok", "_already_ok"},
		{"", "task_"},
	}

	for _, tc := range cases {
		if got := SanitizeAgentName(tc.in); got != tc.want {
			t.Errorf("SanitizeAgentName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
