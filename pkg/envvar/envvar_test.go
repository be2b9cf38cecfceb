package envvar_test

import (
	"slices"
	"testing"

	"github.com/JaimeStill/manifest/pkg/envvar"
)

func TestString(t *testing.T) {
	t.Setenv("MANIFEST_TEST_STRING", "override")

	v := "default"
	envvar.String(&v, "MANIFEST_TEST_STRING")
	if v != "override" {
		t.Errorf("String = %q, want override", v)
	}

	envvar.String(&v, "")
	if v != "override" {
		t.Errorf("empty name changed value to %q", v)
	}
}

func TestNumericParsing(t *testing.T) {
	t.Setenv("MANIFEST_TEST_INT", "42")
	t.Setenv("MANIFEST_TEST_FLOAT", "0.75")
	t.Setenv("MANIFEST_TEST_BAD", "not-a-number")

	n := 1
	envvar.Int(&n, "MANIFEST_TEST_INT")
	if n != 42 {
		t.Errorf("Int = %d, want 42", n)
	}

	envvar.Int(&n, "MANIFEST_TEST_BAD")
	if n != 42 {
		t.Errorf("unparsable value changed Int to %d", n)
	}

	f := 0.5
	envvar.Float(&f, "MANIFEST_TEST_FLOAT")
	if f != 0.75 {
		t.Errorf("Float = %v, want 0.75", f)
	}
}

func TestBool(t *testing.T) {
	t.Setenv("MANIFEST_TEST_BOOL", "true")

	var b bool
	envvar.Bool(&b, "MANIFEST_TEST_BOOL")
	if !b {
		t.Error("Bool = false, want true")
	}
}

func TestList(t *testing.T) {
	t.Setenv("MANIFEST_TEST_LIST", " a, b ,,c ")

	var got []string
	envvar.List(&got, "MANIFEST_TEST_LIST")
	if !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("List = %v, want [a b c]", got)
	}
}
