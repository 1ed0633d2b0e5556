package bigquery

import (
	"context"
	"testing"

	"github.com/sintef/sensapp-go/internal/datamodel"
	"github.com/sintef/sensapp-go/internal/storage"
)

func TestIsSource(t *testing.T) {
	cases := map[string]bool{
		"bigquery:my-project.my-dataset": true,
		"sqlite:file.db":                 false,
		"postgres://localhost/db":        false,
	}
	for cs, want := range cases {
		if got := IsSource(cs); got != want {
			t.Errorf("IsSource(%q) = %v, want %v", cs, got, want)
		}
	}
}

func TestNewReturnsConfigError(t *testing.T) {
	_, err := New(context.Background(), Config{ProjectDataset: "my-project.my-dataset"})
	if err == nil {
		t.Fatal("expected an error")
	}
	if kind, ok := datamodel.KindOf(err); !ok || kind != datamodel.ConfigError {
		t.Errorf("error kind = %v, ok = %v, want ConfigError", kind, ok)
	}
}

func TestFactoryOpenReturnsConfigError(t *testing.T) {
	_, err := storage.Open(context.Background(), "bigquery:proj.ds")
	if err == nil {
		t.Fatal("expected an error")
	}
	if kind, ok := datamodel.KindOf(err); !ok || kind != datamodel.ConfigError {
		t.Errorf("error kind = %v, ok = %v, want ConfigError", kind, ok)
	}
}
