package backend_test

import (
	"errors"
	"testing"

	"github.com/PetersonGuo/HTN25/internal/backend"
	_ "github.com/PetersonGuo/HTN25/internal/backend/cerebras"
	_ "github.com/PetersonGuo/HTN25/internal/backend/gemini"
	_ "github.com/PetersonGuo/HTN25/internal/backend/openai"
)

func TestRegistryLoadsBackends(t *testing.T) {
	for _, kind := range backend.Kinds() {
		desc, ok := backend.Lookup(kind)
		if !ok {
			t.Fatalf("expected %s backend to be registered", kind)
		}
		if desc.Factory == nil {
			t.Fatalf("expected factory for %s", kind)
		}
	}

	registered := backend.Registered()
	if len(registered) != len(backend.Kinds()) {
		t.Fatalf("expected %d registered backends, got %d", len(backend.Kinds()), len(registered))
	}
	if registered[0].Kind != backend.KindCerebras {
		t.Fatalf("expected sorted descriptors, got %s first", registered[0].Kind)
	}
}

func TestRegisterRejectsDuplicatesAndUnknownKinds(t *testing.T) {
	factory := func(backend.Options) (backend.Backend, error) { return nil, nil }

	err := backend.Register(backend.Descriptor{Kind: backend.KindOpenAI, Factory: factory})
	if !errors.Is(err, backend.ErrBackendRegistered) {
		t.Fatalf("expected duplicate registration error, got %v", err)
	}

	err = backend.Register(backend.Descriptor{Kind: "claude", Factory: factory})
	if !errors.Is(err, backend.ErrBackendInvalid) {
		t.Fatalf("expected invalid kind error, got %v", err)
	}
}

func TestNewWithoutCredentialsIsAuthError(t *testing.T) {
	for _, kind := range backend.Kinds() {
		_, err := backend.New(kind, backend.Options{})
		if err == nil {
			t.Fatalf("expected %s to reject missing credentials", kind)
		}
		if !errors.Is(err, backend.ErrMissingCredentials) {
			t.Fatalf("expected ErrMissingCredentials for %s, got %v", kind, err)
		}
		if got, ok := backend.KindOf(err); !ok || got != backend.ErrorAuth {
			t.Fatalf("expected auth error kind for %s, got %q", kind, got)
		}
	}
}

func TestParseKind(t *testing.T) {
	kind, ok := backend.ParseKind("  OpenAI ")
	if !ok || kind != backend.KindOpenAI {
		t.Fatalf("expected openai, got %q (%v)", kind, ok)
	}
	if _, ok := backend.ParseKind("claude"); ok {
		t.Fatalf("expected claude to be rejected")
	}
}

func TestDecodeImage(t *testing.T) {
	data, mime, err := backend.DecodeImage("data:image/png;base64,aGVsbG8=")
	if err != nil {
		t.Fatalf("decode data url: %v", err)
	}
	if string(data) != "hello" || mime != "image/png" {
		t.Fatalf("unexpected decode result %q %q", data, mime)
	}

	data, mime, err = backend.DecodeImage("aGVsbG8=")
	if err != nil {
		t.Fatalf("decode raw: %v", err)
	}
	if string(data) != "hello" || mime != "image/jpeg" {
		t.Fatalf("unexpected decode result %q %q", data, mime)
	}

	if _, _, err := backend.DecodeImage("data:image/png,plain"); err == nil {
		t.Fatalf("expected non-base64 data url to fail")
	}
}
