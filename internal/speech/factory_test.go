package speech

import "testing"

func TestFactoryMock(t *testing.T) {
	g, name, err := NewGateway(FactoryConfig{Provider: "mock"})
	if err != nil {
		t.Fatalf("NewGateway(mock) error = %v", err)
	}
	if name != "mock" {
		t.Fatalf("resolved provider = %q, want mock", name)
	}
	if _, ok := g.(*MockGateway); !ok {
		t.Fatalf("gateway type = %T, want *MockGateway", g)
	}
}

func TestFactoryRejectsUnknownProvider(t *testing.T) {
	if _, _, err := NewGateway(FactoryConfig{Provider: "telepathy"}); err == nil {
		t.Fatalf("unknown provider should fail")
	}
}

func TestFactoryCloudRequiresKey(t *testing.T) {
	if _, _, err := NewGateway(FactoryConfig{Provider: "cloud"}); err == nil {
		t.Fatalf("cloud provider without key should fail")
	}
}

func TestFactoryAutoFallsBackToMock(t *testing.T) {
	// No cloud key and no local engines on the test machine.
	g, name, err := NewGateway(FactoryConfig{
		Provider: "auto",
		Local:    LocalConfig{WhisperCLI: "definitely-not-installed"},
	})
	if err != nil {
		t.Fatalf("NewGateway(auto) error = %v", err)
	}
	if name != "mock" {
		t.Fatalf("resolved provider = %q, want mock", name)
	}
	if g == nil {
		t.Fatalf("gateway is nil")
	}
}

func TestFactoryOfflineForcesLocal(t *testing.T) {
	// Offline mode must not pick the cloud provider even with a key set; with
	// no local engines installed the constructor fails rather than silently
	// going online.
	_, _, err := NewGateway(FactoryConfig{
		Provider: "cloud",
		Offline:  true,
		Google:   GoogleConfig{APIKey: "key"},
		Local:    LocalConfig{WhisperCLI: "definitely-not-installed"},
	})
	if err == nil {
		t.Fatalf("offline mode with no local engines should fail, not use the cloud")
	}
}
