package container

import "testing"

func TestParseExtraConfigEmpty(t *testing.T) {
	cfg, err := parseExtraConfig(nil)
	if err != nil {
		t.Fatalf("parseExtraConfig(nil): %v", err)
	}
	if err := cfg.ValidateRequiredFeatures(); err != nil {
		t.Fatalf("ValidateRequiredFeatures on empty config: %v", err)
	}
}

func TestValidateRequiredFeaturesRejectsUnknown(t *testing.T) {
	cfg, err := parseExtraConfig([]byte(`{"required":["gpu_passthrough"]}`))
	if err != nil {
		t.Fatalf("parseExtraConfig: %v", err)
	}
	if err := cfg.ValidateRequiredFeatures(); err == nil {
		t.Fatal("expected error for unsupported required feature")
	}
}

func TestValidateRequiredFeaturesAcceptsKnown(t *testing.T) {
	cfg, err := parseExtraConfig([]byte(`{"required":["sidecar_containers"],"sidecar_containers":[{"name":"crawler","image":"example/crawler"}]}`))
	if err != nil {
		t.Fatalf("parseExtraConfig: %v", err)
	}
	if err := cfg.ValidateRequiredFeatures(); err != nil {
		t.Fatalf("ValidateRequiredFeatures: %v", err)
	}
	if len(cfg.SidecarContainers) != 1 || cfg.SidecarContainers[0].Name != "crawler" {
		t.Fatalf("sidecar containers not decoded: %+v", cfg.SidecarContainers)
	}
}
