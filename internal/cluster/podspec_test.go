package cluster

import (
	"testing"

	corev1 "k8s.io/api/core/v1"

	"reproserver/internal/container"
)

func baseSpec() *corev1.PodSpec {
	return &corev1.PodSpec{
		Containers: []corev1.Container{
			{Name: runnerContainerName, Image: "reproserver/runner:latest"},
		},
	}
}

func TestMergeExtraConfigAddsSidecarsAndPorts(t *testing.T) {
	spec := baseSpec()
	extra := &container.ExtraConfig{
		SidecarContainers: []container.SidecarContainer{
			{Name: "cache", Image: "redis:7"},
		},
		ExtraPorts: []int{8888},
	}

	mergeExtraConfig(spec, extra)

	if len(spec.Containers) != 2 {
		t.Fatalf("containers = %d, want 2", len(spec.Containers))
	}
	if spec.Containers[1].Name != "cache" || spec.Containers[1].Image != "redis:7" {
		t.Errorf("sidecar = %+v", spec.Containers[1])
	}

	idx := runnerContainerIndex(spec)
	if idx < 0 {
		t.Fatal("runner container missing")
	}
	if len(spec.Containers[idx].Ports) != 1 || spec.Containers[idx].Ports[0].ContainerPort != 8888 {
		t.Errorf("ports = %+v", spec.Containers[idx].Ports)
	}
}

func TestMergeExtraConfigNoop(t *testing.T) {
	spec := baseSpec()
	mergeExtraConfig(spec, &container.ExtraConfig{})
	if len(spec.Containers) != 1 {
		t.Fatalf("containers = %d, want 1", len(spec.Containers))
	}
}

func TestSafePortRejectsOutOfRange(t *testing.T) {
	if safePort(-1) != 0 {
		t.Errorf("safePort(-1) should clamp to 0")
	}
	if safePort(70000) != 0 {
		t.Errorf("safePort(70000) should clamp to 0")
	}
	if safePort(8080) != 8080 {
		t.Errorf("safePort(8080) = %d", safePort(8080))
	}
}

func TestRunnerContainerIndexNotFound(t *testing.T) {
	spec := &corev1.PodSpec{Containers: []corev1.Container{{Name: "other"}}}
	if runnerContainerIndex(spec) != -1 {
		t.Errorf("expected -1 for missing runner container")
	}
}
