package cluster

import (
	"fmt"
	"os"
	"path/filepath"

	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/yaml"

	"reproserver/internal/container"
)

const podSpecFileName = "runner-pod-spec.yaml"

// loadPodSpecTemplate reads the operator-supplied pod spec template
// (spec.md §4.4: "pod spec templated from K8S_CONFIG_DIR"). The
// template must declare a container named "runner" (the first one with
// that name is used); per run, Strategy.Launch appends extra_config
// sidecars and ports (mergeExtraConfig), and setRunnerContainer appends
// the run's env and applies OverrideRunnerImage. Nothing else in the
// template is changed.
func loadPodSpecTemplate(configDir string) (*corev1.PodSpec, error) {
	path := filepath.Join(configDir, podSpecFileName)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cluster: read %s: %w", path, err)
	}

	var spec corev1.PodSpec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("cluster: parse %s: %w", path, err)
	}

	if runnerContainerIndex(&spec) < 0 {
		return nil, fmt.Errorf("cluster: %s must declare a container named %q", path, runnerContainerName)
	}
	return &spec, nil
}

const runnerContainerName = "runner"

func runnerContainerIndex(spec *corev1.PodSpec) int {
	for i := range spec.Containers {
		if spec.Containers[i].Name == runnerContainerName {
			return i
		}
	}
	return -1
}

// mergeExtraConfig appends sidecar containers and extra container
// ports declared in a run's extra_config (spec §4.2 "extra_config
// handling": "fully merged into the pod spec by the cluster strategy").
func mergeExtraConfig(spec *corev1.PodSpec, extra *container.ExtraConfig) {
	for _, sc := range extra.SidecarContainers {
		spec.Containers = append(spec.Containers, corev1.Container{
			Name:    sc.Name,
			Image:   sc.Image,
			Command: sc.Command,
		})
	}

	idx := runnerContainerIndex(spec)
	if idx < 0 {
		return
	}
	for _, port := range extra.ExtraPorts {
		spec.Containers[idx].Ports = append(spec.Containers[idx].Ports, corev1.ContainerPort{
			ContainerPort: safePort(port),
			Protocol:      corev1.ProtocolTCP,
		})
	}
}

func safePort(p int) int32 {
	if p < 0 || p > 65535 {
		return 0
	}
	return int32(p) // #nosec G115 -- bounds checked above
}
