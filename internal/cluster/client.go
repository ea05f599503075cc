package cluster

import (
	"fmt"
	"os"
	"path/filepath"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"reproserver/internal/config"
)

// BuildClientset mirrors the teacher's buildRestConfig/NewForConfig
// pair (internal/kubernetes/runtime.go): a kubeconfig file under
// K8S_CONFIG_DIR takes precedence, falling back to in-cluster config
// when the control plane itself runs inside Kubernetes.
// Exported so cmd/controlplane can build a clientset for the pod
// supervisor from the same config; Strategy builds its own separately.
func BuildClientset(cfg *config.Config) (kubernetes.Interface, *rest.Config, error) {
	restConfig, err := buildRestConfig(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("cluster: build rest config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("cluster: create clientset: %w", err)
	}
	return clientset, restConfig, nil
}

func buildRestConfig(cfg *config.Config) (*rest.Config, error) {
	kubeconfigPath := filepath.Join(cfg.K8sConfigDir, "kubeconfig")
	if cfg.K8sConfigDir == "" {
		return rest.InClusterConfig()
	}
	if _, err := os.Stat(kubeconfigPath); err != nil {
		return rest.InClusterConfig()
	}

	raw, err := os.ReadFile(kubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("read kubeconfig: %w", err)
	}
	clientConfig, err := clientcmd.NewClientConfigFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("parse kubeconfig: %w", err)
	}
	return clientConfig.ClientConfig()
}
