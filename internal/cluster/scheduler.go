package cluster

import (
	"context"
	"fmt"
	"strconv"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/client-go/kubernetes"

	"reproserver/internal/config"
	"reproserver/internal/connector"
	"reproserver/internal/container"
)

// Strategy implements orchestrator.LaunchStrategy by creating a worker
// pod + service per run (spec §4.3, "cluster.Strategy"). The pod's
// entrypoint is cmd/runner, which constructs a remote connector and
// drives the same container.Driver this process uses locally.
type Strategy struct {
	clientset    kubernetes.Interface
	namespace    string
	namePrefix   string
	labels       map[string]string
	podTemplate  *corev1.PodSpec
	runnerImage  string
	apiEndpoint  string
	connToken    string
}

// New builds a cluster strategy from cfg, connecting to the
// Kubernetes API and loading the operator's pod spec template.
func New(cfg *config.Config) (*Strategy, error) {
	clientset, _, err := BuildClientset(cfg)
	if err != nil {
		return nil, err
	}

	tmpl, err := loadPodSpecTemplate(cfg.K8sConfigDir)
	if err != nil {
		return nil, err
	}

	return &Strategy{
		clientset:   clientset,
		namespace:   cfg.RunNamespace,
		namePrefix:  cfg.RunNamePrefix,
		labels:      cfg.RunLabels,
		podTemplate: tmpl,
		runnerImage: cfg.OverrideRunnerImage,
		apiEndpoint: cfg.APIEndpoint,
		connToken:   cfg.ConnectionToken,
	}, nil
}

func (s *Strategy) resourceName(runID int64) string {
	return fmt.Sprintf("%s%d", s.namePrefix, runID)
}

// Launch implements orchestrator.LaunchStrategy.
func (s *Strategy) Launch(ctx context.Context, runID int64, info *connector.RunInfo) error {
	extra, err := container.ParseExtraConfig(info.ExtraConfig)
	if err != nil {
		return &connector.BundleError{RunID: runID, Message: err.Error()}
	}
	if err := extra.ValidateRequiredFeatures(); err != nil {
		return &connector.BundleError{RunID: runID, Message: err.Error()}
	}

	name := s.resourceName(runID)
	labels := s.podLabels(runID)

	spec := s.podTemplate.DeepCopy()
	mergeExtraConfig(spec, extra)
	s.setRunnerContainer(spec, runID)

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: s.namespace,
			Labels:    labels,
		},
		Spec: *spec,
	}

	if _, err := s.clientset.CoreV1().Pods(s.namespace).Create(ctx, pod, metav1.CreateOptions{}); err != nil {
		return &connector.InfrastructureError{RunID: runID, Operation: "create pod", Err: err}
	}

	svc := s.buildService(name, labels, info.Ports)
	if _, err := s.clientset.CoreV1().Services(s.namespace).Create(ctx, svc, metav1.CreateOptions{}); err != nil {
		_ = s.clientset.CoreV1().Pods(s.namespace).Delete(ctx, name, metav1.DeleteOptions{})
		return &connector.InfrastructureError{RunID: runID, Operation: "create service", Err: err}
	}

	return nil
}

func (s *Strategy) podLabels(runID int64) map[string]string {
	labels := map[string]string{
		LabelManaged: "true",
		LabelRunID:   runIDLabel(runID),
	}
	for k, v := range s.labels {
		labels[k] = v
	}
	return labels
}

// setRunnerContainer points the runner container's env at this run
// and the control plane, and applies the operator's image override.
func (s *Strategy) setRunnerContainer(spec *corev1.PodSpec, runID int64) {
	idx := runnerContainerIndex(spec)
	if idx < 0 {
		return
	}
	c := &spec.Containers[idx]

	if s.runnerImage != "" {
		c.Image = s.runnerImage
	}

	c.Env = append(c.Env,
		corev1.EnvVar{Name: "RUN_ID", Value: strconv.FormatInt(runID, 10)},
		corev1.EnvVar{Name: "API_ENDPOINT", Value: s.apiEndpoint},
		corev1.EnvVar{Name: "CONNECTION_TOKEN", Value: s.connToken},
	)
}

// internalProxyPort is the in-pod proxy's port (cmd/runner's
// internalProxyAddr). Every run's service carries it regardless of
// declared app ports, since the external proxy always forwards
// through the internal proxy (internal/cluster/resolver.go) rather
// than straight to the app (spec §4.4).
const internalProxyPort = 5597

func (s *Strategy) buildService(name string, labels map[string]string, ports []connector.Port) *corev1.Service {
	svcPorts := make([]corev1.ServicePort, 0, len(ports)+1)
	svcPorts = append(svcPorts, corev1.ServicePort{
		Name:       "port-5597",
		Port:       internalProxyPort,
		TargetPort: intstr.FromInt32(internalProxyPort),
		Protocol:   corev1.ProtocolTCP,
	})
	for _, p := range ports {
		svcPorts = append(svcPorts, corev1.ServicePort{
			Name:       fmt.Sprintf("port-%d", p.Number),
			Port:       safePort(p.Number),
			TargetPort: intstr.FromInt32(safePort(p.Number)),
			Protocol:   corev1.ProtocolTCP,
		})
	}
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: s.namespace,
			Labels:    labels,
		},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{LabelRunID: labels[LabelRunID]},
			Ports:    svcPorts,
			Type:     corev1.ServiceTypeClusterIP,
		},
	}
}

// deletePodAndService removes both resources, tolerating "not found"
// (spec §4.4 step 3: "tolerating not found on delete").
func deletePodAndService(ctx context.Context, clientset kubernetes.Interface, namespace, name string) {
	if err := clientset.CoreV1().Pods(namespace).Delete(ctx, name, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
		_ = err // best-effort cleanup; errors other than not-found are discarded
	}
	if err := clientset.CoreV1().Services(namespace).Delete(ctx, name, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
		_ = err
	}
}
