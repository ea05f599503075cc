package cluster

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"go.uber.org/zap"

	"reproserver/internal/connector"
	"reproserver/internal/logger"
)

// cleanupDelay is how long the supervisor waits before deleting a
// reconciled pod and its service (spec §4.4 step 3: "60 seconds
// later"), giving operators a window to inspect a failed pod.
const cleanupDelay = 60 * time.Second

// tailLines bounds how much of a terminated container's log the
// supervisor captures (spec §4.4 step 3: "up to the last 300 lines").
const tailLines = int64(300)

const labelSelector = LabelManaged + "=true"

// Supervisor watches worker pods for lifecycle events and reconciles
// terminated ones back into durable run state (spec §4.4). It owns its
// own in-flight set, independent of the orchestrator's, since the two
// only need to agree eventually.
type Supervisor struct {
	clientset kubernetes.Interface
	namespace string
	conn      connector.Connector

	mu       sync.Mutex
	inFlight map[int64]struct{}
}

// NewSupervisor builds a supervisor for namespace, reconciling against
// conn (a direct connector, since the supervisor runs in the control
// plane process alongside the store).
func NewSupervisor(clientset kubernetes.Interface, namespace string, conn connector.Connector) *Supervisor {
	return &Supervisor{
		clientset: clientset,
		namespace: namespace,
		conn:      conn,
		inFlight:  make(map[int64]struct{}),
	}
}

// Run blocks, performing a full sync and then streaming pod changes
// until ctx is canceled, restarting the watch on disconnect or an
// expired resourceVersion (spec §4.4 step 2).
func (s *Supervisor) Run(ctx context.Context) error {
	ctx = logger.WithComponent(ctx, "cluster-supervisor")
	log := logger.GetLogger(ctx)

	rv, err := s.fullSync(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		nextRV, err := s.watchOnce(ctx, rv)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("pod watch ended, restarting", zap.Error(err))
			rv, err = s.fullSync(ctx)
			if err != nil {
				log.Warn("full sync failed, retrying", zap.Error(err))
				time.Sleep(time.Second)
			}
			continue
		}
		rv = nextRV
	}
}

// fullSync lists every managed pod and service once (spec §4.4 step
// 1): treats each pod as newly discovered, reconciles its current
// status, and deletes any service whose pod no longer exists.
func (s *Supervisor) fullSync(ctx context.Context) (string, error) {
	pods, err := s.clientset.CoreV1().Pods(s.namespace).List(ctx, metav1.ListOptions{LabelSelector: labelSelector})
	if err != nil {
		return "", err
	}

	live := make(map[string]struct{}, len(pods.Items))
	for i := range pods.Items {
		pod := &pods.Items[i]
		live[pod.Name] = struct{}{}
		if pod.DeletionTimestamp != nil {
			continue
		}
		runID, ok := runIDFromPod(pod)
		if !ok {
			continue
		}
		s.addInFlight(runID)
		s.reconcilePod(ctx, pod, runID)
	}

	svcs, err := s.clientset.CoreV1().Services(s.namespace).List(ctx, metav1.ListOptions{LabelSelector: labelSelector})
	if err != nil {
		return pods.ResourceVersion, err
	}
	for i := range svcs.Items {
		svc := &svcs.Items[i]
		if _, ok := live[svc.Name]; !ok {
			_ = s.clientset.CoreV1().Services(s.namespace).Delete(ctx, svc.Name, metav1.DeleteOptions{})
		}
	}

	return pods.ResourceVersion, nil
}

// watchOnce streams pod events starting from resourceVersion until the
// channel closes, an error event arrives, or ctx is canceled, and
// returns the resourceVersion to resume from.
func (s *Supervisor) watchOnce(ctx context.Context, resourceVersion string) (string, error) {
	w, err := s.clientset.CoreV1().Pods(s.namespace).Watch(ctx, metav1.ListOptions{
		LabelSelector:   labelSelector,
		ResourceVersion: resourceVersion,
	})
	if err != nil {
		return resourceVersion, err
	}
	defer w.Stop()

	rv := resourceVersion
	for event := range w.ResultChan() {
		if event.Type == watch.Error {
			if status, ok := event.Object.(*metav1.Status); ok && isExpiredResourceVersion(status) {
				return rv, errWatchExpired
			}
			return rv, errWatchError
		}

		pod, ok := event.Object.(*corev1.Pod)
		if !ok {
			continue
		}
		rv = pod.ResourceVersion

		switch event.Type {
		case watch.Deleted:
			s.handlePodDeleted(ctx, pod)
		default: // Added, Modified
			if pod.DeletionTimestamp != nil {
				continue
			}
			runID, ok := runIDFromPod(pod)
			if !ok {
				continue
			}
			s.addInFlight(runID)
			s.reconcilePod(ctx, pod, runID)
		}
	}
	return rv, errWatchClosed
}

// handlePodDeleted is spec §4.4 step 4: the pod vanished out from
// under the supervisor (an operator deleted it directly). If the run
// was still in flight, that's a mid-run pod loss: fail it.
func (s *Supervisor) handlePodDeleted(ctx context.Context, pod *corev1.Pod) {
	runID, ok := runIDFromPod(pod)
	if !ok {
		return
	}
	wasInFlight := s.removeInFlight(runID)
	if wasInFlight {
		_ = s.conn.RunFailed(ctx, runID, "Internal error")
	}
	deletePodAndService(ctx, s.clientset, s.namespace, pod.Name)
}

// reconcilePod implements spec §4.4 step 3 for one observed pod.
func (s *Supervisor) reconcilePod(ctx context.Context, pod *corev1.Pod, runID int64) {
	ctx = logger.WithRun(ctx, runID)
	log := logger.GetLogger(ctx)

	terminated := false
	runnerSucceeded := false
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.State.Terminated == nil {
			continue
		}
		terminated = true
		if cs.Name == runnerContainerName && cs.State.Terminated.ExitCode == 0 {
			runnerSucceeded = true
		}
		if cs.State.Terminated.ExitCode != 0 {
			s.logContainerTail(ctx, pod.Name, cs.Name, log)
		}
	}
	if !terminated {
		return
	}

	s.removeInFlight(runID)

	if !runnerSucceeded {
		_ = s.conn.RunFailed(ctx, runID, "Internal error")
	}

	name, namespace, clientset := pod.Name, s.namespace, s.clientset
	go func() {
		time.Sleep(cleanupDelay)
		deletePodAndService(context.Background(), clientset, namespace, name)
	}()
}

func (s *Supervisor) logContainerTail(ctx context.Context, podName, containerName string, log *zap.Logger) {
	lines := tailLines
	req := s.clientset.CoreV1().Pods(s.namespace).GetLogs(podName, &corev1.PodLogOptions{
		Container: containerName,
		TailLines: &lines,
	})
	stream, err := req.Stream(ctx)
	if err != nil {
		log.Warn("failed to fetch container log tail", zap.String("container", containerName), zap.Error(err))
		return
	}
	defer stream.Close()

	buf := make([]byte, 64*1024)
	n, _ := stream.Read(buf)
	log.Warn("container exited non-zero",
		zap.String("pod", podName), zap.String("container", containerName), zap.String("log_tail", string(buf[:n])))
}

func (s *Supervisor) addInFlight(runID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight[runID] = struct{}{}
	inFlightGauge.Set(float64(len(s.inFlight)))
}

func (s *Supervisor) removeInFlight(runID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inFlight[runID]
	delete(s.inFlight, runID)
	inFlightGauge.Set(float64(len(s.inFlight)))
	return ok
}

func runIDFromPod(pod *corev1.Pod) (int64, bool) {
	return parseRunIDLabel(pod.Labels[LabelRunID])
}

func isExpiredResourceVersion(status *metav1.Status) bool {
	return status.Code == 410 || strings.Contains(status.Message, "Expired")
}

var (
	errWatchClosed  = errors.New("cluster: pod watch channel closed")
	errWatchExpired = errors.New("cluster: pod watch resourceVersion expired")
	errWatchError   = errors.New("cluster: pod watch error event")
)
