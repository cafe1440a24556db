package poller

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/duration"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// ClusterSource lists pods through the Kubernetes API and renders them like
// `kubectl get pods --no-headers`.
type ClusterSource struct {
	client  kubernetes.Interface
	timeout time.Duration
	now     func() time.Time
}

// NewClusterSource prefers in-cluster configuration and falls back to KUBECONFIG.
func NewClusterSource(timeout time.Duration) (*ClusterSource, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := strings.TrimSpace(os.Getenv("KUBECONFIG"))
		if kubeconfig == "" {
			return nil, fmt.Errorf("create in-cluster config: %w", err)
		}
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("create kubeconfig client: %w", err)
		}
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}
	return NewClusterSourceWithClient(clientset, timeout), nil
}

// NewClusterSourceWithClient wraps an existing clientset.
func NewClusterSourceWithClient(client kubernetes.Interface, timeout time.Duration) *ClusterSource {
	return &ClusterSource{client: client, timeout: timeout, now: time.Now}
}

// Snapshot lists at most MaxLines pods sorted by name.
func (s *ClusterSource) Snapshot(ctx context.Context, namespace string) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	list, err := s.client.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return "", fmt.Errorf("list pods in %s: %w", namespace, err)
	}
	pods := list.Items
	sort.Slice(pods, func(i, j int) bool { return pods[i].Name < pods[j].Name })
	if len(pods) > MaxLines {
		pods = pods[:MaxLines]
	}

	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 0, 3, ' ', 0)
	now := s.now()
	for i := range pods {
		fmt.Fprintln(tw, podRow(&pods[i], now))
	}
	if err := tw.Flush(); err != nil {
		return "", err
	}
	return b.String(), nil
}

func podRow(pod *corev1.Pod, now time.Time) string {
	total := len(pod.Spec.Containers)
	ready := 0
	restarts := int32(0)
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.Ready {
			ready++
		}
		restarts += cs.RestartCount
	}
	age := "<unknown>"
	if !pod.CreationTimestamp.IsZero() {
		age = duration.HumanDuration(now.Sub(pod.CreationTimestamp.Time))
	}
	return fmt.Sprintf("%s\t%d/%d\t%s\t%d\t%s", pod.Name, ready, total, podStatus(pod), restarts, age)
}

func podStatus(pod *corev1.Pod) string {
	if pod.DeletionTimestamp != nil {
		return "Terminating"
	}
	for _, cs := range pod.Status.InitContainerStatuses {
		if cs.State.Waiting != nil && cs.State.Waiting.Reason != "" {
			return "Init:" + cs.State.Waiting.Reason
		}
	}
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.State.Waiting != nil && cs.State.Waiting.Reason != "" {
			return cs.State.Waiting.Reason
		}
		if cs.State.Terminated != nil && cs.State.Terminated.Reason != "" {
			return cs.State.Terminated.Reason
		}
	}
	if pod.Status.Reason != "" {
		return pod.Status.Reason
	}
	if pod.Status.Phase == "" {
		return "Unknown"
	}
	return string(pod.Status.Phase)
}
