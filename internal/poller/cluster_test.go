package poller

import (
	"context"
	"strings"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func testPod(name, namespace string, created time.Time, ready bool, waiting string, restarts int32) *corev1.Pod {
	state := corev1.ContainerState{Running: &corev1.ContainerStateRunning{}}
	if waiting != "" {
		state = corev1.ContainerState{Waiting: &corev1.ContainerStateWaiting{Reason: waiting}}
	}
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:              name,
			Namespace:         namespace,
			CreationTimestamp: metav1.NewTime(created),
		},
		Spec: corev1.PodSpec{Containers: []corev1.Container{{Name: "main"}}},
		Status: corev1.PodStatus{
			Phase: corev1.PodRunning,
			ContainerStatuses: []corev1.ContainerStatus{{
				Name:         "main",
				Ready:        ready,
				RestartCount: restarts,
				State:        state,
			}},
		},
	}
}

func TestClusterSourceRendersPods(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	client := fake.NewSimpleClientset(
		testPod("nim-llm-1", "nim", now.Add(-2*time.Minute), false, "ImagePullBackOff", 3),
		testPod("nim-llm-0", "nim", now.Add(-90*time.Second), true, "", 0),
		testPod("other", "default", now, true, "", 0),
	)
	src := NewClusterSourceWithClient(client, time.Second)
	src.now = func() time.Time { return now }

	text, err := src.Snapshot(context.Background(), "nim")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two pods in namespace, got %d: %q", len(lines), text)
	}
	first := strings.Fields(lines[0])
	if strings.Join(first, " ") != "nim-llm-0 1/1 Running 0 90s" {
		t.Fatalf("unexpected first row %q", lines[0])
	}
	second := strings.Fields(lines[1])
	if strings.Join(second, " ") != "nim-llm-1 0/1 ImagePullBackOff 3 2m" {
		t.Fatalf("unexpected second row %q", lines[1])
	}
}

func TestClusterSourceFeedsPoller(t *testing.T) {
	now := time.Now()
	client := fake.NewSimpleClientset(testPod("app-0", "apps", now, true, "", 0))
	src := NewClusterSourceWithClient(client, time.Second)
	src.now = func() time.Time { return now }

	p := New(src, "apps", nil)
	if evs := p.Poll(context.Background()); len(evs) != 2 {
		t.Fatalf("expected header and one pod, got %+v", evs)
	}
	if evs := p.Poll(context.Background()); evs != nil {
		t.Fatalf("expected unchanged cluster to be suppressed, got %+v", evs)
	}
}
