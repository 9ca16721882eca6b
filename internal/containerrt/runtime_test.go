package containerrt

import (
	"testing"

	"github.com/docker/docker/api/types/container"
)

func TestNetworkMode(t *testing.T) {
	if got := networkMode(true); got != container.NetworkMode("none") {
		t.Fatalf("expected private network mode none, got %q", got)
	}
	if got := networkMode(false); got != container.NetworkMode("host") {
		t.Fatalf("expected host network mode, got %q", got)
	}
}

func TestPidMode(t *testing.T) {
	if got := pidMode(true); got != container.PidMode("") {
		t.Fatalf("expected private pid mode to be empty, got %q", got)
	}
	if got := pidMode(false); got != container.PidMode("host") {
		t.Fatalf("expected host pid mode, got %q", got)
	}
}

func TestIpcMode(t *testing.T) {
	if got := ipcMode(true); got != container.IpcMode("private") {
		t.Fatalf("expected private ipc mode, got %q", got)
	}
	if got := ipcMode(false); got != container.IpcMode("host") {
		t.Fatalf("expected host ipc mode, got %q", got)
	}
}

func TestPrivateIsolatesEveryNamespace(t *testing.T) {
	if !Private.Net || !Private.PID || !Private.IPC {
		t.Fatalf("expected Private to isolate net, pid, and ipc, got %+v", Private)
	}
}
