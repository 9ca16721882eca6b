// Package containerrt wraps the container runtime's HTTP API with the
// operations the lifecycle controller needs: pull, create, start,
// attach, wait, logs, stop, remove, list. Sandboxed workloads run with
// private net/pid/ipc namespaces.
package containerrt

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// Namespaces selects, per namespace, whether a container gets its own
// (true) or shares the host's (false).
type Namespaces struct {
	Net bool
	PID bool
	IPC bool
}

// Private isolates every namespace. This is the policy for untrusted
// code.
var Private = Namespaces{Net: true, PID: true, IPC: true}

// Spec describes one container to create: the image to run, its command
// line, and its namespace policy.
type Spec struct {
	Image      string
	Command    []string
	Namespaces Namespaces
}

// Runtime talks to the container daemon through the official client SDK.
type Runtime struct {
	api *client.Client
}

// New builds a Runtime talking to the daemon at host. An empty host
// falls back to the environment (DOCKER_HOST, DOCKER_CERT_PATH, etc.).
func New(host string) (*Runtime, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	} else {
		opts = append(opts, client.FromEnv)
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, err
	}
	return &Runtime{api: cli}, nil
}

// Close releases the underlying HTTP transport.
func (r *Runtime) Close() error {
	if r == nil || r.api == nil {
		return nil
	}
	return r.api.Close()
}

// PullProgressItem mirrors one line of the daemon's pull progress
// stream: either structured progress or an error.
type PullProgressItem struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// Pull drains the image pull progress stream to completion and returns
// the first error entry encountered, or a transport error. Create must
// not be attempted until Pull returns.
func (r *Runtime) Pull(ctx context.Context, image string) error {
	reader, err := r.api.ImagePull(ctx, image, types.ImagePullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var pullErr error
	for scanner.Scan() {
		var item PullProgressItem
		if jsonErr := json.Unmarshal(scanner.Bytes(), &item); jsonErr != nil {
			continue
		}
		if item.Error != "" && pullErr == nil {
			pullErr = fmt.Errorf("%s", item.Error)
		}
	}
	if err := scanner.Err(); err != nil && pullErr == nil {
		pullErr = err
	}
	return pullErr
}

// Create builds a container for spec, translating its namespace policy
// into the matching HostConfig fields.
func (r *Runtime) Create(ctx context.Context, spec Spec) (string, error) {
	cfg := &container.Config{
		Image: spec.Image,
		Cmd:   spec.Command,
		Tty:   false,
	}
	hostCfg := &container.HostConfig{
		NetworkMode: networkMode(spec.Namespaces.Net),
		PidMode:     pidMode(spec.Namespaces.PID),
		IpcMode:     ipcMode(spec.Namespaces.IPC),
		AutoRemove:  false,
	}
	resp, err := r.api.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func networkMode(private bool) container.NetworkMode {
	if private {
		return container.NetworkMode("none")
	}
	return container.NetworkMode("host")
}

func pidMode(private bool) container.PidMode {
	if private {
		return container.PidMode("")
	}
	return container.PidMode("host")
}

func ipcMode(private bool) container.IpcMode {
	if private {
		return container.IpcMode("private")
	}
	return container.IpcMode("host")
}

// Start starts a created container.
func (r *Runtime) Start(ctx context.Context, id string) error {
	return r.api.ContainerStart(ctx, id, container.StartOptions{})
}

// Wait blocks until the container exits.
func (r *Runtime) Wait(ctx context.Context, id string) error {
	statusCh, errCh := r.api.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return err
	case <-statusCh:
		return nil
	}
}

// Logs fetches combined, demultiplexed stdout+stderr.
func (r *Runtime) Logs(ctx context.Context, id string) (string, error) {
	reader, err := r.api.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", err
	}
	defer reader.Close()
	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, reader); err != nil && err != io.EOF {
		return buf.String(), err
	}
	return buf.String(), nil
}

// Attach attaches to the container's stdout/stderr. Callers must attach
// before Start so no output is lost; the returned stream yields
// demultiplexed combined output.
func (r *Runtime) Attach(ctx context.Context, id string) (io.ReadCloser, error) {
	resp, err := r.api.ContainerAttach(ctx, id, container.AttachOptions{Stream: true, Stdout: true, Stderr: true})
	if err != nil {
		return nil, err
	}
	pr, pw := io.Pipe()
	go func() {
		_, copyErr := stdcopy.StdCopy(pw, pw, resp.Reader)
		resp.Close()
		pw.CloseWithError(copyErr)
	}()
	return pr, nil
}

// Stop stops a running container.
func (r *Runtime) Stop(ctx context.Context, id string) error {
	return r.api.ContainerStop(ctx, id, container.StopOptions{})
}

// Remove removes a container, forcing removal of a still-running one.
func (r *Runtime) Remove(ctx context.Context, id string) error {
	return r.api.ContainerRemove(ctx, id, container.RemoveOptions{Force: true, RemoveVolumes: true})
}

// List returns each container's name list.
func (r *Runtime) List(ctx context.Context, all bool) ([][]string, error) {
	containers, err := r.api.ContainerList(ctx, container.ListOptions{All: all})
	if err != nil {
		return nil, err
	}
	out := make([][]string, 0, len(containers))
	for _, c := range containers {
		out = append(out, c.Names)
	}
	return out, nil
}
