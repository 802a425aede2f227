package launcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/mikeydub/go-indexer/env"
	"github.com/mikeydub/go-indexer/service/persist"
	"github.com/ory/dockertest/docker"
)

const stopTimeoutSeconds = 10

// DockerRuntime runs one container per worker from a fixed image, joined to a
// well-known network so workers can reach the database by service name. The
// indexer name doubles as the container name.
type DockerRuntime struct {
	client  *docker.Client
	image   string
	network string
}

// NewDockerRuntime connects to the Docker daemon from the environment. The
// worker image and network come from WORKER_IMAGE and WORKER_NETWORK.
func NewDockerRuntime() (*DockerRuntime, error) {
	client, err := docker.NewClientFromEnv()
	if err != nil {
		return nil, err
	}

	return &DockerRuntime{
		client:  client,
		image:   env.GetString("WORKER_IMAGE"),
		network: env.GetString("WORKER_NETWORK"),
	}, nil
}

// StartWorker creates and starts the indexer's container. Database
// credentials are inherited from the launcher's own environment.
func (d *DockerRuntime) StartWorker(pCtx context.Context, pIndexer persist.Indexer) error {
	container, err := d.client.CreateContainer(docker.CreateContainerOptions{
		Context: pCtx,
		Name:    pIndexer.Name,
		Config: &docker.Config{
			Image: d.image,
			Env:   d.workerEnv(pIndexer.Name),
		},
		HostConfig: &docker.HostConfig{
			NetworkMode:   d.network,
			RestartPolicy: docker.RestartPolicy{Name: "unless-stopped"},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create container %s: %w", pIndexer.Name, err)
	}

	if err := d.client.StartContainer(container.ID, nil); err != nil {
		return fmt.Errorf("failed to start container %s: %w", pIndexer.Name, err)
	}
	return nil
}

// StopWorker stops and removes the named container. A container that does not
// exist is already stopped.
func (d *DockerRuntime) StopWorker(pCtx context.Context, pName string) error {
	err := d.client.StopContainer(pName, stopTimeoutSeconds)
	if err != nil && !isNoSuchContainer(err) {
		return fmt.Errorf("failed to stop container %s: %w", pName, err)
	}

	err = d.client.RemoveContainer(docker.RemoveContainerOptions{
		Context: pCtx,
		ID:      pName,
		Force:   true,
	})
	if err != nil && !isNoSuchContainer(err) {
		return fmt.Errorf("failed to remove container %s: %w", pName, err)
	}
	return nil
}

// WorkerLogs returns the last pTail lines of the named container's output
func (d *DockerRuntime) WorkerLogs(pCtx context.Context, pName string, pTail int) (string, error) {
	buf := &bytes.Buffer{}
	err := d.client.Logs(docker.LogsOptions{
		Context:      pCtx,
		Container:    pName,
		OutputStream: buf,
		ErrorStream:  buf,
		Stdout:       true,
		Stderr:       true,
		Tail:         strconv.Itoa(pTail),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (d *DockerRuntime) workerEnv(pName string) []string {
	return []string{
		"INDEXER_NAME=" + pName,
		"ENV=" + env.GetString("ENV"),
		"POSTGRES_HOST=" + env.GetString("POSTGRES_HOST"),
		"POSTGRES_PORT=" + strconv.Itoa(env.GetInt("POSTGRES_PORT")),
		"POSTGRES_USER=" + env.GetString("POSTGRES_USER"),
		"POSTGRES_PASSWORD=" + env.GetString("POSTGRES_PASSWORD"),
		"POSTGRES_DB=" + env.GetString("POSTGRES_DB"),
		"SENTRY_DSN=" + env.GetString("SENTRY_DSN"),
	}
}

func isNoSuchContainer(err error) bool {
	var noSuch *docker.NoSuchContainer
	if errors.As(err, &noSuch) {
		return true
	}
	var containerNotRunning *docker.ContainerNotRunning
	return errors.As(err, &containerNotRunning)
}
