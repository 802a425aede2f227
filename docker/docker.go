// Package docker starts throwaway service containers for integration tests.
// The containers are resolved from the repo's docker-compose file so tests
// exercise the same images the dev environment runs.
package docker

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/asottile/dockerfile"
	"github.com/ory/dockertest"
	"github.com/ory/dockertest/docker"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	_ "github.com/jackc/pgx/v4/stdlib"
)

// N.B. This isn't the entire Docker Compose spec...
type ComposeFile struct {
	Version  string             `yaml:"version"`
	Services map[string]Service `yaml:"services"`
}

type Service struct {
	Image       string                 `yaml:"image"`
	Ports       []string               `yaml:"ports"`
	Build       map[string]interface{} `yaml:"build"`
	Environment []string               `yaml:"environment"`
	Command     string                 `yaml:"command"`
}

func configureContainerCleanup(config *docker.HostConfig) {
	config.AutoRemove = true
	config.RestartPolicy = docker.RestartPolicy{Name: "no"}
}

func waitOnDB() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("db is not available")
		}
	}()

	db, err := sql.Open(
		"pgx",
		fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
			viper.GetString("POSTGRES_HOST"),
			viper.GetInt("POSTGRES_PORT"),
			viper.GetString("POSTGRES_USER"),
			viper.GetString("POSTGRES_PASSWORD"),
			viper.GetString("POSTGRES_DB"),
		),
	)
	if err != nil {
		panic(err)
	}

	if err := db.Ping(); err != nil {
		panic(err)
	}

	db.Close()
	return
}

func loadComposeFile(path string) (ComposeFile, error) {
	var f ComposeFile

	data, err := os.ReadFile(path)
	if err != nil {
		return f, err
	}

	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, err
	}

	return f, nil
}

func getImageAndVersion(s string) ([]string, error) {
	imgAndVer := strings.Split(s, ":")
	if len(imgAndVer) != 2 {
		return nil, errors.New("no version specified for image")
	}
	return imgAndVer, nil
}

func getBuildImage(path string, s Service) ([]string, error) {
	dockerPath := filepath.Join(filepath.Dir(path), s.Build["dockerfile"].(string))
	absPath, _ := filepath.Abs(dockerPath)
	res, err := dockerfile.ParseFile(absPath)
	if err != nil {
		return nil, err
	}

	for _, cmd := range res {
		if cmd.Cmd == "FROM" {
			return getImageAndVersion(cmd.Value[0])
		}
	}

	return nil, errors.New("no `FROM` directive found in dockerfile")
}

// StartPostgres runs the compose file's postgres service in a fresh container
// and patches the viper environment to point at it. Callers should skip their
// test when this fails: no docker daemon is a valid way to run the suite.
func StartPostgres(composePath string) (*dockertest.Resource, error) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		return nil, fmt.Errorf("could not connect to docker: %w", err)
	}
	pool.MaxWait = 3 * time.Minute

	absPath, _ := filepath.Abs(composePath)
	apps, err := loadComposeFile(absPath)
	if err != nil {
		return nil, err
	}

	imgAndVer, err := getBuildImage(absPath, apps.Services["postgres"])
	if err != nil {
		return nil, err
	}

	pg, err := pool.RunWithOptions(
		&dockertest.RunOptions{
			Repository: imgAndVer[0],
			Tag:        imgAndVer[1],
			Env:        apps.Services["postgres"].Environment,
		}, configureContainerCleanup,
	)
	if err != nil {
		return nil, fmt.Errorf("could not start postgres: %w", err)
	}

	// Patch environment to use container
	hostAndPort := strings.Split(pg.GetHostPort("5432/tcp"), ":")
	viper.Set("POSTGRES_HOST", hostAndPort[0])
	viper.Set("POSTGRES_PORT", hostAndPort[1])
	viper.Set("POSTGRES_USER", "postgres")
	viper.Set("POSTGRES_PASSWORD", "")
	viper.Set("POSTGRES_DB", "postgres")
	viper.Set("ENV", "local")

	if err := pool.Retry(waitOnDB); err != nil {
		pg.Close()
		return nil, fmt.Errorf("could not connect to postgres: %w", err)
	}

	return pg, nil
}
