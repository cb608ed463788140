package buildman_test

import (
	"os"
	"strings"
	"testing"
)

func readBuildFile(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("%s should exist and be readable: %v", name, err)
	}
	return string(data)
}

func TestDockerfile(t *testing.T) {
	content := readBuildFile(t, "Dockerfile")

	t.Run("マルチステージビルド", func(t *testing.T) {
		if !strings.Contains(content, "FROM golang:") {
			t.Error("Dockerfile should contain a Go builder stage (FROM golang:)")
		}

		// 最終ステージは軽量イメージであること
		var lastFrom string
		for _, line := range strings.Split(content, "\n") {
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "FROM ") {
				lastFrom = trimmed
			}
		}
		minimal := strings.Contains(lastFrom, "gcr.io/distroless") ||
			strings.Contains(lastFrom, "alpine") ||
			strings.Contains(lastFrom, "scratch")
		if !minimal {
			t.Errorf("final stage should use a minimal base image (distroless/alpine/scratch), got: %s", lastFrom)
		}
	})

	t.Run("バイナリ名", func(t *testing.T) {
		if !strings.Contains(content, "buildman") {
			t.Error("Dockerfile should build a binary named 'buildman'")
		}
	})

	t.Run("エントリポイント", func(t *testing.T) {
		if !strings.Contains(content, "ENTRYPOINT") && !strings.Contains(content, "CMD") {
			t.Error("Dockerfile should contain ENTRYPOINT or CMD")
		}
	})
}

func TestDockerCompose(t *testing.T) {
	content := readBuildFile(t, "docker-compose.yml")

	t.Run("api_migrate_dbの3サービス構成", func(t *testing.T) {
		for _, svc := range []string{"api:", "migrate:", "db:"} {
			if !strings.Contains(content, svc) {
				t.Errorf("docker-compose.yml should contain service %q", svc)
			}
		}
	})

	t.Run("PostgreSQLイメージ", func(t *testing.T) {
		if !strings.Contains(content, "postgres:") {
			t.Error("docker-compose.yml should use PostgreSQL image")
		}
	})

	t.Run("migrateサブコマンド起動", func(t *testing.T) {
		if !strings.Contains(content, "migrate") {
			t.Error("docker-compose.yml migrate service should use 'migrate' subcommand")
		}
	})

	// DBは内部ネットワークに閉じ込め、APIだけがLLM API・OAuthへの
	// 外部通信を許可される構成
	t.Run("egress制限ネットワーク", func(t *testing.T) {
		if !strings.Contains(content, "networks:") {
			t.Error("docker-compose.yml should define networks for egress control")
		}
		if !strings.Contains(content, "internal: true") {
			t.Error("docker-compose.yml should define an internal network (internal: true) for egress restriction")
		}
		if !strings.Contains(content, "external") {
			t.Error("docker-compose.yml should define an external network for api egress")
		}
	})
}
