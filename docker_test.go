package bookmarkman_test

import (
	"os"
	"strings"
	"testing"
)

func readFile(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("failed to read %s: %v", name, err)
	}
	return string(data)
}

// composeService はdocker-compose.ymlから指定サービスのブロックを切り出す。
func composeService(t *testing.T, compose, name string) string {
	t.Helper()
	start := strings.Index(compose, "\n  "+name+":\n")
	if start < 0 {
		t.Fatalf("docker-compose.yml should contain service %q", name)
	}
	block := compose[start+1:]
	// 次のサービス定義（2スペースインデントのキー）またはトップレベルキーまで
	lines := strings.Split(block, "\n")
	var out []string
	for i, line := range lines {
		if i > 0 && (strings.HasPrefix(line, "  ") && !strings.HasPrefix(line, "   ") || (line != "" && !strings.HasPrefix(line, " "))) {
			break
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func TestDockerfile_MultiStageDistroless(t *testing.T) {
	content := readFile(t, "Dockerfile")

	if !strings.Contains(content, "FROM golang:") {
		t.Error("Dockerfile should contain a Go builder stage (FROM golang:)")
	}

	var lastFrom string
	for _, line := range strings.Split(content, "\n") {
		if trimmed := strings.TrimSpace(line); strings.HasPrefix(trimmed, "FROM ") {
			lastFrom = trimmed
		}
	}
	if !strings.Contains(lastFrom, "gcr.io/distroless") {
		t.Errorf("final stage should be distroless, got: %s", lastFrom)
	}
	if !strings.Contains(content, "USER nonroot") {
		t.Error("final stage should run as nonroot")
	}
}

func TestDockerfile_BuildsAndRunsBinary(t *testing.T) {
	content := readFile(t, "Dockerfile")

	for _, want := range []string{
		"./cmd/bookmarkman",
		`ENTRYPOINT ["/usr/local/bin/bookmarkman"]`,
		// distrolessにはシェルもcurlも無いため、サブコマンドでヘルスチェックする
		`"healthcheck"`,
	} {
		if !strings.Contains(content, want) {
			t.Errorf("Dockerfile should contain %q", want)
		}
	}
}

func TestDockerCompose_ServicesUseSubcommands(t *testing.T) {
	compose := readFile(t, "docker-compose.yml")

	tests := []struct {
		service string
		want    string
	}{
		{"api", `command: ["serve"]`},
		{"worker", `command: ["worker"]`},
		{"migrate", `command: ["migrate"]`},
		{"db", "image: postgres:"},
		{"redis", "image: redis:"},
	}
	for _, tt := range tests {
		t.Run(tt.service, func(t *testing.T) {
			if block := composeService(t, compose, tt.service); !strings.Contains(block, tt.want) {
				t.Errorf("service %s should contain %q:\n%s", tt.service, tt.want, block)
			}
		})
	}
}

func TestDockerCompose_APIWaitsForMigration(t *testing.T) {
	block := composeService(t, readFile(t, "docker-compose.yml"), "api")

	if !strings.Contains(block, "service_completed_successfully") {
		t.Error("api should start after migrate completes")
	}
	if !strings.Contains(block, "REDIS_URL") {
		t.Error("api should be given REDIS_URL for the preview cache")
	}
}

// プレビュー取得で外部へ出るのはapiのみ。DB、Redis、workerは内部ネットワークに閉じる。
func TestDockerCompose_OnlyAPIHasEgress(t *testing.T) {
	compose := readFile(t, "docker-compose.yml")

	if !strings.Contains(compose, "internal: true") {
		t.Error("docker-compose.yml should define an internal network (internal: true)")
	}

	if !strings.Contains(composeService(t, compose, "api"), "- external") {
		t.Error("api should join the external network to fetch previews")
	}
	for _, svc := range []string{"worker", "migrate", "db", "redis"} {
		if strings.Contains(composeService(t, compose, svc), "- external") {
			t.Errorf("%s should not join the external network", svc)
		}
	}
}
