package e2e_test

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var (
	binaryPath     string
	binaryBuildErr error
	binaryOnce     sync.Once
	sharedTempDir  string
)

// TestMain sets up and tears down shared test resources.
func TestMain(m *testing.M) {
	var err error
	sharedTempDir, err = os.MkdirTemp("", "burndrop-e2e-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create temp dir: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	_ = os.RemoveAll(sharedTempDir)
	if testCleanup != nil {
		testCleanup()
	}

	os.Exit(code)
}

// ServerConfig holds configuration for starting the burndrop server.
type ServerConfig struct {
	Port        int
	DBType      string // sqlite, postgres, bolt, memory
	DBDSN       string
	StorageType string // filesystem, s3, memory
	StoragePath string
	S3Endpoint  string
	// PasswordAttempts of 0 disables throttling.
	PasswordAttempts int
	Sweeper          bool
}

// buildBinary compiles the burndrop binary once per test run.
// Returns the path to the compiled binary.
func buildBinary(t *testing.T) string {
	t.Helper()

	binaryOnce.Do(func() {
		binaryPath = filepath.Join(sharedTempDir, "burndrop")

		cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/burndrop")
		cmd.Dir = getProjectRoot(t)
		output, err := cmd.CombinedOutput()
		if err != nil {
			binaryBuildErr = fmt.Errorf("build binary: %w\nOutput: %s", err, output)
			return
		}
	})

	if binaryBuildErr != nil {
		t.Fatalf("failed to build binary: %v", binaryBuildErr)
	}

	return binaryPath
}

// getProjectRoot returns the root directory of the burndrop module.
func getProjectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	require.NoError(t, err, "get working directory")

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (go.mod)")
		}
		dir = parent
	}
}

// createConfigFile creates a temporary config file for the server.
// Returns the path to the config file.
func createConfigFile(t *testing.T, cfg ServerConfig) string {
	t.Helper()

	if cfg.StorageType == "" {
		cfg.StorageType = "filesystem"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `server:
  port: %d
  stats_interval: 200ms

service:
  bcrypt_cost: 4

sweeper:
  enabled: %t
  interval: 500ms

database:
  type: %s
  dsn: "%s"

storage:
  type: %s
  path: "%s"
`,
		cfg.Port,
		cfg.Sweeper,
		cfg.DBType,
		cfg.DBDSN,
		cfg.StorageType,
		cfg.StoragePath,
	)

	if cfg.S3Endpoint != "" {
		fmt.Fprintf(&sb, `  s3:
    bucket: burndrop-e2e
    endpoint: %s
    access_key: test
    secret_key: test
    create_bucket: true
`, cfg.S3Endpoint)
	}

	fmt.Fprintf(&sb, "\nratelimit:\n  password_attempts: %d\n", cfg.PasswordAttempts)
	sb.WriteString("\nlog:\n  level: error\n")

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(configPath, []byte(sb.String()), 0o600)
	require.NoError(t, err, "write config file")

	return configPath
}

// runCommand runs a one-shot burndrop command against the config and
// returns its combined output.
func runCommand(t *testing.T, configPath string, args ...string) string {
	t.Helper()

	binary := buildBinary(t)

	cmd := exec.Command(binary, append(args, "--config", configPath)...)
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "%s: %s", strings.Join(args, " "), output)
	return string(output)
}

// startServer migrates the schema and starts the burndrop binary.
// Returns the base URL, the config file path and a cleanup function that
// must be called to stop the server.
func startServer(t *testing.T, cfg ServerConfig) (string, string, func()) {
	t.Helper()

	binary := buildBinary(t)
	configPath := createConfigFile(t, cfg)

	if cfg.DBType != "memory" {
		runCommand(t, configPath, "migrate")
	}

	cmd := exec.Command(binary, "serve", "--config", configPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Start()
	require.NoError(t, err, "start server")

	baseURL := fmt.Sprintf("http://localhost:%d", cfg.Port)

	waitForServer(t, baseURL, 10*time.Second)

	cleanup := func() {
		if cmd.Process != nil {
			_ = cmd.Process.Signal(syscall.SIGTERM)
			_ = cmd.Wait()
		}
	}

	return baseURL, configPath, cleanup
}

// waitForServer polls the health check until it passes or times out.
func waitForServer(t *testing.T, baseURL string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 1 * time.Second}

	for time.Now().Before(deadline) {
		resp, err := client.Get(baseURL + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}

	t.Fatalf("server failed to start within %v", timeout)
}

// getOpenPort finds an available TCP port.
func getOpenPort(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", ":0")
	require.NoError(t, err, "find open port")

	addr := l.Addr().(*net.TCPAddr)
	port := addr.Port

	err = l.Close()
	require.NoError(t, err, "close port")

	return port
}

// countBlobs counts the stored blobs under a filesystem storage root,
// ignoring in-flight temp files.
func countBlobs(t *testing.T, root string) int {
	t.Helper()

	count := 0
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && !strings.HasPrefix(d.Name(), ".") {
			count++
		}
		return nil
	})
	require.NoError(t, err)
	return count
}
