package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	startupTimeout = 10 * time.Second
	pollInterval   = 100 * time.Millisecond
	jwtSecret      = "e2e-secret"
)

const catalogYAML = `topics:
  - id: algebre
    name: Algèbre
  - id: analyse
    name: Analyse
exercises:
  - id: alg-1
    title: Groupes
    topic: algebre
    difficulty: facile
    content: Soit *G* un groupe.
    solution: "**Oui**"
  - id: alg-2
    title: Anneaux
    topic: algebre
    difficulty: difficile
    content: Soit *A* un anneau.
    solution: Non.
  - id: ana-1
    title: Suites
    topic: analyse
    difficulty: facile
    content: Étudier la suite.
    solution: Elle converge.
`

// lockedBuffer is a thread-safe wrapper around bytes.Buffer.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (lb *lockedBuffer) Write(p []byte) (int, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.buf.Write(p)
}

func (lb *lockedBuffer) String() string {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.buf.String()
}

// serverProc holds the running server subprocess and its output.
type serverProc struct {
	cmd    *exec.Cmd
	stdout *lockedBuffer
	url    string
	env    []string
	binary string
}

var (
	builtBinary string
	buildOnce   sync.Once
	buildErr    error
)

func getBinary(t *testing.T) string {
	t.Helper()
	buildOnce.Do(func() {
		dir, err := os.MkdirTemp("", "mathprepa-e2e-*")
		if err != nil {
			buildErr = err
			return
		}
		binary := filepath.Join(dir, "mathprepa")
		cmd := exec.Command("go", "build", "-o", binary, "./cmd/mathprepa")
		cmd.Dir = findRepoRoot(t)
		out, err := cmd.CombinedOutput()
		if err != nil {
			buildErr = fmt.Errorf("go build failed: %w\n%s", err, out)
			return
		}
		builtBinary = binary
	})
	if buildErr != nil {
		t.Fatal(buildErr)
	}
	return builtBinary
}

func findRepoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find repo root")
		}
		dir = parent
	}
}

// run executes a one-shot subcommand with the server environment.
func (sp *serverProc) run(t *testing.T, args ...string) string {
	t.Helper()
	cmd := exec.Command(sp.binary, args...)
	cmd.Env = sp.env
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("mathprepa %s: %v", strings.Join(args, " "), err)
	}
	return string(out)
}

// startServer imports the test catalog into a fresh database and starts
// "mathprepa serve" on a free port.
func startServer(t *testing.T) *serverProc {
	t.Helper()
	binary := getBinary(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	dir := t.TempDir()
	catalog := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(catalog, []byte(catalogYAML), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	sp := &serverProc{
		stdout: &lockedBuffer{},
		url:    "http://" + addr,
		binary: binary,
		env: append(os.Environ(),
			"MATHPREPA_LISTEN_ADDR="+addr,
			"MATHPREPA_DATABASE_URL="+filepath.Join(dir, "test.db"),
			"MATHPREPA_JWT_SECRET="+jwtSecret,
			"MATHPREPA_LOG_LEVEL=info",
		),
	}
	sp.run(t, "import", catalog)

	sp.cmd = exec.Command(binary, "serve")
	sp.cmd.Env = sp.env
	sp.cmd.Stdout = sp.stdout
	sp.cmd.Stderr = sp.stdout
	if err := sp.cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() {
		sp.cmd.Process.Kill()
		sp.cmd.Wait()
	})

	deadline := time.Now().Add(startupTimeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(sp.url + "/healthz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == 200 {
				return sp
			}
		}
		time.Sleep(pollInterval)
	}
	t.Fatalf("server did not become ready within %v\nstdout:\n%s", startupTimeout, sp.stdout.String())
	return nil
}

// client is a browser session against the server.
type client struct {
	t     *testing.T
	sp    *serverProc
	http  *http.Client
	token string
}

func newClient(t *testing.T, sp *serverProc) *client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &client{t: t, sp: sp, http: &http.Client{Jar: jar}}
}

// signIn obtains a token from the token subcommand.
func (c *client) signIn(userID string) {
	c.t.Helper()
	c.token = strings.TrimSpace(c.sp.run(c.t, "token", "--user", userID))
}

func (c *client) do(method, path string, body any) (int, map[string]any) {
	c.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.sp.url+path, r)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			c.t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode, out
}

// list returns the array at key of a decoded JSON object.
func list(m map[string]any, key string) []map[string]any {
	raw, _ := m[key].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}
