package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"docpipe/internal/config"
	"docpipe/internal/retry"
	"docpipe/internal/services"
	"docpipe/internal/services/llm"
)

// CheckGenerator verifies that the completion service is reachable and the
// key is valid. It uses a 30-second timeout and a single attempt.
func CheckGenerator(ctx context.Context, cfg *config.Config) Result {
	const name = "Generator"
	if cfg.Generator.APIKey == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := llm.NewClient(llm.Config{
		APIKey:         cfg.Generator.APIKey,
		BaseURL:        cfg.Generator.BaseURL,
		TimeoutSeconds: 30,
	}, llm.WithRetryPolicy(retry.Transport(1, 0, 1)))

	if err := client.HealthCheck(checkCtx, cfg.Models.Segment); err != nil {
		return Result{Name: name, Detail: summarizeGeneratorError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", cfg.Generator.BaseURL)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

func summarizeGeneratorError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (generator unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (generator unreachable)"
	}
	if errors.Is(err, services.ErrAuth) {
		return "authentication failed (check the API key)"
	}
	return err.Error()
}
