package bootstrap

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"adpulse/config"

	"go.uber.org/zap"
)

// EnsureDataDirectories creates the required data directories with write
// verification. This is a pre-flight check that runs before any component
// initialization so failures surface with a clear remediation instead of a
// half-initialized pipeline.
func EnsureDataDirectories(cfg *config.Config, sugar *zap.SugaredLogger) error {
	directories := []string{
		cfg.DataPaths.DataDir,
		cfg.DataPaths.ModelsDir,
		cfg.DataPaths.StagingDir,
		cfg.DataPaths.PublishedDir,
		filepath.Dir(cfg.DataPaths.SQLitePath),
	}

	for _, dir := range directories {
		absPath, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("failed to resolve absolute path for %s: %w", dir, err)
		}

		if err := os.MkdirAll(absPath, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w\n"+
				"  Remediation: Ensure the parent directory exists and is writable\n"+
				"  For Docker: Check volume mount permissions\n"+
				"  For bare metal: Run 'mkdir -p %s && chmod 755 %s'", dir, err, absPath, absPath)
		}

		// Verify write permissions
		testFile := filepath.Join(absPath, ".adpulse_write_test")
		if err := os.WriteFile(testFile, []byte("test"), 0644); err != nil {
			return fmt.Errorf("directory %s is not writable: %w\n"+
				"  Remediation: Check file system permissions\n"+
				"  For Docker: Ensure volume is mounted with write access\n"+
				"  For bare metal: Run 'chmod -R u+w %s'", dir, err, absPath)
		}
		os.Remove(testFile)

		sugar.Infow("Data directory ready", "path", absPath)
	}

	sugar.Info("All data directories verified")
	return nil
}

// ClassifyConnectionError provides specific error messages based on the type
// of ClickHouse connection failure.
func ClassifyConnectionError(err error, addr string) string {
	if err == nil {
		return ""
	}

	errStr := err.Error()

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Sprintf("Connection to ClickHouse at %s timed out.\n"+
			"  Possible causes:\n"+
			"  - ClickHouse is starting up (wait and retry)\n"+
			"  - Network latency or firewall blocking the connection\n"+
			"  Remediation:\n"+
			"  - Check if ClickHouse is running: docker ps | grep clickhouse\n"+
			"  - Verify network connectivity: nc -zv %s", addr, addr)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		if errors.Is(opErr.Err, syscall.ECONNREFUSED) ||
			(opErr.Err != nil && (containsIgnoreCase(opErr.Err.Error(), "connection refused") ||
				containsIgnoreCase(opErr.Err.Error(), "actively refused"))) {
			return fmt.Sprintf("Connection refused by ClickHouse at %s.\n"+
				"  This usually means ClickHouse is not running.\n"+
				"  Remediation:\n"+
				"  - Start ClickHouse: docker compose up -d clickhouse\n"+
				"  - Verify the address is correct in config.yaml", addr)
		}
	}

	if containsIgnoreCase(errStr, "no such host") || containsIgnoreCase(errStr, "lookup") {
		return fmt.Sprintf("Cannot resolve hostname in ClickHouse address %s.\n"+
			"  Remediation:\n"+
			"  - Verify the hostname is correct\n"+
			"  - Try using IP address (127.0.0.1) instead of hostname", addr)
	}

	if containsIgnoreCase(errStr, "authentication") || containsIgnoreCase(errStr, "password") || containsIgnoreCase(errStr, "denied") {
		return fmt.Sprintf("Authentication failed for ClickHouse at %s.\n"+
			"  Remediation:\n"+
			"  - Verify username and password in config.yaml\n"+
			"  - Check ADPULSE_CLICKHOUSE_USER and ADPULSE_CLICKHOUSE_PASSWORD env vars", addr)
	}

	return fmt.Sprintf("Failed to connect to ClickHouse at %s: %v\n"+
		"  Remediation:\n"+
		"  - Ensure ClickHouse is running and accessible\n"+
		"  - Check config.yaml clickhouse.addr setting\n"+
		"  - Verify network connectivity", addr, err)
}

// ClassifySQLiteError provides specific error messages based on the type of
// SQLite failure.
func ClassifySQLiteError(err error, dbPath string) string {
	if err == nil {
		return ""
	}

	errStr := err.Error()
	absPath, _ := filepath.Abs(dbPath)
	parentDir := filepath.Dir(absPath)

	if containsIgnoreCase(errStr, "permission denied") || containsIgnoreCase(errStr, "access denied") {
		return fmt.Sprintf("Permission denied accessing SQLite database at %s.\n"+
			"  Remediation:\n"+
			"  - Check file permissions: ls -la %s\n"+
			"  - Check directory permissions: ls -la %s\n"+
			"  - For Docker: Ensure volume is mounted with proper user permissions",
			absPath, absPath, parentDir)
	}

	if containsIgnoreCase(errStr, "database is locked") || containsIgnoreCase(errStr, "SQLITE_BUSY") {
		return fmt.Sprintf("SQLite database at %s is locked by another process.\n"+
			"  Possible causes:\n"+
			"  - Another adpulse instance is running\n"+
			"  - A crashed process left a stale lock\n"+
			"  Remediation:\n"+
			"  - Check for running processes: ps aux | grep adpulse\n"+
			"  - Check for lock files: ls -la %s*", absPath, absPath)
	}

	if containsIgnoreCase(errStr, "disk full") || containsIgnoreCase(errStr, "no space") || containsIgnoreCase(errStr, "SQLITE_FULL") {
		return fmt.Sprintf("Disk full - cannot write to SQLite database at %s.\n"+
			"  Remediation:\n"+
			"  - Check available disk space: df -h %s\n"+
			"  - Free up disk space or expand the volume", absPath, parentDir)
	}

	if containsIgnoreCase(errStr, "corrupt") || containsIgnoreCase(errStr, "malformed") || containsIgnoreCase(errStr, "SQLITE_CORRUPT") {
		return fmt.Sprintf("SQLite database at %s appears to be corrupted.\n"+
			"  CRITICAL: Backup any existing data before proceeding!\n"+
			"  Remediation options:\n"+
			"  1. Try recovery: sqlite3 %s \".recover\" | sqlite3 %s.recovered\n"+
			"  2. Check integrity: sqlite3 %s \"PRAGMA integrity_check;\"\n"+
			"  3. If recovery fails, restore from backup",
			absPath, absPath, absPath, absPath)
	}

	if containsIgnoreCase(errStr, "no such file or directory") || containsIgnoreCase(errStr, "cannot find the path") {
		return fmt.Sprintf("Cannot create SQLite database - path does not exist: %s.\n"+
			"  Remediation:\n"+
			"  - Create the parent directory: mkdir -p %s\n"+
			"  - Verify the path in config or ADPULSE_SQLITE_PATH env var", absPath, parentDir)
	}

	if containsIgnoreCase(errStr, "read-only") {
		return fmt.Sprintf("SQLite database location is on a read-only file system: %s.\n"+
			"  Remediation:\n"+
			"  - Remount the file system as read-write\n"+
			"  - Move database to a writable location via ADPULSE_SQLITE_PATH", absPath)
	}

	return fmt.Sprintf("Failed to initialize SQLite database at %s: %v\n"+
		"  Remediation:\n"+
		"  - Ensure the directory %s exists and is writable\n"+
		"  - Check disk space and permissions", absPath, err, parentDir)
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
