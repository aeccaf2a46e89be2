package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/eternaltwin/etwin/internal/clock"
	"github.com/eternaltwin/etwin/internal/config"
	"github.com/eternaltwin/etwin/internal/database"
	"github.com/eternaltwin/etwin/internal/metrics"
	"github.com/eternaltwin/etwin/internal/model"
)

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.Backend != config.BackendPostgres {
		return fmt.Errorf("migrate requires the postgres backend, got %q", cfg.Backend)
	}
	dsn := cfg.DB.AdminDatabaseURL()
	slog.Info("マイグレーションを実行します",
		slog.String("database_url", maskDatabaseURL(dsn)),
	)

	if err := database.RunMigrations(dsn); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("マイグレーションが完了しました")
	return nil
}

// runMigrateStatus は現在のスキーマバージョンを出力する。
func runMigrateStatus(cfg *config.Config, out io.Writer) error {
	if cfg.Backend != config.BackendPostgres {
		return fmt.Errorf("migrate requires the postgres backend, got %q", cfg.Backend)
	}
	v, err := database.Version(cfg.DB.AdminDatabaseURL())
	if err != nil {
		return err
	}
	return writeJSON(out, v)
}

// dumpFileName は dump の出力ファイル名。
const dumpFileName = "etwin.sql"

// outDirState は dump の出力先の状態。
type outDirState int

const (
	outDirMissing outDirState = iota
	outDirEmpty
	outDirNotEmpty
	outDirNotADirectory
)

// checkOutDir は出力先の状態を返す。
func checkOutDir(dir string) (outDirState, error) {
	entries, err := os.ReadDir(dir)
	if err == nil {
		if len(entries) == 0 {
			return outDirEmpty, nil
		}
		return outDirNotEmpty, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return outDirMissing, nil
	}
	info, statErr := os.Stat(dir)
	if statErr == nil && !info.IsDir() {
		return outDirNotADirectory, nil
	}
	return 0, fmt.Errorf("failed to read output directory: %w", err)
}

// pgDumpArgs は pg_dump の引数を返す。パスワードは引数に含めない。
func pgDumpArgs(db config.DBConfig) []string {
	user := db.AdminUser
	if user == "" {
		user = db.User
	}
	return []string{
		"--clean",
		"--if-exists",
		"--format", "plain",
		"--no-owner",
		"--username", user,
		"--no-password",
		"--file", dumpFileName,
		"--host", db.Host,
		"--port", strconv.Itoa(db.Port),
		"--dbname", db.Name,
	}
}

// pgDumpEnv は pg_dump に渡す環境変数を返す。
func pgDumpEnv(db config.DBConfig) []string {
	password := db.AdminPassword
	if db.AdminUser == "" {
		password = db.Password
	}
	return append(os.Environ(), "PGPASSWORD="+password)
}

// execCommand は外部コマンドを生成する。テストで差し替える。
var execCommand = exec.CommandContext

// runDump は pg_dump でデータベースをdir配下の etwin.sql に書き出す。
// dir の親ディレクトリは存在している必要があり、dir 自体は存在しないか空でなければならない。
func runDump(ctx context.Context, cfg *config.Config, dir string, stderr io.Writer) error {
	state, err := checkOutDir(dir)
	if err != nil {
		return err
	}
	switch state {
	case outDirNotADirectory:
		return fmt.Errorf("output exists and is not a directory: %s", dir)
	case outDirNotEmpty:
		return fmt.Errorf("output directory is not empty: %s", dir)
	case outDirMissing:
		if err := os.Mkdir(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve output directory: %w", err)
	}

	slog.Info("データベースをダンプします",
		slog.String("dir", abs),
		slog.String("host", cfg.DB.Host),
		slog.String("name", cfg.DB.Name),
	)

	cmd := execCommand(ctx, "pg_dump", pgDumpArgs(cfg.DB)...)
	cmd.Dir = abs
	cmd.Env = pgDumpEnv(cfg.DB)
	cmd.Stdout = stderr
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pg_dump failed: %w", err)
	}

	slog.Info("ダンプが完了しました", slog.String("file", filepath.Join(abs, dumpFileName)))
	return nil
}

// healthcheckURL はローカルのAPIサーバーのヘルスチェックURLを返す。
func healthcheckURL(port string) string {
	return fmt.Sprintf("http://localhost:%s/healthz", port)
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /healthz エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(ctx context.Context, target string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to build health check request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}

// readPassword は入力の最初の1行をパスワードとして読む。末尾の改行は取り除く。
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("password is empty")
	}
	return password, nil
}

// archiveResult は archive コマンドの出力。
type archiveResult struct {
	Game       model.RemoteGame `json:"game"`
	Server     string           `json:"server"`
	ID         string           `json:"id"`
	Username   string           `json:"username"`
	ArchivedAt time.Time        `json:"archived_at"`
}

// runArchiveDinoparc はDinoparcにログインし、セッションキーを保存してからアカウントをアーカイブする。
func runArchiveDinoparc(ctx context.Context, a *App, creds model.DinoparcCredentials, out io.Writer) error {
	session, err := a.clients.dinoparc.CreateSession(ctx, creds)
	if err != nil {
		return fmt.Errorf("failed to log in to dinoparc: %w", err)
	}
	if _, err := a.stores.tokens.TouchDinoparc(ctx, session.User.Ref(), session.Key); err != nil {
		return fmt.Errorf("failed to store dinoparc session: %w", err)
	}
	if err := a.dinoparc.ArchiveSession(ctx, session); err != nil {
		return fmt.Errorf("failed to archive dinoparc account: %w", err)
	}
	slog.Info("Dinoparcのアカウントをアーカイブしました",
		slog.String("server", string(session.User.Server)),
		slog.String("dinoparc_user_id", string(session.User.ID)),
	)
	return writeJSON(out, archiveResult{
		Game:       model.RemoteGameDinoparc,
		Server:     string(session.User.Server),
		ID:         string(session.User.ID),
		Username:   string(session.User.Username),
		ArchivedAt: a.clock.Now(),
	})
}

// runArchiveHammerfest はHammerfestにログインし、セッションキーを保存してからアカウントをアーカイブする。
func runArchiveHammerfest(ctx context.Context, a *App, creds model.HammerfestCredentials, out io.Writer) error {
	session, err := a.clients.hammerfest.CreateSession(ctx, creds)
	if err != nil {
		return fmt.Errorf("failed to log in to hammerfest: %w", err)
	}
	if _, err := a.stores.tokens.TouchHammerfest(ctx, session.User.Ref(), session.Key); err != nil {
		return fmt.Errorf("failed to store hammerfest session: %w", err)
	}
	if err := a.hammerfest.ArchiveSession(ctx, session); err != nil {
		return fmt.Errorf("failed to archive hammerfest account: %w", err)
	}
	slog.Info("Hammerfestのアカウントをアーカイブしました",
		slog.String("server", string(session.User.Server)),
		slog.String("hammerfest_user_id", string(session.User.ID)),
	)
	return writeJSON(out, archiveResult{
		Game:       model.RemoteGameHammerfest,
		Server:     string(session.User.Server),
		ID:         string(session.User.ID),
		Username:   string(session.User.Username),
		ArchivedAt: a.clock.Now(),
	})
}

// runFetchDinorpg はDinoRPGのプロフィールを取得して出力する。アーカイブには記録しない。
func runFetchDinorpg(ctx context.Context, cfg *config.Config, ref model.DinorpgUserIDRef, out io.Writer) error {
	c := newClients(cfg.Remote, clock.SystemClock{}, metrics.Nop{})
	profile, err := c.dinorpg.GetProfile(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to fetch dinorpg profile: %w", err)
	}
	return writeJSON(out, profile)
}

// runFetchPopotamo はPopotamoのプロフィールを取得して出力する。アーカイブには記録しない。
func runFetchPopotamo(ctx context.Context, cfg *config.Config, ref model.PopotamoUserIDRef, out io.Writer) error {
	c := newClients(cfg.Remote, clock.SystemClock{}, metrics.Nop{})
	profile, err := c.popotamo.GetProfile(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to fetch popotamo profile: %w", err)
	}
	return writeJSON(out, profile)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
