package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eternaltwin/etwin/internal/config"
	"github.com/eternaltwin/etwin/internal/model"
)

// defaultHealthcheckPort は ETWIN_HTTP_PORT が未設定のときのヘルスチェック先ポート。
const defaultHealthcheckPort = "50320"

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。SIGINTまたはSIGTERMで中断する。
func Run(w io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// NewRootCommand はetwinのコマンドツリーを生成する。
// w はログとコマンドの出力先。nilの場合は標準出力を使う。
// サブコマンドを省略した場合は serve と同じ動作をする。
func NewRootCommand(w io.Writer) *cobra.Command {
	if w == nil {
		w = os.Stdout
	}

	root := &cobra.Command{
		Use:          "etwin",
		Short:        "Eternaltwin account archive server",
		Long:         "Eternaltwin account archive server. Configuration is read from " + config.FileName + " in the working directory or one of its ancestors, then overridden by environment variables.",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, w, false)
		},
	}
	root.SetOut(w)
	root.SetErr(w)

	root.AddCommand(
		newServeCommand(w),
		newWorkerCommand(w),
		newMigrateCommand(w),
		newDumpCommand(w),
		newHealthcheckCommand(),
		newArchiveCommand(w),
		newFetchCommand(w),
	)
	return root
}

func serve(cmd *cobra.Command, w io.Writer, withWorker bool) error {
	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	return runServe(cmd.Context(), cfg, withWorker)
}

func newServeCommand(w io.Writer) *cobra.Command {
	var withWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, w, withWorker)
		},
	}
	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "also run the session refresh worker in this process")
	return cmd
}

func newWorkerCommand(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Refresh archived accounts from stored remote sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := Init(w)
			if err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}
			return runWorker(cmd.Context(), cfg)
		},
	}
}

func newMigrateCommand(w io.Writer) *cobra.Command {
	var status bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := Init(w)
			if err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}
			if status {
				return runMigrateStatus(cfg, cmd.OutOrStdout())
			}
			return runMigrate(cfg)
		},
	}
	cmd.Flags().BoolVar(&status, "status", false, "print the current schema version without migrating")
	return cmd
}

func newDumpCommand(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "dump <dir>",
		Short: "Dump the database with pg_dump",
		Long:  "Dump the database into <dir>/etwin.sql. The parent of <dir> must exist and <dir> must be missing or empty.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := Init(w)
			if err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}
			return runDump(cmd.Context(), cfg, args[0], cmd.ErrOrStderr())
		},
	}
}

// newHealthcheckCommand は軽量サブコマンドのため、設定ファイルを読まない。
func newHealthcheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "healthcheck",
		Short: "Check that the local API server is healthy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			port := os.Getenv("ETWIN_HTTP_PORT")
			if port == "" {
				port = defaultHealthcheckPort
			}
			return runHealthcheck(cmd.Context(), healthcheckURL(port))
		},
	}
}

func newArchiveCommand(w io.Writer) *cobra.Command {
	var server, username string

	archive := &cobra.Command{
		Use:   "archive",
		Short: "Log in to a remote game and archive the account",
		Long:  "Log in to a remote game and archive the account. The password is read from the first line of standard input.",
	}
	archive.PersistentFlags().StringVar(&server, "server", "", "remote server hostname")
	archive.PersistentFlags().StringVar(&username, "username", "", "remote username")
	_ = archive.MarkPersistentFlagRequired("username")

	archive.AddCommand(
		&cobra.Command{
			Use:   "dinoparc",
			Short: "Archive a Dinoparc account",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				creds, err := dinoparcCredentials(server, username, cmd.InOrStdin())
				if err != nil {
					return err
				}
				return withApp(cmd, w, func(ctx context.Context, a *App) error {
					return runArchiveDinoparc(ctx, a, creds, cmd.OutOrStdout())
				})
			},
		},
		&cobra.Command{
			Use:   "hammerfest",
			Short: "Archive a Hammerfest account",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				creds, err := hammerfestCredentials(server, username, cmd.InOrStdin())
				if err != nil {
					return err
				}
				return withApp(cmd, w, func(ctx context.Context, a *App) error {
					return runArchiveHammerfest(ctx, a, creds, cmd.OutOrStdout())
				})
			},
		},
	)
	return archive
}

func newFetchCommand(w io.Writer) *cobra.Command {
	var server, id string

	fetch := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch a public profile and print it as JSON without archiving it",
	}
	fetch.PersistentFlags().StringVar(&server, "server", "", "remote server hostname")
	fetch.PersistentFlags().StringVar(&id, "id", "", "remote user id")
	_ = fetch.MarkPersistentFlagRequired("id")

	fetch.AddCommand(
		&cobra.Command{
			Use:   "dinorpg",
			Short: "Fetch a DinoRPG profile",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				ref, err := dinorpgRef(server, id)
				if err != nil {
					return err
				}
				cfg, err := Init(w)
				if err != nil {
					return fmt.Errorf("initialization failed: %w", err)
				}
				return runFetchDinorpg(cmd.Context(), cfg, ref, cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "popotamo",
			Short: "Fetch a Popotamo profile",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				ref, err := popotamoRef(server, id)
				if err != nil {
					return err
				}
				cfg, err := Init(w)
				if err != nil {
					return fmt.Errorf("initialization failed: %w", err)
				}
				return runFetchPopotamo(cmd.Context(), cfg, ref, cmd.OutOrStdout())
			},
		},
	)
	return fetch
}

// withApp は設定を読み込んでAppを組み立て、fnの終了後に閉じる。
func withApp(cmd *cobra.Command, w io.Writer, fn func(ctx context.Context, a *App) error) error {
	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	a, err := New(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

func dinoparcCredentials(server, username string, stdin io.Reader) (model.DinoparcCredentials, error) {
	if server == "" {
		server = string(model.DinoparcServerFr)
	}
	s, err := model.ParseDinoparcServer(server)
	if err != nil {
		return model.DinoparcCredentials{}, err
	}
	u, err := model.ParseDinoparcUsername(username)
	if err != nil {
		return model.DinoparcCredentials{}, err
	}
	password, err := readPassword(stdin)
	if err != nil {
		return model.DinoparcCredentials{}, err
	}
	return model.DinoparcCredentials{Server: s, Username: u, Password: model.DinoparcPassword(password)}, nil
}

func hammerfestCredentials(server, username string, stdin io.Reader) (model.HammerfestCredentials, error) {
	if server == "" {
		server = string(model.HammerfestServerFr)
	}
	s, err := model.ParseHammerfestServer(server)
	if err != nil {
		return model.HammerfestCredentials{}, err
	}
	u, err := model.ParseHammerfestUsername(username)
	if err != nil {
		return model.HammerfestCredentials{}, err
	}
	password, err := readPassword(stdin)
	if err != nil {
		return model.HammerfestCredentials{}, err
	}
	return model.HammerfestCredentials{Server: s, Username: u, Password: model.HammerfestPassword(password)}, nil
}

func dinorpgRef(server, id string) (model.DinorpgUserIDRef, error) {
	if server == "" {
		server = string(model.DinorpgServerFr)
	}
	s, err := model.ParseDinorpgServer(server)
	if err != nil {
		return model.DinorpgUserIDRef{}, err
	}
	uid, err := model.ParseDinorpgUserID(id)
	if err != nil {
		return model.DinorpgUserIDRef{}, err
	}
	return model.DinorpgUserIDRef{Server: s, ID: uid}, nil
}

func popotamoRef(server, id string) (model.PopotamoUserIDRef, error) {
	if server != "" && server != string(model.PopotamoServerFr) {
		return model.PopotamoUserIDRef{}, &model.ParseError{Type: "PopotamoServer", Input: server}
	}
	uid, err := model.ParsePopotamoUserID(id)
	if err != nil {
		return model.PopotamoUserIDRef{}, err
	}
	return model.PopotamoUserIDRef{Server: model.PopotamoServerFr, ID: uid}, nil
}

// IsUsageError はコマンドライン引数の誤りかどうかを返す。
func IsUsageError(err error) bool {
	var perr *model.ParseError
	return errors.As(err, &perr)
}
