// Command limitctl inspeciona e manipula o histórico do limitador direto no
// store local, sem passar pelo limiterd.
//
// Uso:
//
//	limitctl inspect likeActions
//	limitctl record movieUpload
//	limitctl reset profileUpdates --db ~/.actionlimit.db
//	limitctl policies --policy-file policies.yaml
//	limitctl list --store redis --redis-addr 127.0.0.1:6379
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"action-limiter/actionlimit"
	"action-limiter/actionlimit/application"
	"action-limiter/actionlimit/domain"
	"action-limiter/actionlimit/infra"
	"action-limiter/internal/config"

	"github.com/alecthomas/kong"
	"github.com/redis/go-redis/v9"
)

type CLI struct {
	Inspect  InspectCmd  `cmd:"" help:"Show remaining capacity for a category."`
	Record   RecordCmd   `cmd:"" help:"Record one action for a category."`
	Reset    ResetCmd    `cmd:"" help:"Clear the history of a category."`
	List     ListCmd     `cmd:"" help:"Show every configured category."`
	Policies PoliciesCmd `cmd:"" help:"Print the policy table in use."`

	Store      string `help:"History store (memory, sqlite, redis)." default:"sqlite" enum:"memory,sqlite,redis" env:"ACTIONLIMIT_STORE"`
	DB         string `name:"db" help:"SQLite database path." default:"actionlimit.db" type:"path" env:"ACTIONLIMIT_SQLITE_PATH"`
	RedisAddr  string `name:"redis-addr" help:"Redis address." env:"ACTIONLIMIT_REDIS_ADDR"`
	Prefix     string `help:"Persistence key prefix." default:"rateLimit_" env:"ACTIONLIMIT_KEY_PREFIX"`
	PolicyFile string `name:"policy-file" help:"YAML policy override file." type:"path" env:"ACTIONLIMIT_POLICIES_FILE"`
	LogLevel   string `help:"Log level (debug, info, warn, error)." default:"warn"`
}

// runtime é o que os subcomandos recebem já montado.
type runtime struct {
	svc *application.Service
	out io.Writer
	now func() time.Time
}

type InspectCmd struct {
	Category string `arg:"" help:"Action category."`
}

func (c *InspectCmd) Run(rt *runtime) error {
	printState(rt, rt.svc.Inspect(context.Background(), domain.Category(c.Category)))
	return nil
}

type RecordCmd struct {
	Category string `arg:"" help:"Action category."`
}

func (c *RecordCmd) Run(rt *runtime) error {
	ctx := context.Background()
	cat := domain.Category(c.Category)
	if !rt.svc.RecordAction(ctx, cat) {
		printState(rt, rt.svc.Inspect(ctx, cat))
		return fmt.Errorf("%s: rate limit exceeded", c.Category)
	}
	printState(rt, rt.svc.Inspect(ctx, cat))
	return nil
}

type ResetCmd struct {
	Category string `arg:"" help:"Action category."`
}

func (c *ResetCmd) Run(rt *runtime) error {
	rt.svc.Reset(context.Background(), domain.Category(c.Category))
	fmt.Fprintf(rt.out, "%s: reset\n", c.Category)
	return nil
}

type ListCmd struct{}

func (c *ListCmd) Run(rt *runtime) error {
	for _, st := range rt.svc.Snapshot(context.Background()) {
		printState(rt, st)
	}
	return nil
}

type PoliciesCmd struct{}

func (c *PoliciesCmd) Run(rt *runtime) error {
	policies := rt.svc.Policies()
	for _, cat := range policies.Categories() {
		p := policies[cat]
		fmt.Fprintf(rt.out, "%-16s limit=%-4d window=%s\n", cat, p.Limit, p.Window)
	}
	return nil
}

func printState(rt *runtime, st domain.State) {
	if st.Unlimited {
		fmt.Fprintf(rt.out, "%-16s unlimited (no policy)\n", st.Category)
		return
	}
	line := fmt.Sprintf("%-16s %d/%d remaining", st.Category, st.Remaining, st.Limit)
	if in, ok := actionlimit.ResetIn(st, rt.now()); ok {
		line += "  reset: " + in
	}
	fmt.Fprintln(rt.out, line)
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("limitctl"),
		kong.Description("Inspect and manage per-category action limits."),
		kong.UsageOnError(),
	)

	// FatalIfErrorf sai via os.Exit; execute já fechou o store antes.
	kctx.FatalIfErrorf(execute(kctx, &cli, os.Stdout))
}

// execute monta o runtime, roda o subcomando e fecha o store, com ou sem erro.
func execute(kctx *kong.Context, cli *CLI, out io.Writer) error {
	rt, cleanup, err := cli.build(out)
	if err != nil {
		return err
	}
	defer cleanup()
	return kctx.Run(rt)
}

func (cli *CLI) build(out io.Writer) (*runtime, func(), error) {
	policies := domain.DefaultPolicies()
	if cli.PolicyFile != "" {
		override, err := config.LoadPoliciesFile(cli.PolicyFile)
		if err != nil {
			return nil, nil, err
		}
		policies = policies.Merge(override)
	}

	store, cleanup, err := cli.openStore()
	if err != nil {
		return nil, nil, err
	}

	svc := application.New(
		application.WithPolicies(policies),
		application.WithStore(store),
		application.WithKeyPrefix(cli.Prefix),
		application.WithLogger(config.NewLogger(os.Stderr, cli.LogLevel, "text")),
	)
	return &runtime{svc: svc, out: out, now: time.Now}, cleanup, nil
}

func (cli *CLI) openStore() (domain.HistoryStore, func(), error) {
	switch cli.Store {
	case config.StoreRedis:
		if cli.RedisAddr == "" {
			return nil, nil, fmt.Errorf("--redis-addr is required with --store redis")
		}
		rdb := redis.NewClient(&redis.Options{Addr: cli.RedisAddr})
		return infra.NewRedisStore(rdb), func() { _ = rdb.Close() }, nil
	case config.StoreSQLite:
		s, err := infra.OpenSQLiteStore(cli.DB)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return infra.NewMemoryStore(), func() {}, nil
	}
}
