// Command mandate-demo walks every authorization primitive through its
// happy path and its refusals against an in-memory settlement bank, then
// verifies the hash-chained journal it produced.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/Mindburn-Labs/mandate/pkg/allowance"
	"github.com/Mindburn-Labs/mandate/pkg/commitment"
	"github.com/Mindburn-Labs/mandate/pkg/config"
	"github.com/Mindburn-Labs/mandate/pkg/escrow"
	"github.com/Mindburn-Labs/mandate/pkg/guard"
	"github.com/Mindburn-Labs/mandate/pkg/journal"
	"github.com/Mindburn-Labs/mandate/pkg/observability"
	"github.com/Mindburn-Labs/mandate/pkg/ratelimit"
	"github.com/Mindburn-Labs/mandate/pkg/sink"
	"github.com/Mindburn-Labs/mandate/pkg/stream"
	"github.com/Mindburn-Labs/mandate/pkg/timelock"
)

// demoClock is a hand-cranked clock so the walkthrough can jump over
// expiries and unlock delays without sleeping.
type demoClock struct{ now int64 }

func (c *demoClock) Now() time.Time     { return time.Unix(c.now, 0) }
func (c *demoClock) Advance(secs int64) { c.now += secs }

func main() {
	profilePath := flag.String("profile", "", "path to a guardrail profile YAML")
	flag.Parse()

	cfg := config.Load()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLevel(cfg.LogLevel),
	}))

	profile := config.DefaultProfile()
	if *profilePath != "" {
		p, err := config.LoadProfile(*profilePath)
		if err != nil {
			logger.Error("load guardrail profile", "path", *profilePath, "error", err)
			os.Exit(1)
		}
		profile = p
	}
	logger.Info("guardrail profile", "name", profile.Name,
		"allowance", profile.AllowanceAmount, "stream_cap", profile.StreamCap)

	ctx := context.Background()
	clock := &demoClock{now: 1_000}

	owner := guard.Address(cfg.OwnerAddress)
	agent := guard.Address("agent-1")
	merchant := guard.Address("merchant")

	bank := sink.NewBank(owner)
	if err := bank.Deposit(owner, 1_000_000); err != nil {
		logger.Error("fund treasury", "error", err)
		os.Exit(1)
	}
	settle := sink.NewLogged(bank, logger)

	chain := journal.NewChain()
	var j journal.Journal = chain
	switch cfg.JournalBackend {
	case "sqlite":
		store, err := journal.OpenSQLiteStore(cfg.SQLitePath)
		must(logger, "open sqlite journal", err)
		defer func() { _ = store.Close() }()
		j = journal.MultiJournal{chain, store}
	case "postgres":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		must(logger, "open postgres journal", err)
		defer func() { _ = db.Close() }()
		store := journal.NewPostgresStore(db)
		must(logger, "migrate postgres journal", store.Migrate(ctx))
		j = journal.MultiJournal{chain, store}
	}

	if cfg.OTLPEndpoint != "" {
		obsCfg := observability.DefaultConfig()
		obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
		provider, err := observability.New(ctx, obsCfg)
		must(logger, "start metrics provider", err)
		defer func() { _ = provider.Shutdown(ctx) }()
		j = journal.MultiJournal{j, observability.NewBridge(provider)}
	}

	// Allowance: grant, spend within budget, then refuse.
	ledger := allowance.NewLedger(owner, clock, settle, j)
	must(logger, "set allowance",
		ledger.SetAllowance(owner, agent, profile.AllowanceAmount, clock.now+profile.AllowanceTTLSeconds))
	must(logger, "spend within allowance", ledger.Spend(ctx, agent, merchant, 400))
	logger.Info("allowance after spend", "agent", agent, "remaining", ledger.Allowance(agent))
	if err := ledger.Spend(ctx, agent, merchant, profile.AllowanceAmount); err != nil {
		logger.Info("overspend refused", "error", err)
	}

	// Stream: accrue, then drain up to the cap.
	acct := stream.NewAccount(owner, clock, settle, j)
	streamID, err := acct.CreateStream(owner, merchant, profile.StreamRatePerSecond, profile.StreamCap)
	must(logger, "create stream", err)
	clock.Advance(30)
	paid, err := acct.Withdraw(ctx, merchant, streamID)
	must(logger, "withdraw from stream", err)
	logger.Info("stream withdrawal", "id", streamID, "paid", paid,
		"withdrawable_now", acct.Withdrawable(streamID))

	// Commitment: bind secret+recipient+amount, then reveal once.
	commits := commitment.NewRegistry(clock, settle, j)
	secret := [32]byte{'d', 'e', 'm', 'o'}
	key := commitment.ComputeKey(secret, merchant, 250)
	must(logger, "commit", commits.Commit(agent, key, 300))
	payout, err := commits.Reveal(ctx, agent, secret, merchant, 250)
	must(logger, "reveal", err)
	logger.Info("commitment revealed", "key", key.String(), "paid", payout)
	if _, err := commits.Reveal(ctx, agent, secret, merchant, 250); err != nil {
		logger.Info("replayed reveal refused", "error", err)
	}

	// Time lock: funds stay put until the delay elapses.
	vault := timelock.NewVault(owner, clock, settle, j)
	lockID, err := vault.CreateLock(owner, 500, clock.now+profile.TimelockDelaySeconds)
	must(logger, "create lock", err)
	if err := vault.Withdraw(ctx, owner, lockID, merchant); err != nil {
		logger.Info("early withdrawal refused", "error", err)
	}
	clock.Advance(profile.TimelockDelaySeconds)
	must(logger, "withdraw after delay", vault.Withdraw(ctx, owner, lockID, merchant))

	// Rate window: one ceiling per rolling window. With REDIS_ADDR set the
	// window state is shared across processes.
	limiter := ratelimit.NewLimiter(owner, clock, j)
	if cfg.RedisAddr != "" {
		window := ratelimit.NewRedisWindow(cfg.RedisAddr, "", 0)
		defer func() { _ = window.Close() }()
		limiter = ratelimit.NewLimiterWithWindow(owner, clock, window, j)
	}
	must(logger, "set rate limit",
		limiter.SetRateLimit(owner, agent, profile.RateMaxAmount, profile.RateWindowSeconds))
	must(logger, "action within window", limiter.ExecuteAction(agent, profile.RateMaxAmount/2))
	if err := limiter.ExecuteAction(agent, profile.RateMaxAmount); err != nil {
		logger.Info("over-window action refused", "error", err, "remaining", limiter.Remaining(agent))
	}

	// Escrow: hold, gate release behind a condition, settle.
	escrows, err := escrow.NewRegistry(owner, clock, settle, j)
	must(logger, "build escrow registry", err)
	escrowID, err := escrows.CreateEscrow(agent, merchant, 750)
	must(logger, "create escrow", err)
	must(logger, "attach condition", escrows.AttachCondition(owner, escrowID, "input.age_seconds >= 60"))
	if err := escrows.Release(ctx, owner, escrowID); err != nil {
		logger.Info("premature release refused", "error", err)
	}
	clock.Advance(60)
	must(logger, "release escrow", escrows.Release(ctx, owner, escrowID))

	ok, detail := chain.Verify()
	if !ok {
		logger.Error("journal verification failed", "detail", detail)
		os.Exit(1)
	}
	logger.Info("journal verified",
		"entries", chain.Length(), "head", chain.Head(),
		"merchant_balance", bank.Balance(merchant))
}

func must(logger *slog.Logger, op string, err error) {
	if err != nil {
		logger.Error(op, "error", err)
		os.Exit(1)
	}
}
