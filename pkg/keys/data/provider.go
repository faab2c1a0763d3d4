package data

import (
	"context"
	"database/sql"
	"sync"

	"github.com/holiman/uint256"
	"github.com/jmoiron/sqlx"

	pg "github.com/code-payments/keys-server/pkg/database/postgres"
	"github.com/code-payments/keys-server/pkg/database/query"

	"github.com/code-payments/keys-server/pkg/keys/data/allowance"
	"github.com/code-payments/keys-server/pkg/keys/data/balance"
	"github.com/code-payments/keys-server/pkg/keys/data/params"
	"github.com/code-payments/keys-server/pkg/keys/data/subject"
	"github.com/code-payments/keys-server/pkg/keys/data/trade"

	allowance_memory_client "github.com/code-payments/keys-server/pkg/keys/data/allowance/memory"
	balance_memory_client "github.com/code-payments/keys-server/pkg/keys/data/balance/memory"
	params_memory_client "github.com/code-payments/keys-server/pkg/keys/data/params/memory"
	subject_memory_client "github.com/code-payments/keys-server/pkg/keys/data/subject/memory"
	trade_memory_client "github.com/code-payments/keys-server/pkg/keys/data/trade/memory"

	allowance_postgres_client "github.com/code-payments/keys-server/pkg/keys/data/allowance/postgres"
	balance_postgres_client "github.com/code-payments/keys-server/pkg/keys/data/balance/postgres"
	params_postgres_client "github.com/code-payments/keys-server/pkg/keys/data/params/postgres"
	subject_postgres_client "github.com/code-payments/keys-server/pkg/keys/data/subject/postgres"
	trade_postgres_client "github.com/code-payments/keys-server/pkg/keys/data/trade/postgres"
)

type DatabaseData interface {
	// Subjects
	// --------------------------------------------------------------------------------
	InitializeSubject(ctx context.Context, name, holder string) (*subject.Record, error)
	GetSubject(ctx context.Context, name string) (*subject.Record, error)
	MintKeys(ctx context.Context, name, holder string, amount uint64) (uint64, error)
	BurnKeys(ctx context.Context, name, holder string, amount uint64) (uint64, error)
	GetKeyBalance(ctx context.Context, name, holder string) (uint64, error)
	GetKeyHoldings(ctx context.Context, name string) ([]*subject.Holding, error)

	// Value Balances
	// --------------------------------------------------------------------------------
	GetValueBalance(ctx context.Context, asset balance.Asset, owner string) (*uint256.Int, error)
	CreditValue(ctx context.Context, asset balance.Asset, owner string, amount *uint256.Int) error
	DebitValue(ctx context.Context, asset balance.Asset, owner string, amount *uint256.Int) error
	GetValueTotal(ctx context.Context, asset balance.Asset) (*uint256.Int, error)

	// Allowances
	// --------------------------------------------------------------------------------
	GetAllowance(ctx context.Context, owner, spender string) (*uint256.Int, error)
	SetAllowance(ctx context.Context, owner, spender string, amount *uint256.Int) error
	SpendAllowance(ctx context.Context, owner, spender string, amount *uint256.Int) error

	// Market Parameters
	// --------------------------------------------------------------------------------
	GetMarketParams(ctx context.Context) (*params.Record, error)
	PutMarketParams(ctx context.Context, record *params.Record) error

	// Trades
	// --------------------------------------------------------------------------------
	PutTrade(ctx context.Context, record *trade.Record) error
	GetTrade(ctx context.Context, tradeId string) (*trade.Record, error)
	GetAllTradesBySubject(ctx context.Context, name string, opts ...query.Option) ([]*trade.Record, error)
	GetAllTradesByTrader(ctx context.Context, trader string, opts ...query.Option) ([]*trade.Record, error)
	GetTradeCountBySubject(ctx context.Context, name string) (uint64, error)

	// ExecuteInTx executes fn with a single DB transaction that is scoped to the call.
	// Every store call made by fn with the provided context joins the transaction,
	// and none of its effects are visible if fn returns an error.
	ExecuteInTx(ctx context.Context, isolation sql.IsolationLevel, fn func(ctx context.Context) error) error
}

// snapshotter is implemented by the in memory stores, which emulate
// transactions by restoring a snapshot when fn fails.
type snapshotter interface {
	Snapshot() func()
}

type memoryTxContextKey struct{}

type DatabaseProvider struct {
	subjects   subject.Store
	balances   balance.Store
	allowances allowance.Store
	params     params.Store
	trades     trade.Store

	db *sqlx.DB

	memoryTxMu sync.Mutex
}

func NewDatabaseProvider(dbConfig *pg.Config) (DatabaseData, error) {
	db, err := pg.Open(context.Background(), dbConfig)
	if err != nil {
		return nil, err
	}
	return NewDatabaseProviderFromDB(db), nil
}

// NewDatabaseProviderFromDB returns a postgres backed provider over an already
// opened connection pool
func NewDatabaseProviderFromDB(db *sql.DB) DatabaseData {
	return &DatabaseProvider{
		subjects:   subject_postgres_client.New(db),
		balances:   balance_postgres_client.New(db),
		allowances: allowance_postgres_client.New(db),
		params:     params_postgres_client.New(db),
		trades:     trade_postgres_client.New(db),

		db: sqlx.NewDb(db, "pgx"),
	}
}

func NewTestDatabaseProvider() DatabaseData {
	return &DatabaseProvider{
		subjects:   subject_memory_client.New(),
		balances:   balance_memory_client.New(),
		allowances: allowance_memory_client.New(),
		params:     params_memory_client.New(),
		trades:     trade_memory_client.New(),
	}
}

func (dp *DatabaseProvider) ExecuteInTx(ctx context.Context, isolation sql.IsolationLevel, fn func(ctx context.Context) error) error {
	if dp.db != nil {
		return pg.ExecuteTxWithinCtx(ctx, dp.db, isolation, fn)
	}

	if ctx.Value(memoryTxContextKey{}) != nil {
		return pg.ErrAlreadyInTx
	}

	// In memory transactions are serialized with each other, but not with
	// writes made outside of one.
	dp.memoryTxMu.Lock()
	defer dp.memoryTxMu.Unlock()

	var restores []func()
	for _, store := range []interface{}{dp.subjects, dp.balances, dp.allowances, dp.params, dp.trades} {
		if s, ok := store.(snapshotter); ok {
			restores = append(restores, s.Snapshot())
		}
	}

	if err := fn(context.WithValue(ctx, memoryTxContextKey{}, struct{}{})); err != nil {
		for _, restore := range restores {
			restore()
		}
		return err
	}
	return nil
}

// Subjects
// --------------------------------------------------------------------------------
func (dp *DatabaseProvider) InitializeSubject(ctx context.Context, name, holder string) (*subject.Record, error) {
	return dp.subjects.Initialize(ctx, name, holder)
}
func (dp *DatabaseProvider) GetSubject(ctx context.Context, name string) (*subject.Record, error) {
	return dp.subjects.Get(ctx, name)
}
func (dp *DatabaseProvider) MintKeys(ctx context.Context, name, holder string, amount uint64) (uint64, error) {
	return dp.subjects.Mint(ctx, name, holder, amount)
}
func (dp *DatabaseProvider) BurnKeys(ctx context.Context, name, holder string, amount uint64) (uint64, error) {
	return dp.subjects.Burn(ctx, name, holder, amount)
}
func (dp *DatabaseProvider) GetKeyBalance(ctx context.Context, name, holder string) (uint64, error) {
	return dp.subjects.GetBalance(ctx, name, holder)
}
func (dp *DatabaseProvider) GetKeyHoldings(ctx context.Context, name string) ([]*subject.Holding, error) {
	return dp.subjects.GetHoldings(ctx, name)
}

// Value Balances
// --------------------------------------------------------------------------------
func (dp *DatabaseProvider) GetValueBalance(ctx context.Context, asset balance.Asset, owner string) (*uint256.Int, error) {
	return dp.balances.GetBalance(ctx, asset, owner)
}
func (dp *DatabaseProvider) CreditValue(ctx context.Context, asset balance.Asset, owner string, amount *uint256.Int) error {
	return dp.balances.Credit(ctx, asset, owner, amount)
}
func (dp *DatabaseProvider) DebitValue(ctx context.Context, asset balance.Asset, owner string, amount *uint256.Int) error {
	return dp.balances.Debit(ctx, asset, owner, amount)
}
func (dp *DatabaseProvider) GetValueTotal(ctx context.Context, asset balance.Asset) (*uint256.Int, error) {
	return dp.balances.GetTotal(ctx, asset)
}

// Allowances
// --------------------------------------------------------------------------------
func (dp *DatabaseProvider) GetAllowance(ctx context.Context, owner, spender string) (*uint256.Int, error) {
	return dp.allowances.Get(ctx, owner, spender)
}
func (dp *DatabaseProvider) SetAllowance(ctx context.Context, owner, spender string, amount *uint256.Int) error {
	return dp.allowances.Set(ctx, owner, spender, amount)
}
func (dp *DatabaseProvider) SpendAllowance(ctx context.Context, owner, spender string, amount *uint256.Int) error {
	return dp.allowances.Spend(ctx, owner, spender, amount)
}

// Market Parameters
// --------------------------------------------------------------------------------
func (dp *DatabaseProvider) GetMarketParams(ctx context.Context) (*params.Record, error) {
	return dp.params.Get(ctx)
}
func (dp *DatabaseProvider) PutMarketParams(ctx context.Context, record *params.Record) error {
	return dp.params.Put(ctx, record)
}

// Trades
// --------------------------------------------------------------------------------
func (dp *DatabaseProvider) PutTrade(ctx context.Context, record *trade.Record) error {
	return dp.trades.Put(ctx, record)
}
func (dp *DatabaseProvider) GetTrade(ctx context.Context, tradeId string) (*trade.Record, error) {
	return dp.trades.Get(ctx, tradeId)
}
func (dp *DatabaseProvider) GetAllTradesBySubject(ctx context.Context, name string, opts ...query.Option) ([]*trade.Record, error) {
	return dp.trades.GetAllBySubject(ctx, name, opts...)
}
func (dp *DatabaseProvider) GetAllTradesByTrader(ctx context.Context, trader string, opts ...query.Option) ([]*trade.Record, error) {
	return dp.trades.GetAllByTrader(ctx, trader, opts...)
}
func (dp *DatabaseProvider) GetTradeCountBySubject(ctx context.Context, name string) (uint64, error) {
	return dp.trades.CountBySubject(ctx, name)
}
