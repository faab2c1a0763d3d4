package market

import (
	"context"
	"errors"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
	xrate "golang.org/x/time/rate"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/code-payments/keys-server/pkg/database/query"
	"github.com/code-payments/keys-server/pkg/grpc/client"
	"github.com/code-payments/keys-server/pkg/grpc/headers"
	"github.com/code-payments/keys-server/pkg/keys/auth"
	"github.com/code-payments/keys-server/pkg/keys/common"
	"github.com/code-payments/keys-server/pkg/keys/data/allowance"
	"github.com/code-payments/keys-server/pkg/keys/data/balance"
	"github.com/code-payments/keys-server/pkg/keys/data/params"
	"github.com/code-payments/keys-server/pkg/keys/data/trade"
	"github.com/code-payments/keys-server/pkg/keys/fees"
	"github.com/code-payments/keys-server/pkg/keys/market"
	"github.com/code-payments/keys-server/pkg/keys/payment"
	"github.com/code-payments/keys-server/pkg/rate"
)

const (
	maxPageSize     = 100
	defaultPageSize = 25
)

type server struct {
	log     *logrus.Entry
	conf    *conf
	market  *market.Market
	auth    *auth.SignatureVerifier
	limiter *limiter
}

func NewMarketServer(m *market.Market, verifier *auth.SignatureVerifier, configProvider ConfigProvider) MarketServer {
	conf := configProvider()

	ctx := context.Background()
	limiter := newLimiter(func(r float64) rate.Limiter {
		return rate.NewLocalRateLimiter(xrate.Limit(r))
	}, float64(conf.tradeRateLimit.Get(ctx)), float64(conf.quoteRateLimit.Get(ctx)))

	return &server{
		log:     logrus.StandardLogger().WithField("type", "keys/server/market"),
		conf:    conf,
		market:  m,
		auth:    verifier,
		limiter: limiter,
	}
}

func (s *server) QuoteBuy(ctx context.Context, req *QuoteRequest) (*QuoteResponse, error) {
	return s.quote(ctx, "QuoteBuy", req, s.market.QuoteBuy)
}

func (s *server) QuoteSell(ctx context.Context, req *QuoteRequest) (*QuoteResponse, error) {
	return s.quote(ctx, "QuoteSell", req, s.market.QuoteSell)
}

type quoteFunc func(ctx context.Context, subject string, amount uint64, referrer common.Address) (*market.Quote, error)

func (s *server) quote(ctx context.Context, method string, req *QuoteRequest, fn quoteFunc) (*QuoteResponse, error) {
	log := s.newLog(ctx, method).WithFields(logrus.Fields{
		"subject": req.Subject,
		"amount":  req.Amount,
	})

	if !s.limiter.allowClient(ctx) {
		return &QuoteResponse{Outcome: Outcome{ResultRateLimited}}, nil
	}

	quote, err := fn(ctx, req.Subject, req.Amount, req.Referrer)
	if result, err := s.handleError(ctx, log, err); err != nil || result != ResultOK {
		return &QuoteResponse{Outcome: Outcome{result}}, err
	}

	return &QuoteResponse{
		Outcome: Outcome{ResultOK},
		Quote:   toQuote(quote),
	}, nil
}

func (s *server) Buy(ctx context.Context, req *BuyRequest) (*TradeResponse, error) {
	log := s.newLog(ctx, "Buy").WithFields(logrus.Fields{
		"owner":   req.Owner.String(),
		"subject": req.Subject,
		"amount":  req.Amount,
	})

	if err := s.auth.Authenticate(ctx, req); err != nil {
		return nil, err
	}

	value, err := parseOptionalAmount(req.Value)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid value")
	}

	if !s.limiter.allowOwner(req.Owner) {
		return &TradeResponse{Outcome: Outcome{ResultRateLimited}}, nil
	}

	record, err := s.market.Buy(ctx, req.Owner, req.Subject, req.Amount, value, req.Referrer)
	if result, err := s.handleError(ctx, log, err); err != nil || result != ResultOK {
		return &TradeResponse{Outcome: Outcome{result}}, err
	}

	return &TradeResponse{
		Outcome: Outcome{ResultOK},
		Trade:   toTrade(record),
	}, nil
}

func (s *server) Sell(ctx context.Context, req *SellRequest) (*TradeResponse, error) {
	log := s.newLog(ctx, "Sell").WithFields(logrus.Fields{
		"owner":   req.Owner.String(),
		"subject": req.Subject,
		"amount":  req.Amount,
	})

	if err := s.auth.Authenticate(ctx, req); err != nil {
		return nil, err
	}

	if !s.limiter.allowOwner(req.Owner) {
		return &TradeResponse{Outcome: Outcome{ResultRateLimited}}, nil
	}

	record, err := s.market.Sell(ctx, req.Owner, req.Subject, req.Amount, req.Referrer)
	if result, err := s.handleError(ctx, log, err); err != nil || result != ResultOK {
		return &TradeResponse{Outcome: Outcome{result}}, err
	}

	return &TradeResponse{
		Outcome: Outcome{ResultOK},
		Trade:   toTrade(record),
	}, nil
}

func (s *server) GetSupply(ctx context.Context, req *GetSupplyRequest) (*GetSupplyResponse, error) {
	log := s.newLog(ctx, "GetSupply").WithField("subject", req.Subject)

	if !s.limiter.allowClient(ctx) {
		return &GetSupplyResponse{Outcome: Outcome{ResultRateLimited}}, nil
	}

	supply, err := s.market.GetSupply(ctx, req.Subject)
	if result, err := s.handleError(ctx, log, err); err != nil || result != ResultOK {
		return &GetSupplyResponse{Outcome: Outcome{result}}, err
	}

	return &GetSupplyResponse{
		Outcome: Outcome{ResultOK},
		Supply:  supply,
	}, nil
}

func (s *server) GetBalance(ctx context.Context, req *GetBalanceRequest) (*GetBalanceResponse, error) {
	log := s.newLog(ctx, "GetBalance").WithFields(logrus.Fields{
		"subject": req.Subject,
		"holder":  req.Holder.String(),
	})

	if !s.limiter.allowClient(ctx) {
		return &GetBalanceResponse{Outcome: Outcome{ResultRateLimited}}, nil
	}

	keys, err := s.market.GetBalance(ctx, req.Subject, req.Holder)
	if result, err := s.handleError(ctx, log, err); err != nil || result != ResultOK {
		return &GetBalanceResponse{Outcome: Outcome{result}}, err
	}

	return &GetBalanceResponse{
		Outcome: Outcome{ResultOK},
		Balance: keys,
	}, nil
}

func (s *server) GetTrade(ctx context.Context, req *GetTradeRequest) (*TradeResponse, error) {
	log := s.newLog(ctx, "GetTrade").WithField("trade_id", req.TradeId)

	if len(req.TradeId) == 0 {
		return nil, status.Error(codes.InvalidArgument, "trade id is required")
	}

	if !s.limiter.allowClient(ctx) {
		return &TradeResponse{Outcome: Outcome{ResultRateLimited}}, nil
	}

	record, err := s.market.GetTrade(ctx, req.TradeId)
	if result, err := s.handleError(ctx, log, err); err != nil || result != ResultOK {
		return &TradeResponse{Outcome: Outcome{result}}, err
	}

	return &TradeResponse{
		Outcome: Outcome{ResultOK},
		Trade:   toTrade(record),
	}, nil
}

func (s *server) GetTradeHistory(ctx context.Context, req *GetTradeHistoryRequest) (*GetTradeHistoryResponse, error) {
	log := s.newLog(ctx, "GetTradeHistory").WithFields(logrus.Fields{
		"subject": req.Subject,
		"trader":  req.Trader.String(),
	})

	if len(req.Subject) == 0 && req.Trader.IsZero() {
		return nil, status.Error(codes.InvalidArgument, "subject or trader is required")
	}

	cursor, err := query.CursorFromBase58(req.Cursor)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid cursor")
	}

	limit := req.Limit
	if limit == 0 {
		limit = defaultPageSize
	} else if limit > maxPageSize {
		limit = maxPageSize
	}

	direction := query.Ascending
	if req.Descending {
		direction = query.Descending
	}

	opts := []query.Option{
		query.WithLimit(limit),
		query.WithDirection(direction),
	}
	if len(cursor) > 0 {
		opts = append(opts, query.WithCursor(cursor))
	}

	if !s.limiter.allowClient(ctx) {
		return &GetTradeHistoryResponse{Outcome: Outcome{ResultRateLimited}}, nil
	}

	var records []*trade.Record
	if len(req.Subject) > 0 {
		records, err = s.market.GetTradeHistory(ctx, req.Subject, opts...)
	} else {
		records, err = s.market.GetTraderHistory(ctx, req.Trader, opts...)
	}
	if result, err := s.handleError(ctx, log, err); err != nil || result != ResultOK {
		return &GetTradeHistoryResponse{Outcome: Outcome{result}}, err
	}

	resp := &GetTradeHistoryResponse{
		Outcome: Outcome{ResultOK},
		Trades:  make([]*Trade, 0, len(records)),
	}
	for _, record := range records {
		resp.Trades = append(resp.Trades, toTrade(record))
	}
	if uint64(len(records)) == limit {
		resp.NextCursor = query.ToCursor(records[len(records)-1].Id).ToBase58()
	}
	return resp, nil
}

func (s *server) GetParameters(ctx context.Context, _ *GetParametersRequest) (*ParametersResponse, error) {
	log := s.newLog(ctx, "GetParameters")

	record, err := s.market.GetParameters(ctx)
	if result, err := s.handleError(ctx, log, err); err != nil || result != ResultOK {
		return &ParametersResponse{Outcome: Outcome{result}}, err
	}

	return &ParametersResponse{
		Outcome:    Outcome{ResultOK},
		Parameters: toParameters(record),
	}, nil
}

func (s *server) SetFeeReceiver(ctx context.Context, req *SetFeeReceiverRequest) (*ParametersResponse, error) {
	log := s.newLog(ctx, "SetFeeReceiver").WithFields(logrus.Fields{
		"owner":        req.Owner.String(),
		"fee_receiver": req.FeeReceiver.String(),
	})

	return s.updateParameters(ctx, log, req, func() (*params.Record, error) {
		return s.market.SetFeeReceiver(ctx, req.Owner, req.FeeReceiver)
	})
}

func (s *server) SetFeePercentages(ctx context.Context, req *SetFeePercentagesRequest) (*ParametersResponse, error) {
	log := s.newLog(ctx, "SetFeePercentages").WithFields(logrus.Fields{
		"owner":                req.Owner.String(),
		"protocol_fee_percent": req.ProtocolFeePercent,
		"subject_fee_percent":  req.SubjectFeePercent,
		"referrer_fee_percent": req.ReferrerFeePercent,
	})

	protocol, err := fees.ParsePercent(req.ProtocolFeePercent)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid protocol fee percent")
	}
	subject, err := fees.ParsePercent(req.SubjectFeePercent)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid subject fee percent")
	}
	var referrer *uint256.Int
	if len(req.ReferrerFeePercent) > 0 {
		referrer, err = fees.ParsePercent(req.ReferrerFeePercent)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, "invalid referrer fee percent")
		}
	}

	return s.updateParameters(ctx, log, req, func() (*params.Record, error) {
		return s.market.SetFeePercentages(ctx, req.Owner, protocol, subject, referrer)
	})
}

func (s *server) SetCurveRatio(ctx context.Context, req *SetCurveRatioRequest) (*ParametersResponse, error) {
	log := s.newLog(ctx, "SetCurveRatio").WithFields(logrus.Fields{
		"owner":       req.Owner.String(),
		"curve_ratio": req.CurveRatio,
	})

	ratio, err := uint256.FromDecimal(req.CurveRatio)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid curve ratio")
	}

	return s.updateParameters(ctx, log, req, func() (*params.Record, error) {
		return s.market.SetCurveRatio(ctx, req.Owner, ratio)
	})
}

func (s *server) updateParameters(ctx context.Context, log *logrus.Entry, req auth.SignedRequest, update func() (*params.Record, error)) (*ParametersResponse, error) {
	if err := s.auth.Authenticate(ctx, req); err != nil {
		return nil, err
	}

	if !s.limiter.allowOwner(req.GetOwner()) {
		return &ParametersResponse{Outcome: Outcome{ResultRateLimited}}, nil
	}

	record, err := update()
	if result, err := s.handleError(ctx, log, err); err != nil || result != ResultOK {
		return &ParametersResponse{Outcome: Outcome{result}}, err
	}

	return &ParametersResponse{
		Outcome:    Outcome{ResultOK},
		Parameters: toParameters(record),
	}, nil
}

func (s *server) GetValueBalance(ctx context.Context, req *GetValueBalanceRequest) (*ValueBalanceResponse, error) {
	log := s.newLog(ctx, "GetValueBalance").WithField("owner", req.Owner.String())

	if req.Owner.IsZero() {
		return nil, status.Error(codes.InvalidArgument, "owner is required")
	}

	if !s.limiter.allowClient(ctx) {
		return &ValueBalanceResponse{Outcome: Outcome{ResultRateLimited}}, nil
	}

	return s.valueBalance(ctx, log, req.Owner)
}

func (s *server) Deposit(ctx context.Context, req *DepositRequest) (*ValueBalanceResponse, error) {
	log := s.newLog(ctx, "Deposit").WithFields(logrus.Fields{
		"owner":  req.Owner.String(),
		"amount": req.Amount,
	})

	if err := s.auth.Authenticate(ctx, req); err != nil {
		return nil, err
	}

	amount, err := uint256.FromDecimal(req.Amount)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid amount")
	}

	if !s.conf.enableDeposits.Get(ctx) {
		return &ValueBalanceResponse{Outcome: Outcome{ResultDenied}}, nil
	}

	if !s.limiter.allowOwner(req.Owner) {
		return &ValueBalanceResponse{Outcome: Outcome{ResultRateLimited}}, nil
	}

	err = s.market.Deposit(ctx, req.Owner, amount)
	if result, err := s.handleError(ctx, log, err); err != nil || result != ResultOK {
		return &ValueBalanceResponse{Outcome: Outcome{result}}, err
	}

	return s.valueBalance(ctx, log, req.Owner)
}

func (s *server) Approve(ctx context.Context, req *ApproveRequest) (*ValueBalanceResponse, error) {
	log := s.newLog(ctx, "Approve").WithFields(logrus.Fields{
		"owner":  req.Owner.String(),
		"amount": req.Amount,
	})

	if err := s.auth.Authenticate(ctx, req); err != nil {
		return nil, err
	}

	amount, err := parseOptionalAmount(req.Amount)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid amount")
	}

	if !s.limiter.allowOwner(req.Owner) {
		return &ValueBalanceResponse{Outcome: Outcome{ResultRateLimited}}, nil
	}

	err = s.market.Approve(ctx, req.Owner, amount)
	if result, err := s.handleError(ctx, log, err); err != nil || result != ResultOK {
		return &ValueBalanceResponse{Outcome: Outcome{result}}, err
	}

	return s.valueBalance(ctx, log, req.Owner)
}

func (s *server) valueBalance(ctx context.Context, log *logrus.Entry, owner common.Address) (*ValueBalanceResponse, error) {
	value, err := s.market.GetValueBalance(ctx, owner)
	if err != nil {
		log.WithError(err).Warn("failure getting value balance")
		return nil, status.Error(codes.Internal, "")
	}

	allowance, err := s.market.GetAllowance(ctx, owner)
	if err != nil {
		log.WithError(err).Warn("failure getting allowance")
		return nil, status.Error(codes.Internal, "")
	}

	return &ValueBalanceResponse{
		Outcome:   Outcome{ResultOK},
		Rail:      string(s.market.Rail()),
		Balance:   value.Dec(),
		Allowance: allowance.Dec(),
	}, nil
}

func (s *server) newLog(ctx context.Context, method string) *logrus.Entry {
	log := s.log.WithField("method", method)
	log = client.InjectLoggingMetadata(ctx, log)

	if requestId := headers.RequestId(ctx); len(requestId) > 0 {
		log = log.WithField("request_id", requestId)
	}
	return log
}

// handleError maps a market error to either a business result with an OK
// status, or a status error. A nil error maps to ResultOK.
func (s *server) handleError(ctx context.Context, log *logrus.Entry, err error) (Result, error) {
	if err == nil {
		return ResultOK, nil
	}

	if result, ok := resultFor(err); ok {
		log.WithError(err).Debug("request rejected")
		return result, nil
	}

	switch {
	case errors.Is(err, market.ErrInvalidAmount),
		errors.Is(err, market.ErrInvalidSubject),
		errors.Is(err, market.ErrInvalidAddress),
		errors.Is(err, market.ErrInvalidCurveRatio):
		return "", status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, market.ErrTradeLockLost),
		errors.Is(err, params.ErrStaleVersion):
		log.WithError(err).Info("market state changed during request")
		return "", status.Error(codes.Aborted, "")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		if ctx.Err() != nil {
			return "", status.FromContextError(ctx.Err()).Err()
		}

		// The trade lock timed out while the request itself is still live
		log.WithError(err).Info("timed out waiting for trade lock")
		return "", status.Error(codes.Aborted, "market is busy")
	}

	log.WithError(err).Warn("failure executing market request")
	return "", status.Error(codes.Internal, "")
}

func resultFor(err error) (Result, bool) {
	for _, mapping := range []struct {
		target error
		result Result
	}{
		{market.ErrUnauthorized, ResultDenied},
		{market.ErrSubjectNotFound, ResultSubjectNotFound},
		{trade.ErrNotFound, ResultTradeNotFound},
		{market.ErrLastKeyProtected, ResultLastKeyProtected},
		{market.ErrInsufficientPayment, ResultInsufficientPayment},
		{market.ErrInsufficientBalance, ResultInsufficientBalance},
		{balance.ErrInsufficientBalance, ResultInsufficientFunds},
		{allowance.ErrInsufficientAllowance, ResultInsufficientFunds},
		{market.ErrUnexpectedValue, ResultUnexpectedValue},
		{payment.ErrNotSupported, ResultUnsupportedOnRail},
		{market.ErrFeeTooHigh, ResultFeeTooHigh},
		{market.ErrInvalidParameters, ResultInvalidParameters},
		{market.ErrTransferFailed, ResultTransferFailed},
		{market.ErrReentrantCall, ResultReentrantCall},
		{market.ErrOverflow, ResultOverflow},
	} {
		if errors.Is(err, mapping.target) {
			return mapping.result, true
		}
	}
	return "", false
}

// parseOptionalAmount parses a decimal amount, where empty means zero
func parseOptionalAmount(value string) (*uint256.Int, error) {
	if len(value) == 0 {
		return new(uint256.Int), nil
	}
	return uint256.FromDecimal(value)
}
