package market

import (
	"context"

	"google.golang.org/grpc"

	"github.com/code-payments/keys-server/pkg/keys/common"
)

// ServiceName is the fully qualified name of the market gRPC service
const ServiceName = "keys.market.v1.Market"

// Result is the business outcome of an RPC that completed with an OK status
type Result string

const (
	ResultOK                  Result = "OK"
	ResultDenied              Result = "DENIED"
	ResultRateLimited         Result = "RATE_LIMITED"
	ResultSubjectNotFound     Result = "SUBJECT_NOT_FOUND"
	ResultTradeNotFound       Result = "TRADE_NOT_FOUND"
	ResultLastKeyProtected    Result = "LAST_KEY_PROTECTED"
	ResultInsufficientPayment Result = "INSUFFICIENT_PAYMENT"
	ResultInsufficientBalance Result = "INSUFFICIENT_BALANCE"
	ResultInsufficientFunds   Result = "INSUFFICIENT_FUNDS"
	ResultUnexpectedValue     Result = "UNEXPECTED_VALUE"
	ResultUnsupportedOnRail   Result = "UNSUPPORTED_ON_RAIL"
	ResultFeeTooHigh          Result = "FEE_TOO_HIGH"
	ResultInvalidParameters   Result = "INVALID_PARAMETERS"
	ResultTransferFailed      Result = "TRANSFER_FAILED"
	ResultReentrantCall       Result = "REENTRANT_CALL"
	ResultOverflow            Result = "OVERFLOW"
)

// Outcome is embedded in every response
type Outcome struct {
	Result Result `json:"result"`
}

// GetResultCode exposes the result to the metrics interceptor
func (o Outcome) GetResultCode() string {
	return string(o.Result)
}

// Signature carries an owner's signature over the rest of a request
type Signature struct {
	Owner     common.Address `json:"owner"`
	Signature []byte         `json:"signature,omitempty"`
}

func (s *Signature) GetOwner() common.Address {
	return s.Owner
}

func (s *Signature) GetSignature() []byte {
	return s.Signature
}

func (s *Signature) SetSignature(signature []byte) {
	s.Signature = signature
}

// Amounts of value are decimal strings of 18 decimal fixed point integers.
// Fee percentages are decimal fractions, where "0.05" is five percent.

type Quote struct {
	Subject     string         `json:"subject"`
	Direction   string         `json:"direction"`
	Amount      uint64         `json:"amount,string"`
	Rail        string         `json:"rail"`
	Supply      uint64         `json:"supply,string"`
	Referrer    common.Address `json:"referrer"`
	GrossPrice  string         `json:"gross_price"`
	ProtocolFee string         `json:"protocol_fee"`
	SubjectFee  string         `json:"subject_fee"`
	ReferrerFee string         `json:"referrer_fee"`
	Total       string         `json:"total"`
}

type Trade struct {
	TradeId      string         `json:"trade_id"`
	Subject      string         `json:"subject"`
	Trader       common.Address `json:"trader"`
	RightsHolder common.Address `json:"rights_holder"`
	Referrer     common.Address `json:"referrer"`
	Direction    string         `json:"direction"`
	Rail         string         `json:"rail"`
	Amount       uint64         `json:"amount,string"`
	GrossPrice   string         `json:"gross_price"`
	ProtocolFee  string         `json:"protocol_fee"`
	SubjectFee   string         `json:"subject_fee"`
	ReferrerFee  string         `json:"referrer_fee"`
	Total        string         `json:"total"`
	Supply       uint64         `json:"supply,string"`
	CreatedAt    int64          `json:"created_at"`
}

type Parameters struct {
	FeeReceiver        common.Address `json:"fee_receiver"`
	ProtocolFeePercent string         `json:"protocol_fee_percent"`
	SubjectFeePercent  string         `json:"subject_fee_percent"`
	ReferrerFeePercent string         `json:"referrer_fee_percent"`
	CurveRatio         string         `json:"curve_ratio"`
	Version            uint64         `json:"version,string"`
	LastUpdatedAt      int64          `json:"last_updated_at"`
}

type QuoteRequest struct {
	Subject  string         `json:"subject"`
	Amount   uint64         `json:"amount,string"`
	Referrer common.Address `json:"referrer"`
}

type QuoteResponse struct {
	Outcome
	Quote *Quote `json:"quote,omitempty"`
}

type BuyRequest struct {
	Subject  string         `json:"subject"`
	Amount   uint64         `json:"amount,string"`
	Value    string         `json:"value,omitempty"`
	Referrer common.Address `json:"referrer"`
	Signature
}

type SellRequest struct {
	Subject  string         `json:"subject"`
	Amount   uint64         `json:"amount,string"`
	Referrer common.Address `json:"referrer"`
	Signature
}

type TradeResponse struct {
	Outcome
	Trade *Trade `json:"trade,omitempty"`
}

type GetSupplyRequest struct {
	Subject string `json:"subject"`
}

type GetSupplyResponse struct {
	Outcome
	Supply uint64 `json:"supply,string"`
}

type GetBalanceRequest struct {
	Subject string         `json:"subject"`
	Holder  common.Address `json:"holder"`
}

type GetBalanceResponse struct {
	Outcome
	Balance uint64 `json:"balance,string"`
}

type GetTradeRequest struct {
	TradeId string `json:"trade_id"`
}

// GetTradeHistoryRequest pages through the trades of a subject, or of a
// trader when no subject is set.
type GetTradeHistoryRequest struct {
	Subject    string         `json:"subject,omitempty"`
	Trader     common.Address `json:"trader"`
	Cursor     string         `json:"cursor,omitempty"`
	Limit      uint64         `json:"limit,string,omitempty"`
	Descending bool           `json:"descending,omitempty"`
}

type GetTradeHistoryResponse struct {
	Outcome
	Trades     []*Trade `json:"trades"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type GetParametersRequest struct{}

type ParametersResponse struct {
	Outcome
	Parameters *Parameters `json:"parameters,omitempty"`
}

type SetFeeReceiverRequest struct {
	FeeReceiver common.Address `json:"fee_receiver"`
	Signature
}

// SetFeePercentagesRequest leaves the referrer fee unchanged when it is empty
type SetFeePercentagesRequest struct {
	ProtocolFeePercent string `json:"protocol_fee_percent"`
	SubjectFeePercent  string `json:"subject_fee_percent"`
	ReferrerFeePercent string `json:"referrer_fee_percent,omitempty"`
	Signature
}

type SetCurveRatioRequest struct {
	CurveRatio string `json:"curve_ratio"`
	Signature
}

type GetValueBalanceRequest struct {
	Owner common.Address `json:"owner"`
}

type DepositRequest struct {
	Amount string `json:"amount"`
	Signature
}

type ApproveRequest struct {
	Amount string `json:"amount"`
	Signature
}

type ValueBalanceResponse struct {
	Outcome
	Rail      string `json:"rail"`
	Balance   string `json:"balance"`
	Allowance string `json:"allowance"`
}

// MarketServer is the server API for the market service
type MarketServer interface {
	QuoteBuy(context.Context, *QuoteRequest) (*QuoteResponse, error)
	QuoteSell(context.Context, *QuoteRequest) (*QuoteResponse, error)
	Buy(context.Context, *BuyRequest) (*TradeResponse, error)
	Sell(context.Context, *SellRequest) (*TradeResponse, error)
	GetSupply(context.Context, *GetSupplyRequest) (*GetSupplyResponse, error)
	GetBalance(context.Context, *GetBalanceRequest) (*GetBalanceResponse, error)
	GetTrade(context.Context, *GetTradeRequest) (*TradeResponse, error)
	GetTradeHistory(context.Context, *GetTradeHistoryRequest) (*GetTradeHistoryResponse, error)
	GetParameters(context.Context, *GetParametersRequest) (*ParametersResponse, error)
	SetFeeReceiver(context.Context, *SetFeeReceiverRequest) (*ParametersResponse, error)
	SetFeePercentages(context.Context, *SetFeePercentagesRequest) (*ParametersResponse, error)
	SetCurveRatio(context.Context, *SetCurveRatioRequest) (*ParametersResponse, error)
	GetValueBalance(context.Context, *GetValueBalanceRequest) (*ValueBalanceResponse, error)
	Deposit(context.Context, *DepositRequest) (*ValueBalanceResponse, error)
	Approve(context.Context, *ApproveRequest) (*ValueBalanceResponse, error)
}

// RegisterMarketServer registers srv with s
func RegisterMarketServer(s grpc.ServiceRegistrar, srv MarketServer) {
	s.RegisterService(&serviceDesc, srv)
}

func unaryHandler[Req any, Resp any](method string, call func(MarketServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(MarketServer), ctx, in)
			}

			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod,
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(MarketServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MarketServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("QuoteBuy", MarketServer.QuoteBuy),
		unaryHandler("QuoteSell", MarketServer.QuoteSell),
		unaryHandler("Buy", MarketServer.Buy),
		unaryHandler("Sell", MarketServer.Sell),
		unaryHandler("GetSupply", MarketServer.GetSupply),
		unaryHandler("GetBalance", MarketServer.GetBalance),
		unaryHandler("GetTrade", MarketServer.GetTrade),
		unaryHandler("GetTradeHistory", MarketServer.GetTradeHistory),
		unaryHandler("GetParameters", MarketServer.GetParameters),
		unaryHandler("SetFeeReceiver", MarketServer.SetFeeReceiver),
		unaryHandler("SetFeePercentages", MarketServer.SetFeePercentages),
		unaryHandler("SetCurveRatio", MarketServer.SetCurveRatio),
		unaryHandler("GetValueBalance", MarketServer.GetValueBalance),
		unaryHandler("Deposit", MarketServer.Deposit),
		unaryHandler("Approve", MarketServer.Approve),
	},
	Metadata: "keys/market/v1/market_service.proto",
}

// MarketClient is the client API for the market service
type MarketClient struct {
	cc grpc.ClientConnInterface
}

func NewMarketClient(cc grpc.ClientConnInterface) *MarketClient {
	return &MarketClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in interface{}, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *MarketClient) QuoteBuy(ctx context.Context, in *QuoteRequest, opts ...grpc.CallOption) (*QuoteResponse, error) {
	return invoke[QuoteResponse](ctx, c.cc, "QuoteBuy", in, opts...)
}

func (c *MarketClient) QuoteSell(ctx context.Context, in *QuoteRequest, opts ...grpc.CallOption) (*QuoteResponse, error) {
	return invoke[QuoteResponse](ctx, c.cc, "QuoteSell", in, opts...)
}

func (c *MarketClient) Buy(ctx context.Context, in *BuyRequest, opts ...grpc.CallOption) (*TradeResponse, error) {
	return invoke[TradeResponse](ctx, c.cc, "Buy", in, opts...)
}

func (c *MarketClient) Sell(ctx context.Context, in *SellRequest, opts ...grpc.CallOption) (*TradeResponse, error) {
	return invoke[TradeResponse](ctx, c.cc, "Sell", in, opts...)
}

func (c *MarketClient) GetSupply(ctx context.Context, in *GetSupplyRequest, opts ...grpc.CallOption) (*GetSupplyResponse, error) {
	return invoke[GetSupplyResponse](ctx, c.cc, "GetSupply", in, opts...)
}

func (c *MarketClient) GetBalance(ctx context.Context, in *GetBalanceRequest, opts ...grpc.CallOption) (*GetBalanceResponse, error) {
	return invoke[GetBalanceResponse](ctx, c.cc, "GetBalance", in, opts...)
}

func (c *MarketClient) GetTrade(ctx context.Context, in *GetTradeRequest, opts ...grpc.CallOption) (*TradeResponse, error) {
	return invoke[TradeResponse](ctx, c.cc, "GetTrade", in, opts...)
}

func (c *MarketClient) GetTradeHistory(ctx context.Context, in *GetTradeHistoryRequest, opts ...grpc.CallOption) (*GetTradeHistoryResponse, error) {
	return invoke[GetTradeHistoryResponse](ctx, c.cc, "GetTradeHistory", in, opts...)
}

func (c *MarketClient) GetParameters(ctx context.Context, in *GetParametersRequest, opts ...grpc.CallOption) (*ParametersResponse, error) {
	return invoke[ParametersResponse](ctx, c.cc, "GetParameters", in, opts...)
}

func (c *MarketClient) SetFeeReceiver(ctx context.Context, in *SetFeeReceiverRequest, opts ...grpc.CallOption) (*ParametersResponse, error) {
	return invoke[ParametersResponse](ctx, c.cc, "SetFeeReceiver", in, opts...)
}

func (c *MarketClient) SetFeePercentages(ctx context.Context, in *SetFeePercentagesRequest, opts ...grpc.CallOption) (*ParametersResponse, error) {
	return invoke[ParametersResponse](ctx, c.cc, "SetFeePercentages", in, opts...)
}

func (c *MarketClient) SetCurveRatio(ctx context.Context, in *SetCurveRatioRequest, opts ...grpc.CallOption) (*ParametersResponse, error) {
	return invoke[ParametersResponse](ctx, c.cc, "SetCurveRatio", in, opts...)
}

func (c *MarketClient) GetValueBalance(ctx context.Context, in *GetValueBalanceRequest, opts ...grpc.CallOption) (*ValueBalanceResponse, error) {
	return invoke[ValueBalanceResponse](ctx, c.cc, "GetValueBalance", in, opts...)
}

func (c *MarketClient) Deposit(ctx context.Context, in *DepositRequest, opts ...grpc.CallOption) (*ValueBalanceResponse, error) {
	return invoke[ValueBalanceResponse](ctx, c.cc, "Deposit", in, opts...)
}

func (c *MarketClient) Approve(ctx context.Context, in *ApproveRequest, opts ...grpc.CallOption) (*ValueBalanceResponse, error) {
	return invoke[ValueBalanceResponse](ctx, c.cc, "Approve", in, opts...)
}
